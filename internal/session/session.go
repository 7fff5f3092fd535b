// Package session holds the state and transcript of one automation task
// and persists it.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/phonectl/phonectl/internal/action"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusRunning         Status = "running"
	StatusFinished        Status = "finished"
	StatusFailed          Status = "failed"
	StatusCancelled       Status = "cancelled"
	StatusBudgetExhausted Status = "budget_exhausted"
)

// Terminal reports whether no further steps may run.
func (s Status) Terminal() bool {
	return s != StatusRunning && s != ""
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusRunning, StatusFinished, StatusFailed, StatusCancelled, StatusBudgetExhausted:
		return true
	}
	return false
}

// StepStatus is the outcome of one step.
type StepStatus string

const (
	StepApplied   StepStatus = "applied"   // action applied to the device
	StepFinished  StepStatus = "finished"  // model signalled completion
	StepFailed    StepStatus = "failed"    // device, backend or gate failure
	StepAborted   StepStatus = "aborted"   // malformed model response
	StepCancelled StepStatus = "cancelled" // user declined confirmation
	StepDenied    StepStatus = "denied"    // refused by policy
	StepTakeover  StepStatus = "takeover"  // manual step completed by the user
)

// Step is one entry of the transcript. Steps are never modified once
// appended.
type Step struct {
	Index     int           `json:"index"`
	Action    action.Action `json:"action"`
	Thinking  string        `json:"thinking,omitempty"`
	Status    StepStatus    `json:"status"`
	Message   string        `json:"message,omitempty"`
	App       string        `json:"app,omitempty"`
	Sensitive bool          `json:"sensitive,omitempty"`
	Duration  time.Duration `json:"duration"`
	At        time.Time     `json:"at"`
}

// Session is one task run on one device.
type Session struct {
	ID       string `json:"id"`
	Task     string `json:"task"`
	DeviceID string `json:"device_id,omitempty"`
	MaxSteps int    `json:"max_steps"`
	Steps    []Step `json:"steps"`
	Status   Status `json:"status"`

	// Message is the final answer on finish, or the failure reason.
	Message string `json:"message,omitempty"`

	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	TokensUsed       int       `json:"tokens_used"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
}

// New creates a running session with a unique ID.
func New(task, deviceID string, maxSteps int) *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		Task:      task,
		DeviceID:  deviceID,
		MaxSteps:  maxSteps,
		Status:    StatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// StepCount returns the number of recorded steps.
func (s *Session) StepCount() int { return len(s.Steps) }

// Finished reports whether the model completed the task.
func (s *Session) Finished() bool { return s.Status == StatusFinished }

// Append records a step, assigning its index and timestamp.
func (s *Session) Append(step Step) Step {
	step.Index = len(s.Steps)
	if step.At.IsZero() {
		step.At = time.Now()
	}
	s.Steps = append(s.Steps, step)
	s.UpdatedAt = step.At
	return step
}

// LastStep returns the most recent step, if any.
func (s *Session) LastStep() (Step, bool) {
	if len(s.Steps) == 0 {
		return Step{}, false
	}
	return s.Steps[len(s.Steps)-1], true
}

// Close moves the session to a terminal status. Closing twice keeps the
// first outcome.
func (s *Session) Close(status Status, message string) {
	if s.Status.Terminal() {
		return
	}
	s.Status = status
	s.Message = message
	s.UpdatedAt = time.Now()
}

// AddUsage accumulates token usage.
func (s *Session) AddUsage(prompt, completion int) {
	s.PromptTokens += prompt
	s.CompletionTokens += completion
	s.TokensUsed += prompt + completion
}
