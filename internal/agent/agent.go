// Package agent drives one automation session: it observes the device, asks
// the model for the next action, routes sensitive and manual actions through
// a human, applies the action and records the outcome.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/phonectl/phonectl/internal/action"
	"github.com/phonectl/phonectl/internal/config"
	"github.com/phonectl/phonectl/internal/device"
	"github.com/phonectl/phonectl/internal/escalation"
	"github.com/phonectl/phonectl/internal/executor"
	"github.com/phonectl/phonectl/internal/model"
	"github.com/phonectl/phonectl/internal/permission"
	"github.com/phonectl/phonectl/internal/session"
)

var (
	// ErrTaskRequired is returned when a new session is started without a task.
	ErrTaskRequired = errors.New("task is required")

	// ErrSessionClosed is returned when stepping a finished session without
	// a new task.
	ErrSessionClosed = errors.New("session is closed")
)

// State is the agent's position in the session lifecycle.
type State string

const (
	StateIdle                 State = "idle"
	StateRunning              State = "running"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateAwaitingTakeover     State = "awaiting_takeover"
	StateFinished             State = "finished"
	StateFailed               State = "failed"
	StateCancelled            State = "cancelled"
	StateBudgetExhausted      State = "budget_exhausted"
)

// Terminal reports whether the session has ended.
func (s State) Terminal() bool {
	switch s {
	case StateFinished, StateFailed, StateCancelled, StateBudgetExhausted:
		return true
	}
	return false
}

// StateOf maps a stored session status to the agent state.
func StateOf(st session.Status) State {
	switch st {
	case session.StatusFinished:
		return StateFinished
	case session.StatusFailed:
		return StateFailed
	case session.StatusCancelled:
		return StateCancelled
	case session.StatusBudgetExhausted:
		return StateBudgetExhausted
	default:
		return StateRunning
	}
}

// Proposer produces the next action from the current device state.
// *model.Client implements it.
type Proposer interface {
	Propose(ctx context.Context, st model.State) (*model.Proposal, error)
	Reset()
}

// Result summarizes a session.
type Result struct {
	SessionID  string
	State      State
	Finished   bool
	Message    string
	Steps      int
	TokensUsed int
}

// StepResult is the outcome of a single step.
type StepResult struct {
	Step     session.Step
	State    State
	Finished bool

	// Message is the session's final message once State is terminal.
	Message string
}

// Agent runs sessions against one device. Steps are strictly sequential;
// an Agent must not be stepped from several goroutines at once.
type Agent struct {
	device   device.Device
	model    Proposer
	executor *executor.Executor
	policy   permission.Policy
	gate     escalation.Gate
	store    session.Store
	observer Observer
	logger   *slog.Logger

	deviceID      string
	maxSteps      int
	lang          string
	actionTimeout time.Duration
	eventLog      bool
	eventDir      string
	loopWarn      int
	loopStop      int

	mu    sync.Mutex
	state State
	sess  *session.Session

	events   *EventLogger
	loop     *doomLoopDetector
	feedback []string
}

// Option configures an Agent.
type Option func(*Agent)

// WithExecutor replaces the default action executor.
func WithExecutor(e *executor.Executor) Option { return func(a *Agent) { a.executor = e } }

// WithPolicy sets the permission policy checked before every action.
func WithPolicy(p permission.Policy) Option { return func(a *Agent) { a.policy = p } }

// WithGate sets who answers confirmations and manual steps.
func WithGate(g escalation.Gate) Option { return func(a *Agent) { a.gate = g } }

// WithStore saves the session after every step.
func WithStore(s session.Store) Option { return func(a *Agent) { a.store = s } }

// WithObserver reports progress to o.
func WithObserver(o Observer) Option { return func(a *Agent) { a.observer = o } }

// WithLogger sets the logger; slog.Default() otherwise.
func WithLogger(l *slog.Logger) Option { return func(a *Agent) { a.logger = l } }

// WithDeviceID records the device serial on new sessions.
func WithDeviceID(id string) Option { return func(a *Agent) { a.deviceID = id } }

// WithMaxSteps sets the step budget of new sessions. n <= 0 keeps 100.
func WithMaxSteps(n int) Option { return func(a *Agent) { a.maxSteps = n } }

// WithLang selects the language of feedback passed to the model.
func WithLang(lang string) Option { return func(a *Agent) { a.lang = lang } }

// WithActionTimeout bounds each device action of the default executor.
func WithActionTimeout(d time.Duration) Option { return func(a *Agent) { a.actionTimeout = d } }

// WithLoopThresholds sets how many identical actions in a row warn the model
// and fail the session. 0 disables either check.
func WithLoopThresholds(warn, stop int) Option {
	return func(a *Agent) { a.loopWarn, a.loopStop = warn, stop }
}

// WithEventLog enables the JSONL event log in dir (default locations when
// dir is empty).
func WithEventLog(dir string) Option {
	return func(a *Agent) { a.eventLog, a.eventDir = true, dir }
}

// ConfigOptions maps the agent, permission and event log sections of cfg
// to options.
func ConfigOptions(cfg *config.Config) []Option {
	opts := []Option{
		WithMaxSteps(cfg.Agent.MaxSteps),
		WithDeviceID(cfg.Agent.DeviceID),
		WithLang(cfg.Agent.Lang),
		WithActionTimeout(cfg.Agent.ActionTimeout),
		WithLoopThresholds(cfg.Agent.LoopWarnThreshold, cfg.Agent.LoopStopThreshold),
		WithPolicy(permission.NewDefaultPolicy(&cfg.Permissions)),
	}
	if cfg.EventLog.Enabled {
		opts = append(opts, WithEventLog(cfg.EventLog.Dir))
	}
	return opts
}

// New creates an agent. Without WithGate every confirmation is declined.
func New(dev device.Device, m Proposer, opts ...Option) *Agent {
	a := &Agent{
		device:   dev,
		model:    m,
		logger:   slog.Default(),
		maxSteps: 100,
		lang:     "cn",
		loopWarn: doomLoopWarnThreshold,
		loopStop: doomLoopStopThreshold,
		state:    StateIdle,
	}
	for _, o := range opts {
		o(a)
	}
	if a.maxSteps <= 0 {
		a.maxSteps = 100
	}
	if a.executor == nil {
		a.executor = executor.New(dev, nil, a.actionTimeout)
	}
	if a.policy == nil {
		a.policy = permission.NewDefaultPolicy(nil)
	}
	if a.gate == nil {
		a.gate = escalation.Deny{}
	}
	if a.observer == nil {
		a.observer = NopObserver{}
	}
	a.loop = newDoomLoopDetector(a.loopWarn, a.loopStop)
	return a
}

// State returns the current lifecycle state. Safe to call while a step blocks
// on the gate.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// Session returns the current session, nil when idle.
func (a *Agent) Session() *session.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sess
}

// StepCount returns the number of steps in the current session.
func (a *Agent) StepCount() int {
	if s := a.Session(); s != nil {
		return s.StepCount()
	}
	return 0
}

// Run starts a fresh session for task and steps until it ends. Budget
// exhaustion, failure and cancellation are reported in the Result; the error
// is only set for an empty task or when ctx is done.
func (a *Agent) Run(ctx context.Context, task string) (*Result, error) {
	if strings.TrimSpace(task) == "" {
		return nil, ErrTaskRequired
	}
	a.start(task)
	return a.Continue(ctx)
}

// Continue steps the current session until it ends. Use it after Resume.
func (a *Agent) Continue(ctx context.Context) (*Result, error) {
	if a.Session() == nil {
		return nil, ErrTaskRequired
	}
	for !a.sess.Status.Terminal() {
		if _, err := a.step(ctx); err != nil {
			return a.result(), err
		}
	}
	return a.result(), nil
}

// Step performs one step. Without a session, or after the session ended,
// task starts a new one; on a running session task is ignored.
func (a *Agent) Step(ctx context.Context, task string) (*StepResult, error) {
	task = strings.TrimSpace(task)
	switch s := a.Session(); {
	case s == nil:
		if task == "" {
			return nil, ErrTaskRequired
		}
		a.start(task)
	case s.Status.Terminal():
		if task == "" {
			return nil, ErrSessionClosed
		}
		a.start(task)
	}
	return a.step(ctx)
}

// Resume continues a saved running session. The model starts a new
// conversation from the session's task. A session without a step budget
// gets the agent's; one whose budget is already spent is closed as
// budget exhausted without stepping.
func (a *Agent) Resume(s *session.Session) error {
	if s.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrSessionClosed, s.ID, s.Status)
	}
	a.closeEvents()
	a.model.Reset()
	a.loop.reset()
	a.feedback = nil
	if s.MaxSteps <= 0 {
		s.MaxSteps = a.maxSteps
	}
	s.Status = session.StatusRunning
	a.mu.Lock()
	a.sess = s
	a.state = StateRunning
	a.mu.Unlock()
	a.openEvents()
	a.events.Log(EventSessionStart, map[string]any{"task": s.Task, "resumed": true, "steps": s.StepCount(), "max_steps": s.MaxSteps})
	a.observer.SessionStarted(s)
	if s.BudgetSpent() {
		a.closeSession(session.StatusBudgetExhausted, fmt.Sprintf("step budget of %d exhausted", s.MaxSteps))
	}
	return nil
}

// Reset discards the session and the model context. A running session is
// saved as cancelled first. The device connection is untouched.
func (a *Agent) Reset() {
	if s := a.Session(); s != nil && !s.Status.Terminal() {
		a.closeSession(session.StatusCancelled, "reset")
	}
	a.closeEvents()
	a.model.Reset()
	a.loop.reset()
	a.feedback = nil
	a.mu.Lock()
	a.sess = nil
	a.state = StateIdle
	a.mu.Unlock()
}

func (a *Agent) start(task string) {
	a.Reset()
	s := session.New(task, a.deviceID, a.maxSteps)
	a.mu.Lock()
	a.sess = s
	a.state = StateRunning
	a.mu.Unlock()

	a.openEvents()
	a.events.Log(EventSessionStart, map[string]any{"task": task, "device_id": a.deviceID, "max_steps": a.maxSteps})
	a.logger.Info("session started", "session", s.ID, "task", task)
	a.observer.SessionStarted(s)
	a.save()
}

func (a *Agent) step(ctx context.Context) (*StepResult, error) {
	if err := ctx.Err(); err != nil {
		return a.interrupt(err)
	}
	begin := time.Now()
	index := a.sess.StepCount()
	a.observer.StepStarted(index)

	shot, err := a.device.Screenshot(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return a.interrupt(ctx.Err())
		}
		a.addFeedback(a.text("screenshot_failed"))
		return a.record(session.Step{Status: session.StepFailed, Message: "screenshot: " + err.Error()}, begin, nil), nil
	}
	app, err := a.device.CurrentApp(ctx)
	if err != nil {
		a.logger.Debug("current app unavailable", "error", err)
	}

	prop, err := a.model.Propose(ctx, model.State{
		Task:       a.sess.Task,
		Screenshot: shot,
		CurrentApp: app,
		Feedback:   a.takeFeedback(),
	})
	if prop != nil {
		a.sess.AddUsage(prop.Usage.InputTokens, prop.Usage.OutputTokens)
	}
	if err != nil {
		if ctx.Err() != nil {
			return a.interrupt(ctx.Err())
		}
		if errors.Is(err, model.ErrMalformedResponse) {
			step := session.Step{Status: session.StepAborted, Message: err.Error(), App: app}
			if prop != nil {
				step.Thinking = prop.Thinking
				step.Action.Raw = prop.Raw
			}
			a.addFeedback(a.text("malformed"))
			a.events.Log(EventError, map[string]any{"message": err.Error()})
			return a.record(step, begin, nil), nil
		}
		a.events.Log(EventError, map[string]any{"message": err.Error()})
		step := session.Step{Status: session.StepFailed, Message: err.Error(), App: app}
		return a.record(step, begin, &outcome{session.StatusFailed, err.Error()}), nil
	}

	act := prop.Action
	a.observer.Proposed(index, prop.Thinking, act)
	step := session.Step{Action: act, Thinking: prop.Thinking, App: app}

	if act.IsFinish() {
		step.Status = session.StepFinished
		step.Message = act.Message()
		return a.record(step, begin, &outcome{session.StatusFinished, act.Message()}), nil
	}

	switch a.policy.Check(act) {
	case permission.Deny:
		step.Status = session.StepDenied
		step.Message = "denied by policy"
		a.addFeedback(a.text("denied"))
		return a.record(step, begin, nil), nil

	case permission.NeedConfirmation:
		step.Sensitive = true
		a.setState(StateAwaitingConfirmation)
		ok, err := a.gate.Confirm(ctx, confirmPrompt(act))
		a.setState(StateRunning)
		a.events.Log(EventConfirm, map[string]any{"action": act.String(), "approved": ok && err == nil})
		if err != nil {
			if ctx.Err() != nil {
				return a.interrupt(ctx.Err())
			}
			step.Status = session.StepFailed
			step.Message = "confirmation failed: " + err.Error()
			return a.record(step, begin, &outcome{session.StatusFailed, step.Message}), nil
		}
		if !ok {
			step.Status = session.StepCancelled
			step.Message = "declined by user"
			return a.record(step, begin, &outcome{session.StatusCancelled, "user declined " + act.Label()}), nil
		}
	}

	if act.RequiresTakeover() {
		msg := act.Message()
		if msg == "" {
			msg = a.text("takeover_default")
		}
		a.setState(StateAwaitingTakeover)
		err := a.gate.Takeover(ctx, msg)
		a.setState(StateRunning)
		if err != nil {
			if ctx.Err() != nil {
				return a.interrupt(ctx.Err())
			}
			a.events.Log(EventTakeover, map[string]any{"message": msg, "error": err.Error()})
			step.Status = session.StepFailed
			step.Message = "takeover: " + err.Error()
			a.addFeedback(a.text("takeover_failed"))
			return a.record(step, begin, nil), nil
		}
		a.events.Log(EventTakeover, map[string]any{"message": msg})
		step.Status = session.StepTakeover
		step.Message = "completed by user"
		a.addFeedback(a.text("takeover_done"))
		return a.record(step, begin, nil), nil
	}

	res := a.executor.Execute(ctx, act, executor.Screen{Width: shot.Width, Height: shot.Height})
	if !res.Success {
		if ctx.Err() != nil {
			return a.interrupt(ctx.Err())
		}
		step.Status = session.StepFailed
		step.Message = res.Message
		a.addFeedback(fmt.Sprintf(a.text("action_failed"), res.Message))
		return a.record(step, begin, nil), nil
	}
	step.Status = session.StepApplied
	step.Message = res.Message
	return a.record(step, begin, nil), nil
}

// outcome closes the session after the step is recorded.
type outcome struct {
	status  session.Status
	message string
}

func (a *Agent) record(step session.Step, begin time.Time, end *outcome) *StepResult {
	step.Duration = time.Since(begin)
	rec := a.sess.Append(step)
	a.observer.StepFinished(rec)
	a.events.Log(EventStep, map[string]any{
		"index":       rec.Index,
		"action":      rec.Action.String(),
		"status":      string(rec.Status),
		"message":     rec.Message,
		"app":         rec.App,
		"duration_ms": rec.Duration.Milliseconds(),
	})
	a.logger.Debug("step", "session", a.sess.ID, "index", rec.Index, "action", rec.Action.Label(),
		"status", rec.Status, "duration", rec.Duration)

	switch {
	case end != nil:
		a.closeSession(end.status, end.message)
	case rec.Action.Kind == action.KindDo:
		switch a.loop.check(rec.Action) {
		case doomLoopWarn:
			a.addFeedback(a.text("loop"))
			a.events.Log(EventLoopWarning, map[string]any{"action": rec.Action.String(), "streak": a.loop.streak})
			a.observer.Notice(fmt.Sprintf("%s repeated %d times", rec.Action.Label(), a.loop.streak))
		case doomLoopStop:
			a.closeSession(session.StatusFailed,
				fmt.Sprintf("stopped: %s repeated %d times without progress", rec.Action.Label(), a.loop.streak))
		}
	}

	if !a.sess.Status.Terminal() {
		if a.sess.BudgetSpent() {
			a.closeSession(session.StatusBudgetExhausted, fmt.Sprintf("step budget of %d exhausted", a.sess.MaxSteps))
		} else {
			a.save()
		}
	}

	return &StepResult{
		Step:     rec,
		State:    a.State(),
		Finished: a.sess.Finished(),
		Message:  a.sess.Message,
	}
}

// interrupt cancels the session because ctx is done.
func (a *Agent) interrupt(err error) (*StepResult, error) {
	a.closeSession(session.StatusCancelled, "interrupted: "+err.Error())
	return nil, err
}

func (a *Agent) closeSession(status session.Status, message string) {
	s := a.sess
	if s == nil || s.Status.Terminal() {
		return
	}
	s.Close(status, message)
	a.setState(StateOf(status))
	a.save()

	a.events.Log(EventSessionEnd, map[string]any{"status": string(status), "message": message, "steps": s.StepCount(), "tokens": s.TokensUsed})
	a.closeEvents()
	a.logger.Info("session ended", "session", s.ID, "status", status, "steps", s.StepCount(), "message", message)
	a.observer.SessionFinished(a.result())
}

// Result summarizes the current session, or returns nil without one.
func (a *Agent) Result() *Result {
	if a.Session() == nil {
		return nil
	}
	return a.result()
}

func (a *Agent) result() *Result {
	s := a.sess
	return &Result{
		SessionID:  s.ID,
		State:      a.State(),
		Finished:   s.Finished(),
		Message:    s.Message,
		Steps:      s.StepCount(),
		TokensUsed: s.TokensUsed,
	}
}

func (a *Agent) save() {
	if a.store == nil || a.sess == nil {
		return
	}
	if err := a.store.Save(a.sess); err != nil {
		a.logger.Warn("save session", "session", a.sess.ID, "error", err)
	}
}

func (a *Agent) openEvents() {
	if !a.eventLog || a.sess == nil {
		return
	}
	el, err := NewEventLogger(a.eventDir, a.sess.ID)
	if err != nil {
		a.logger.Warn("event log disabled", "error", err)
		return
	}
	a.events = el
}

func (a *Agent) closeEvents() {
	a.events.Close()
	a.events = nil
}

func (a *Agent) addFeedback(msg string) {
	a.feedback = append(a.feedback, msg)
}

func (a *Agent) takeFeedback() string {
	fb := strings.Join(a.feedback, "\n")
	a.feedback = nil
	return fb
}

// confirmPrompt describes a sensitive action to the user.
func confirmPrompt(act action.Action) string {
	if msg := act.Message(); msg != "" {
		return msg + "\n" + act.String()
	}
	return act.String()
}

var feedbackText = map[string]map[string]string{
	"cn": {
		"malformed":         "上一步输出无法解析，请严格按照 do(action=...) 或 finish(message=...) 格式输出。",
		"denied":            "该操作被安全策略禁止，请换一种方式完成任务。",
		"takeover_default":  "请手动完成当前操作",
		"takeover_done":     "用户已完成人工操作，请根据当前屏幕继续。",
		"takeover_failed":   "人工接管未完成，请重新评估当前屏幕。",
		"action_failed":     "上一步操作执行失败: %s",
		"screenshot_failed": "截图失败，请根据已有信息继续。",
		"loop":              "你已经连续多次执行相同的操作且没有效果，请换一种方式。",
	},
	"en": {
		"malformed":         "The previous reply could not be parsed. Answer with do(action=...) or finish(message=...) only.",
		"denied":            "That action is not allowed by policy. Find another way to complete the task.",
		"takeover_default":  "Please complete the current step manually",
		"takeover_done":     "The user completed the manual step. Continue from the current screen.",
		"takeover_failed":   "The manual step was not completed. Re-evaluate the current screen.",
		"action_failed":     "The previous action failed: %s",
		"screenshot_failed": "Taking a screenshot failed. Continue with what you know.",
		"loop":              "You repeated the same action several times without effect. Try a different approach.",
	},
}

func (a *Agent) text(key string) string {
	if t, ok := feedbackText[a.lang]; ok {
		return t[key]
	}
	return feedbackText["cn"][key]
}
