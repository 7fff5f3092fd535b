package tui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/phonectl/phonectl/internal/action"
	"github.com/phonectl/phonectl/internal/agent"
	"github.com/phonectl/phonectl/internal/escalation"
	"github.com/phonectl/phonectl/internal/session"
)

// sender is the part of *tea.Program TuiIO uses.
type sender interface {
	Send(msg tea.Msg)
}

// TuiIO forwards agent progress to a bubbletea program and answers
// confirmations and manual steps from it. It is both an agent.Observer and
// an escalation.Gate. All methods are safe to call from any goroutine.
type TuiIO struct {
	program sender

	mu     sync.Mutex
	sess   *session.Session
	cancel context.CancelFunc
}

var (
	_ agent.Observer  = (*TuiIO)(nil)
	_ escalation.Gate = (*TuiIO)(nil)
)

func (t *TuiIO) SessionStarted(s *session.Session) {
	t.mu.Lock()
	t.sess = s
	t.mu.Unlock()
	t.program.Send(sessionStartMsg{id: s.ID, task: s.Task, maxSteps: s.MaxSteps})
}

func (t *TuiIO) StepStarted(index int) {
	t.program.Send(stepStartMsg{index: index})
}

// TextDelta streams model output; pass it to the model client's stream
// handler.
func (t *TuiIO) TextDelta(delta string) {
	t.program.Send(textDeltaMsg{delta: delta})
}

func (t *TuiIO) Proposed(index int, thinking string, a action.Action) {
	t.program.Send(proposedMsg{index: index, thinking: thinking, action: a})
}

// StepFinished runs on the agent goroutine, so reading the session's token
// count is safe here.
func (t *TuiIO) StepFinished(step session.Step) {
	t.program.Send(stepDoneMsg{step: step})
	t.mu.Lock()
	s := t.sess
	t.mu.Unlock()
	if s != nil {
		t.program.Send(tokensMsg{n: s.TokensUsed})
	}
}

func (t *TuiIO) Notice(msg string) {
	t.program.Send(noticeMsg{text: msg})
}

func (t *TuiIO) SessionFinished(res *agent.Result) {
	t.program.Send(sessionDoneMsg{res: res})
}

// Confirm blocks until the user answers in the TUI or ctx is done.
func (t *TuiIO) Confirm(ctx context.Context, message string) (bool, error) {
	replyCh := make(chan bool, 1)
	t.program.Send(confirmMsg{message: message, replyCh: replyCh})
	select {
	case ok := <-replyCh:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Takeover blocks until the user marks the manual step done or aborts it.
func (t *TuiIO) Takeover(ctx context.Context, message string) error {
	replyCh := make(chan bool, 1)
	t.program.Send(takeoverMsg{message: message, replyCh: replyCh})
	select {
	case done := <-replyCh:
		if !done {
			return ErrTakeoverAbandoned
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// --- cancellation ---

// SetCancel registers the cancel function of the running session.
func (t *TuiIO) SetCancel(cancel context.CancelFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancel = cancel
}

// Cancel cancels the running session. Returns true if there was one.
func (t *TuiIO) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
		return true
	}
	return false
}
