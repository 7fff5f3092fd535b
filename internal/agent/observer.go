package agent

import (
	"github.com/phonectl/phonectl/internal/action"
	"github.com/phonectl/phonectl/internal/session"
)

// Observer receives progress callbacks from the agent. Callbacks run on the
// stepping goroutine and should return quickly.
type Observer interface {
	SessionStarted(s *session.Session)
	StepStarted(index int)
	Proposed(index int, thinking string, a action.Action)
	StepFinished(step session.Step)
	Notice(msg string)
	SessionFinished(res *Result)
}

// NopObserver ignores every callback.
type NopObserver struct{}

func (NopObserver) SessionStarted(*session.Session) {}
func (NopObserver) StepStarted(int) {}
func (NopObserver) Proposed(int, string, action.Action) {}
func (NopObserver) StepFinished(session.Step) {}
func (NopObserver) Notice(string) {}
func (NopObserver) SessionFinished(*Result) {}
