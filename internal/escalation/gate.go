// Package escalation hands control to a human when the agent must not act
// on its own: confirming a sensitive action, or performing a manual step
// such as a login or captcha.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrManualInterventionTimeout is returned when a takeover is not completed
// within its deadline.
var ErrManualInterventionTimeout = errors.New("manual intervention timed out")

// Gate is consulted by the agent before sensitive actions and for manual
// steps. Both calls block until the human answers or ctx is done.
type Gate interface {
	// Confirm returns true when the user approves the described action.
	Confirm(ctx context.Context, message string) (bool, error)

	// Takeover returns once the user has finished the manual step.
	Takeover(ctx context.Context, message string) error
}

// Funcs adapts plain callbacks to a Gate. A nil ConfirmFunc declines every
// confirmation; a nil TakeoverFunc completes immediately.
type Funcs struct {
	ConfirmFunc  func(message string) bool
	TakeoverFunc func(message string)
}

func (f Funcs) Confirm(ctx context.Context, message string) (bool, error) {
	if f.ConfirmFunc == nil {
		return false, nil
	}
	return Await(ctx, func() bool { return f.ConfirmFunc(message) })
}

func (f Funcs) Takeover(ctx context.Context, message string) error {
	if f.TakeoverFunc == nil {
		return nil
	}
	_, err := Await(ctx, func() struct{} {
		f.TakeoverFunc(message)
		return struct{}{}
	})
	return err
}

// Await runs fn in its own goroutine and returns its result, or ctx.Err()
// if ctx is done first. fn is not interrupted and its late result is dropped.
func Await[T any](ctx context.Context, fn func() T) (T, error) {
	done := make(chan T, 1)
	go func() { done <- fn() }()
	select {
	case v := <-done:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// AutoApprove confirms everything and treats takeovers as completed.
type AutoApprove struct {
	Logger *slog.Logger
}

func (g AutoApprove) Confirm(_ context.Context, message string) (bool, error) {
	g.logger().Info("auto-approved sensitive action", "message", message)
	return true, nil
}

func (g AutoApprove) Takeover(_ context.Context, message string) error {
	g.logger().Warn("takeover requested in auto-approve mode, continuing", "message", message)
	return nil
}

func (g AutoApprove) logger() *slog.Logger {
	if g.Logger == nil {
		return slog.Default()
	}
	return g.Logger
}

// Deny declines every confirmation and fails every takeover.
type Deny struct{}

func (Deny) Confirm(context.Context, string) (bool, error) { return false, nil }

func (Deny) Takeover(_ context.Context, message string) error {
	return fmt.Errorf("manual intervention not available: %s", message)
}

// WithTimeout bounds takeovers to d. Confirmations are left unbounded.
func WithTimeout(g Gate, d time.Duration) Gate {
	if d <= 0 {
		return g
	}
	return timeoutGate{Gate: g, d: d}
}

type timeoutGate struct {
	Gate
	d time.Duration
}

func (g timeoutGate) Takeover(ctx context.Context, message string) error {
	tctx, cancel := context.WithTimeout(ctx, g.d)
	defer cancel()

	err := g.Gate.Takeover(tctx, message)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("%w after %s", ErrManualInterventionTimeout, g.d)
	}
	return err
}
