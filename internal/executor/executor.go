// Package executor applies parsed actions to a device.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/phonectl/phonectl/internal/action"
	"github.com/phonectl/phonectl/internal/device"
)

// Result is the outcome of applying one action.
type Result struct {
	Success bool
	Message string

	// Err is the underlying failure, nil on success.
	Err error
}

// Executor 负责执行动作，包含超时控制
type Executor struct {
	registry       *Registry
	device         device.Device
	defaultTimeout time.Duration
}

// New 创建动作执行器. timeout <= 0 uses 30s.
func New(dev device.Device, registry *Registry, timeout time.Duration) *Executor {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Executor{registry: registry, device: dev, defaultTimeout: timeout}
}

// Registry returns the underlying handler registry.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Execute 执行单个动作. Only do(...) actions touch the device; finish is
// handled by the caller. It never panics on bad input: unknown actions and
// malformed parameters produce a failed result.
func (e *Executor) Execute(ctx context.Context, a action.Action, screen Screen) Result {
	if a.Kind != action.KindDo {
		return Result{Message: fmt.Sprintf("unknown action kind %q", a.Kind), Err: action.ErrUnparsable}
	}

	h, ok := e.registry.Get(a.Name)
	if !ok {
		err := fmt.Errorf("unknown action: %s", a.Name)
		return Result{Message: err.Error(), Err: err}
	}

	// Wait bounds itself.
	if a.Name != action.NameWait {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.defaultTimeout)
		defer cancel()
	}

	msg, err := h(ctx, e.device, a, screen)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%s timed out after %s: %w", a.Name, e.defaultTimeout, err)
		}
		return Result{Message: err.Error(), Err: err}
	}
	return Result{Success: true, Message: msg}
}

// IsInvalidParams reports whether a failed result was caused by the
// action's own arguments.
func IsInvalidParams(err error) bool {
	return errors.Is(err, errInvalidParams)
}
