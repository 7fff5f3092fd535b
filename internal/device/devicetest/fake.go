// Package devicetest provides an in-memory device for tests.
package devicetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/phonectl/phonectl/internal/device"
)

// Fake records every operation as a string such as "tap 540 1200".
// Err, when set, is returned by every input operation.
type Fake struct {
	mu  sync.Mutex
	ops []string

	Err        error
	App        string
	Shot       *device.Screenshot
	ShotErr    error
	KnownApps  map[string]bool
	ScreenSize [2]int
}

// New returns a 1080x2400 fake with the home screen focused.
func New() *Fake {
	return &Fake{App: "System Home", ScreenSize: [2]int{1080, 2400}}
}

func (f *Fake) record(format string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, fmt.Sprintf(format, args...))
	return f.Err
}

// Ops returns a copy of the recorded operations.
func (f *Fake) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

func (f *Fake) Tap(_ context.Context, x, y int) error { return f.record("tap %d %d", x, y) }

func (f *Fake) DoubleTap(_ context.Context, x, y int) error {
	return f.record("double_tap %d %d", x, y)
}

func (f *Fake) LongPress(_ context.Context, x, y int, _ time.Duration) error {
	return f.record("long_press %d %d", x, y)
}

func (f *Fake) Swipe(_ context.Context, x1, y1, x2, y2 int, _ time.Duration) error {
	return f.record("swipe %d %d %d %d", x1, y1, x2, y2)
}

func (f *Fake) Back(context.Context) error { return f.record("back") }
func (f *Fake) Home(context.Context) error { return f.record("home") }

func (f *Fake) LaunchApp(_ context.Context, app string) error {
	if f.KnownApps != nil && !f.KnownApps[app] {
		return fmt.Errorf("%w: %s", device.ErrAppNotFound, app)
	}
	if err := f.record("launch %s", app); err != nil {
		return err
	}
	f.mu.Lock()
	f.App = app
	f.mu.Unlock()
	return nil
}

func (f *Fake) TypeText(_ context.Context, text string) error { return f.record("type %s", text) }

func (f *Fake) CurrentApp(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.App, nil
}

func (f *Fake) Screenshot(context.Context) (*device.Screenshot, error) {
	if f.ShotErr != nil {
		return nil, f.ShotErr
	}
	if f.Shot != nil {
		return f.Shot, nil
	}
	return &device.Screenshot{Base64: "iVBORw0KGgo=", Width: f.ScreenSize[0], Height: f.ScreenSize[1]}, nil
}

var _ device.Device = (*Fake)(nil)
