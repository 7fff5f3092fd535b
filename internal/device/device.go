// Package device drives an Android device over adb and tracks remote
// (TCP/IP) adb connections.
package device

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidAddress is returned for malformed connection addresses.
	ErrInvalidAddress = errors.New("invalid device address")

	// ErrAppNotFound is returned when an app name has no known package.
	ErrAppNotFound = errors.New("app not found")
)

// ConnectivityError wraps a failed adb transport call.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("device %s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// Screenshot is one captured frame. Width and Height are the device's
// physical pixel size, which may differ from the encoded image when it
// was downscaled for the model.
type Screenshot struct {
	Base64    string // PNG, base64-encoded
	Width     int
	Height    int
	Sensitive bool // secure screen, image is a black placeholder
}

// Device is the set of operations the executor applies. Coordinates are
// absolute pixels.
type Device interface {
	Tap(ctx context.Context, x, y int) error
	DoubleTap(ctx context.Context, x, y int) error
	LongPress(ctx context.Context, x, y int, d time.Duration) error
	// Swipe with d == 0 picks a duration from the swipe distance.
	Swipe(ctx context.Context, x1, y1, x2, y2 int, d time.Duration) error
	Back(ctx context.Context) error
	Home(ctx context.Context) error
	LaunchApp(ctx context.Context, app string) error
	TypeText(ctx context.Context, text string) error
	CurrentApp(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) (*Screenshot, error)
}
