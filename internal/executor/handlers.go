package executor

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/phonectl/phonectl/internal/action"
	"github.com/phonectl/phonectl/internal/device"
)

const (
	defaultWait = time.Second
	maxWait     = 60 * time.Second
)

// errInvalidParams marks a handler failure caused by the model's arguments
// rather than the device.
var errInvalidParams = errors.New("invalid parameters")

func invalid(a action.Action, format string, args ...any) error {
	return fmt.Errorf("%w for %s: %s", errInvalidParams, a.Name, fmt.Sprintf(format, args...))
}

// scale converts a 0..1000 relative point to absolute pixels.
func scale(p [2]float64, s Screen) (int, int) {
	return int(p[0] / 1000 * float64(s.Width)), int(p[1] / 1000 * float64(s.Height))
}

func point(a action.Action, key string, s Screen) (int, int, error) {
	p, err := a.Point(key)
	if err != nil {
		return 0, 0, invalid(a, "%v", err)
	}
	x, y := scale(p, s)
	return x, y, nil
}

func handleLaunch(ctx context.Context, dev device.Device, a action.Action, _ Screen) (string, error) {
	app := strings.TrimSpace(a.Param("app"))
	if app == "" {
		return "", invalid(a, "missing app")
	}
	if err := dev.LaunchApp(ctx, app); err != nil {
		return "", err
	}
	return "launched " + app, nil
}

func handleTap(ctx context.Context, dev device.Device, a action.Action, s Screen) (string, error) {
	x, y, err := point(a, "element", s)
	if err != nil {
		return "", err
	}
	if err := dev.Tap(ctx, x, y); err != nil {
		return "", err
	}
	return fmt.Sprintf("tapped (%d, %d)", x, y), nil
}

func handleDoubleTap(ctx context.Context, dev device.Device, a action.Action, s Screen) (string, error) {
	x, y, err := point(a, "element", s)
	if err != nil {
		return "", err
	}
	if err := dev.DoubleTap(ctx, x, y); err != nil {
		return "", err
	}
	return fmt.Sprintf("double tapped (%d, %d)", x, y), nil
}

func handleLongPress(ctx context.Context, dev device.Device, a action.Action, s Screen) (string, error) {
	x, y, err := point(a, "element", s)
	if err != nil {
		return "", err
	}
	if err := dev.LongPress(ctx, x, y, 0); err != nil {
		return "", err
	}
	return fmt.Sprintf("long pressed (%d, %d)", x, y), nil
}

func handleSwipe(ctx context.Context, dev device.Device, a action.Action, s Screen) (string, error) {
	x1, y1, err := point(a, "start", s)
	if err != nil {
		return "", err
	}
	x2, y2, err := point(a, "end", s)
	if err != nil {
		return "", err
	}
	if err := dev.Swipe(ctx, x1, y1, x2, y2, 0); err != nil {
		return "", err
	}
	return fmt.Sprintf("swiped (%d, %d) -> (%d, %d)", x1, y1, x2, y2), nil
}

func handleType(ctx context.Context, dev device.Device, a action.Action, _ Screen) (string, error) {
	text, ok := a.Params["text"]
	if !ok {
		return "", invalid(a, "missing text")
	}
	if err := dev.TypeText(ctx, text); err != nil {
		return "", err
	}
	return fmt.Sprintf("typed %d characters", len([]rune(text))), nil
}

func handleBack(ctx context.Context, dev device.Device, _ action.Action, _ Screen) (string, error) {
	if err := dev.Back(ctx); err != nil {
		return "", err
	}
	return "pressed back", nil
}

func handleHome(ctx context.Context, dev device.Device, _ action.Action, _ Screen) (string, error) {
	if err := dev.Home(ctx); err != nil {
		return "", err
	}
	return "pressed home", nil
}

func handleWait(ctx context.Context, _ device.Device, a action.Action, _ Screen) (string, error) {
	d := ParseWait(a.Param("duration"))
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return fmt.Sprintf("waited %s", d), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func handleNoop(msg string) Handler {
	return func(context.Context, device.Device, action.Action, Screen) (string, error) {
		return msg, nil
	}
}

var numberRe = regexp.MustCompile(`\d+(\.\d+)?`)

// ParseWait reads durations like "2 seconds", "1.5", "500ms" or "3s".
// Unparsable input waits one second; values are capped at one minute.
func ParseWait(s string) time.Duration {
	s = strings.TrimSpace(strings.ToLower(s))
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return min(d, maxWait)
	}
	m := numberRe.FindString(s)
	if m == "" {
		return defaultWait
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil || v <= 0 {
		return defaultWait
	}
	d := time.Duration(v * float64(time.Second))
	if strings.Contains(s, "ms") || strings.Contains(s, "millisecond") {
		d = time.Duration(v * float64(time.Millisecond))
	}
	return min(d, maxWait)
}
