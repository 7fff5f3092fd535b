package device

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
)

const (
	adbKeyboardIME = "com.android.adbkeyboard/.AdbIME"

	fallbackWidth  = 1080
	fallbackHeight = 2400

	doubleTapGap = 100 * time.Millisecond
	launchSettle = 2 * time.Second
)

// ADBConfig configures an ADB device.
type ADBConfig struct {
	// Serial selects the device ("-s"); empty uses the only attached device.
	Serial string

	Apps *Apps

	// Settle is the pause after every input event.
	Settle time.Duration

	// MaxWidth downscales screenshots wider than this. 0 keeps full size.
	MaxWidth int
}

// ADB implements Device on top of the adb command line.
type ADB struct {
	runner Runner
	cfg    ADBConfig
}

// NewADB returns a device that issues adb commands through r.
func NewADB(r Runner, cfg ADBConfig) *ADB {
	if cfg.Apps == nil {
		cfg.Apps = NewApps(nil)
	}
	return &ADB{runner: r, cfg: cfg}
}

// Serial returns the configured device serial.
func (d *ADB) Serial() string { return d.cfg.Serial }

func (d *ADB) run(ctx context.Context, op string, args ...string) ([]byte, error) {
	if d.cfg.Serial != "" {
		args = append([]string{"-s", d.cfg.Serial}, args...)
	}
	out, err := d.runner.Run(ctx, args...)
	if err != nil {
		return out, &ConnectivityError{Op: op, Err: err}
	}
	return out, nil
}

func (d *ADB) shell(ctx context.Context, op string, args ...string) ([]byte, error) {
	return d.run(ctx, op, append([]string{"shell"}, args...)...)
}

func (d *ADB) settle(ctx context.Context, extra time.Duration) error {
	return sleep(ctx, d.cfg.Settle+extra)
}

func (d *ADB) Tap(ctx context.Context, x, y int) error {
	if _, err := d.shell(ctx, "tap", "input", "tap", itoa(x), itoa(y)); err != nil {
		return err
	}
	return d.settle(ctx, 0)
}

func (d *ADB) DoubleTap(ctx context.Context, x, y int) error {
	if _, err := d.shell(ctx, "double tap", "input", "tap", itoa(x), itoa(y)); err != nil {
		return err
	}
	if err := sleep(ctx, doubleTapGap); err != nil {
		return err
	}
	if _, err := d.shell(ctx, "double tap", "input", "tap", itoa(x), itoa(y)); err != nil {
		return err
	}
	return d.settle(ctx, 0)
}

func (d *ADB) LongPress(ctx context.Context, x, y int, dur time.Duration) error {
	if dur <= 0 {
		dur = 3 * time.Second
	}
	if _, err := d.shell(ctx, "long press", "input", "swipe",
		itoa(x), itoa(y), itoa(x), itoa(y), itoa(int(dur.Milliseconds()))); err != nil {
		return err
	}
	return d.settle(ctx, 0)
}

func (d *ADB) Swipe(ctx context.Context, x1, y1, x2, y2 int, dur time.Duration) error {
	if dur <= 0 {
		dur = SwipeDuration(x1, y1, x2, y2)
	}
	if _, err := d.shell(ctx, "swipe", "input", "swipe",
		itoa(x1), itoa(y1), itoa(x2), itoa(y2), itoa(int(dur.Milliseconds()))); err != nil {
		return err
	}
	return d.settle(ctx, 0)
}

// SwipeDuration scales with the squared swipe distance, clamped to
// 500ms..2s.
func SwipeDuration(x1, y1, x2, y2 int) time.Duration {
	dx, dy := float64(x1-x2), float64(y1-y2)
	ms := (dx*dx + dy*dy) / 1000
	ms = math.Max(500, math.Min(2000, ms))
	return time.Duration(ms) * time.Millisecond
}

func (d *ADB) Back(ctx context.Context) error {
	if _, err := d.shell(ctx, "back", "input", "keyevent", "4"); err != nil {
		return err
	}
	return d.settle(ctx, 0)
}

func (d *ADB) Home(ctx context.Context) error {
	if _, err := d.shell(ctx, "home", "input", "keyevent", "KEYCODE_HOME"); err != nil {
		return err
	}
	return d.settle(ctx, 0)
}

func (d *ADB) LaunchApp(ctx context.Context, app string) error {
	pkg, ok := d.cfg.Apps.Lookup(app)
	if !ok {
		return fmt.Errorf("%w: %s", ErrAppNotFound, app)
	}
	if _, err := d.shell(ctx, "launch", "monkey", "-p", pkg,
		"-c", "android.intent.category.LAUNCHER", "1"); err != nil {
		return err
	}
	return d.settle(ctx, launchSettle)
}

// TypeText enters text through the ADB Keyboard IME, which accepts
// arbitrary Unicode as a base64 broadcast. The previous IME is restored.
func (d *ADB) TypeText(ctx context.Context, text string) error {
	out, err := d.shell(ctx, "type", "settings", "get", "secure", "default_input_method")
	if err != nil {
		return err
	}
	original := strings.TrimSpace(string(out))

	if !strings.Contains(original, adbKeyboardIME) {
		if _, err := d.shell(ctx, "type", "ime", "set", adbKeyboardIME); err != nil {
			return err
		}
		defer func() {
			if original != "" {
				// Best effort; the text is already entered.
				_, _ = d.shell(context.WithoutCancel(ctx), "type", "ime", "set", original)
			}
		}()
	}

	if _, err := d.shell(ctx, "type", "am", "broadcast", "-a", "ADB_CLEAR_TEXT"); err != nil {
		return err
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(text))
	if _, err := d.shell(ctx, "type", "am", "broadcast", "-a", "ADB_INPUT_B64", "--es", "msg", encoded); err != nil {
		return err
	}
	return d.settle(ctx, 0)
}

// CurrentApp returns the display name of the focused app, its package
// when the name is unknown, or "System Home".
func (d *ADB) CurrentApp(ctx context.Context) (string, error) {
	out, err := d.shell(ctx, "current app", "dumpsys", "window")
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(string(out), "\n") {
		if !strings.Contains(line, "mCurrentFocus") && !strings.Contains(line, "mFocusedApp") {
			continue
		}
		for _, pkg := range d.cfg.Apps.Packages() {
			if strings.Contains(line, pkg+"/") || strings.Contains(line, pkg+" ") {
				return d.cfg.Apps.NameOf(pkg), nil
			}
		}
	}
	return "System Home", nil
}

// Screenshot captures the screen with screencap. A secure screen (payment
// or password pages) cannot be captured and yields a black placeholder
// marked Sensitive.
func (d *ADB) Screenshot(ctx context.Context) (*Screenshot, error) {
	out, err := d.run(ctx, "screenshot", "exec-out", "screencap", "-p")
	if err != nil {
		if msg := err.Error(); strings.Contains(msg, "Status: -1") || strings.Contains(msg, "Failed") {
			return FallbackScreenshot(true), nil
		}
		return nil, err
	}
	if len(out) == 0 {
		return FallbackScreenshot(true), nil
	}

	img, err := imaging.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	return encodeScreenshot(img, d.cfg.MaxWidth)
}

func encodeScreenshot(img image.Image, maxWidth int) (*Screenshot, error) {
	b := img.Bounds()
	shot := &Screenshot{Width: b.Dx(), Height: b.Dy()}

	if maxWidth > 0 && b.Dx() > maxWidth {
		img = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode screenshot: %w", err)
	}
	shot.Base64 = base64.StdEncoding.EncodeToString(buf.Bytes())
	return shot, nil
}

// FallbackScreenshot returns a black full-size placeholder.
func FallbackScreenshot(sensitive bool) *Screenshot {
	img := imaging.New(fallbackWidth, fallbackHeight, color.Black)
	var buf bytes.Buffer
	_ = imaging.Encode(&buf, img, imaging.PNG)
	return &Screenshot{
		Base64:    base64.StdEncoding.EncodeToString(buf.Bytes()),
		Width:     fallbackWidth,
		Height:    fallbackHeight,
		Sensitive: sensitive,
	}
}

func itoa(n int) string { return strconv.Itoa(n) }

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
