package executor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/phonectl/phonectl/internal/action"
	"github.com/phonectl/phonectl/internal/device"
	"github.com/phonectl/phonectl/internal/device/devicetest"
)

var screen = Screen{Width: 1080, Height: 2400}

func TestExecute_ScalesCoordinates(t *testing.T) {
	tests := []struct {
		a    action.Action
		want string
	}{
		{action.Do(action.NameTap, map[string]string{"element": "[500, 500]"}), "tap 540 1200"},
		{action.Do(action.NameDoubleTap, map[string]string{"element": "[0,1000]"}), "double_tap 0 2400"},
		{action.Do(action.NameLongPress, map[string]string{"element": "[1000,0]"}), "long_press 1080 0"},
		{action.Do(action.NameSwipe, map[string]string{"start": "[500,800]", "end": "[500,200]"}), "swipe 540 1920 540 480"},
		{action.Do(action.NameBack, nil), "back"},
		{action.Do(action.NameHome, nil), "home"},
		{action.Do(action.NameLaunch, map[string]string{"app": "美团"}), "launch 美团"},
		{action.Do(action.NameType, map[string]string{"text": "火锅, 川菜"}), "type 火锅, 川菜"},
		{action.Do(action.NameTypeName, map[string]string{"text": "张三"}), "type 张三"},
	}
	for _, tt := range tests {
		dev := devicetest.New()
		res := New(dev, nil, time.Second).Execute(context.Background(), tt.a, screen)
		if !res.Success {
			t.Errorf("%s: expected success, got %q", tt.a.Name, res.Message)
			continue
		}
		if ops := dev.Ops(); len(ops) != 1 || ops[0] != tt.want {
			t.Errorf("%s: ops = %v, want [%s]", tt.a.Name, ops, tt.want)
		}
	}
}

func TestExecute_FinishIsNotADeviceAction(t *testing.T) {
	dev := devicetest.New()
	res := New(dev, nil, 0).Execute(context.Background(), action.Finish("done"), screen)
	if res.Success || res.Err == nil {
		t.Errorf("finish must be handled before the executor, got %+v", res)
	}
	if len(dev.Ops()) != 0 {
		t.Errorf("finish must not touch the device, got %v", dev.Ops())
	}
}

func TestExecute_BadInputFailsWithoutPanic(t *testing.T) {
	tests := []struct {
		name string
		a    action.Action
	}{
		{"unknown", action.Do("Teleport", nil)},
		{"missing element", action.Do(action.NameTap, nil)},
		{"out of range", action.Do(action.NameTap, map[string]string{"element": "[1500, 10]"})},
		{"garbage coords", action.Do(action.NameSwipe, map[string]string{"start": "up", "end": "[1,1]"})},
		{"missing app", action.Do(action.NameLaunch, nil)},
		{"missing text", action.Do(action.NameType, nil)},
		{"empty kind", action.Action{}},
	}
	for _, tt := range tests {
		dev := devicetest.New()
		res := New(dev, nil, time.Second).Execute(context.Background(), tt.a, screen)
		if res.Success {
			t.Errorf("%s: expected failure", tt.name)
		}
		if res.Message == "" || res.Err == nil {
			t.Errorf("%s: failure must carry a message and error, got %+v", tt.name, res)
		}
		if len(dev.Ops()) != 0 {
			t.Errorf("%s: device touched: %v", tt.name, dev.Ops())
		}
	}
}

func TestExecute_InvalidParamsClassified(t *testing.T) {
	res := New(devicetest.New(), nil, time.Second).Execute(context.Background(),
		action.Do(action.NameTap, map[string]string{"element": "[x]"}), screen)
	if !IsInvalidParams(res.Err) {
		t.Errorf("expected invalid params error, got %v", res.Err)
	}
}

func TestExecute_DeviceError(t *testing.T) {
	dev := devicetest.New()
	dev.Err = &device.ConnectivityError{Op: "tap", Err: errors.New("device offline")}
	res := New(dev, nil, time.Second).Execute(context.Background(),
		action.Do(action.NameTap, map[string]string{"element": "[1,1]"}), screen)
	if res.Success {
		t.Fatal("expected failure")
	}
	var ce *device.ConnectivityError
	if !errors.As(res.Err, &ce) {
		t.Errorf("expected ConnectivityError, got %T", res.Err)
	}
	if !strings.Contains(res.Message, "device offline") {
		t.Errorf("message should carry the cause, got %q", res.Message)
	}
}

func TestExecute_Timeout(t *testing.T) {
	reg := NewRegistry()
	reg.Register("Slow", func(ctx context.Context, _ device.Device, _ action.Action, _ Screen) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	res := New(devicetest.New(), reg, 10*time.Millisecond).Execute(context.Background(), action.Do("Slow", nil), screen)
	if res.Success || !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Errorf("expected timeout, got %+v", res)
	}
}

func TestExecute_NoopActions(t *testing.T) {
	for _, name := range []string{action.NameNote, action.NameCallAPI, action.NameInteract, action.NameTakeover} {
		dev := devicetest.New()
		res := New(dev, nil, time.Second).Execute(context.Background(), action.Do(name, nil), screen)
		if !res.Success {
			t.Errorf("%s: expected success, got %q", name, res.Message)
		}
		if len(dev.Ops()) != 0 {
			t.Errorf("%s: device touched: %v", name, dev.Ops())
		}
	}
}

func TestParseWait(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"2 seconds", 2 * time.Second},
		{"1.5", 1500 * time.Millisecond},
		{"500ms", 500 * time.Millisecond},
		{"3s", 3 * time.Second},
		{"", time.Second},
		{"soon", time.Second},
		{"600 seconds", time.Minute},
	}
	for _, tt := range tests {
		if got := ParseWait(tt.in); got != tt.want {
			t.Errorf("ParseWait(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDefaultRegistry_Names(t *testing.T) {
	names := DefaultRegistry().Names()
	if len(names) != 14 {
		t.Errorf("expected 14 handlers, got %d: %v", len(names), names)
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] > names[i] {
			t.Fatalf("names not sorted: %v", names)
		}
	}
}
