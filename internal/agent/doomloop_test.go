package agent

import (
	"fmt"
	"testing"

	"github.com/phonectl/phonectl/internal/action"
)

func tapAt(x, y int) action.Action {
	return action.Do(action.NameTap, map[string]string{"element": fmt.Sprintf("[%d,%d]", x, y)})
}

func TestDoomLoop_DifferentActions(t *testing.T) {
	d := newDoomLoopDetector(doomLoopWarnThreshold, doomLoopStopThreshold)
	for i := 0; i < 10; i++ {
		if a := d.check(tapAt(i*10, 500)); a != doomLoopNone {
			t.Fatalf("iteration %d: expected none, got %d", i, a)
		}
	}
}

func TestDoomLoop_WarnAt3(t *testing.T) {
	d := newDoomLoopDetector(doomLoopWarnThreshold, doomLoopStopThreshold)
	tap := tapAt(500, 500)

	for i := 0; i < doomLoopWarnThreshold-1; i++ {
		if a := d.check(tap); a != doomLoopNone {
			t.Fatalf("iteration %d: expected none, got %d", i, a)
		}
	}
	if a := d.check(tap); a != doomLoopWarn {
		t.Fatalf("expected warn at threshold %d, got %d", doomLoopWarnThreshold, a)
	}
}

func TestDoomLoop_StopAt8(t *testing.T) {
	d := newDoomLoopDetector(doomLoopWarnThreshold, doomLoopStopThreshold)
	back := action.Do(action.NameBack, nil)

	for i := 0; i < doomLoopStopThreshold-1; i++ {
		if a := d.check(back); a == doomLoopStop {
			t.Fatalf("iteration %d: stopped too early", i)
		}
	}
	if a := d.check(back); a != doomLoopStop {
		t.Fatalf("expected stop at threshold %d, got %d", doomLoopStopThreshold, a)
	}
}

func TestDoomLoop_CustomThresholds(t *testing.T) {
	d := newDoomLoopDetector(2, 3)
	back := action.Do(action.NameBack, nil)
	want := []doomLoopAction{doomLoopNone, doomLoopWarn, doomLoopStop}
	for i, w := range want {
		if a := d.check(back); a != w {
			t.Fatalf("iteration %d: got %d, want %d", i, a, w)
		}
	}
}

func TestDoomLoop_ZeroDisables(t *testing.T) {
	back := action.Do(action.NameBack, nil)

	d := newDoomLoopDetector(0, 0)
	for i := 0; i < 20; i++ {
		if a := d.check(back); a != doomLoopNone {
			t.Fatalf("iteration %d: expected none with both checks off, got %d", i, a)
		}
	}

	d = newDoomLoopDetector(0, 3)
	want := []doomLoopAction{doomLoopNone, doomLoopNone, doomLoopStop}
	for i, w := range want {
		if a := d.check(back); a != w {
			t.Fatalf("warn off, iteration %d: got %d, want %d", i, a, w)
		}
	}
}

func TestDoomLoop_ResetOnDifferentAction(t *testing.T) {
	d := newDoomLoopDetector(doomLoopWarnThreshold, doomLoopStopThreshold)
	tap := tapAt(500, 500)

	for i := 0; i < doomLoopWarnThreshold-1; i++ {
		d.check(tap)
	}

	// A different action restarts the streak.
	d.check(action.Do(action.NameBack, nil))

	for i := 0; i < doomLoopWarnThreshold-1; i++ {
		if a := d.check(tap); a != doomLoopNone {
			t.Fatalf("after reset, iteration %d: expected none, got %d", i, a)
		}
	}
	if a := d.check(tap); a != doomLoopWarn {
		t.Fatal("expected warn after re-accumulating streak")
	}
}

func TestDoomLoop_Reset(t *testing.T) {
	d := newDoomLoopDetector(doomLoopWarnThreshold, doomLoopStopThreshold)
	tap := tapAt(1, 1)
	d.check(tap)
	d.check(tap)
	d.reset()
	if a := d.check(tap); a != doomLoopNone {
		t.Fatalf("expected none after reset, got %d", a)
	}
}

func TestActionSignature_ParamOrder(t *testing.T) {
	a := action.Do(action.NameSwipe, map[string]string{"start": "[1,2]", "end": "[3,4]"})
	b := action.Do(action.NameSwipe, map[string]string{"end": "[3,4]", "start": "[1,2]"})
	if actionSignature(a) != actionSignature(b) {
		t.Fatal("signature must not depend on parameter order")
	}
	if actionSignature(a) == actionSignature(action.Do(action.NameSwipe, map[string]string{"start": "[1,2]", "end": "[3,5]"})) {
		t.Fatal("different parameters must produce different signatures")
	}
}
