package agent

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"github.com/phonectl/phonectl/internal/action"
)

// doomLoopAction is the action recommended by the doom loop detector.
type doomLoopAction int

const (
	doomLoopNone doomLoopAction = iota
	doomLoopWarn
	doomLoopStop
)

const (
	doomLoopWarnThreshold = 3
	doomLoopStopThreshold = 8
)

// doomLoopDetector tracks consecutive identical actions to detect a model
// that keeps tapping the same spot without making progress.
type doomLoopDetector struct {
	warnAt int
	stopAt int

	lastSig string
	streak  int
}

// newDoomLoopDetector returns a detector that warns after warnAt and stops
// after stopAt identical actions. A threshold <= 0 never fires.
func newDoomLoopDetector(warnAt, stopAt int) *doomLoopDetector {
	return &doomLoopDetector{warnAt: warnAt, stopAt: stopAt}
}

// check evaluates an action and returns the recommended reaction.
// It resets the streak whenever the action signature changes.
func (d *doomLoopDetector) check(a action.Action) doomLoopAction {
	sig := actionSignature(a)
	if sig == d.lastSig {
		d.streak++
	} else {
		d.lastSig = sig
		d.streak = 1
	}

	switch {
	case d.stopAt > 0 && d.streak >= d.stopAt:
		return doomLoopStop
	case d.warnAt > 0 && d.streak >= d.warnAt:
		return doomLoopWarn
	default:
		return doomLoopNone
	}
}

func (d *doomLoopDetector) reset() {
	d.lastSig = ""
	d.streak = 0
}

// actionSignature produces a deterministic hash of an action's kind, name
// and parameters. Parameters are sorted so map order does not matter.
func actionSignature(a action.Action) string {
	parts := make([]string, 0, len(a.Params))
	for k, v := range a.Params {
		parts = append(parts, k+"="+v)
	}
	sort.Strings(parts)
	h := sha256.Sum256([]byte(string(a.Kind) + ":" + a.Name + "|" + strings.Join(parts, "|")))
	return fmt.Sprintf("%x", h)
}
