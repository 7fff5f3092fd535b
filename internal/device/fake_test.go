package device

import (
	"context"
	"strings"
	"sync"
)

// scriptedRunner answers adb invocations by longest matching argument
// prefix and records every call.
type scriptedRunner struct {
	mu      sync.Mutex
	calls   []string
	replies map[string]reply
}

type reply struct {
	out string
	err error
}

func newScriptedRunner() *scriptedRunner {
	return &scriptedRunner{replies: make(map[string]reply)}
}

func (r *scriptedRunner) on(prefix, out string, err error) *scriptedRunner {
	r.replies[prefix] = reply{out: out, err: err}
	return r
}

func (r *scriptedRunner) Run(_ context.Context, args ...string) ([]byte, error) {
	joined := strings.Join(args, " ")
	r.mu.Lock()
	r.calls = append(r.calls, joined)
	r.mu.Unlock()

	best, found := "", false
	for p := range r.replies {
		if strings.HasPrefix(joined, p) && len(p) >= len(best) {
			best, found = p, true
		}
	}
	if !found {
		return nil, nil
	}
	rep := r.replies[best]
	return []byte(rep.out), rep.err
}

func (r *scriptedRunner) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *scriptedRunner) count(prefix string) int {
	n := 0
	for _, c := range r.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}
