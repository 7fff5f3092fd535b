package tui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/phonectl/phonectl/internal/action"
	"github.com/phonectl/phonectl/internal/agent"
	"github.com/phonectl/phonectl/internal/session"
)

// PlainIO prints agent progress line by line. It is used when the
// full-screen TUI is disabled or stdout is not a terminal.
type PlainIO struct {
	mu        sync.Mutex
	out       io.Writer
	quiet     bool
	streaming bool
}

var _ agent.Observer = (*PlainIO)(nil)

// NewPlainIO writes to out. Quiet mode hides the model's reasoning.
func NewPlainIO(out io.Writer, quiet bool) *PlainIO {
	return &PlainIO{out: out, quiet: quiet}
}

func (p *PlainIO) SessionStarted(s *session.Session) {
	p.printf("%s %s\n", systemStyle.Render("session "+shortID(s.ID)), taskStyle.Render(s.Task))
}

func (p *PlainIO) StepStarted(int) {}

// TextDelta prints streamed model output; pass it to the model client's
// stream handler.
func (p *PlainIO) TextDelta(delta string) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.streaming {
		fmt.Fprintln(p.out)
		p.streaming = true
	}
	fmt.Fprint(p.out, thinkingStyle.Render(delta))
}

func (p *PlainIO) Proposed(_ int, thinking string, _ action.Action) {
	p.mu.Lock()
	streamed := p.streaming
	p.streaming = false
	p.mu.Unlock()

	if streamed {
		p.printf("\n")
		return
	}
	if !p.quiet && thinking != "" {
		p.printf("\n%s\n", thinkingStyle.Render(cleanThinking(thinking)))
	}
}

func (p *PlainIO) StepFinished(step session.Step) {
	p.mu.Lock()
	p.streaming = false
	p.mu.Unlock()
	p.printf("%s\n", renderStep(step))
}

func (p *PlainIO) Notice(msg string) {
	p.printf("%s\n", warnStyle.Render("! "+msg))
}

func (p *PlainIO) SessionFinished(res *agent.Result) {
	p.printf("\n%s\n", RenderResult(res))
}

// SystemMessage prints an informational line.
func (p *PlainIO) SystemMessage(text string) {
	p.printf("%s\n", systemStyle.Render(text))
}

// Error prints an error line.
func (p *PlainIO) Error(msg string) {
	p.printf("%s\n", errorStyle.Render("error: "+msg))
}

func (p *PlainIO) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

// ---------- line prompts ----------

func confirmBlock(message string) string {
	lines := []string{hintStyle.Render("Sensitive action"), message}
	return confirmBorderStyle.Render(strings.Join(lines, "\n"))
}

func takeoverBlock(message string) string {
	lines := []string{hintStyle.Render("Manual step required"), message}
	return takeoverBorderStyle.Render(strings.Join(lines, "\n"))
}
