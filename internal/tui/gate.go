package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/huh"

	"github.com/phonectl/phonectl/internal/escalation"
)

// ErrTakeoverAbandoned is returned when the user gives up a manual step.
var ErrTakeoverAbandoned = errors.New("manual step abandoned by user")

// PromptGate asks for confirmations and manual steps on a line-oriented
// terminal or pipe. An answer other than yes declines.
type PromptGate struct {
	mu  sync.Mutex
	in  *Lines
	out io.Writer
}

var _ escalation.Gate = (*PromptGate)(nil)

// NewPromptGate reads answers from in and writes prompts to out.
func NewPromptGate(in io.Reader, out io.Writer) *PromptGate {
	return NewLinesPromptGate(NewLines(in), out)
}

// NewLinesPromptGate reads answers from lines that other prompts may share.
func NewLinesPromptGate(lines *Lines, out io.Writer) *PromptGate {
	return &PromptGate{in: lines, out: out}
}

func (g *PromptGate) Confirm(ctx context.Context, message string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	fmt.Fprintf(g.out, "\n%s\n%s ", confirmBlock(message), hintStyle.Render("Allow? [y/N]"))
	answer, err := g.in.ReadLine(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, err
	}
	return isYes(answer), nil
}

func (g *PromptGate) Takeover(ctx context.Context, message string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	fmt.Fprintf(g.out, "\n%s\n%s ", takeoverBlock(message), hintStyle.Render("Press Enter when done, or type q to abort:"))
	answer, err := g.in.ReadLine(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return ErrTakeoverAbandoned
		}
		return err
	}
	switch strings.ToLower(answer) {
	case "q", "quit", "abort", "n", "no":
		return ErrTakeoverAbandoned
	}
	return nil
}

func isYes(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes", "是", "确认", "好":
		return true
	}
	return false
}

// FormGate asks with huh forms. It needs an interactive terminal.
type FormGate struct {
	mu sync.Mutex
}

var _ escalation.Gate = (*FormGate)(nil)

func (g *FormGate) Confirm(ctx context.Context, message string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var ok bool
	err := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title("Sensitive action").
			Description(message).
			Affirmative("Allow").
			Negative("Deny").
			Value(&ok),
	)).RunWithContext(ctx)
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (g *FormGate) Takeover(ctx context.Context, message string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	done := true
	err := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title("Manual step required").
			Description(message+"\n\nComplete it on the device, then continue.").
			Affirmative("Done").
			Negative("Abort").
			Value(&done),
	)).RunWithContext(ctx)
	if errors.Is(err, huh.ErrUserAborted) {
		return ErrTakeoverAbandoned
	}
	if err != nil {
		return err
	}
	if !done {
		return ErrTakeoverAbandoned
	}
	return nil
}
