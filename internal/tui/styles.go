// Package tui renders agent progress in the terminal and asks the user for
// confirmations and manual steps.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/phonectl/phonectl/internal/agent"
	"github.com/phonectl/phonectl/internal/session"
)

// ---------- styles ----------

var (
	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	taskStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")) // gray spinner

	thinkingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")).
			Italic(true)

	// Step styles: minimalist gray left line
	stepBorderStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("7")).
			PaddingLeft(1)

	actionStyle = lipgloss.NewStyle().
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2")) // green

	failureStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")) // dark red

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("3")) // yellow

	// Escalation styles
	confirmBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.NormalBorder(), false, false, false, true).
				BorderForeground(lipgloss.Color("3")). // yellow left line
				PaddingLeft(1)

	takeoverBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.NormalBorder(), false, false, false, true).
				BorderForeground(lipgloss.Color("39")). // blue left line
				PaddingLeft(1)

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("3")).
			Bold(true)
)

// statusMark returns the symbol and style for a step outcome.
func statusMark(s session.StepStatus) (string, lipgloss.Style) {
	switch s {
	case session.StepApplied, session.StepFinished, session.StepTakeover:
		return "✓", successStyle
	case session.StepCancelled, session.StepDenied:
		return "⊘", warnStyle
	default:
		return "✗", failureStyle
	}
}

// renderStep renders a finished step as a bordered block.
func renderStep(step session.Step) string {
	label := step.Action.String()
	if step.Action.Kind == "" {
		label = "(no action)"
	}
	head := stepHeader(step.Index) + " " + actionStyle.Render(truncate(label, 120))

	mark, style := statusMark(step.Status)
	line := string(step.Status)
	if step.Message != "" {
		line += ": " + truncate(strings.ReplaceAll(step.Message, "\n", " "), 160)
	}
	line = style.Render(mark + " " + line)
	meta := systemStyle.Render(fmt.Sprintf("%s · %s", orDash(step.App), step.Duration.Round(time.Millisecond)))
	return stepBorderStyle.Render(head + "\n" + line + "\n" + meta)
}

func stepHeader(index int) string {
	return systemStyle.Render(fmt.Sprintf("#%d", index))
}

// RenderResult renders the session summary.
func RenderResult(res *agent.Result) string {
	if res == nil {
		return ""
	}
	style := successStyle
	switch res.State {
	case agent.StateFailed:
		style = failureStyle
	case agent.StateCancelled, agent.StateBudgetExhausted:
		style = warnStyle
	}
	var sb strings.Builder
	sb.WriteString(style.Render(fmt.Sprintf("%s after %d steps", res.State, res.Steps)))
	if res.Message != "" {
		sb.WriteString("\n")
		sb.WriteString(res.Message)
	}
	sb.WriteString("\n")
	sb.WriteString(systemStyle.Render(fmt.Sprintf("session %s · %d tokens", res.SessionID, res.TokensUsed)))
	return sb.String()
}

// RenderTranscript renders a saved session: the task, every step with its
// reasoning, and the outcome.
func RenderTranscript(s *session.Session, withThinking bool) string {
	var sb strings.Builder
	sb.WriteString(taskStyle.Render("Task: " + s.Task))
	sb.WriteString("\n")
	sb.WriteString(systemStyle.Render(fmt.Sprintf("session %s · device %s · %s",
		s.ID, orDash(s.DeviceID), s.CreatedAt.Format("2006-01-02 15:04:05"))))
	sb.WriteString("\n")
	for _, step := range s.Steps {
		if t := cleanThinking(step.Thinking); withThinking && t != "" {
			sb.WriteString(thinkingStyle.Render(t))
			sb.WriteString("\n")
		}
		sb.WriteString(renderStep(step))
		sb.WriteString("\n")
	}
	sb.WriteString(RenderResult(&agent.Result{
		SessionID:  s.ID,
		State:      agent.StateOf(s.Status),
		Finished:   s.Finished(),
		Message:    s.Message,
		Steps:      s.StepCount(),
		TokensUsed: s.TokensUsed,
	}))
	return sb.String()
}

// cleanThinking removes the answer tags from streamed model output.
func cleanThinking(s string) string {
	r := strings.NewReplacer("<think>", "", "</think>", "", "<answer>", "", "</answer>", "")
	return strings.TrimSpace(r.Replace(s))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// truncate shortens s to maxLen runes, appending "..." if cut.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
