package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/phonectl/phonectl/internal/action"
	"github.com/phonectl/phonectl/internal/agent"
	"github.com/phonectl/phonectl/internal/session"
)

// ---------- messages sent from agent goroutine via program.Send() ----------

type sessionStartMsg struct {
	id       string
	task     string
	maxSteps int
}
type stepStartMsg struct{ index int }
type textDeltaMsg struct{ delta string }
type proposedMsg struct {
	index    int
	thinking string
	action   action.Action
}
type stepDoneMsg struct{ step session.Step }
type noticeMsg struct{ text string }
type tokensMsg struct{ n int }
type confirmMsg struct {
	message string
	replyCh chan bool
}
type takeoverMsg struct {
	message string
	replyCh chan bool
}
type sessionDoneMsg struct{ res *agent.Result }
type agentDoneMsg struct{ err error }

// ---------- spinner activity kinds ----------

type spinnerKind int

const (
	spinnerNone     spinnerKind = iota
	spinnerThinking             // model is choosing the next action
	spinnerActing               // action is being applied
)

// ---------- escalation prompt kinds ----------

type promptKind int

const (
	promptNone promptKind = iota
	promptConfirm
	promptTakeover
)

// ---------- Model ----------

const statusBarHeight = 1
const hintHeight = 1

// Model is the bubbletea model showing a live session.
type Model struct {
	viewport viewport.Model
	spinner  spinner.Model
	width    int
	height   int

	content     *strings.Builder // accumulated output
	streaming   bool             // model text deltas are arriving
	streamStart int              // byte offset in content where current stream began
	spinnerKind spinnerKind      // what the spinner is showing for
	current     string           // action being applied

	prompt  promptKind // waiting for the user
	replyCh chan bool  // send the user's answer back to the agent goroutine

	cancelFn func() bool // cancels the running session

	done     bool // agent returned; any key quits
	quitting bool

	// status bar
	sessionID string
	step      int
	maxSteps  int
	tokens    int
	state     string
}

// NewModel creates the initial bubbletea model.
func NewModel() Model {
	vp := viewport.New(80, 24)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	return Model{
		viewport: vp,
		spinner:  sp,
		content:  &strings.Builder{},
		state:    string(agent.StateIdle),
	}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vpHeight := m.height - statusBarHeight - hintHeight
		if vpHeight < 1 {
			vpHeight = 1
		}
		m.viewport.Width = m.width
		m.viewport.Height = vpHeight

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tea.KeyMsg:
		if m.done {
			m.quitting = true
			return m, tea.Quit
		}
		switch msg.String() {
		case "ctrl+c":
			m.answer(false)
			if m.cancelFn != nil && m.cancelFn() {
				m.appendLine(systemStyle.Render("  [interrupted]"))
			}
			m.quitting = true
			return m, tea.Quit
		case "enter":
			switch m.prompt {
			case promptConfirm:
				m.answer(true)
				m.appendLine(successStyle.Render("  ✓ allowed"))
				return m, nil
			case promptTakeover:
				m.answer(true)
				m.appendLine(successStyle.Render("  ✓ manual step done"))
				return m, nil
			}
		case "esc":
			switch m.prompt {
			case promptConfirm:
				m.answer(false)
				m.appendLine(failureStyle.Render("  ✗ denied"))
				return m, nil
			case promptTakeover:
				m.answer(false)
				m.appendLine(failureStyle.Render("  ✗ manual step aborted"))
				return m, nil
			}
		}

	// ---------- custom messages from agent goroutine ----------

	case sessionStartMsg:
		m.sessionID = msg.id
		m.maxSteps = msg.maxSteps
		m.step = 0
		m.state = string(agent.StateRunning)
		m.appendLine(taskStyle.Render("Task: " + msg.task))

	case stepStartMsg:
		m.step = msg.index + 1
		m.spinnerKind = spinnerThinking
		m.streaming = false

	case textDeltaMsg:
		if !m.streaming {
			m.streamStart = m.content.Len()
			m.streaming = true
		}
		m.content.WriteString(thinkingStyle.Render(msg.delta))

	case proposedMsg:
		m.dropStream()
		if t := cleanThinking(msg.thinking); t != "" {
			m.appendLine(thinkingStyle.Render(t))
		}
		m.current = msg.action.String()
		m.spinnerKind = spinnerActing

	case stepDoneMsg:
		m.dropStream()
		m.spinnerKind = spinnerNone
		m.current = ""
		m.appendLine(renderStep(msg.step))

	case noticeMsg:
		m.appendLine(warnStyle.Render("! " + msg.text))

	case tokensMsg:
		m.tokens = msg.n

	case confirmMsg:
		m.prompt = promptConfirm
		m.replyCh = msg.replyCh
		m.spinnerKind = spinnerNone
		m.state = string(agent.StateAwaitingConfirmation)
		m.appendLine(confirmBlock(msg.message))

	case takeoverMsg:
		m.prompt = promptTakeover
		m.replyCh = msg.replyCh
		m.spinnerKind = spinnerNone
		m.state = string(agent.StateAwaitingTakeover)
		m.appendLine(takeoverBlock(msg.message))

	case sessionDoneMsg:
		m.spinnerKind = spinnerNone
		m.state = string(msg.res.State)
		m.tokens = msg.res.TokensUsed
		m.appendLine("")
		m.appendLine(m.renderFinal(msg.res))

	case agentDoneMsg:
		m.spinnerKind = spinnerNone
		m.done = true
		if msg.err != nil {
			m.appendLine(errorStyle.Render("Error: " + msg.err.Error()))
		}
	}

	// Update viewport
	m.viewport.SetContent(m.renderContent())
	m.viewport.GotoBottom()

	var vpCmd tea.Cmd
	m.viewport, vpCmd = m.viewport.Update(msg)
	cmds = append(cmds, vpCmd)

	return m, tea.Batch(cmds...)
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	status := fmt.Sprintf(" %s | step %d/%d | tokens: %d | %s", shortID(m.sessionID), m.step, m.maxSteps, m.tokens, m.state)
	bar := statusBarStyle.Width(m.width).Render(status)

	var hint string
	switch {
	case m.done:
		hint = systemStyle.Render("  press any key to exit")
	case m.prompt == promptConfirm:
		hint = hintStyle.Render("  Enter = allow • Esc = deny")
	case m.prompt == promptTakeover:
		hint = hintStyle.Render("  Enter = done • Esc = abort")
	}

	return m.viewport.View() + "\n" + bar + "\n" + hint
}

// answer replies to a pending prompt, if any.
func (m *Model) answer(ok bool) {
	if m.prompt == promptNone || m.replyCh == nil {
		return
	}
	m.replyCh <- ok
	m.prompt = promptNone
	m.replyCh = nil
	m.state = string(agent.StateRunning)
}

// renderContent returns the viewport content, appending the spinner line
// which is not persisted in the content builder.
func (m *Model) renderContent() string {
	base := m.content.String()
	switch m.spinnerKind {
	case spinnerThinking:
		if m.streaming {
			return base
		}
		return base + "\n" + m.spinner.View() + " Thinking..."
	case spinnerActing:
		return base + "\n" + m.spinner.View() + " " + actionStyle.Render(truncate(m.current, 100))
	default:
		return base
	}
}

// dropStream removes the raw streamed text; the parsed proposal replaces it.
func (m *Model) dropStream() {
	if !m.streaming {
		return
	}
	before := m.content.String()[:m.streamStart]
	m.content.Reset()
	m.content.WriteString(before)
	m.streaming = false
}

// renderFinal renders the summary, with the final message as markdown.
func (m *Model) renderFinal(res *agent.Result) string {
	summary := RenderResult(&agent.Result{
		SessionID:  res.SessionID,
		State:      res.State,
		Steps:      res.Steps,
		TokensUsed: res.TokensUsed,
	})
	if res.Message == "" {
		return summary
	}

	width := m.width
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-4),
	)
	if err != nil {
		return summary + "\n" + res.Message
	}
	rendered, err := r.Render(res.Message)
	if err != nil {
		return summary + "\n" + res.Message
	}
	return summary + "\n" + strings.TrimRight(rendered, "\n")
}

// ---------- helpers ----------

func (m *Model) appendLine(text string) {
	m.content.WriteString(text)
	m.content.WriteString("\n")
}
