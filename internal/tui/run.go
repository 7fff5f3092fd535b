package tui

import (
	"fmt"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// RunTUI starts the bubbletea program in alt-screen mode and runs agentFn
// concurrently. It blocks until the agent finishes and the user leaves the
// screen, or the user quits early.
func RunTUI(agentFn func(io *TuiIO) error) error {
	model := NewModel()

	// Create TuiIO early so the cancel hook is wired before the model is
	// copied into the tea.Program.
	tuiIO := &TuiIO{}
	model.cancelFn = tuiIO.Cancel

	p := tea.NewProgram(model, tea.WithAltScreen())
	tuiIO.program = p

	var (
		agentErr error
		wg       sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		agentErr = agentFn(tuiIO)
		// Signal the TUI that the agent is done
		p.Send(agentDoneMsg{err: agentErr})
	}()

	if _, err := p.Run(); err != nil {
		tuiIO.Cancel()
		wg.Wait()
		return fmt.Errorf("TUI error: %w", err)
	}

	// The user may quit before the agent returns.
	tuiIO.Cancel()
	wg.Wait()

	return agentErr
}
