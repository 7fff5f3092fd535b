package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/phonectl/phonectl/internal/agent"
	"github.com/phonectl/phonectl/internal/escalation"
	"github.com/phonectl/phonectl/internal/tui"
)

func newStepCmd() *cobra.Command {
	var resumeID string

	cmd := &cobra.Command{
		Use:   "step <task>",
		Short: "Run a task one step at a time, pausing after each step",
		Long: "step performs one screenshot → model → action cycle at a time and waits for Enter\n" +
			"before the next. Type q to stop; the session is saved as cancelled.",
		Example: `  phonectl step "打开设置，进入蓝牙"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			task := strings.Join(args, " ")
			if resumeID == "" && strings.TrimSpace(task) == "" {
				return fmt.Errorf("a task is required (or --resume <session-id>)")
			}
			return stepTask(task, resumeID)
		},
	}

	cmd.Flags().StringVar(&resumeID, "resume", "", "continue a saved running session")

	return cmd
}

func stepTask(task, resumeID string) error {
	ctx, cancel := signalContext()
	defer cancel()

	r, err := setup(ctx, os.Stderr)
	if err != nil {
		return err
	}
	defer r.close()

	// The gate and the pause prompt share one line reader so neither
	// swallows the other's input, even after a timed out takeover.
	in := tui.NewLines(os.Stdin)
	var gate escalation.Gate
	switch r.cfg.Permissions.Mode {
	case "auto-approve", "deny":
		gate = buildGate(r.cfg, r.logger)
	default:
		gate = escalation.WithTimeout(tui.NewLinesPromptGate(in, os.Stderr), r.cfg.Permissions.TakeoverTimeout)
	}

	ui := tui.NewPlainIO(os.Stdout, !r.cfg.Agent.Verbose)
	a := r.newAgent(ui, gate, ui.TextDelta)

	if resumeID != "" {
		s, err := r.loadSession(resumeID)
		if err != nil {
			return err
		}
		if err := a.Resume(s); err != nil {
			return err
		}
		if res := a.Result(); res.State.Terminal() {
			return exitStatus(res, nil)
		}
		task = ""
	}

	res, err := stepLoop(ctx, a, task, in, os.Stderr)
	return exitStatus(res, err)
}

// stepLoop steps a until its session ends or the user stops at a pause.
func stepLoop(ctx context.Context, a *agent.Agent, task string, in *tui.Lines, out io.Writer) (*agent.Result, error) {
	for {
		sr, err := a.Step(ctx, task)
		task = ""
		if err != nil {
			return a.Result(), err
		}
		if sr.State.Terminal() {
			return a.Result(), nil
		}

		fmt.Fprintf(out, "step %d done · Enter = next, q = stop: ", sr.Step.Index+1)
		line, err := in.ReadLine(ctx)
		answer := strings.ToLower(line)
		if answer == "q" || answer == "quit" || (err != nil && answer == "") {
			res := a.Result()
			a.Reset()
			res.State, res.Message = agent.StateCancelled, "stopped at step pause"
			return res, nil
		}
	}
}
