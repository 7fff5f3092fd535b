package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/phonectl/phonectl/internal/agent"
	"github.com/phonectl/phonectl/internal/config"
	"github.com/phonectl/phonectl/internal/device"
	"github.com/phonectl/phonectl/internal/escalation"
	"github.com/phonectl/phonectl/internal/model"
	"github.com/phonectl/phonectl/internal/provider"
	"github.com/phonectl/phonectl/internal/session"
	"github.com/phonectl/phonectl/internal/tui"
)

func newRunCmd() *cobra.Command {
	var resumeID string

	cmd := &cobra.Command{
		Use:   "run <task>",
		Short: "Run a task on the device until it finishes",
		Example: `  phonectl run "打开小红书搜索美食攻略"
  phonectl run --resume 3f2a9c1e-...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			task := strings.Join(args, " ")
			if resumeID == "" && strings.TrimSpace(task) == "" {
				return fmt.Errorf("a task is required (or --resume <session-id>)")
			}
			return runTask(task, resumeID)
		},
	}

	cmd.Flags().StringVar(&resumeID, "resume", "", "continue a saved running session")

	return cmd
}

// runner holds what a session needs besides the agent itself.
type runner struct {
	cfg      *config.Config
	logger   *slog.Logger
	provider provider.Provider
	store    session.Store
	device   *device.ADB
}

// setup loads config and opens the model provider, session store and device.
func setup(ctx context.Context, logOut io.Writer) (*runner, error) {
	cfg := initConfig()
	logger := newLogger(logOut)

	p, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	dev, err := openDevice(ctx, cfg, logger)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, err
	}
	return &runner{cfg: cfg, logger: logger, provider: p, store: store, device: dev}, nil
}

func (r *runner) close() {
	if r.store != nil {
		r.store.Close()
	}
}

// newAgent wires an agent reporting to obs and escalating to gate.
// onDelta receives streamed model output and may be nil.
func (r *runner) newAgent(obs agent.Observer, gate escalation.Gate, onDelta func(string)) *agent.Agent {
	opts := []model.Option{
		model.WithRetry(model.RetryPolicyFromConfig(r.cfg.Retry)),
		model.WithLogger(r.logger),
	}
	if onDelta != nil {
		opts = append(opts, model.WithStreamHandler(onDelta))
	}
	client := model.NewClient(r.provider, model.FromConfig(r.cfg), opts...)

	agentOpts := append(agent.ConfigOptions(r.cfg),
		agent.WithGate(gate),
		agent.WithObserver(obs),
		agent.WithLogger(r.logger),
		agent.WithDeviceID(r.device.Serial()),
	)
	if r.store != nil {
		agentOpts = append(agentOpts, agent.WithStore(r.store))
	}
	return agent.New(r.device, client, agentOpts...)
}

// loadSession fetches a saved session for --resume.
func (r *runner) loadSession(id string) (*session.Session, error) {
	if r.store == nil {
		return nil, fmt.Errorf("--resume needs the session store; it is disabled in config")
	}
	s, err := r.store.Load(id)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	return s, nil
}

// drive runs task to the end, or continues the session resumeID.
func (r *runner) drive(ctx context.Context, a *agent.Agent, task, resumeID string) (*agent.Result, error) {
	if resumeID == "" {
		return a.Run(ctx, task)
	}
	s, err := r.loadSession(resumeID)
	if err != nil {
		return nil, err
	}
	if err := a.Resume(s); err != nil {
		return nil, err
	}
	return a.Continue(ctx)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// runTask executes one task (or resumes a session) and exits non-zero
// unless it finished.
func runTask(task, resumeID string) error {
	ctx, cancel := signalContext()
	defer cancel()

	if useTUI {
		return runTaskTUI(ctx, task, resumeID)
	}

	r, err := setup(ctx, os.Stderr)
	if err != nil {
		return err
	}
	defer r.close()

	ui := tui.NewPlainIO(os.Stdout, !r.cfg.Agent.Verbose)
	a := r.newAgent(ui, buildGate(r.cfg, r.logger), ui.TextDelta)

	res, err := r.drive(ctx, a, task, resumeID)
	return exitStatus(res, err)
}

func runTaskTUI(ctx context.Context, task, resumeID string) error {
	// Logs would tear the alt screen; keep them until the program exits.
	var logs strings.Builder
	r, err := setup(ctx, &logs)
	if err != nil {
		return err
	}
	defer r.close()

	var res *agent.Result
	err = tui.RunTUI(func(ui *tui.TuiIO) error {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		ui.SetCancel(cancel)

		var onDelta func(string)
		if r.cfg.Agent.Verbose {
			onDelta = ui.TextDelta
		}
		gate := escalation.WithTimeout(ui, r.cfg.Permissions.TakeoverTimeout)
		switch r.cfg.Permissions.Mode {
		case "auto-approve", "deny":
			gate = buildGate(r.cfg, r.logger)
		}
		a := r.newAgent(ui, gate, onDelta)

		var err error
		res, err = r.drive(ctx, a, task, resumeID)
		return err
	})

	if logs.Len() > 0 {
		fmt.Fprint(os.Stderr, logs.String())
	}
	if res != nil {
		fmt.Println(tui.RenderResult(res))
	}
	return exitStatus(res, err)
}

// errNotFinished marks a run that ended without the model finishing.
var errNotFinished = errors.New("task did not finish")

// exitStatus maps a run outcome to the command error. An interrupt is
// already recorded in the result.
func exitStatus(res *agent.Result, err error) error {
	if err != nil && (res == nil || !errors.Is(err, context.Canceled)) {
		return err
	}
	if res == nil || res.Finished {
		return nil
	}
	return fmt.Errorf("%w: %s", errNotFinished, res.State)
}
