package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/phonectl/phonectl/internal/config"
	"github.com/phonectl/phonectl/internal/device"
	"github.com/phonectl/phonectl/internal/escalation"
	"github.com/phonectl/phonectl/internal/provider"
	"github.com/phonectl/phonectl/internal/session"
	"github.com/phonectl/phonectl/internal/tui"
)

var (
	cfgFile      string
	autoApprove  bool
	modelFlag    string
	baseURLFlag  string
	apiKeyFlag   string
	providerFlag string
	deviceFlag   string
	langFlag     string
	maxStepsFlag int
	useTUI       bool
	quiet        bool
	debug        bool

	// Package-level version info, set by Execute().
	appVersion string
	appCommit  string
	appDate    string
)

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date

	rootCmd := &cobra.Command{
		Use:   "phonectl [task]",
		Short: "Drive an Android phone with a vision-language model",
		Long: "phonectl runs a screenshot → model → action loop on an adb-attached Android device.\n" +
			"Sensitive actions ask for confirmation, login and captcha screens are handed to you.",
		Example: `  phonectl "打开美团搜索附近的火锅店"
  phonectl run --lang en "open settings and enable dark mode"
  phonectl connect 192.168.1.20`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Default TUI on when stdout is a terminal and --tui was not explicitly set.
			if !cmd.Root().PersistentFlags().Changed("tui") && term.IsTerminal(int(os.Stdout.Fd())) {
				useTUI = true
			}
		},
		// Running phonectl with a task is the same as "phonectl run <task>".
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return runTask(strings.Join(args, " "), "")
		},
		Version:       displayVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "config file path (default ~/.config/phonectl/config.yaml)")
	pf.BoolVar(&autoApprove, "auto-approve", false, "approve sensitive actions and skip manual steps without asking")
	pf.StringVarP(&modelFlag, "model", "m", "", "override model")
	pf.StringVar(&baseURLFlag, "base-url", "", "override the model API base URL")
	pf.StringVar(&apiKeyFlag, "apikey", "", "override the model API key")
	pf.StringVarP(&providerFlag, "provider", "p", "", "override provider (local, autoglm, modelscope, openai, anthropic, ...)")
	pf.StringVarP(&deviceFlag, "device-id", "d", "", "adb device serial or host:port")
	pf.StringVar(&langFlag, "lang", "", "prompt language: cn or en")
	pf.IntVar(&maxStepsFlag, "max-steps", 0, "step budget per task")
	pf.BoolVar(&useTUI, "tui", false, "use bubbletea TUI mode (default: auto-detect terminal)")
	pf.BoolVarP(&quiet, "quiet", "q", false, "hide model reasoning")
	pf.BoolVar(&debug, "debug", false, "debug logging to stderr")

	// Subcommands
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newStepCmd())
	rootCmd.AddCommand(newConnectCmd())
	rootCmd.AddCommand(newDisconnectCmd())
	rootCmd.AddCommand(newDevicesCmd())
	rootCmd.AddCommand(newAppsCmd())
	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newVersionCmd(version, commit, date))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initConfig loads configuration, applying CLI flag overrides.
func initConfig() *config.Config {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error in config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// applyFlags overlays CLI flags onto cfg.
func applyFlags(cfg *config.Config) {
	if providerFlag != "" {
		cfg.Provider = providerFlag
	}
	if modelFlag != "" {
		cfg.Model = modelFlag
	}
	pc := cfg.GetProviderConfig(cfg.Provider)
	if baseURLFlag != "" || apiKeyFlag != "" {
		if cfg.Providers == nil {
			cfg.Providers = make(map[string]*config.ProviderConfig)
		}
		cfg.Providers[cfg.Provider] = pc
	}
	if baseURLFlag != "" {
		pc.BaseURL = baseURLFlag
	}
	if apiKeyFlag != "" {
		pc.APIKey = apiKeyFlag
	}
	if deviceFlag != "" {
		cfg.Agent.DeviceID = deviceFlag
	}
	if langFlag != "" {
		cfg.Agent.Lang = langFlag
	}
	if maxStepsFlag > 0 {
		cfg.Agent.MaxSteps = maxStepsFlag
	}
	if autoApprove {
		cfg.Permissions.Mode = "auto-approve"
	}
	if quiet {
		cfg.Agent.Verbose = false
	}
}

// buildProvider creates a Provider instance based on configuration.
func buildProvider(cfg *config.Config) (provider.Provider, error) {
	name := cfg.Provider
	pc := cfg.GetProviderConfig(name)
	model := cfg.ResolveModel()

	switch name {
	case "anthropic":
		if pc.APIKey == "" {
			return nil, fmt.Errorf(
				"API key not configured for provider %q.\n"+
					"Set it via:\n"+
					"  - config file: providers.%s.api_key\n"+
					"  - environment: ANTHROPIC_API_KEY or LLM_API_KEY\n"+
					"  - flag: --apikey",
				name, name,
			)
		}
		return provider.NewAnthropicProvider(pc.APIKey, pc.BaseURL, model), nil
	default:
		// All other providers use the OpenAI-compatible API.
		baseURL := cfg.ResolveBaseURL()
		if baseURL == "" {
			return nil, fmt.Errorf("unknown provider %q; set providers.%s.base_url in config or pass --base-url", name, name)
		}
		return provider.NewOpenAIProvider(pc.APIKey, baseURL, model), nil
	}
}

// newLogger returns the process logger. The TUI owns the terminal, so
// without --debug it only gets warnings and worse, on stderr after exit.
func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	if w == nil {
		w = os.Stderr
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// buildGate picks how confirmations and manual steps are answered.
func buildGate(cfg *config.Config, logger *slog.Logger) escalation.Gate {
	var g escalation.Gate
	switch cfg.Permissions.Mode {
	case "auto-approve":
		g = escalation.AutoApprove{Logger: logger}
	case "deny":
		g = escalation.Deny{}
	default:
		if term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stderr.Fd())) {
			g = &tui.FormGate{}
		} else {
			g = tui.NewPromptGate(os.Stdin, os.Stderr)
		}
	}
	return escalation.WithTimeout(g, cfg.Permissions.TakeoverTimeout)
}

// openStore opens the session database, or returns nil when persistence is
// disabled.
func openStore(cfg *config.Config) (session.Store, error) {
	if cfg.Store.Disabled {
		return nil, nil
	}
	path := cfg.Store.Path
	if path == "" {
		p, err := session.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("session db path: %w", err)
		}
		path = p
	}
	store, err := session.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return store, nil
}

func newRunner(cfg *config.Config) device.Runner {
	return device.ExecRunner{Path: cfg.Device.ADBPath}
}

// openDevice checks that the selected device is attached and returns it.
// A host:port device id that is not attached yet is connected first.
func openDevice(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*device.ADB, error) {
	r := newRunner(cfg)
	mgr := device.NewManager(r)
	serial := cfg.Agent.DeviceID

	if strings.Contains(serial, ":") {
		addr, err := device.NormalizeAddress(serial)
		if err != nil {
			return nil, err
		}
		serial = addr
		// Connect only fails for malformed addresses, checked above.
		res, _ := mgr.Connect(ctx, addr)
		if !res.Success {
			logger.Warn("adb connect failed", "address", addr, "message", res.Message)
		}
	}

	devices, err := mgr.ListDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	if err := pickDevice(devices, serial); err != nil {
		return nil, err
	}

	return device.NewADB(r, device.ADBConfig{
		Serial:   serial,
		Apps:     device.NewApps(cfg.Device.Apps),
		Settle:   cfg.Device.Settle,
		MaxWidth: cfg.Device.ScreenshotMaxWidth,
	}), nil
}

// pickDevice verifies that serial (or, when empty, exactly one device) is
// ready in the "adb devices" listing.
func pickDevice(devices []device.Info, serial string) error {
	var ready []string
	for _, d := range devices {
		if d.State == "device" {
			ready = append(ready, d.ID)
		}
	}
	if serial == "" {
		switch len(ready) {
		case 0:
			return fmt.Errorf("no device attached; plug one in or run: phonectl connect <host:port>")
		case 1:
			return nil
		default:
			return fmt.Errorf("%d devices attached (%s); pick one with --device-id", len(ready), strings.Join(ready, ", "))
		}
	}
	for _, id := range ready {
		if id == serial {
			return nil
		}
	}
	for _, d := range devices {
		if d.ID == serial {
			return fmt.Errorf("device %s is %s", serial, d.State)
		}
	}
	return fmt.Errorf("device %s not found", serial)
}
