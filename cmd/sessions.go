package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/phonectl/phonectl/internal/agent"
	"github.com/phonectl/phonectl/internal/config"
	"github.com/phonectl/phonectl/internal/session"
	"github.com/phonectl/phonectl/internal/tui"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session"},
		Short:   "Inspect saved sessions",
	}
	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsShowCmd())
	cmd.AddCommand(newSessionsExportCmd())
	cmd.AddCommand(newSessionsImportCmd())
	cmd.AddCommand(newSessionsDeleteCmd())
	return cmd
}

// withStore opens the session store for a subcommand.
func withStore(fn func(cfg *config.Config, store session.Store) error) error {
	cfg := initConfig()
	if cfg.Store.Disabled {
		return fmt.Errorf("the session store is disabled in config")
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(cfg, store)
}

// resolveID expands a unique ID prefix, as printed by "sessions list".
func resolveID(store session.Store, prefix string) (string, error) {
	infos, err := store.List()
	if err != nil {
		return "", err
	}
	var matches []string
	for _, info := range infos {
		if info.ID == prefix {
			return info.ID, nil
		}
		if strings.HasPrefix(info.ID, prefix) {
			matches = append(matches, info.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", session.ErrNotFound, prefix)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("session prefix %q is ambiguous (%d matches)", prefix, len(matches))
	}
}

func loadByPrefix(store session.Store, prefix string) (*session.Session, error) {
	id, err := resolveID(store, prefix)
	if err != nil {
		return nil, err
	}
	return store.Load(id)
}

func newSessionsListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(cfg *config.Config, store session.Store) error {
				infos, err := store.List()
				if err != nil {
					return err
				}
				if len(infos) == 0 {
					fmt.Println("No saved sessions.")
					return nil
				}
				if limit > 0 && len(infos) > limit {
					infos = infos[:limit]
				}
				fmt.Println(sessionsTable(infos))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "show at most n sessions (0 = all)")

	return cmd
}

func sessionsTable(infos []session.SessionInfo) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("ID", "STATUS", "STEPS", "TOKENS", "UPDATED", "TASK")
	for _, info := range infos {
		t.Row(
			shortSessionID(info.ID),
			string(info.Status),
			strconv.Itoa(info.Steps),
			strconv.Itoa(info.Tokens),
			info.UpdatedAt.Local().Format("01-02 15:04"),
			clip(info.Task, 40),
		)
	}
	return t.String()
}

func newSessionsShowCmd() *cobra.Command {
	var (
		asJSON bool
		events bool
		tail   int
	)

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a session transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(cfg *config.Config, store session.Store) error {
				s, err := loadByPrefix(store, args[0])
				if err != nil {
					return err
				}
				switch {
				case asJSON:
					return session.Export(os.Stdout, s)
				case events:
					evts, err := agent.ReadEvents(cfg.EventLog.Dir, s.ID, tail)
					if err != nil {
						return err
					}
					fmt.Println(agent.FormatEvents(evts, "Session "+shortSessionID(s.ID)))
					return nil
				default:
					fmt.Println(tui.RenderTranscript(s, cfg.Agent.Verbose))
					return nil
				}
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the transcript as JSON")
	cmd.Flags().BoolVar(&events, "events", false, "print the event log instead of the transcript")
	cmd.Flags().IntVar(&tail, "tail", 0, "with --events, only the last n events")

	return cmd
}

func newSessionsExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <id> [dir]",
		Short: "Write a session transcript to <dir>/<id>.json",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 2 {
				dir = args[1]
			}
			return withStore(func(cfg *config.Config, store session.Store) error {
				s, err := loadByPrefix(store, args[0])
				if err != nil {
					return err
				}
				path, err := session.ExportFile(dir, s)
				if err != nil {
					return err
				}
				fmt.Println(path)
				return nil
			})
		},
	}
}

func newSessionsImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Load an exported transcript into the session store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			s, err := session.Import(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			return withStore(func(cfg *config.Config, store session.Store) error {
				if err := store.Save(s); err != nil {
					return err
				}
				fmt.Printf("imported %s (%s, %d steps)\n", s.ID, s.Status, s.StepCount())
				return nil
			})
		},
	}
}

func newSessionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a saved session",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(cfg *config.Config, store session.Store) error {
				id, err := resolveID(store, args[0])
				if err != nil {
					return err
				}
				if err := store.Delete(id); err != nil {
					return err
				}
				fmt.Println("deleted", id)
				return nil
			})
		},
	}
}

func shortSessionID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func clip(s string, n int) string {
	r := []rune(strings.ReplaceAll(s, "\n", " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}
