package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/phonectl/phonectl/internal/device"
)

const adbTimeout = 30 * time.Second

func newConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect <host[:port]>",
		Short: "Attach a device over adb TCP/IP (default port 5555)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := initConfig()
			ctx, cancel := context.WithTimeout(cmd.Context(), adbTimeout)
			defer cancel()

			res, err := device.NewManager(newRunner(cfg)).Connect(ctx, args[0])
			return report(os.Stdout, res, err)
		},
	}
}

func newDisconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect <host[:port]>",
		Short: "Detach a device attached over TCP/IP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := initConfig()
			ctx, cancel := context.WithTimeout(cmd.Context(), adbTimeout)
			defer cancel()

			// Each invocation is a fresh process; learn what adb already has.
			m := device.NewManager(newRunner(cfg))
			if err := m.Sync(ctx); err != nil {
				return err
			}
			res, err := m.Disconnect(ctx, args[0])
			return report(os.Stdout, res, err)
		},
	}
}

func report(w io.Writer, res device.ConnectionResult, err error) error {
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("%s", res.Message)
	}
	fmt.Fprintln(w, res.Message)
	return nil
}

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List attached devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := initConfig()
			ctx, cancel := context.WithTimeout(cmd.Context(), adbTimeout)
			defer cancel()

			infos, err := device.NewManager(newRunner(cfg)).ListDevices(ctx)
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				fmt.Println("No devices attached.")
				return nil
			}
			fmt.Println(devicesTable(infos))
			return nil
		},
	}
}

func devicesTable(infos []device.Info) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("ID", "STATE", "TRANSPORT")
	for _, d := range infos {
		transport := "usb"
		if d.Remote() {
			transport = "tcp"
		}
		t.Row(d.ID, d.State, transport)
	}
	return t.String()
}
