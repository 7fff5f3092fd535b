package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/phonectl/phonectl/internal/device"
)

func newAppsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apps",
		Short: "List app names the Launch action understands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := initConfig()
			fmt.Println(appsTable(device.NewApps(cfg.Device.Apps)))
			return nil
		},
	}
}

func appsTable(apps *device.Apps) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("APP", "PACKAGE")
	for _, name := range apps.Names() {
		pkg, _ := apps.Lookup(name)
		t.Row(name, pkg)
	}
	return t.String()
}
