package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/joescharf/supportdesk/internal/tracker"
	"github.com/joescharf/supportdesk/internal/view"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	Aliases: []string{"stats"},
	Short:   "Show issue statistics",
	Long: `Show summary cards (total, open, resolved, escalated, recurring, average
time), counts by category and plugin, the daily timeline and the most recent
issues.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return dashboardRun()
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}

func dashboardRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	display, err := displaySettings()
	if err != nil {
		return err
	}

	d := tracker.NewDashboard(s, display, newLogger())
	if err := d.Reload(context.Background()); err != nil {
		return err
	}
	return view.RenderDashboard(ui, d.Data())
}
