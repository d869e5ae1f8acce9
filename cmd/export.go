package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/supportdesk/internal/tracker"
	"github.com/joescharf/supportdesk/internal/transfer"
)

var (
	exportFormat string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all issues as CSV or JSON",
	Long: `Export every issue, newest first.

CSV has a fixed header row and every field quoted. JSON is the raw issue
records. Without --output the file is written to the current directory as
support-issues-YYYY-MM-DD.<ext>; use --output - for stdout.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return exportRun()
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "Output format: csv, json")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file path, or - for stdout")
	rootCmd.AddCommand(exportCmd)
}

func exportRun() error {
	f, err := transfer.ParseFormat(exportFormat)
	if err != nil {
		return err
	}
	s, err := getStore()
	if err != nil {
		return err
	}
	display, err := displaySettings()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	ctl := tracker.NewTransfer(s, display, newLogger())
	if err := ctl.Export(context.Background(), &buf, f); err != nil {
		return err
	}

	if exportOutput == "-" {
		_, err := ui.Out.Write(buf.Bytes())
		return err
	}

	path := exportOutput
	if path == "" {
		path = transfer.Filename(f, time.Now())
	}
	if dryRun {
		ui.DryRunMsg("Would write %d bytes to %s", buf.Len(), path)
		return nil
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	ui.Success("Exported issues to %s", path)
	return nil
}
