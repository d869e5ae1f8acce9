package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/supportdesk/internal/models"
	"github.com/joescharf/supportdesk/internal/output"
	"github.com/joescharf/supportdesk/internal/store"
	"github.com/joescharf/supportdesk/internal/tracker"
	"github.com/joescharf/supportdesk/internal/transfer"
)

var importQuoteAware bool

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import issues from a CSV or JSON file",
	Long: `Import issues from a CSV or JSON file.

The format is taken from the file extension. CSV files need a header row;
headers are matched case-insensitively with spaces turned into underscores
(e.g. "Client Reference ID" -> client_reference_id). JSON files hold an
array of issue objects.

Rows missing a required field or carrying an unknown status are counted as
invalid. Rows whose client reference already exists are skipped as
duplicates. With --dry-run the file is parsed and previewed only.

CSV rows are split on every comma unless --quote-aware (or
import.quote_aware in config) is set.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return importRun(args[0])
	},
}

func init() {
	importCmd.Flags().BoolVar(&importQuoteAware, "quote-aware", false, "Honour quoted CSV fields containing commas")
	rootCmd.AddCommand(importCmd)
}

func importOptions() transfer.ParseOptions {
	return transfer.ParseOptions{QuoteAware: importQuoteAware || viper.GetBool("import.quote_aware")}
}

func importRun(file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	name := filepath.Base(file)

	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if dryRun {
		return importPreview(ctx, s, name, data)
	}

	display, err := displaySettings()
	if err != nil {
		return err
	}
	ctl := tracker.NewTransfer(s, display, newLogger())
	res, err := ctl.Import(ctx, name, "", data, importOptions())
	if err != nil {
		return err
	}
	return reportImport(res)
}

// reportImport prints the outcome counts. A failed parse is returned as an error.
func reportImport(res transfer.Result) error {
	if !res.Success {
		return fmt.Errorf("import failed: %s", res.Error)
	}
	ui.Success("Imported %d of %d records", res.Imported, res.Total)
	if res.Duplicates > 0 {
		ui.Info("Skipped %d duplicates", res.Duplicates)
	}
	if res.Invalid > 0 {
		ui.Warning("Skipped %d invalid records", res.Invalid)
	}
	if res.Failed > 0 {
		ui.Error("%d records failed to save (see log)", res.Failed)
	}
	return nil
}

// importPreview parses the file and shows what an import would do without writing.
func importPreview(ctx context.Context, s store.Store, name string, data []byte) error {
	records, err := transfer.Parse(name, "", data, importOptions())
	if err != nil {
		return err
	}
	valid, invalid := transfer.Split(records)

	duplicates, unknown := 0, 0
	seen := make(map[string]bool)
	table := ui.Table([]string{"#", "Ref", "Plugin", "Category", "Summary", "Status", "Action"})
	for i, issue := range valid {
		action := output.Green("create")
		dup, err := previewDuplicate(ctx, s, seen, issue)
		switch {
		case err != nil:
			ui.Warning("Duplicate check failed for %s: %v", issue.ClientReferenceID, err)
			action = output.Red("unknown")
			unknown++
		case dup:
			action = output.Yellow("duplicate")
			duplicates++
		}
		_ = table.Append([]string{
			fmt.Sprintf("%d", i+1),
			issue.ClientReferenceID,
			issue.PluginName,
			issue.IssueCategory,
			issue.IssueSummary,
			output.StatusColor(string(issue.Status)),
			action,
		})
	}
	if len(valid) > 0 {
		_ = table.Render()
	}

	ui.DryRunMsg("Would import %d of %d records (%d duplicates, %d invalid)",
		len(valid)-duplicates-unknown, len(records), duplicates, invalid)
	if unknown > 0 {
		ui.Warning("%d records could not be checked for duplicates", unknown)
	}
	return nil
}

// previewDuplicate reports whether issue's reference is already stored or
// appeared earlier in the same file.
func previewDuplicate(ctx context.Context, s store.Store, seen map[string]bool, issue *models.Issue) (bool, error) {
	ref := issue.ClientReferenceID
	if seen[ref] {
		return true, nil
	}
	seen[ref] = true
	existing, err := s.FilterIssues(ctx, store.IssueMatch{ClientReferenceID: ref})
	if err != nil {
		return false, err
	}
	return len(existing) > 0, nil
}
