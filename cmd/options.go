package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/supportdesk/internal/models"
	"github.com/joescharf/supportdesk/internal/options"
	"github.com/joescharf/supportdesk/internal/output"
)

var optionsCmd = &cobra.Command{
	Use:   "options",
	Short: "Manage plugin, category and status vocabularies",
	Long: `Manage the selectable values offered by forms and filters.

Keys: plugin_options, category_options, status_options (or plugins,
categories, statuses). status_options may only hold Open, Resolved and
Escalated, in the order the board should show them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return optionsListRun()
	},
}

var optionsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all vocabularies",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return optionsListRun()
	},
}

var optionsSetCmd = &cobra.Command{
	Use:   "set <key> <value>...",
	Short: "Replace a vocabulary",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return optionsSetRun(args[0], args[1:])
	},
}

var optionsAddCmd = &cobra.Command{
	Use:   "add <key> <value>",
	Short: "Append a value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return optionsAddRun(args[0], args[1])
	},
}

var optionsRenameCmd = &cobra.Command{
	Use:   "rename <key> <old> <new>",
	Short: "Rename a value in place",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return optionsRenameRun(args[0], args[1], args[2])
	},
}

var optionsRemoveCmd = &cobra.Command{
	Use:     "remove <key> <value>",
	Aliases: []string{"rm"},
	Short:   "Remove a value",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return optionsRemoveRun(args[0], args[1])
	},
}

func init() {
	optionsCmd.AddCommand(optionsListCmd)
	optionsCmd.AddCommand(optionsSetCmd)
	optionsCmd.AddCommand(optionsAddCmd)
	optionsCmd.AddCommand(optionsRenameCmd)
	optionsCmd.AddCommand(optionsRemoveCmd)
	rootCmd.AddCommand(optionsCmd)
}

var optionKeyAliases = map[string]models.OptionKey{
	"plugin":     models.PluginOptions,
	"plugins":    models.PluginOptions,
	"category":   models.CategoryOptions,
	"categories": models.CategoryOptions,
	"status":     models.StatusOptions,
	"statuses":   models.StatusOptions,
}

// parseOptionKey accepts a full key or its short alias.
func parseOptionKey(raw string) (models.OptionKey, error) {
	if k, ok := optionKeyAliases[strings.ToLower(raw)]; ok {
		return k, nil
	}
	return models.ParseOptionKey(raw)
}

func optionsListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()
	p := options.NewProvider(s, newLogger())

	table := ui.Table([]string{"Key", "Values"})
	for _, key := range models.OptionKeys() {
		values := p.Values(ctx, key)
		shown := strings.Join(values, ", ")
		if len(values) == 0 {
			shown = "(none, free text)"
		}
		_ = table.Append([]string{output.Cyan(string(key)), shown})
	}
	return table.Render()
}

// editOption loads key, applies edit and saves unless in dry-run mode.
func editOption(rawKey string, describe string, edit func(e *options.Editor) error) error {
	key, err := parseOptionKey(rawKey)
	if err != nil {
		return err
	}
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	e, err := options.Load(ctx, s, key)
	if err != nil {
		return err
	}
	if err := edit(e); err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would %s: %s = [%s]", describe, key, strings.Join(e.Values(), ", "))
		return nil
	}
	if _, err := e.Save(ctx); err != nil {
		return err
	}
	ui.Success("Saved %s: %s", output.Cyan(string(key)), strings.Join(e.Values(), ", "))
	return nil
}

func optionsSetRun(rawKey string, values []string) error {
	return editOption(rawKey, "replace", func(e *options.Editor) error {
		return e.Replace(values)
	})
}

func optionsAddRun(rawKey, value string) error {
	return editOption(rawKey, "add "+value, func(e *options.Editor) error {
		if e.IndexOf(strings.TrimSpace(value)) >= 0 {
			return fmt.Errorf("%q is already in %s", value, e.Key())
		}
		return e.Add(value)
	})
}

func optionsRenameRun(rawKey, oldValue, newValue string) error {
	return editOption(rawKey, "rename "+oldValue, func(e *options.Editor) error {
		i := e.IndexOf(oldValue)
		if i < 0 {
			return fmt.Errorf("%q not found in %s", oldValue, e.Key())
		}
		return e.Rename(i, newValue)
	})
}

func optionsRemoveRun(rawKey, value string) error {
	return editOption(rawKey, "remove "+value, func(e *options.Editor) error {
		i := e.IndexOf(value)
		if i < 0 {
			return fmt.Errorf("%q not found in %s", value, e.Key())
		}
		return e.Remove(i)
	})
}
