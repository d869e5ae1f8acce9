package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/supportdesk/internal/output"
	"github.com/joescharf/supportdesk/internal/stats"
	"github.com/joescharf/supportdesk/internal/store"
	"github.com/joescharf/supportdesk/internal/tracker"
	"github.com/joescharf/supportdesk/internal/transfer"
	"github.com/joescharf/supportdesk/internal/view"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "supportdesk",
	Short: "Support Desk - log and analyse WordPress/WooCommerce plugin support issues",
	Long: `supportdesk tracks support cases for WordPress and WooCommerce plugins.
It records each ticket with its environment, troubleshooting and resolution,
and provides a filterable list, a kanban board, a dashboard and CSV/JSON
import and export.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return rootRun(cmd)
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/supportdesk/config.yaml)")
}

func initConfig() {
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "supportdesk")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("SUPPORTDESK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	home, _ := os.UserHomeDir()
	setDefaults(filepath.Join(home, ".config", "supportdesk"))

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every config default rooted at stateDir.
func setDefaults(stateDir string) {
	viper.SetDefault("state_dir", stateDir)
	viper.SetDefault("db_path", filepath.Join(stateDir, "supportdesk.db"))
	viper.SetDefault("port", 8080)
	viper.SetDefault("display.timezone", "Local")
	viper.SetDefault("display.date_layout", stats.DefaultDateLayout)
	viper.SetDefault("display.datetime_layout", transfer.DefaultDatetimeLayout)
	viper.SetDefault("display.markdown_style", view.DefaultMarkdownStyle)
	viper.SetDefault("display.width", 100)
	viper.SetDefault("import.quote_aware", false)
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// The store is opened lazily so config and version run without a db.
}

// rootRun handles `supportdesk` with no subcommand: show the dashboard when a
// database exists, otherwise help.
func rootRun(cmd *cobra.Command) error {
	if _, err := os.Stat(viper.GetString("db_path")); err != nil {
		return cmd.Help()
	}
	return dashboardRun()
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// displaySettings resolves the configured time zone and layouts.
func displaySettings() (tracker.Display, error) {
	loc, err := tracker.LoadLocation(viper.GetString("display.timezone"))
	if err != nil {
		return tracker.Display{}, err
	}
	return tracker.Display{
		Location:       loc,
		DateLayout:     viper.GetString("display.date_layout"),
		DatetimeLayout: viper.GetString("display.datetime_layout"),
	}, nil
}

// newLogger returns a text slog logger on stderr, at Debug with --verbose.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
