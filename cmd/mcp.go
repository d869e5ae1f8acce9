package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/joescharf/supportdesk/internal/daemon"
	"github.com/joescharf/supportdesk/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for agent integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets coding agents and chat clients search, log and update support
issues. Configure it in an MCP client with:

  {
    "mcpServers": {
      "supportdesk": { "command": "supportdesk", "args": ["mcp"] }
    }
  }

Available tools: support_list_issues, support_get_issue,
support_create_issue, support_update_issue, support_dashboard,
support_list_options`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcpRun()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func mcpRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	display, err := displaySettings()
	if err != nil {
		return err
	}

	// stdout carries the protocol, so logs go to stderr only.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ctx, stop := signal.NotifyContext(context.Background(), daemon.ShutdownSignals()...)
	defer stop()

	return mcp.NewServer(s, display, logger).ServeStdio(ctx)
}
