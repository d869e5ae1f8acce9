package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/supportdesk/internal/filter"
	"github.com/joescharf/supportdesk/internal/models"
	"github.com/joescharf/supportdesk/internal/options"
	"github.com/joescharf/supportdesk/internal/store"
	"github.com/joescharf/supportdesk/internal/tracker"
)

// Server wraps the supportdesk data layer and exposes it as MCP tools.
type Server struct {
	store   store.Store
	vocab   *options.Provider
	display tracker.Display
	logger  *slog.Logger
}

// NewServer creates the MCP server wrapper.
func NewServer(s store.Store, display tracker.Display, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:   s,
		vocab:   options.NewProvider(s, logger),
		display: display,
		logger:  logger,
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("supportdesk", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.listIssuesTool())
	srv.AddTool(s.getIssueTool())
	srv.AddTool(s.createIssueTool())
	srv.AddTool(s.updateIssueTool())
	srv.AddTool(s.dashboardTool())
	srv.AddTool(s.listOptionsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// support_list_issues
func (s *Server) listIssuesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("support_list_issues",
		mcp.WithDescription("List logged support issues, newest first. Supports a free-text search over summary, plugin name and client reference, plus exact-match filters. Returns a JSON array of issues."),
		mcp.WithString("search", mcp.Description("Case-insensitive search term")),
		mcp.WithString("status", mcp.Description("Status filter: Open, Resolved, Escalated or all")),
		mcp.WithString("plugin", mcp.Description("Exact plugin name")),
		mcp.WithString("category", mcp.Description("Exact issue category")),
		mcp.WithString("recurring", mcp.Description("true, false or all")),
		mcp.WithString("escalated", mcp.Description("true, false or all")),
	)
	return tool, s.handleListIssues
}

func (s *Server) handleListIssues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	criteria, err := filter.Criteria{
		Status:    request.GetString("status", ""),
		Plugin:    request.GetString("plugin", ""),
		Category:  request.GetString("category", ""),
		Recurring: request.GetString("recurring", ""),
		Escalated: request.GetString("escalated", ""),
	}.Canonical()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	ctl := tracker.NewIssues(s.store, s.vocab, s.logger)
	if err := ctl.Reload(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list issues: %v", err)), nil
	}
	ctl.SetSearch(request.GetString("search", ""))
	ctl.SetCriteria(criteria)

	return jsonResult(ctl.Visible(), "issues")
}

// support_get_issue
func (s *Server) getIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("support_get_issue",
		mcp.WithDescription("Get one support issue with every field, including errors/logs, troubleshooting steps and resolution."),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("Issue ID (full ULID or unique prefix)")),
	)
	return tool, s.handleGetIssue
}

func (s *Server) handleGetIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	issueID, err := request.RequireString("issue_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: issue_id"), nil
	}
	issue, err := s.findIssue(ctx, issueID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(issue, "issue")
}

// support_create_issue
func (s *Server) createIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("support_create_issue",
		mcp.WithDescription("Log a new support issue. Returns the created issue as JSON."),
		mcp.WithString("client_reference_id", mcp.Required(), mcp.Description("Ticket or client reference")),
		mcp.WithString("plugin_name", mcp.Required(), mcp.Description("Affected plugin")),
		mcp.WithString("issue_category", mcp.Required(), mcp.Description("Issue category")),
		mcp.WithString("issue_summary", mcp.Required(), mcp.Description("One-line summary")),
		mcp.WithString("plugin_version", mcp.Description("Plugin version")),
		mcp.WithString("wordpress_version", mcp.Description("WordPress version")),
		mcp.WithString("woocommerce_version", mcp.Description("WooCommerce version")),
		mcp.WithString("detailed_description", mcp.Description("Full description")),
		mcp.WithString("steps_to_reproduce", mcp.Description("Steps to reproduce")),
		mcp.WithString("errors_logs", mcp.Description("Error messages or log excerpts")),
		mcp.WithString("troubleshooting_steps", mcp.Description("Troubleshooting already done")),
		mcp.WithString("resolution", mcp.Description("Resolution, if known")),
		mcp.WithNumber("time_spent", mcp.Description("Minutes spent (default 0)")),
		mcp.WithBoolean("escalated_to_dev", mcp.Description("Escalated to a developer")),
		mcp.WithBoolean("recurring_issue", mcp.Description("Seen before")),
		mcp.WithString("status", mcp.Description("Open, Resolved or Escalated (default: Open)")),
	)
	return tool, s.handleCreateIssue
}

func (s *Server) handleCreateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	issue := &models.Issue{
		ClientReferenceID:    request.GetString("client_reference_id", ""),
		PluginName:           request.GetString("plugin_name", ""),
		PluginVersion:        request.GetString("plugin_version", ""),
		WordPressVersion:     request.GetString("wordpress_version", ""),
		WooCommerceVersion:   request.GetString("woocommerce_version", ""),
		IssueCategory:        request.GetString("issue_category", ""),
		IssueSummary:         request.GetString("issue_summary", ""),
		DetailedDescription:  request.GetString("detailed_description", ""),
		StepsToReproduce:     request.GetString("steps_to_reproduce", ""),
		ErrorsLogs:           request.GetString("errors_logs", ""),
		TroubleshootingSteps: request.GetString("troubleshooting_steps", ""),
		Resolution:           request.GetString("resolution", ""),
		TimeSpent:            request.GetInt("time_spent", 0),
		EscalatedToDev:       request.GetBool("escalated_to_dev", false),
		RecurringIssue:       request.GetBool("recurring_issue", false),
		Status:               models.Status(request.GetString("status", "")),
	}

	ctl := tracker.NewIssues(s.store, s.vocab, s.logger)
	created, err := ctl.Create(ctx, issue)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create issue: %v", err)), nil
	}
	return jsonResult(created, "issue")
}

// support_update_issue
func (s *Server) updateIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("support_update_issue",
		mcp.WithDescription("Update an existing support issue. Provide the issue ID (full or prefix) and at least one field. Returns the updated issue as JSON."),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("Issue ID (full ULID or unique prefix)")),
		mcp.WithString("status", mcp.Description("New status: Open, Resolved, Escalated")),
		mcp.WithString("issue_category", mcp.Description("New category")),
		mcp.WithString("issue_summary", mcp.Description("New summary")),
		mcp.WithString("troubleshooting_steps", mcp.Description("Troubleshooting steps")),
		mcp.WithString("resolution", mcp.Description("Resolution")),
		mcp.WithNumber("time_spent", mcp.Description("Minutes spent")),
		mcp.WithBoolean("escalated_to_dev", mcp.Description("Escalated to a developer")),
		mcp.WithBoolean("recurring_issue", mcp.Description("Seen before")),
	)
	return tool, s.handleUpdateIssue
}

func (s *Server) handleUpdateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	issueID, err := request.RequireString("issue_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: issue_id"), nil
	}
	issue, err := s.findIssue(ctx, issueID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	args := request.GetArguments()
	var patch models.IssuePatch
	if v := request.GetString("status", ""); v != "" {
		st, err := models.ParseStatus(v)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		patch.Status = &st
	}
	patch.IssueCategory = optionalString(request, "issue_category")
	patch.IssueSummary = optionalString(request, "issue_summary")
	patch.TroubleshootingSteps = optionalString(request, "troubleshooting_steps")
	patch.Resolution = optionalString(request, "resolution")
	if _, ok := args["time_spent"]; ok {
		n := request.GetInt("time_spent", 0)
		patch.TimeSpent = &n
	}
	if _, ok := args["escalated_to_dev"]; ok {
		b := request.GetBool("escalated_to_dev", false)
		patch.EscalatedToDev = &b
	}
	if _, ok := args["recurring_issue"]; ok {
		b := request.GetBool("recurring_issue", false)
		patch.RecurringIssue = &b
	}

	if patch.Empty() {
		return mcp.NewToolResultError("no fields to update"), nil
	}

	ctl := tracker.NewIssues(s.store, s.vocab, s.logger)
	updated, err := ctl.Update(ctx, issue.ID, patch)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update issue: %v", err)), nil
	}
	return jsonResult(updated, "issue")
}

// support_dashboard
func (s *Server) dashboardTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("support_dashboard",
		mcp.WithDescription("Summary statistics over all issues: totals per status, escalated and recurring counts, average minutes spent, counts by category and plugin, a daily timeline and the most recent issues."),
	)
	return tool, s.handleDashboard
}

func (s *Server) handleDashboard(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	d := tracker.NewDashboard(s.store, s.display, s.logger)
	if err := d.Reload(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load dashboard: %v", err)), nil
	}
	return jsonResult(d.Data(), "dashboard")
}

// support_list_options
func (s *Server) listOptionsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("support_list_options",
		mcp.WithDescription("List the configured plugin names, issue categories and statuses. Use these values when creating or filtering issues."),
	)
	return tool, s.handleListOptions
}

func (s *Server) handleListOptions(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.vocab.Vocabulary(ctx), "options")
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func jsonResult(v any, what string) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal %s: %v", what, err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func optionalString(request mcp.CallToolRequest, key string) *string {
	if _, ok := request.GetArguments()[key]; !ok {
		return nil
	}
	v := request.GetString(key, "")
	return &v
}

// findIssue finds an issue by full ID or unique prefix.
func (s *Server) findIssue(ctx context.Context, id string) (*models.Issue, error) {
	if issue, err := s.store.GetIssue(ctx, id); err == nil {
		return issue, nil
	}

	upper := strings.ToUpper(id)
	issues, err := s.store.ListIssues(ctx, store.SortNewest)
	if err != nil {
		return nil, err
	}

	var matches []*models.Issue
	for _, issue := range issues {
		if strings.HasPrefix(issue.ID, upper) {
			matches = append(matches, issue)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("issue not found: %s", id)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("ambiguous issue ID %s: matches %d issues", id, len(matches))
	}
}
