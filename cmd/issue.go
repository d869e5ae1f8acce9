package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/supportdesk/internal/filter"
	"github.com/joescharf/supportdesk/internal/models"
	"github.com/joescharf/supportdesk/internal/options"
	"github.com/joescharf/supportdesk/internal/output"
	"github.com/joescharf/supportdesk/internal/store"
	"github.com/joescharf/supportdesk/internal/tracker"
	"github.com/joescharf/supportdesk/internal/view"
)

// Issue field flags, shared by add and update.
var (
	issueRef             string
	issuePlugin          string
	issuePluginVersion   string
	issueWPVersion       string
	issueWCVersion       string
	issueCategory        string
	issueSummary         string
	issueDesc            string
	issueSteps           string
	issueErrors          string
	issueTroubleshooting string
	issueResolution      string
	issueTimeSpent       int
	issueEscalated       bool
	issueRecurring       bool
	issueStatus          string
)

// List filter flags.
var (
	listSearch    string
	listStatus    string
	listPlugin    string
	listCategory  string
	listRecurring string
	listEscalated string
	listView      string
	listWidth     int

	triageApply bool
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Log and manage support issues",
	Long:  "Log support issues for WordPress/WooCommerce plugins and track them to resolution.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun()
	},
}

var issueAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Log a new support issue",
	Long: `Log a new support issue.

--ref, --plugin, --category and --summary are required. Status defaults to
Open and time spent to 0 minutes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueAddRun()
	},
}

var issueListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List issues",
	Long: `List issues, newest first.

--search matches summary, plugin name and client reference (case-insensitive).
Filters take exact values; "all" means no filter. Use --view kanban for the
board grouped by status.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun()
	},
}

var issueShowCmd = &cobra.Command{
	Use:   "show <issue-id>",
	Short: "Show issue details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueShowRun(args[0])
	},
}

var issueUpdateCmd = &cobra.Command{
	Use:   "update <issue-id>",
	Short: "Update an issue",
	Long:  "Update an issue. Only the flags you pass are changed.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueUpdateRun(cmd, args[0])
	},
}

var issueDeleteCmd = &cobra.Command{
	Use:     "delete <issue-id>",
	Aliases: []string{"rm"},
	Short:   "Delete an issue",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueDeleteRun(args[0])
	},
}

var issueStatusCmd = &cobra.Command{
	Use:   "status <issue-id> <Open|Resolved|Escalated>",
	Short: "Move an issue to another status column",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueStatusRun(args[0], args[1])
	},
}

var issueTriageCmd = &cobra.Command{
	Use:   "triage <issue-id>",
	Short: "Suggest a category and escalation for an issue",
	Long: `Suggest a category, plugin and escalation for an issue.

Uses the Anthropic API when an API key is configured, otherwise keyword
heuristics. --apply writes the suggested category and escalation.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueTriageRun(args[0])
	},
}

// addIssueFieldFlags registers the issue field flags on cmd.
func addIssueFieldFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&issueRef, "ref", "", "Client reference / ticket ID")
	f.StringVar(&issuePlugin, "plugin", "", "Plugin name")
	f.StringVar(&issuePluginVersion, "plugin-version", "", "Plugin version")
	f.StringVar(&issueWPVersion, "wp-version", "", "WordPress version")
	f.StringVar(&issueWCVersion, "wc-version", "", "WooCommerce version")
	f.StringVar(&issueCategory, "category", "", "Issue category")
	f.StringVar(&issueSummary, "summary", "", "One-line summary")
	f.StringVar(&issueDesc, "desc", "", "Detailed description")
	f.StringVar(&issueSteps, "steps", "", "Steps to reproduce")
	f.StringVar(&issueErrors, "errors", "", "Errors or log excerpts")
	f.StringVar(&issueTroubleshooting, "troubleshooting", "", "Troubleshooting steps taken")
	f.StringVar(&issueResolution, "resolution", "", "Resolution")
	f.IntVar(&issueTimeSpent, "time-spent", 0, "Time spent in minutes")
	f.BoolVar(&issueEscalated, "escalated", false, "Escalated to a developer")
	f.BoolVar(&issueRecurring, "recurring", false, "Recurring issue")
	f.StringVar(&issueStatus, "status", "", "Status: Open, Resolved, Escalated")
}

func init() {
	addIssueFieldFlags(issueAddCmd)
	addIssueFieldFlags(issueUpdateCmd)

	issueListCmd.Flags().StringVarP(&listSearch, "search", "s", "", "Search summary, plugin and reference")
	issueListCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status")
	issueListCmd.Flags().StringVar(&listPlugin, "plugin", "", "Filter by plugin name")
	issueListCmd.Flags().StringVar(&listCategory, "category", "", "Filter by category")
	issueListCmd.Flags().StringVar(&listRecurring, "recurring", "", "Filter by recurring: true, false")
	issueListCmd.Flags().StringVar(&listEscalated, "escalated", "", "Filter by escalated: true, false")
	issueListCmd.Flags().StringVar(&listView, "view", "table", "Layout: table, kanban")
	issueListCmd.Flags().IntVar(&listWidth, "width", 120, "Kanban board width")

	issueTriageCmd.Flags().BoolVar(&triageApply, "apply", false, "Write the suggested category and escalation")

	issueCmd.AddCommand(issueAddCmd)
	issueCmd.AddCommand(issueListCmd)
	issueCmd.AddCommand(issueShowCmd)
	issueCmd.AddCommand(issueUpdateCmd)
	issueCmd.AddCommand(issueDeleteCmd)
	issueCmd.AddCommand(issueStatusCmd)
	issueCmd.AddCommand(issueTriageCmd)
	rootCmd.AddCommand(issueCmd)
}

// issueController returns a list controller over the shared store.
func issueController() (*tracker.Issues, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	logger := newLogger()
	return tracker.NewIssues(s, options.NewProvider(s, logger), logger), nil
}

func issueAddRun() error {
	ctl, err := issueController()
	if err != nil {
		return err
	}
	ctx := context.Background()

	issue := &models.Issue{
		ClientReferenceID:    issueRef,
		PluginName:           issuePlugin,
		PluginVersion:        issuePluginVersion,
		WordPressVersion:     issueWPVersion,
		WooCommerceVersion:   issueWCVersion,
		IssueCategory:        issueCategory,
		IssueSummary:         issueSummary,
		DetailedDescription:  issueDesc,
		StepsToReproduce:     issueSteps,
		ErrorsLogs:           issueErrors,
		TroubleshootingSteps: issueTroubleshooting,
		Resolution:           issueResolution,
		TimeSpent:            issueTimeSpent,
		EscalatedToDev:       issueEscalated,
		RecurringIssue:       issueRecurring,
		Status:               models.Status(issueStatus),
	}

	if dryRun {
		if err := issue.Validate(); err != nil {
			return err
		}
		ui.DryRunMsg("Would log issue %s: %s [%s/%s]", issue.ClientReferenceID, issue.IssueSummary, issue.PluginName, issue.IssueCategory)
		return nil
	}

	created, err := ctl.Create(ctx, issue)
	if err != nil {
		return err
	}

	ui.Success("Logged issue %s: %s", output.Cyan(view.ShortID(created.ID)), created.IssueSummary)
	return nil
}

func issueListRun() error {
	ctl, err := issueController()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if err := ctl.Reload(ctx); err != nil {
		return err
	}
	criteria, err := filter.Criteria{
		Status:    listStatus,
		Plugin:    listPlugin,
		Category:  listCategory,
		Recurring: listRecurring,
		Escalated: listEscalated,
	}.Canonical()
	if err != nil {
		return err
	}
	ctl.SetSearch(listSearch)
	ctl.SetCriteria(criteria)

	switch listView {
	case "", "table":
		return view.RenderTable(ui, ctl.Visible())
	case "kanban", "board":
		return view.RenderBoard(ui.Out, ctl.Board(ctx), listWidth)
	default:
		return fmt.Errorf("unknown view %q (use table or kanban)", listView)
	}
}

func issueShowRun(id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	issue, err := findIssue(context.Background(), s, id)
	if err != nil {
		return err
	}

	fmt.Fprint(ui.Out, view.RenderDetail(issue, viper.GetString("display.markdown_style"), viper.GetInt("display.width")))
	fmt.Fprintf(ui.Out, "  Full ID: %s\n", issue.ID)
	return nil
}

// issuePatchFromFlags builds a patch from the field flags the user set on cmd.
func issuePatchFromFlags(cmd *cobra.Command) (models.IssuePatch, error) {
	var p models.IssuePatch
	f := cmd.Flags()
	str := func(name, v string) *string {
		if !f.Changed(name) {
			return nil
		}
		return &v
	}

	p.ClientReferenceID = str("ref", issueRef)
	p.PluginName = str("plugin", issuePlugin)
	p.PluginVersion = str("plugin-version", issuePluginVersion)
	p.WordPressVersion = str("wp-version", issueWPVersion)
	p.WooCommerceVersion = str("wc-version", issueWCVersion)
	p.IssueCategory = str("category", issueCategory)
	p.IssueSummary = str("summary", issueSummary)
	p.DetailedDescription = str("desc", issueDesc)
	p.StepsToReproduce = str("steps", issueSteps)
	p.ErrorsLogs = str("errors", issueErrors)
	p.TroubleshootingSteps = str("troubleshooting", issueTroubleshooting)
	p.Resolution = str("resolution", issueResolution)
	if f.Changed("time-spent") {
		n := issueTimeSpent
		p.TimeSpent = &n
	}
	if f.Changed("escalated") {
		b := issueEscalated
		p.EscalatedToDev = &b
	}
	if f.Changed("recurring") {
		b := issueRecurring
		p.RecurringIssue = &b
	}
	if f.Changed("status") {
		st, err := models.ParseStatus(issueStatus)
		if err != nil {
			return p, err
		}
		p.Status = &st
	}
	return p, nil
}

func issueUpdateRun(cmd *cobra.Command, id string) error {
	ctl, err := issueController()
	if err != nil {
		return err
	}
	s, _ := getStore()
	ctx := context.Background()

	issue, err := findIssue(ctx, s, id)
	if err != nil {
		return err
	}

	patch, err := issuePatchFromFlags(cmd)
	if err != nil {
		return err
	}
	if patch.Empty() {
		return fmt.Errorf("no updates specified (see 'supportdesk issue update --help')")
	}

	if dryRun {
		ui.DryRunMsg("Would update issue %s", view.ShortID(issue.ID))
		return nil
	}

	if _, err := ctl.Update(ctx, issue.ID, patch); err != nil {
		return fmt.Errorf("update issue: %w", err)
	}

	ui.Success("Updated issue %s", output.Cyan(view.ShortID(issue.ID)))
	return nil
}

func issueDeleteRun(id string) error {
	ctl, err := issueController()
	if err != nil {
		return err
	}
	s, _ := getStore()
	ctx := context.Background()

	issue, err := findIssue(ctx, s, id)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would delete issue %s: %s", view.ShortID(issue.ID), issue.IssueSummary)
		return nil
	}

	if err := ctl.Delete(ctx, issue.ID); err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}

	ui.Success("Deleted issue %s: %s", output.Cyan(view.ShortID(issue.ID)), issue.IssueSummary)
	return nil
}

func issueStatusRun(id, rawStatus string) error {
	ctl, err := issueController()
	if err != nil {
		return err
	}
	s, _ := getStore()
	ctx := context.Background()

	issue, err := findIssue(ctx, s, id)
	if err != nil {
		return err
	}
	status, err := models.ParseStatus(rawStatus)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would move issue %s to %s", view.ShortID(issue.ID), status)
		return nil
	}

	changed, err := ctl.MoveStatus(ctx, issue.ID, status)
	if err != nil {
		return err
	}
	if !changed {
		ui.Info("Issue %s is already %s", view.ShortID(issue.ID), output.StatusColor(string(status)))
		return nil
	}

	ui.Success("Moved issue %s to %s", output.Cyan(view.ShortID(issue.ID)), output.StatusColor(string(status)))
	return nil
}

func issueTriageRun(id string) error {
	ctl, err := issueController()
	if err != nil {
		return err
	}
	s, _ := getStore()
	ctx := context.Background()

	issue, err := findIssue(ctx, s, id)
	if err != nil {
		return err
	}

	vocab := options.NewProvider(s, newLogger()).Vocabulary(ctx)
	suggestion, source := suggestTriage(ctx, newLLMClient(), issue, vocab)

	fmt.Fprintf(ui.Out, "%s  %s  (%s)\n", output.Cyan(view.ShortID(issue.ID)), issue.IssueSummary, source)
	fmt.Fprintf(ui.Out, "  Category:   %s\n", suggestion.Category)
	if suggestion.Plugin != "" {
		fmt.Fprintf(ui.Out, "  Plugin:     %s\n", suggestion.Plugin)
	}
	fmt.Fprintf(ui.Out, "  Escalate:   %s\n", output.YesNo(suggestion.Escalate))
	if suggestion.Summary != "" {
		fmt.Fprintf(ui.Out, "  Summary:    %s\n", suggestion.Summary)
	}
	if suggestion.NextSteps != "" {
		fmt.Fprintf(ui.Out, "  Next steps: %s\n", suggestion.NextSteps)
	}

	if !triageApply {
		return nil
	}

	patch := suggestion.Patch(issue)
	if patch.Empty() {
		ui.Info("Nothing to apply")
		return nil
	}
	if dryRun {
		ui.DryRunMsg("Would apply triage to issue %s", view.ShortID(issue.ID))
		return nil
	}
	if _, err := ctl.Update(ctx, issue.ID, patch); err != nil {
		return fmt.Errorf("apply triage: %w", err)
	}
	ui.Success("Applied triage to issue %s", output.Cyan(view.ShortID(issue.ID)))
	return nil
}

// findIssue finds an issue by full ID or prefix match.
func findIssue(ctx context.Context, s store.Store, id string) (*models.Issue, error) {
	// Try exact match first
	if issue, err := s.GetIssue(ctx, id); err == nil {
		return issue, nil
	}

	// Try prefix match - list all and filter
	upper := strings.ToUpper(id)
	issues, err := s.ListIssues(ctx, store.SortNewest)
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
