package view

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"

	"github.com/joescharf/supportdesk/internal/models"
	"github.com/joescharf/supportdesk/internal/output"
)

// DefaultMarkdownStyle avoids glamour's auto style, which queries the terminal.
const DefaultMarkdownStyle = "dark"

var (
	mdRendererMu sync.Mutex
	mdRenderers  = map[string]*glamour.TermRenderer{}
)

// IssueMarkdown renders an issue as a markdown document. Empty optional
// sections are left out.
func IssueMarkdown(issue *models.Issue) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", issue.IssueSummary)

	fmt.Fprintf(&b, "| Field | Value |\n|---|---|\n")
	row := func(name, value string) {
		if value != "" {
			fmt.Fprintf(&b, "| %s | %s |\n", name, strings.ReplaceAll(value, "|", `\|`))
		}
	}
	row("ID", issue.ID)
	row("Client reference", issue.ClientReferenceID)
	row("Status", string(issue.Status))
	row("Plugin", strings.TrimSpace(issue.PluginName+" "+issue.PluginVersion))
	row("WordPress", issue.WordPressVersion)
	row("WooCommerce", issue.WooCommerceVersion)
	row("Category", issue.IssueCategory)
	row("Time spent", fmt.Sprintf("%d min", issue.TimeSpent))
	row("Escalated to dev", output.YesNo(issue.EscalatedToDev))
	row("Recurring", output.YesNo(issue.RecurringIssue))
	if !issue.CreatedDate.IsZero() {
		row("Created", issue.CreatedDate.Local().Format("2006-01-02 15:04"))
	}

	section := func(title, body string) {
		if strings.TrimSpace(body) != "" {
			fmt.Fprintf(&b, "\n## %s\n\n%s\n", title, strings.TrimSpace(body))
		}
	}
	section("Description", issue.DetailedDescription)
	section("Steps to reproduce", issue.StepsToReproduce)
	if logs := strings.TrimSpace(issue.ErrorsLogs); logs != "" {
		fmt.Fprintf(&b, "\n## Errors / logs\n\n```\n%s\n```\n", logs)
	}
	section("Troubleshooting", issue.TroubleshootingSteps)
	section("Resolution", issue.Resolution)
	return b.String()
}

// RenderDetail renders an issue for the terminal with glamour. On renderer
// failure the raw markdown is returned.
func RenderDetail(issue *models.Issue, style string, width int) string {
	md := IssueMarkdown(issue)
	if style == "" {
		style = DefaultMarkdownStyle
	}
	if width < 20 {
		width = 20
	}

	key := fmt.Sprintf("%s:%d", style, width)
	mdRendererMu.Lock()
	r := mdRenderers[key]
	if r == nil {
		rr, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(style),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			mdRendererMu.Unlock()
			return md
		}
		mdRenderers[key] = rr
		r = rr
	}
	mdRendererMu.Unlock()

	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}
