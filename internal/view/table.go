package view

import (
	"fmt"

	"github.com/joescharf/supportdesk/internal/models"
	"github.com/joescharf/supportdesk/internal/output"
)

// NoIssuesMessage is shown instead of an empty table.
const NoIssuesMessage = "No issues found"

// RenderTable lists issues one per row.
func RenderTable(u *output.UI, issues []*models.Issue) error {
	if len(issues) == 0 {
		u.Info(NoIssuesMessage)
		return nil
	}

	table := u.Table([]string{"ID", "Ref", "Plugin", "Category", "Summary", "Status", "Time", "Dev", "Recurring", "Created"})
	for _, issue := range issues {
		_ = table.Append([]string{
			ShortID(issue.ID),
			issue.ClientReferenceID,
			issue.PluginName,
			issue.IssueCategory,
			truncate(issue.IssueSummary, 48),
			output.StatusColor(string(issue.Status)),
			fmt.Sprintf("%dm", issue.TimeSpent),
			output.YesNo(issue.EscalatedToDev),
			output.YesNo(issue.RecurringIssue),
			issue.CreatedDate.Local().Format("2006-01-02"),
		})
	}
	return table.Render()
}

// ShortID returns a truncated ULID for display (first 12 chars).
func ShortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
