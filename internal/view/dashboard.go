package view

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/joescharf/supportdesk/internal/output"
	"github.com/joescharf/supportdesk/internal/stats"
)

// RenderDashboard prints the stat cards, the chart series as tables and
// the most recent issues.
func RenderDashboard(u *output.UI, d stats.Dashboard) error {
	fmt.Fprintln(u.Out, renderCards(d.Stats))
	fmt.Fprintln(u.Out)

	if d.Stats.Total == 0 {
		u.Info(NoIssuesMessage)
		return nil
	}

	if err := renderSeries(u, "Issues by category", "Category", d.CategoryData); err != nil {
		return err
	}
	if err := renderSeries(u, "Issues by plugin", "Plugin", d.PluginData); err != nil {
		return err
	}

	u.Section("Issues over time")
	table := u.Table([]string{"Date", "Count"})
	for _, p := range d.TimelineData {
		_ = table.Append([]string{p.Date, fmt.Sprintf("%d", p.Count)})
	}
	if err := table.Render(); err != nil {
		return err
	}
	fmt.Fprintln(u.Out)

	u.Section("Recent issues")
	return RenderTable(u, d.Recent)
}

func renderSeries(u *output.UI, title, label string, series []stats.Slice) error {
	u.Section(title)
	table := u.Table([]string{label, "Issues"})
	for _, s := range series {
		_ = table.Append([]string{s.Name, fmt.Sprintf("%d", s.Value)})
	}
	if err := table.Render(); err != nil {
		return err
	}
	fmt.Fprintln(u.Out)
	return nil
}

var cardStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	Padding(0, 2).
	Align(lipgloss.Center)

func card(label, value, color string) string {
	return cardStyle.
		BorderForeground(lipgloss.Color(color)).
		Render(lipgloss.NewStyle().Bold(true).Render(value) + "\n" + label)
}

func renderCards(s stats.Stats) string {
	return lipgloss.JoinHorizontal(lipgloss.Top,
		card("Total", fmt.Sprintf("%d", s.Total), "#4facfe"),
		card("Open", fmt.Sprintf("%d", s.Open), "#f5576c"),
		card("Resolved", fmt.Sprintf("%d", s.Resolved), "#43e97b"),
		card("Escalated", fmt.Sprintf("%d", s.Escalated), "#667eea"),
		card("Recurring", fmt.Sprintf("%d", s.Recurring), "#fa709a"),
		card("Avg time", output.TimeColor(s.AverageTime), "#fee140"),
	)
}
