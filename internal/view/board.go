// Package view renders issues, boards and dashboards for the terminal.
// Every function is a pure rendering of the data passed in.
package view

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/joescharf/supportdesk/internal/models"
)

// Column is one kanban lane.
type Column struct {
	Status models.Status   `json:"status"`
	Color  string          `json:"color"`
	Count  int             `json:"count"`
	Issues []*models.Issue `json:"issues"`
}

// Board is the kanban view: one column per status, in configured order.
type Board struct {
	Columns []Column `json:"columns"`
}

// BuildBoard groups issues by status. Every status gets a column even when
// it is empty. A nil or empty statuses uses every known status.
func BuildBoard(issues []*models.Issue, statuses []models.Status) Board {
	if len(statuses) == 0 {
		statuses = models.Statuses()
	}
	b := Board{Columns: make([]Column, len(statuses))}
	index := make(map[models.Status]int, len(statuses))
	for i, st := range statuses {
		b.Columns[i] = Column{Status: st, Color: st.Color(), Issues: []*models.Issue{}}
		index[st] = i
	}
	for _, issue := range issues {
		pos, ok := index[issue.Status]
		if !ok {
			continue
		}
		b.Columns[pos].Issues = append(b.Columns[pos].Issues, issue)
		b.Columns[pos].Count++
	}
	return b
}

const minColumnWidth = 18

// RenderBoard draws the board as side-by-side bordered columns sized to fit width.
func RenderBoard(w io.Writer, b Board, width int) error {
	if len(b.Columns) == 0 {
		_, err := fmt.Fprintln(w, "No columns configured")
		return err
	}
	colWidth := width/len(b.Columns) - 4
	if colWidth < minColumnWidth {
		colWidth = minColumnWidth
	}

	cols := make([]string, len(b.Columns))
	for i, col := range b.Columns {
		cols[i] = renderColumn(col, colWidth)
	}
	_, err := fmt.Fprintln(w, lipgloss.JoinHorizontal(lipgloss.Top, cols...))
	return err
}

func renderColumn(col Column, width int) string {
	accent := lipgloss.Color(col.Color)
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(accent).
		Render(fmt.Sprintf("%s (%d)", col.Status, col.Count))

	cards := []string{title}
	if col.Count == 0 {
		cards = append(cards, lipgloss.NewStyle().Faint(true).Render("No issues"))
	}
	for _, issue := range col.Issues {
		cards = append(cards, renderCard(issue, width-2))
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accent).
		Padding(0, 1).
		Width(width).
		Render(strings.Join(cards, "\n"))
}

func renderCard(issue *models.Issue, width int) string {
	var flags []string
	if issue.EscalatedToDev {
		flags = append(flags, "dev")
	}
	if issue.RecurringIssue {
		flags = append(flags, "recurring")
	}
	meta := fmt.Sprintf("%s · %s", issue.ClientReferenceID, issue.PluginName)
	if len(flags) > 0 {
		meta += " [" + strings.Join(flags, ",") + "]"
	}
	return lipgloss.NewStyle().
		Width(width).
		MarginTop(1).
		Render(issue.IssueSummary + "\n" + lipgloss.NewStyle().Faint(true).Render(meta))
}
