// Package transfer maps support issues to and from CSV and JSON files.
package transfer

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/joescharf/supportdesk/internal/models"
)

// Format is an export/import file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat validates a raw format name.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown format: %s (use: csv, json)", raw)
	}
}

// ContentType returns the MIME type served for f.
func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/csv"
}

// DefaultDatetimeLayout renders Created Date like a US locale date-time string.
const DefaultDatetimeLayout = "1/2/2006, 3:04:05 PM"

// CSVHeaders are the fixed export columns, in order.
var CSVHeaders = []string{
	"Client Reference ID", "Plugin Name", "Plugin Version", "WordPress Version",
	"WooCommerce Version", "Issue Category", "Issue Summary", "Detailed Description",
	"Steps to Reproduce", "Errors/Logs", "Troubleshooting Steps", "Resolution",
	"Time Spent", "Escalated to Dev", "Status", "Recurring Issue", "Created Date",
}

// ExportOptions controls how Created Date is rendered in CSV.
type ExportOptions struct {
	Location       *time.Location
	DatetimeLayout string
}

func (o ExportOptions) withDefaults() ExportOptions {
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.DatetimeLayout == "" {
		o.DatetimeLayout = DefaultDatetimeLayout
	}
	return o
}

// Filename returns the download name for an export made at now.
func Filename(f Format, now time.Time) string {
	return fmt.Sprintf("support-issues-%s.%s", now.UTC().Format("2006-01-02"), f)
}

// Export writes issues in format f.
func Export(w io.Writer, f Format, issues []*models.Issue, opts ExportOptions) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, issues, opts)
	case FormatJSON:
		return WriteJSON(w, issues)
	default:
		return fmt.Errorf("unknown format: %s", f)
	}
}

// WriteCSV writes the header row and one row per issue. Every field is
// double-quoted with embedded quotes doubled; rows are separated by "\n"
// with no trailing newline.
func WriteCSV(w io.Writer, issues []*models.Issue, opts ExportOptions) error {
	opts = opts.withDefaults()

	rows := make([]string, 0, len(issues)+1)
	rows = append(rows, quoteRow(CSVHeaders))
	for _, issue := range issues {
		rows = append(rows, quoteRow(csvFields(issue, opts)))
	}
	_, err := io.WriteString(w, strings.Join(rows, "\n"))
	return err
}

func csvFields(issue *models.Issue, opts ExportOptions) []string {
	return []string{
		issue.ClientReferenceID,
		issue.PluginName,
		issue.PluginVersion,
		issue.WordPressVersion,
		issue.WooCommerceVersion,
		issue.IssueCategory,
		issue.IssueSummary,
		issue.DetailedDescription,
		issue.StepsToReproduce,
		issue.ErrorsLogs,
		issue.TroubleshootingSteps,
		issue.Resolution,
		strconv.Itoa(issue.TimeSpent),
		yesNo(issue.EscalatedToDev),
		string(issue.Status),
		yesNo(issue.RecurringIssue),
		issue.CreatedDate.In(opts.Location).Format(opts.DatetimeLayout),
	}
}

func quoteRow(fields []string) string {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	return strings.Join(quoted, ",")
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// WriteJSON writes the raw records as a 2-space indented array.
func WriteJSON(w io.Writer, issues []*models.Issue) error {
	if issues == nil {
		issues = []*models.Issue{}
	}
	data, err := json.MarshalIndent(issues, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal issues: %w", err)
	}
	_, err = w.Write(data)
	return err
}
