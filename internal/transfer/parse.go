package transfer

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/joescharf/supportdesk/internal/models"
)

// ErrUnsupportedFormat is the message shown for files that are neither CSV nor JSON.
const ErrUnsupportedFormat = "Unsupported file format. Please use CSV or JSON."

// ParseError reports a file that could not be read as issue records.
type ParseError struct {
	Msg string
}

func (e *ParseError) Error() string { return e.Msg }

// Record is one parsed row: field name to value. CSV rows carry strings,
// except time_spent (int) and the two flags (bool).
type Record map[string]any

// ParseOptions tunes CSV parsing.
type ParseOptions struct {
	// QuoteAware parses CSV with encoding/csv so quoted fields may contain
	// commas. The default is a plain comma split.
	QuoteAware bool
}

// DetectFormat picks the format from the content type or file extension.
func DetectFormat(name, contentType string) (Format, error) {
	ct := strings.ToLower(contentType)
	lower := strings.ToLower(name)
	switch {
	case strings.HasPrefix(ct, "application/json") || strings.HasSuffix(lower, ".json"):
		return FormatJSON, nil
	case strings.HasPrefix(ct, "text/csv") || strings.HasSuffix(lower, ".csv"):
		return FormatCSV, nil
	default:
		return "", &ParseError{Msg: ErrUnsupportedFormat}
	}
}

// Parse reads data as CSV or JSON records.
func Parse(name, contentType string, data []byte, opts ParseOptions) ([]Record, error) {
	f, err := DetectFormat(name, contentType)
	if err != nil {
		return nil, err
	}
	if f == FormatJSON {
		return parseJSON(data)
	}
	if opts.QuoteAware {
		return parseQuotedCSV(data)
	}
	return parseNaiveCSV(string(data))
}

func parseJSON(data []byte) ([]Record, error) {
	var records []Record
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&records); err != nil {
		return nil, &ParseError{Msg: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// headerAliases maps normalized export headers whose key does not match the
// field name.
var headerAliases = map[string]string{
	"errors/logs": "errors_logs",
}

func headerKey(h string) string {
	key := whitespaceRun.ReplaceAllString(strings.ToLower(h), "_")
	if alias, ok := headerAliases[key]; ok {
		return alias
	}
	return key
}

func cleanValue(v string) string {
	return strings.TrimSpace(strings.ReplaceAll(v, `"`, ""))
}

// parseNaiveCSV splits on newlines and commas without honouring quotes.
func parseNaiveCSV(text string) ([]Record, error) {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil, &ParseError{Msg: "CSV file is empty"}
	}

	rawHeaders := strings.Split(lines[0], ",")
	headers := make([]string, len(rawHeaders))
	for i, h := range rawHeaders {
		headers[i] = cleanValue(h)
	}

	records := make([]Record, 0, len(lines)-1)
	for _, line := range lines[1:] {
		values := strings.Split(line, ",")
		for i := range values {
			values[i] = cleanValue(values[i])
		}
		records = append(records, buildRecord(headers, values))
	}
	return records, nil
}

func parseQuotedCSV(data []byte) ([]Record, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var headers []string
	var records []Record
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &ParseError{Msg: fmt.Sprintf("invalid CSV: %v", err)}
		}
		if blankRow(row) {
			continue
		}
		for i := range row {
			row[i] = strings.TrimSpace(row[i])
		}
		if headers == nil {
			headers = row
			continue
		}
		records = append(records, buildRecord(headers, row))
	}
	if headers == nil {
		return nil, &ParseError{Msg: "CSV file is empty"}
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

func blankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func buildRecord(headers, values []string) Record {
	rec := make(Record, len(headers))
	for i, h := range headers {
		key := headerKey(h)
		value := ""
		if i < len(values) {
			value = values[i]
		}
		switch key {
		case "time_spent":
			n, err := strconv.Atoi(leadingInt(value))
			if err != nil {
				n = 0
			}
			rec[key] = n
		case "escalated_to_dev", "recurring_issue":
			rec[key] = strings.ToLower(value) == "yes"
		default:
			rec[key] = value
		}
	}
	return rec
}

// leadingInt returns the optional sign and leading digits of s, so "15 min"
// reads as 15.
func leadingInt(s string) string {
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	start := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == start {
		return ""
	}
	return s[:end]
}

// ToIssue converts a record to an unsaved issue. It returns false when a
// required field is missing or a value is rejected by the data model.
func ToIssue(r Record) (*models.Issue, bool) {
	issue := &models.Issue{
		ClientReferenceID:    r.str("client_reference_id"),
		PluginName:           r.str("plugin_name"),
		PluginVersion:        r.str("plugin_version"),
		WordPressVersion:     r.str("wordpress_version"),
		WooCommerceVersion:   r.str("woocommerce_version"),
		IssueCategory:        r.str("issue_category"),
		IssueSummary:         r.str("issue_summary"),
		DetailedDescription:  r.str("detailed_description"),
		StepsToReproduce:     r.str("steps_to_reproduce"),
		ErrorsLogs:           r.str("errors_logs"),
		TroubleshootingSteps: r.str("troubleshooting_steps"),
		Resolution:           r.str("resolution"),
		TimeSpent:            r.integer("time_spent"),
		EscalatedToDev:       r.boolean("escalated_to_dev"),
		RecurringIssue:       r.boolean("recurring_issue"),
		Status:               models.Status(r.str("status")),
	}
	if err := issue.Validate(); err != nil {
		return nil, false
	}
	return issue, true
}

func (r Record) str(key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

func (r Record) integer(key string) int {
	switch v := r[key].(type) {
	case int:
		return v
	case float64:
		return int(math.Trunc(v))
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
		if f, err := v.Float64(); err == nil {
			return int(math.Trunc(f))
		}
	case string:
		if n, err := strconv.Atoi(leadingInt(strings.TrimSpace(v))); err == nil {
			return n
		}
	}
	return 0
}

func (r Record) boolean(key string) bool {
	switch v := r[key].(type) {
	case bool:
		return v
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		return s == "yes" || s == "true"
	}
	return false
}
