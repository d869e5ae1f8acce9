package models

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle stage of a support issue.
type Status string

const (
	StatusOpen      Status = "Open"
	StatusResolved  Status = "Resolved"
	StatusEscalated Status = "Escalated"
)

// StatusInfo is the presentation entry for a status: its board column and colour.
type StatusInfo struct {
	Status Status
	Column int
	Color  string // hex, used by the kanban board and the web UI
}

// statusTable is the single mapping from status to column order and colour.
var statusTable = []StatusInfo{
	{Status: StatusOpen, Column: 0, Color: "#f5576c"},
	{Status: StatusResolved, Column: 1, Color: "#43e97b"},
	{Status: StatusEscalated, Column: 2, Color: "#667eea"},
}

// Statuses returns all known statuses in board column order.
func Statuses() []Status {
	out := make([]Status, len(statusTable))
	for i, info := range statusTable {
		out[i] = info.Status
	}
	return out
}

// Info returns the mapping entry for s. Unknown statuses return ok=false.
func (s Status) Info() (StatusInfo, bool) {
	for _, info := range statusTable {
		if info.Status == s {
			return info, true
		}
	}
	return StatusInfo{}, false
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	_, ok := s.Info()
	return ok
}

// Color returns the hex colour for s, or an empty string for unknown statuses.
func (s Status) Color() string {
	info, _ := s.Info()
	return info.Color
}

// ParseStatus resolves a raw status string. Matching is case-insensitive and
// returns the canonical spelling. An empty string yields StatusOpen.
func ParseStatus(raw string) (Status, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return StatusOpen, nil
	}
	for _, info := range statusTable {
		if strings.EqualFold(string(info.Status), raw) {
			return info.Status, nil
		}
	}
	return "", fmt.Errorf("unknown status %q (want one of %s)", raw, joinStatuses())
}

func joinStatuses() string {
	names := make([]string, len(statusTable))
	for i, info := range statusTable {
		names[i] = string(info.Status)
	}
	return strings.Join(names, ", ")
}

// Issue is a single logged support case.
type Issue struct {
	ID                   string    `json:"id"`
	ClientReferenceID    string    `json:"client_reference_id"`
	PluginName           string    `json:"plugin_name"`
	PluginVersion        string    `json:"plugin_version"`
	WordPressVersion     string    `json:"wordpress_version"`
	WooCommerceVersion   string    `json:"woocommerce_version"`
	IssueCategory        string    `json:"issue_category"`
	IssueSummary         string    `json:"issue_summary"`
	DetailedDescription  string    `json:"detailed_description"`
	StepsToReproduce     string    `json:"steps_to_reproduce"`
	ErrorsLogs           string    `json:"errors_logs"`
	TroubleshootingSteps string    `json:"troubleshooting_steps"`
	Resolution           string    `json:"resolution"`
	TimeSpent            int       `json:"time_spent"` // minutes
	EscalatedToDev       bool      `json:"escalated_to_dev"`
	RecurringIssue       bool      `json:"recurring_issue"`
	Status               Status    `json:"status"`
	CreatedDate          time.Time `json:"created_date"`
	UpdatedDate          time.Time `json:"updated_date"`
}

// ValidationError reports required fields that are missing or values the
// data model rejects. It is returned before any store call is made.
type ValidationError struct {
	Missing []string
	Invalid []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required fields: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, strings.Join(e.Invalid, "; "))
	}
	return strings.Join(parts, "; ")
}

// RequiredFields lists the JSON names of fields every issue must carry.
var RequiredFields = []string{"client_reference_id", "plugin_name", "issue_category", "issue_summary"}

// Validate checks required fields, time spent and status. An empty status is
// defaulted to Open in place.
func (i *Issue) Validate() error {
	verr := &ValidationError{}
	required := []struct {
		name  string
		value string
	}{
		{"client_reference_id", i.ClientReferenceID},
		{"plugin_name", i.PluginName},
		{"issue_category", i.IssueCategory},
		{"issue_summary", i.IssueSummary},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			verr.Missing = append(verr.Missing, f.name)
		}
	}
	if i.TimeSpent < 0 {
		verr.Invalid = append(verr.Invalid, "time_spent must be >= 0")
	}
	st, err := ParseStatus(string(i.Status))
	if err != nil {
		verr.Invalid = append(verr.Invalid, err.Error())
	} else {
		i.Status = st
	}
	if len(verr.Missing) > 0 || len(verr.Invalid) > 0 {
		return verr
	}
	return nil
}

// IssuePatch is a partial update. Nil fields are left unchanged.
type IssuePatch struct {
	ClientReferenceID    *string `json:"client_reference_id,omitempty"`
	PluginName           *string `json:"plugin_name,omitempty"`
	PluginVersion        *string `json:"plugin_version,omitempty"`
	WordPressVersion     *string `json:"wordpress_version,omitempty"`
	WooCommerceVersion   *string `json:"woocommerce_version,omitempty"`
	IssueCategory        *string `json:"issue_category,omitempty"`
	IssueSummary         *string `json:"issue_summary,omitempty"`
	DetailedDescription  *string `json:"detailed_description,omitempty"`
	StepsToReproduce     *string `json:"steps_to_reproduce,omitempty"`
	ErrorsLogs           *string `json:"errors_logs,omitempty"`
	TroubleshootingSteps *string `json:"troubleshooting_steps,omitempty"`
	Resolution           *string `json:"resolution,omitempty"`
	TimeSpent            *int    `json:"time_spent,omitempty"`
	EscalatedToDev       *bool   `json:"escalated_to_dev,omitempty"`
	RecurringIssue       *bool   `json:"recurring_issue,omitempty"`
	Status               *Status `json:"status,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p IssuePatch) Empty() bool {
	return p == IssuePatch{}
}

// Apply copies every set field of p onto issue. ID and CreatedDate are never touched.
func (p IssuePatch) Apply(issue *Issue) {
	setString(&issue.ClientReferenceID, p.ClientReferenceID)
	setString(&issue.PluginName, p.PluginName)
	setString(&issue.PluginVersion, p.PluginVersion)
	setString(&issue.WordPressVersion, p.WordPressVersion)
	setString(&issue.WooCommerceVersion, p.WooCommerceVersion)
	setString(&issue.IssueCategory, p.IssueCategory)
	setString(&issue.IssueSummary, p.IssueSummary)
	setString(&issue.DetailedDescription, p.DetailedDescription)
	setString(&issue.StepsToReproduce, p.StepsToReproduce)
	setString(&issue.ErrorsLogs, p.ErrorsLogs)
	setString(&issue.TroubleshootingSteps, p.TroubleshootingSteps)
	setString(&issue.Resolution, p.Resolution)
	if p.TimeSpent != nil {
		issue.TimeSpent = *p.TimeSpent
	}
	if p.EscalatedToDev != nil {
		issue.EscalatedToDev = *p.EscalatedToDev
	}
	if p.RecurringIssue != nil {
		issue.RecurringIssue = *p.RecurringIssue
	}
	if p.Status != nil {
		issue.Status = *p.Status
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
