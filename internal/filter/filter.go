// Package filter narrows an in-memory issue list by search term and filter criteria.
package filter

import (
	"fmt"
	"strings"

	"github.com/joescharf/supportdesk/internal/models"
)

// All is the UI value meaning "no constraint" for a criterion.
const All = "all"

// Criteria holds the per-field filters. Empty values impose no constraint.
// Recurring and Escalated take the strings "true" or "false".
type Criteria struct {
	Status    string `json:"status,omitempty"`
	Plugin    string `json:"plugin,omitempty"`
	Category  string `json:"category,omitempty"`
	Recurring string `json:"recurring,omitempty"`
	Escalated string `json:"escalated,omitempty"`
}

// Normalize maps the "all" sentinel to the empty value.
func (c Criteria) Normalize() Criteria {
	norm := func(v string) string {
		if v == All {
			return ""
		}
		return v
	}
	return Criteria{
		Status:    norm(c.Status),
		Plugin:    norm(c.Plugin),
		Category:  norm(c.Category),
		Recurring: norm(c.Recurring),
		Escalated: norm(c.Escalated),
	}
}

// Canonical validates criteria taken from user input. Status is matched
// case-insensitively and returned in its canonical spelling; Recurring and
// Escalated must be "true", "false", "all" or empty. "all" is mapped to empty.
// Rejected values are reported together in a *models.ValidationError.
func (c Criteria) Canonical() (Criteria, error) {
	verr := &models.ValidationError{}

	if c.Status != "" && !strings.EqualFold(c.Status, All) {
		st, err := models.ParseStatus(c.Status)
		if err != nil {
			verr.Invalid = append(verr.Invalid, err.Error())
		} else {
			c.Status = string(st)
		}
	}
	flag := func(name string, v *string) {
		switch lower := strings.ToLower(strings.TrimSpace(*v)); lower {
		case "", All, "true", "false":
			*v = lower
		default:
			verr.Invalid = append(verr.Invalid, fmt.Sprintf("%s filter %q must be true, false or all", name, *v))
		}
	}
	flag("recurring", &c.Recurring)
	flag("escalated", &c.Escalated)

	if len(verr.Invalid) > 0 {
		return Criteria{}, verr
	}
	if strings.EqualFold(c.Status, All) {
		c.Status = ""
	}
	return c.Normalize(), nil
}

// Empty reports whether c imposes no constraint.
func (c Criteria) Empty() bool {
	return c.Normalize() == Criteria{}
}

// Apply returns the issues matching term and every non-empty criterion, in
// input order. The input slice is not modified.
func Apply(issues []*models.Issue, term string, c Criteria) []*models.Issue {
	c = c.Normalize()
	needle := strings.ToLower(term)

	out := make([]*models.Issue, 0, len(issues))
	for _, issue := range issues {
		if needle != "" && !matchesTerm(issue, needle) {
			continue
		}
		if !c.matches(issue) {
			continue
		}
		out = append(out, issue)
	}
	return out
}

// matchesTerm is a case-insensitive substring match over summary, plugin and
// client reference. Empty fields never match.
func matchesTerm(issue *models.Issue, needle string) bool {
	for _, field := range []string{issue.IssueSummary, issue.PluginName, issue.ClientReferenceID} {
		if field != "" && strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func (c Criteria) matches(issue *models.Issue) bool {
	if c.Status != "" && string(issue.Status) != c.Status {
		return false
	}
	if c.Plugin != "" && issue.PluginName != c.Plugin {
		return false
	}
	if c.Category != "" && issue.IssueCategory != c.Category {
		return false
	}
	if c.Recurring != "" && issue.RecurringIssue != (c.Recurring == "true") {
		return false
	}
	if c.Escalated != "" && issue.EscalatedToDev != (c.Escalated == "true") {
		return false
	}
	return true
}
