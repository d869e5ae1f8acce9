// Package stats reduces an issue set into dashboard statistics and chart series.
// Every function is pure and recomputes from scratch.
package stats

import (
	"math"
	"sort"
	"time"

	"github.com/joescharf/supportdesk/internal/models"
)

// DefaultDateLayout renders timeline dates like a US locale date string.
const DefaultDateLayout = "1/2/2006"

// Stats holds the headline dashboard counts.
type Stats struct {
	Total       int `json:"total"`
	Open        int `json:"open"`
	Resolved    int `json:"resolved"`
	Escalated   int `json:"escalated"`
	Recurring   int `json:"recurring"`
	AverageTime int `json:"averageTime"` // minutes
}

// Slice is one bar or pie segment: a distinct field value and its count.
type Slice struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// Point is one day on the timeline.
type Point struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Summarize tallies issues by status and recurrence. AverageTime is the
// rounded mean of time_spent, or 0 for an empty set.
func Summarize(issues []*models.Issue) Stats {
	s := Stats{Total: len(issues)}
	sum := 0
	for _, issue := range issues {
		switch issue.Status {
		case models.StatusOpen:
			s.Open++
		case models.StatusResolved:
			s.Resolved++
		case models.StatusEscalated:
			s.Escalated++
		}
		if issue.RecurringIssue {
			s.Recurring++
		}
		sum += issue.TimeSpent
	}
	if s.Total > 0 {
		s.AverageTime = int(math.Round(float64(sum) / float64(s.Total)))
	}
	return s
}

// ByCategory counts issues per issue_category in first-seen order.
func ByCategory(issues []*models.Issue) []Slice {
	return groupBy(issues, func(i *models.Issue) string { return i.IssueCategory })
}

// ByPlugin counts issues per plugin_name in first-seen order.
func ByPlugin(issues []*models.Issue) []Slice {
	return groupBy(issues, func(i *models.Issue) string { return i.PluginName })
}

func groupBy(issues []*models.Issue, key func(*models.Issue) string) []Slice {
	out := []Slice{}
	index := make(map[string]int)
	for _, issue := range issues {
		k := key(issue)
		if pos, ok := index[k]; ok {
			out[pos].Value++
			continue
		}
		index[k] = len(out)
		out = append(out, Slice{Name: k, Value: 1})
	}
	return out
}

// Timeline counts issues per calendar day of created_date in loc, oldest
// first. A nil loc means time.Local; an empty layout means DefaultDateLayout.
func Timeline(issues []*models.Issue, loc *time.Location, layout string) []Point {
	if loc == nil {
		loc = time.Local
	}
	if layout == "" {
		layout = DefaultDateLayout
	}

	type day struct {
		start time.Time
		count int
	}
	days := make(map[string]*day)
	for _, issue := range issues {
		t := issue.CreatedDate.In(loc)
		y, m, d := t.Date()
		start := time.Date(y, m, d, 0, 0, 0, 0, loc)
		key := start.Format("2006-01-02")
		if existing, ok := days[key]; ok {
			existing.count++
			continue
		}
		days[key] = &day{start: start, count: 1}
	}

	ordered := make([]*day, 0, len(days))
	for _, d := range days {
		ordered = append(ordered, d)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].start.Before(ordered[j].start) })

	out := make([]Point, len(ordered))
	for i, d := range ordered {
		out[i] = Point{Date: d.start.Format(layout), Count: d.count}
	}
	return out
}

// Recent returns the first n issues. The input is expected newest first.
func Recent(issues []*models.Issue, n int) []*models.Issue {
	if n < 0 {
		n = 0
	}
	if len(issues) < n {
		n = len(issues)
	}
	return issues[:n:n]
}

// Dashboard is the full bundle rendered by the dashboard page.
type Dashboard struct {
	Stats        Stats           `json:"stats"`
	CategoryData []Slice         `json:"categoryData"`
	PluginData   []Slice         `json:"pluginData"`
	TimelineData []Point         `json:"timelineData"`
	Recent       []*models.Issue `json:"recent"`
}

// RecentCount is the number of newest issues shown under the dashboard stats.
const RecentCount = 5

// Compute builds the dashboard bundle.
func Compute(issues []*models.Issue, loc *time.Location, layout string) Dashboard {
	return Dashboard{
		Stats:        Summarize(issues),
		CategoryData: ByCategory(issues),
		PluginData:   ByPlugin(issues),
		TimelineData: Timeline(issues, loc, layout),
		Recent:       Recent(issues, RecentCount),
	}
}
