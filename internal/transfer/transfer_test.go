package transfer

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/supportdesk/internal/models"
	"github.com/joescharf/supportdesk/internal/store"
)

func exportFixtures() []*models.Issue {
	first := time.Date(2025, 3, 10, 14, 5, 9, 0, time.UTC)
	second := time.Date(2025, 3, 9, 9, 0, 0, 0, time.UTC)
	return []*models.Issue{
		{
			ID:                   "01HQ0000000000000000000001",
			ClientReferenceID:    "C-100",
			PluginName:           "Checkout Plus",
			PluginVersion:        "2.1.0",
			WordPressVersion:     "6.4",
			WooCommerceVersion:   "8.5",
			IssueCategory:        "Bug",
			IssueSummary:         `Cart "total" wrong`,
			DetailedDescription:  "Totals double",
			StepsToReproduce:     "Add item",
			TroubleshootingSteps: "Cleared cache",
			TimeSpent:            15,
			EscalatedToDev:       true,
			Status:               models.StatusOpen,
			CreatedDate:          first,
			UpdatedDate:          first,
		},
		{
			ID:                "01HQ0000000000000000000002",
			ClientReferenceID: "C-101",
			PluginName:        "Bookings",
			IssueCategory:     "Question",
			IssueSummary:      "Slots missing",
			RecurringIssue:    true,
			Status:            models.StatusResolved,
			CreatedDate:       second,
			UpdatedDate:       second,
		},
	}
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestWriteCSV_Golden(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, exportFixtures(), ExportOptions{Location: time.UTC}))
	newGoldie(t).Assert(t, "export_csv", buf.Bytes())
}

func TestWriteJSON_Golden(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, exportFixtures()))
	newGoldie(t).Assert(t, "export_json", buf.Bytes())

	buf.Reset()
	require.NoError(t, WriteJSON(&buf, nil))
	newGoldie(t).Assert(t, "export_json_empty", buf.Bytes())
}

func TestFilename(t *testing.T) {
	now := time.Date(2025, 3, 10, 23, 30, 0, 0, time.FixedZone("X", -5*60*60))
	assert.Equal(t, "support-issues-2025-03-11.csv", Filename(FormatCSV, now))
	assert.Equal(t, "support-issues-2025-03-11.json", Filename(FormatJSON, now))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("CSV")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)
	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestParse_Unsupported(t *testing.T) {
	_, err := Parse("issues.xlsx", "", []byte("x"), ParseOptions{})
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "Unsupported file format. Please use CSV or JSON.", perr.Error())
}

func TestParse_ContentTypeWins(t *testing.T) {
	records, err := Parse("upload", "application/json", []byte(`[{"client_reference_id":"A"}]`), ParseOptions{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "A", records[0]["client_reference_id"])
}

func TestParse_MalformedJSON(t *testing.T) {
	_, err := Parse("issues.json", "", []byte(`{"not": "an array"`), ParseOptions{})
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Msg, "invalid JSON")
}

func TestParse_NaiveCSV(t *testing.T) {
	data := "\"Client Reference ID\",\"Plugin Name\",Issue Category,Issue Summary,Time Spent,Escalated to Dev,Recurring Issue,Errors/Logs\r\n" +
		"\n" +
		"\"C-1\",\"Bookings\",Bug,Slots missing,25 min,YES,no,Fatal error\r\n" +
		"C-2,Bookings,Bug,Broken,abc,,\n"

	records, err := Parse("export.csv", "", []byte(data), ParseOptions{})
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "C-1", first["client_reference_id"])
	assert.Equal(t, "Bookings", first["plugin_name"])
	assert.Equal(t, 25, first["time_spent"])
	assert.Equal(t, true, first["escalated_to_dev"])
	assert.Equal(t, false, first["recurring_issue"])
	assert.Equal(t, "Fatal error", first["errors_logs"])

	second := records[1]
	assert.Equal(t, 0, second["time_spent"])
	assert.Equal(t, false, second["escalated_to_dev"])
	assert.Equal(t, "", second["errors_logs"], "missing trailing values read as empty")
}

func TestParse_NaiveCSVSplitsQuotedCommas(t *testing.T) {
	data := "Client Reference ID,Issue Summary,Plugin Name\n\"C-1\",\"Cart, checkout\",Bookings\n"

	naive, err := Parse("a.csv", "", []byte(data), ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Cart", naive[0]["issue_summary"])
	assert.Equal(t, "checkout", naive[0]["plugin_name"])

	quoted, err := Parse("a.csv", "", []byte(data), ParseOptions{QuoteAware: true})
	require.NoError(t, err)
	assert.Equal(t, "Cart, checkout", quoted[0]["issue_summary"])
	assert.Equal(t, "Bookings", quoted[0]["plugin_name"])
}

func TestParse_EmptyCSV(t *testing.T) {
	_, err := Parse("a.csv", "", []byte("\n \n"), ParseOptions{})
	var perr *ParseError
	assert.ErrorAs(t, err, &perr)

	_, err = Parse("a.csv", "", nil, ParseOptions{QuoteAware: true})
	assert.ErrorAs(t, err, &perr)
}

func TestToIssue(t *testing.T) {
	issue, ok := ToIssue(Record{
		"client_reference_id": "C-1",
		"plugin_name":         "Bookings",
		"issue_category":      "Bug",
		"issue_summary":       "Broken",
		"time_spent":          12,
		"status":              "resolved",
		"escalated_to_dev":    true,
	})
	require.True(t, ok)
	assert.Equal(t, models.StatusResolved, issue.Status)
	assert.Equal(t, 12, issue.TimeSpent)
	assert.True(t, issue.EscalatedToDev)

	_, ok = ToIssue(Record{"client_reference_id": "C-1", "issue_category": "Bug", "issue_summary": "x"})
	assert.False(t, ok, "missing plugin_name")

	_, ok = ToIssue(Record{"client_reference_id": "C-1", "plugin_name": "P", "issue_category": "Bug", "issue_summary": "x", "status": "Pending"})
	assert.False(t, ok, "unknown status")

	issue, ok = ToIssue(Record{"client_reference_id": "C-1", "plugin_name": "P", "issue_category": "Bug", "issue_summary": "x"})
	require.True(t, ok)
	assert.Equal(t, models.StatusOpen, issue.Status)
	assert.Zero(t, issue.TimeSpent)
}

// memStore is an in-memory IssueStore.
type memStore struct {
	issues    []*models.Issue
	failRef   string
	filterErr error
}

func (m *memStore) FilterIssues(_ context.Context, match store.IssueMatch) ([]*models.Issue, error) {
	if m.filterErr != nil {
		return nil, m.filterErr
	}
	var out []*models.Issue
	for _, i := range m.issues {
		if i.ClientReferenceID == match.ClientReferenceID {
			out = append(out, i)
		}
	}
	return out, nil
}

func (m *memStore) CreateIssue(_ context.Context, issue *models.Issue) error {
	if issue.ClientReferenceID == m.failRef {
		return errors.New("disk full")
	}
	issue.ID = issue.ClientReferenceID
	issue.CreatedDate = time.Now()
	m.issues = append(m.issues, issue)
	return nil
}

func TestImport_InvalidRow(t *testing.T) {
	data := "Client Reference ID,Plugin Name,Issue Category,Issue Summary\nC-1,,Bug,Broken\n"
	res := NewImporter(&memStore{}, nil).Import(context.Background(), "a.csv", "", []byte(data), ParseOptions{})

	assert.Equal(t, Result{Success: true, Total: 1, Imported: 0, Duplicates: 0, Invalid: 1}, res)
}

func TestImport_Duplicate(t *testing.T) {
	ms := &memStore{issues: []*models.Issue{{ID: "x", ClientReferenceID: "C-1"}}}
	data := `[
		{"client_reference_id": "C-1", "plugin_name": "P", "issue_category": "Bug", "issue_summary": "Again"},
		{"client_reference_id": "C-2", "plugin_name": "P", "issue_category": "Bug", "issue_summary": "New", "time_spent": 5},
		{"client_reference_id": "C-2", "plugin_name": "P", "issue_category": "Bug", "issue_summary": "Repeated in file"}
	]`
	res := NewImporter(ms, nil).Import(context.Background(), "a.json", "", []byte(data), ParseOptions{})

	assert.Equal(t, Result{Success: true, Total: 3, Imported: 1, Duplicates: 2}, res)
	assert.Len(t, ms.issues, 2)
	assert.Equal(t, 5, ms.issues[1].TimeSpent)
}

func TestImport_StoreErrorContinues(t *testing.T) {
	ms := &memStore{failRef: "C-1"}
	records := []Record{
		{"client_reference_id": "C-1", "plugin_name": "P", "issue_category": "Bug", "issue_summary": "fails"},
		{"client_reference_id": "C-2", "plugin_name": "P", "issue_category": "Bug", "issue_summary": "works"},
	}
	res := NewImporter(ms, nil).ImportRecords(context.Background(), records)

	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, ms.issues, 1)
	assert.Equal(t, "C-2", ms.issues[0].ClientReferenceID)
}

func TestImport_ParseFailure(t *testing.T) {
	res := NewImporter(&memStore{}, nil).Import(context.Background(), "a.txt", "text/plain", []byte("x"), ParseOptions{})
	assert.False(t, res.Success)
	assert.Equal(t, ErrUnsupportedFormat, res.Error)
}

func TestRoundTrip_CSV(t *testing.T) {
	src := exportFixtures()
	src[0].IssueSummary = "Cart total wrong"
	src[0].ErrorsLogs = "PHP Fatal error"

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, src, ExportOptions{Location: time.UTC}))

	for _, quoteAware := range []bool{false, true} {
		ms := &memStore{}
		res := NewImporter(ms, nil).Import(context.Background(), Filename(FormatCSV, time.Now()), "", buf.Bytes(), ParseOptions{QuoteAware: quoteAware})
		require.Equal(t, Result{Success: true, Total: 2, Imported: 2}, res)

		for i, want := range src {
			got := ms.issues[i]
			assert.Equal(t, want.ClientReferenceID, got.ClientReferenceID)
			assert.Equal(t, want.PluginName, got.PluginName)
			assert.Equal(t, want.PluginVersion, got.PluginVersion)
			assert.Equal(t, want.WordPressVersion, got.WordPressVersion)
			assert.Equal(t, want.WooCommerceVersion, got.WooCommerceVersion)
			assert.Equal(t, want.IssueCategory, got.IssueCategory)
			assert.Equal(t, want.IssueSummary, got.IssueSummary)
			assert.Equal(t, want.DetailedDescription, got.DetailedDescription)
			assert.Equal(t, want.StepsToReproduce, got.StepsToReproduce)
			assert.Equal(t, want.ErrorsLogs, got.ErrorsLogs)
			assert.Equal(t, want.TroubleshootingSteps, got.TroubleshootingSteps)
			assert.Equal(t, want.Resolution, got.Resolution)
			assert.Equal(t, want.TimeSpent, got.TimeSpent)
			assert.Equal(t, want.EscalatedToDev, got.EscalatedToDev)
			assert.Equal(t, want.RecurringIssue, got.RecurringIssue)
			assert.Equal(t, want.Status, got.Status)
		}
	}
}

func TestRoundTrip_JSON(t *testing.T) {
	src := exportFixtures()
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, src))

	ms := &memStore{}
	res := NewImporter(ms, nil).Import(context.Background(), "x.json", "", buf.Bytes(), ParseOptions{})
	require.Equal(t, 2, res.Imported)
	assert.Equal(t, `Cart "total" wrong`, ms.issues[0].IssueSummary)
	assert.True(t, ms.issues[0].EscalatedToDev)
	assert.Equal(t, 15, ms.issues[0].TimeSpent)
}
