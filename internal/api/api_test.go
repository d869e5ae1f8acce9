package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/supportdesk/internal/llm"
	"github.com/joescharf/supportdesk/internal/models"
	"github.com/joescharf/supportdesk/internal/stats"
	"github.com/joescharf/supportdesk/internal/store"
	"github.com/joescharf/supportdesk/internal/tracker"
	"github.com/joescharf/supportdesk/internal/transfer"
	"github.com/joescharf/supportdesk/internal/view"
)

func setupTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	srv := NewServer(s, Config{Display: tracker.Display{Location: time.UTC}}, nil)
	return srv, s
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func seed(t *testing.T, s store.Store, ref, summary string, status models.Status) *models.Issue {
	t.Helper()
	issue := &models.Issue{
		ClientReferenceID: ref,
		PluginName:        "Checkout Plus",
		IssueCategory:     "Bug",
		IssueSummary:      summary,
		Status:            status,
		TimeSpent:         10,
	}
	require.NoError(t, s.CreateIssue(context.Background(), issue))
	return issue
}

func TestListIssues_Empty(t *testing.T) {
	srv, _ := setupTestServer(t)

	w := do(t, srv.Router(), "GET", "/api/v1/issues", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestIssuesCRUD_API(t *testing.T) {
	srv, _ := setupTestServer(t)
	router := srv.Router()

	// Create
	body := `{"client_reference_id":"C-100","plugin_name":"Checkout Plus","issue_category":"Bug","issue_summary":"Cart checkout fails"}`
	w := do(t, router, "POST", "/api/v1/issues", body)
	require.Equal(t, http.StatusCreated, w.Code)

	var created models.Issue
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.StatusOpen, created.Status)
	assert.Zero(t, created.TimeSpent)

	// Get
	w = do(t, router, "GET", "/api/v1/issues/"+created.ID, "")
	assert.Equal(t, http.StatusOK, w.Code)

	// Update
	w = do(t, router, "PUT", "/api/v1/issues/"+created.ID, `{"resolution":"Cleared cache","time_spent":25}`)
	require.Equal(t, http.StatusOK, w.Code)
	var updated models.Issue
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, "Cleared cache", updated.Resolution)
	assert.Equal(t, 25, updated.TimeSpent)
	assert.Equal(t, "Cart checkout fails", updated.IssueSummary)

	// Empty patch
	w = do(t, router, "PUT", "/api/v1/issues/"+created.ID, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Delete
	w = do(t, router, "DELETE", "/api/v1/issues/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, router, "GET", "/api/v1/issues/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateIssue_Validation(t *testing.T) {
	srv, s := setupTestServer(t)

	w := do(t, srv.Router(), "POST", "/api/v1/issues", `{"client_reference_id":"C-1","issue_summary":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "missing required fields: plugin_name, issue_category")

	w = do(t, srv.Router(), "POST", "/api/v1/issues", `{"client_reference_id":"C-1","plugin_name":"P","issue_category":"Bug","issue_summary":"x","status":"Pending"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unknown status")

	w = do(t, srv.Router(), "POST", "/api/v1/issues", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	all, err := s.ListIssues(context.Background(), store.SortNewest)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestListIssues_SearchAndFilter(t *testing.T) {
	srv, s := setupTestServer(t)
	seed(t, s, "C-1", "Cart checkout fails", models.StatusOpen)
	seed(t, s, "C-2", "Coupon ignored", models.StatusResolved)
	router := srv.Router()

	w := do(t, router, "GET", "/api/v1/issues?search=cart", "")
	var issues []*models.Issue
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &issues))
	require.Len(t, issues, 1)
	assert.Equal(t, "C-1", issues[0].ClientReferenceID)

	w = do(t, router, "GET", "/api/v1/issues?status=Resolved&plugin=all", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &issues))
	require.Len(t, issues, 1)
	assert.Equal(t, "C-2", issues[0].ClientReferenceID)

	w = do(t, router, "GET", "/api/v1/issues?escalated=true", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &issues))
	assert.Empty(t, issues)
}

func TestListIssues_FilterValuesAreCanonicalised(t *testing.T) {
	srv, s := setupTestServer(t)
	seed(t, s, "C-1", "Cart checkout fails", models.StatusOpen)
	seed(t, s, "C-2", "Coupon ignored", models.StatusResolved)
	router := srv.Router()

	w := do(t, router, "GET", "/api/v1/issues?status=open", "")
	require.Equal(t, http.StatusOK, w.Code)
	var issues []*models.Issue
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &issues))
	require.Len(t, issues, 1)
	assert.Equal(t, "C-1", issues[0].ClientReferenceID)

	w = do(t, router, "GET", "/api/v1/issues?status=ALL&escalated=False", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &issues))
	assert.Len(t, issues, 2)
}

func TestListIssues_RejectsBadFilterValues(t *testing.T) {
	srv, s := setupTestServer(t)
	seed(t, s, "C-1", "Cart checkout fails", models.StatusOpen)
	router := srv.Router()

	for _, path := range []string{
		"/api/v1/issues?recurring=yes",
		"/api/v1/issues?escalated=1",
		"/api/v1/issues?status=Closed",
		"/api/v1/board?recurring=yes",
	} {
		w := do(t, router, "GET", path, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}

	w := do(t, router, "GET", "/api/v1/issues?recurring=yes", "")
	assert.Contains(t, w.Body.String(), "must be true, false or all")
}

func TestSetIssueStatus_API(t *testing.T) {
	srv, s := setupTestServer(t)
	issue := seed(t, s, "C-1", "x", models.StatusOpen)
	router := srv.Router()

	w := do(t, router, "PUT", "/api/v1/issues/"+issue.ID+"/status", `{"status":"Open"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"`+issue.ID+`","status":"Open","changed":false}`, w.Body.String())

	w = do(t, router, "PUT", "/api/v1/issues/"+issue.ID+"/status", `{"status":"escalated"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"`+issue.ID+`","status":"Escalated","changed":true}`, w.Body.String())

	w = do(t, router, "PUT", "/api/v1/issues/"+issue.ID+"/status", `{"status":"Pending"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, "PUT", "/api/v1/issues/missing/status", `{"status":"Resolved"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBulkOperations_API(t *testing.T) {
	srv, s := setupTestServer(t)
	a := seed(t, s, "A", "x", models.StatusOpen)
	b := seed(t, s, "B", "y", models.StatusOpen)
	router := srv.Router()

	w := do(t, router, "POST", "/api/v1/issues/bulk-update", `{"ids":["`+a.ID+`","`+b.ID+`"],"status":"Resolved"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"updated":2}`, w.Body.String())

	w = do(t, router, "POST", "/api/v1/issues/bulk-update", `{"ids":["`+a.ID+`"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, "POST", "/api/v1/issues/bulk-delete", `{"ids":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, "POST", "/api/v1/issues/bulk-delete", `{"ids":["`+a.ID+`","`+b.ID+`"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted":2}`, w.Body.String())
}

func TestBoard_API(t *testing.T) {
	srv, s := setupTestServer(t)
	seed(t, s, "A", "x", models.StatusEscalated)

	w := do(t, srv.Router(), "GET", "/api/v1/board", "")
	require.Equal(t, http.StatusOK, w.Code)

	var board view.Board
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &board))
	require.Len(t, board.Columns, 3)
	assert.Equal(t, 0, board.Columns[0].Count)
	assert.Equal(t, "#f5576c", board.Columns[0].Color)
	assert.Equal(t, 1, board.Columns[2].Count)
}

func TestDashboard_API(t *testing.T) {
	srv, s := setupTestServer(t)
	for i, st := range []models.Status{models.StatusOpen, models.StatusResolved, models.StatusEscalated} {
		issue := seed(t, s, string(rune('A'+i)), "x", st)
		minutes := (i + 1) * 10
		_, err := s.UpdateIssue(context.Background(), issue.ID, models.IssuePatch{TimeSpent: &minutes})
		require.NoError(t, err)
	}

	w := do(t, srv.Router(), "GET", "/api/v1/dashboard", "")
	require.Equal(t, http.StatusOK, w.Code)

	var d stats.Dashboard
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	assert.Equal(t, stats.Stats{Total: 3, Open: 1, Resolved: 1, Escalated: 1, AverageTime: 20}, d.Stats)
	assert.Equal(t, []stats.Slice{{Name: "Bug", Value: 3}}, d.CategoryData)
	assert.Contains(t, w.Body.String(), `"averageTime":20`)
	assert.Contains(t, w.Body.String(), `"timelineData"`)
}

func TestOptions_API(t *testing.T) {
	srv, _ := setupTestServer(t)
	router := srv.Router()

	w := do(t, router, "GET", "/api/v1/options", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"plugins":[],"categories":[],"statuses":["Open","Resolved","Escalated"]}`, w.Body.String())

	w = do(t, router, "PUT", "/api/v1/options/plugin_options", `{"value":["Bookings"," ","Checkout Plus"]}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, "GET", "/api/v1/options/plugin_options", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"key":"plugin_options","value":["Bookings","Checkout Plus"]}`, w.Body.String())

	w = do(t, router, "PUT", "/api/v1/options/status_options", `{"value":["Open","Pending"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, "GET", "/api/v1/options/colours", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExport_API(t *testing.T) {
	srv, s := setupTestServer(t)
	seed(t, s, "C-1", "Cart checkout fails", models.StatusOpen)
	router := srv.Router()

	w := do(t, router, "GET", "/api/v1/export?format=csv", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "support-issues-")
	assert.True(t, strings.HasPrefix(w.Body.String(), `"Client Reference ID","Plugin Name"`))
	assert.Contains(t, w.Body.String(), `"C-1","Checkout Plus"`)

	w = do(t, router, "GET", "/api/v1/export?format=json", "")
	require.Equal(t, http.StatusOK, w.Code)
	var issues []*models.Issue
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &issues))
	assert.Len(t, issues, 1)

	w = do(t, router, "GET", "/api/v1/export?format=xml", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImport_API_RawBody(t *testing.T) {
	srv, s := setupTestServer(t)
	seed(t, s, "C-1", "existing", models.StatusOpen)
	router := srv.Router()

	body := "Client Reference ID,Plugin Name,Issue Category,Issue Summary\n" +
		"C-1,Bookings,Bug,dup\n" +
		"C-2,Bookings,Bug,new\n" +
		"C-3,,Bug,invalid\n"
	w := do(t, router, "POST", "/api/v1/import?filename=issues.csv", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"total":3,"imported":1,"duplicates":1,"invalid":1}`, w.Body.String())

	w = do(t, router, "GET", "/api/v1/transfer", "")
	assert.Contains(t, w.Body.String(), `"state":"idle"`)
	assert.Contains(t, w.Body.String(), `"imported":1`)
}

func TestImport_API_Multipart(t *testing.T) {
	srv, _ := setupTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "issues.json")
	require.NoError(t, err)
	_, err = fw.Write([]byte(`[{"client_reference_id":"C-9","plugin_name":"P","issue_category":"Bug","issue_summary":"x"}]`))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/v1/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var res transfer.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 1, res.Imported)
}

func TestImport_API_Unsupported(t *testing.T) {
	srv, _ := setupTestServer(t)

	w := do(t, srv.Router(), "POST", "/api/v1/import?filename=notes.txt", "hello")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"success":false,"total":0,"imported":0,"duplicates":0,"invalid":0,"error":"Unsupported file format. Please use CSV or JSON."}`, w.Body.String())
}

func TestTriage_NoLLM(t *testing.T) {
	srv, s := setupTestServer(t)
	issue := seed(t, s, "C-1", "x", models.StatusOpen)

	w := do(t, srv.Router(), "POST", "/api/v1/issues/"+issue.ID+"/triage", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// fakeAnthropic serves a Messages API reply whose text is the given triage JSON.
func fakeAnthropic(t *testing.T, triage string) *llm.Client {
	t.Helper()
	reply, err := json.Marshal(map[string]any{
		"id":            "msg_1",
		"type":          "message",
		"role":          "assistant",
		"model":         "test-model",
		"content":       []map[string]any{{"type": "text", "text": triage}},
		"stop_reason":   "end_turn",
		"stop_sequence": nil,
		"usage":         map[string]int{"input_tokens": 1, "output_tokens": 1},
	})
	require.NoError(t, err)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(reply)
	}))
	t.Cleanup(ts.Close)

	return llm.NewClient("test-key", "test-model", option.WithBaseURL(ts.URL+"/"), option.WithMaxRetries(0))
}

func TestTriage_Apply(t *testing.T) {
	tests := []struct {
		name          string
		status        models.Status
		escalated     bool
		reply         string
		wantStatus    models.Status
		wantEscalated bool
		wantCategory  string
	}{
		{
			name:          "open issue is escalated",
			status:        models.StatusOpen,
			reply:         `{"category":"Compatibility","escalate":true}`,
			wantStatus:    models.StatusEscalated,
			wantEscalated: true,
			wantCategory:  "Compatibility",
		},
		{
			name:          "resolved issue is not reopened",
			status:        models.StatusResolved,
			reply:         `{"category":"Bug","escalate":true}`,
			wantStatus:    models.StatusResolved,
			wantEscalated: true,
			wantCategory:  "Bug",
		},
		{
			name:          "escalation is kept when the model says no",
			status:        models.StatusEscalated,
			escalated:     true,
			reply:         `{"category":"Bug","escalate":false}`,
			wantStatus:    models.StatusEscalated,
			wantEscalated: true,
			wantCategory:  "Bug",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, s := setupTestServer(t)
			srv.llm = fakeAnthropic(t, tt.reply)
			issue := seed(t, s, "C-1", "Checkout crashes", tt.status)
			if tt.escalated {
				escalated := true
				_, err := s.UpdateIssue(context.Background(), issue.ID, models.IssuePatch{EscalatedToDev: &escalated})
				require.NoError(t, err)
			}

			w := do(t, srv.Router(), "POST", "/api/v1/issues/"+issue.ID+"/triage?apply=true", "")
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			var resp struct {
				Issue models.Issue `json:"issue"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantStatus, resp.Issue.Status)
			assert.Equal(t, tt.wantEscalated, resp.Issue.EscalatedToDev)

			stored, err := s.GetIssue(context.Background(), issue.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, stored.Status)
			assert.Equal(t, tt.wantEscalated, stored.EscalatedToDev)
			assert.Equal(t, tt.wantCategory, stored.IssueCategory)
		})
	}
}

// countingStore records how often issues are updated.
type countingStore struct {
	store.Store
	updates int
}

func (c *countingStore) UpdateIssue(ctx context.Context, id string, patch models.IssuePatch) (*models.Issue, error) {
	c.updates++
	return c.Store.UpdateIssue(ctx, id, patch)
}

func TestTriage_ApplyNothingToChange(t *testing.T) {
	_, s := setupTestServer(t)
	counting := &countingStore{Store: s}
	srv := NewServer(counting, Config{Display: tracker.Display{Location: time.UTC}}, fakeAnthropic(t, `{"category":"Bug","escalate":false}`))
	issue := seed(t, s, "C-1", "Checkout crashes", models.StatusOpen)

	w := do(t, srv.Router(), "POST", "/api/v1/issues/"+issue.ID+"/triage?apply=true", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Zero(t, counting.updates)

	stored, err := s.GetIssue(context.Background(), issue.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, stored.Status)
	assert.False(t, stored.EscalatedToDev)
}

func TestTriage_SuggestOnly(t *testing.T) {
	srv, s := setupTestServer(t)
	srv.llm = fakeAnthropic(t, `{"category":"Compatibility","escalate":true,"summary":"Fatal at checkout"}`)
	issue := seed(t, s, "C-1", "Checkout crashes", models.StatusOpen)

	w := do(t, srv.Router(), "POST", "/api/v1/issues/"+issue.ID+"/triage", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"summary":"Fatal at checkout"`)

	stored, err := s.GetIssue(context.Background(), issue.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bug", stored.IssueCategory)
	assert.Equal(t, models.StatusOpen, stored.Status)
}

func TestCORS(t *testing.T) {
	srv, _ := setupTestServer(t)

	w := do(t, srv.Router(), "OPTIONS", "/api/v1/issues", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestErrorStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, errorStatus(&models.ValidationError{Missing: []string{"x"}}))
	assert.Equal(t, http.StatusBadRequest, errorStatus(&transfer.ParseError{Msg: "bad"}))
	assert.Equal(t, http.StatusNotFound, errorStatus(store.ErrNotFound))
	assert.Equal(t, http.StatusConflict, errorStatus(tracker.ErrBusy))
	assert.Equal(t, http.StatusInternalServerError, errorStatus(assert.AnError))
}
