package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/joescharf/supportdesk/internal/filter"
	"github.com/joescharf/supportdesk/internal/llm"
	"github.com/joescharf/supportdesk/internal/models"
	"github.com/joescharf/supportdesk/internal/options"
	"github.com/joescharf/supportdesk/internal/store"
	"github.com/joescharf/supportdesk/internal/tracker"
	"github.com/joescharf/supportdesk/internal/transfer"
)

// maxImportBytes caps the size of an uploaded import file.
const maxImportBytes = 32 << 20

// Config holds the server settings that come from the CLI configuration.
type Config struct {
	Display    tracker.Display
	QuoteAware bool
	Logger     *slog.Logger
}

// Server provides the REST API handlers.
type Server struct {
	store    store.Store
	vocab    *options.Provider
	transfer *tracker.Transfer
	llm      *llm.Client
	cfg      Config
	logger   *slog.Logger
}

// NewServer creates a new API server.
// The llmClient may be nil if no API key is configured.
func NewServer(s store.Store, cfg Config, llmClient *llm.Client) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:    s,
		vocab:    options.NewProvider(s, logger),
		transfer: tracker.NewTransfer(s, cfg.Display, logger),
		llm:      llmClient,
		cfg:      cfg,
		logger:   logger,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/issues", s.listIssues)
	mux.HandleFunc("POST /api/v1/issues", s.createIssue)
	mux.HandleFunc("POST /api/v1/issues/bulk-update", s.bulkUpdateIssues)
	mux.HandleFunc("POST /api/v1/issues/bulk-delete", s.bulkDeleteIssues)
	mux.HandleFunc("GET /api/v1/issues/{id}", s.getIssue)
	mux.HandleFunc("PUT /api/v1/issues/{id}", s.updateIssue)
	mux.HandleFunc("DELETE /api/v1/issues/{id}", s.deleteIssue)
	mux.HandleFunc("PUT /api/v1/issues/{id}/status", s.setIssueStatus)
	mux.HandleFunc("POST /api/v1/issues/{id}/triage", s.triageIssue)

	mux.HandleFunc("GET /api/v1/board", s.board)
	mux.HandleFunc("GET /api/v1/dashboard", s.dashboard)

	mux.HandleFunc("GET /api/v1/options", s.listOptions)
	mux.HandleFunc("GET /api/v1/options/{key}", s.getOption)
	mux.HandleFunc("PUT /api/v1/options/{key}", s.putOption)

	mux.HandleFunc("GET /api/v1/export", s.exportIssues)
	mux.HandleFunc("POST /api/v1/import", s.importIssues)
	mux.HandleFunc("GET /api/v1/transfer", s.transferState)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	var verr *models.ValidationError
	var perr *transfer.ParseError
	switch {
	case errors.As(err, &verr), errors.As(err, &perr):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, tracker.ErrBusy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeErr(w http.ResponseWriter, err error) {
	writeError(w, errorStatus(err), err.Error())
}

// issues returns a fresh list controller for one request.
func (s *Server) issues() *tracker.Issues {
	return tracker.NewIssues(s.store, s.vocab, s.logger)
}

func criteriaFromQuery(r *http.Request) (filter.Criteria, error) {
	q := r.URL.Query()
	return filter.Criteria{
		Status:    q.Get("status"),
		Plugin:    q.Get("plugin"),
		Category:  q.Get("category"),
		Recurring: q.Get("recurring"),
		Escalated: q.Get("escalated"),
	}.Canonical()
}

// --- Issues ---

func (s *Server) listIssues(w http.ResponseWriter, r *http.Request) {
	criteria, err := criteriaFromQuery(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	ctl := s.issues()
	if err := ctl.Reload(r.Context()); err != nil {
		writeErr(w, err)
		return
	}
	ctl.SetSearch(r.URL.Query().Get("search"))
	ctl.SetCriteria(criteria)
	writeJSON(w, http.StatusOK, ctl.Visible())
}

func (s *Server) createIssue(w http.ResponseWriter, r *http.Request) {
	var issue models.Issue
	if err := json.NewDecoder(r.Body).Decode(&issue); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	issue.ID = ""
	created, err := s.issues().Create(r.Context(), &issue)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) getIssue(w http.ResponseWriter, r *http.Request) {
	issue, err := s.store.GetIssue(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (s *Server) updateIssue(w http.ResponseWriter, r *http.Request) {
	var patch models.IssuePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if patch.Empty() {
		writeError(w, http.StatusBadRequest, "no fields to update")
		return
	}
	updated, err := s.issues().Update(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteIssue(w http.ResponseWriter, r *http.Request) {
	if err := s.issues().Delete(r.Context(), r.PathValue("id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseRequiredStatus rejects empty and unknown status values.
func parseRequiredStatus(raw string) (models.Status, error) {
	if strings.TrimSpace(raw) == "" {
		return "", &models.ValidationError{Missing: []string{"status"}}
	}
	st, err := models.ParseStatus(raw)
	if err != nil {
		return "", &models.ValidationError{Invalid: []string{err.Error()}}
	}
	return st, nil
}

func (s *Server) setIssueStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	st, err := parseRequiredStatus(req.Status)
	if err != nil {
		writeErr(w, err)
		return
	}
	id := r.PathValue("id")
	changed, err := s.issues().MoveStatus(r.Context(), id, st)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": st, "changed": changed})
}

func (s *Server) bulkUpdateIssues(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs    []string `json:"ids"`
		Status string   `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids is required")
		return
	}
	st, err := parseRequiredStatus(req.Status)
	if err != nil {
		writeErr(w, err)
		return
	}
	n, err := s.issues().BulkSetStatus(r.Context(), req.IDs, st)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

func (s *Server) bulkDeleteIssues(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids is required")
		return
	}
	n, err := s.issues().BulkDelete(r.Context(), req.IDs)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func (s *Server) triageIssue(w http.ResponseWriter, r *http.Request) {
	if s.llm == nil {
		writeError(w, http.StatusServiceUnavailable, "LLM not configured (set ANTHROPIC_API_KEY)")
		return
	}

	id := r.PathValue("id")
	issue, err := s.store.GetIssue(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}

	vocab := s.vocab.Vocabulary(r.Context())
	suggestion, err := s.llm.SuggestTriage(r.Context(), llm.TicketText{
		Summary:         issue.IssueSummary,
		Description:     issue.DetailedDescription,
		Steps:           issue.StepsToReproduce,
		ErrorsLogs:      issue.ErrorsLogs,
		Troubleshooting: issue.TroubleshootingSteps,
		PluginName:      issue.PluginName,
	}, vocab.Plugins, vocab.Categories)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("LLM triage failed: %v", err))
		return
	}

	if apply, _ := strconv.ParseBool(r.URL.Query().Get("apply")); apply {
		if patch := suggestion.Patch(issue); !patch.Empty() {
			if issue, err = s.issues().Update(r.Context(), id, patch); err != nil {
				writeErr(w, err)
				return
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"triage": suggestion, "issue": issue})
}

// --- Board & dashboard ---

func (s *Server) board(w http.ResponseWriter, r *http.Request) {
	criteria, err := criteriaFromQuery(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	ctl := s.issues()
	if err := ctl.Reload(r.Context()); err != nil {
		writeErr(w, err)
		return
	}
	ctl.SetSearch(r.URL.Query().Get("search"))
	ctl.SetCriteria(criteria)
	writeJSON(w, http.StatusOK, ctl.Board(r.Context()))
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	d := tracker.NewDashboard(s.store, s.cfg.Display, s.logger)
	if err := d.Reload(r.Context()); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d.Data())
}

// --- Options ---

func (s *Server) listOptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.vocab.Vocabulary(r.Context()))
}

func (s *Server) getOption(w http.ResponseWriter, r *http.Request) {
	key, err := models.ParseOptionKey(r.PathValue("key"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key": key, "value": s.vocab.Values(r.Context(), key)})
}

func (s *Server) putOption(w http.ResponseWriter, r *http.Request) {
	key, err := models.ParseOptionKey(r.PathValue("key"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req struct {
		Value []string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	editor, err := options.Load(r.Context(), s.store, key)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := editor.Replace(req.Value); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg, err := editor.Save(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// --- Import / export ---

func (s *Server) exportIssues(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("format")
	if raw == "" {
		raw = string(transfer.FormatCSV)
	}
	f, err := transfer.ParseFormat(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var buf bytes.Buffer
	if err := s.transfer.Export(r.Context(), &buf, f); err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", f.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", transfer.Filename(f, time.Now())))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// readUpload returns the uploaded file name, content type and bytes, from a
// multipart "file" field or from the raw request body.
func readUpload(w http.ResponseWriter, r *http.Request) (name, contentType string, data []byte, err error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, header, err := r.FormFile("file")
		if err != nil {
			return "", "", nil, fmt.Errorf("read upload: %w", err)
		}
		defer file.Close()
		data, err = io.ReadAll(file)
		if err != nil {
			return "", "", nil, fmt.Errorf("read upload: %w", err)
		}
		return header.Filename, header.Header.Get("Content-Type"), data, nil
	}
	data, err = io.ReadAll(r.Body)
	if err != nil {
		return "", "", nil, fmt.Errorf("read body: %w", err)
	}
	return r.URL.Query().Get("filename"), r.Header.Get("Content-Type"), data, nil
}

func (s *Server) importIssues(w http.ResponseWriter, r *http.Request) {
	name, contentType, data, err := readUpload(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	opts := transfer.ParseOptions{QuoteAware: s.cfg.QuoteAware}
	if v := r.URL.Query().Get("quote_aware"); v != "" {
		opts.QuoteAware, _ = strconv.ParseBool(v)
	}

	res, err := s.transfer.Import(r.Context(), name, contentType, data, opts)
	if err != nil {
		writeErr(w, err)
		return
	}
	if !res.Success {
		writeJSON(w, http.StatusBadRequest, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) transferState(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"state": s.transfer.State().String()}
	if last, ok := s.transfer.LastResult(); ok {
		resp["last_result"] = last
	}
	writeJSON(w, http.StatusOK, resp)
}
