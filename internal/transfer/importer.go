package transfer

import (
	"context"
	"log/slog"

	"github.com/joescharf/supportdesk/internal/models"
	"github.com/joescharf/supportdesk/internal/store"
)

// IssueStore is the subset of store.Store the importer needs.
type IssueStore interface {
	FilterIssues(ctx context.Context, match store.IssueMatch) ([]*models.Issue, error)
	CreateIssue(ctx context.Context, issue *models.Issue) error
}

// Result summarises an import.
type Result struct {
	Success    bool   `json:"success"`
	Total      int    `json:"total"`
	Imported   int    `json:"imported"`
	Duplicates int    `json:"duplicates"`
	Invalid    int    `json:"invalid"`
	Failed     int    `json:"failed,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Failure builds the result for a file that could not be parsed.
func Failure(err error) Result {
	return Result{Success: false, Error: err.Error()}
}

// Importer creates issues from parsed records, skipping any whose client
// reference already exists. Records are processed one at a time; the
// duplicate check and the create are not atomic.
type Importer struct {
	store  IssueStore
	logger *slog.Logger
}

// NewImporter creates an Importer. A nil logger uses slog.Default().
func NewImporter(s IssueStore, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{store: s, logger: logger}
}

// Split separates records into importable issues and a count of invalid ones.
func Split(records []Record) (valid []*models.Issue, invalid int) {
	for _, r := range records {
		issue, ok := ToIssue(r)
		if !ok {
			invalid++
			continue
		}
		valid = append(valid, issue)
	}
	return valid, invalid
}

// Import parses data and imports the records. Parse failures are reported in
// the result, never as a Go error.
func (im *Importer) Import(ctx context.Context, name, contentType string, data []byte, opts ParseOptions) Result {
	records, err := Parse(name, contentType, data, opts)
	if err != nil {
		return Failure(err)
	}
	return im.ImportRecords(ctx, records)
}

// ImportRecords validates and imports already-parsed records. A store error
// on one record is logged and the loop moves on.
func (im *Importer) ImportRecords(ctx context.Context, records []Record) Result {
	valid, invalid := Split(records)
	res := Result{Success: true, Total: len(records), Invalid: invalid}

	for _, issue := range valid {
		existing, err := im.store.FilterIssues(ctx, store.IssueMatch{ClientReferenceID: issue.ClientReferenceID})
		if err != nil {
			im.logger.Error("import: duplicate check failed", "client_reference_id", issue.ClientReferenceID, "error", err)
			res.Failed++
			continue
		}
		if len(existing) > 0 {
			res.Duplicates++
			continue
		}
		if err := im.store.CreateIssue(ctx, issue); err != nil {
			im.logger.Error("import: create failed", "client_reference_id", issue.ClientReferenceID, "error", err)
			res.Failed++
			continue
		}
		res.Imported++
	}

	im.logger.Info("import finished",
		"total", res.Total, "imported", res.Imported,
		"duplicates", res.Duplicates, "invalid", res.Invalid, "failed", res.Failed)
	return res
}
