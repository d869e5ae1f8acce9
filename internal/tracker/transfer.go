package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/joescharf/supportdesk/internal/store"
	"github.com/joescharf/supportdesk/internal/transfer"
)

// ErrBusy is returned when an import or export is started while another runs.
var ErrBusy = errors.New("an import or export is already in progress")

// State is the import/export page state.
type State int

const (
	Idle State = iota
	Importing
	Exporting
)

func (s State) String() string {
	switch s {
	case Importing:
		return "importing"
	case Exporting:
		return "exporting"
	default:
		return "idle"
	}
}

// Transfer is the controller behind the import/export page. It allows one
// operation at a time.
type Transfer struct {
	store    store.Store
	importer *transfer.Importer
	display  Display
	logger   *slog.Logger

	mu    sync.Mutex
	state State
	last  *transfer.Result
}

// NewTransfer creates a Transfer controller in the Idle state.
func NewTransfer(s store.Store, display Display, logger *slog.Logger) *Transfer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transfer{
		store:    s,
		importer: transfer.NewImporter(s, logger),
		display:  display,
		logger:   logger,
	}
}

// State returns the current state.
func (t *Transfer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// LastResult returns the most recent import result, if any.
func (t *Transfer) LastResult() (transfer.Result, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return transfer.Result{}, false
	}
	return *t.last, true
}

func (t *Transfer) begin(next State) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Idle {
		return ErrBusy
	}
	t.state = next
	if next == Importing {
		t.last = nil
	}
	return nil
}

func (t *Transfer) finish(res *transfer.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = Idle
	if res != nil {
		t.last = res
	}
}

// Import parses and imports a file. Parse failures come back in the result;
// the error is only ErrBusy.
func (t *Transfer) Import(ctx context.Context, name, contentType string, data []byte, opts transfer.ParseOptions) (transfer.Result, error) {
	if err := t.begin(Importing); err != nil {
		return transfer.Result{}, err
	}
	res := t.importer.Import(ctx, name, contentType, data, opts)
	if !res.Success {
		t.logger.Warn("import rejected", "file", name, "error", res.Error)
	}
	t.finish(&res)
	return res, nil
}

// Export writes every issue, newest first, in format f.
func (t *Transfer) Export(ctx context.Context, w io.Writer, f transfer.Format) error {
	if err := t.begin(Exporting); err != nil {
		return err
	}
	defer t.finish(nil)

	issues, err := t.store.ListIssues(ctx, store.SortNewest)
	if err != nil {
		t.logger.Error("export: list issues", "error", err)
		return fmt.Errorf("list issues: %w", err)
	}
	return transfer.Export(w, f, issues, transfer.ExportOptions{
		Location:       t.display.Location,
		DatetimeLayout: t.display.DatetimeLayout,
	})
}
