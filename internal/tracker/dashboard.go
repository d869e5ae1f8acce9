package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/joescharf/supportdesk/internal/stats"
	"github.com/joescharf/supportdesk/internal/store"
)

// Display holds the date rendering settings shared by the dashboard and exports.
type Display struct {
	Location       *time.Location
	DateLayout     string
	DatetimeLayout string
}

// LoadLocation resolves a timezone name; "" and "Local" mean time.Local.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}

// Dashboard is the controller behind the dashboard page.
type Dashboard struct {
	store   store.Store
	display Display
	logger  *slog.Logger

	mu   sync.RWMutex
	data stats.Dashboard
}

// NewDashboard creates a Dashboard controller with empty data.
func NewDashboard(s store.Store, display Display, logger *slog.Logger) *Dashboard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dashboard{
		store:   s,
		display: display,
		logger:  logger,
		data:    stats.Compute(nil, display.Location, display.DateLayout),
	}
}

// Reload recomputes every statistic from the store's current list. On error
// the previous data is kept.
func (d *Dashboard) Reload(ctx context.Context) error {
	issues, err := d.store.ListIssues(ctx, store.SortNewest)
	if err != nil {
		d.logger.Error("reload dashboard", "error", err)
		return fmt.Errorf("list issues: %w", err)
	}
	data := stats.Compute(issues, d.display.Location, d.display.DateLayout)
	d.mu.Lock()
	d.data = data
	d.mu.Unlock()
	return nil
}

// Data returns the last computed dashboard.
func (d *Dashboard) Data() stats.Dashboard {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.data
}
