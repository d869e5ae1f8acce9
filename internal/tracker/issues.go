// Package tracker holds the page controllers. Each controller owns an
// in-memory copy of the issue list, runs mutations against the store and
// replaces its copy wholesale by reloading afterwards.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/joescharf/supportdesk/internal/filter"
	"github.com/joescharf/supportdesk/internal/models"
	"github.com/joescharf/supportdesk/internal/options"
	"github.com/joescharf/supportdesk/internal/store"
	"github.com/joescharf/supportdesk/internal/view"
)

// Mutation is a store write run by Apply before the list is reloaded.
type Mutation func(ctx context.Context, s store.Store) error

// Issues is the controller behind the issue list page.
type Issues struct {
	store  store.Store
	vocab  *options.Provider
	logger *slog.Logger

	mu       sync.RWMutex
	all      []*models.Issue
	loaded   bool
	term     string
	criteria filter.Criteria
}

// NewIssues creates an Issues controller. A nil logger uses slog.Default().
func NewIssues(s store.Store, vocab *options.Provider, logger *slog.Logger) *Issues {
	if logger == nil {
		logger = slog.Default()
	}
	return &Issues{store: s, vocab: vocab, logger: logger}
}

// Reload replaces the cached list with the store's, newest first. On error
// the previous list is kept.
func (c *Issues) Reload(ctx context.Context) error {
	issues, err := c.store.ListIssues(ctx, store.SortNewest)
	if err != nil {
		c.logger.Error("reload issues", "error", err)
		return fmt.Errorf("list issues: %w", err)
	}
	c.mu.Lock()
	c.all = issues
	c.loaded = true
	c.mu.Unlock()
	return nil
}

// Loaded reports whether a reload has succeeded at least once.
func (c *Issues) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// All returns the full cached list.
func (c *Issues) All() []*models.Issue {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.all)
}

// SetSearch sets the free-text search term.
func (c *Issues) SetSearch(term string) {
	c.mu.Lock()
	c.term = term
	c.mu.Unlock()
}

// SetCriteria sets the filter panel state.
func (c *Issues) SetCriteria(criteria filter.Criteria) {
	c.mu.Lock()
	c.criteria = criteria.Normalize()
	c.mu.Unlock()
}

// ClearFilters resets the search term and criteria.
func (c *Issues) ClearFilters() {
	c.mu.Lock()
	c.term = ""
	c.criteria = filter.Criteria{}
	c.mu.Unlock()
}

// Visible returns the cached list narrowed by the current search and filters.
func (c *Issues) Visible() []*models.Issue {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return filter.Apply(c.all, c.term, c.criteria)
}

// Find returns a cached issue by id.
func (c *Issues) Find(id string) (*models.Issue, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, issue := range c.all {
		if issue.ID == id {
			return issue, true
		}
	}
	return nil, false
}

// Apply runs m and reloads. A failed mutation leaves the cached list as it was.
func (c *Issues) Apply(ctx context.Context, m Mutation) error {
	if err := m(ctx, c.store); err != nil {
		c.logger.Error("issue mutation failed", "error", err)
		return err
	}
	return c.Reload(ctx)
}

// Create validates and stores a new issue.
func (c *Issues) Create(ctx context.Context, issue *models.Issue) (*models.Issue, error) {
	if err := issue.Validate(); err != nil {
		return nil, err
	}
	c.warnVocabulary(ctx, issue)
	err := c.Apply(ctx, func(ctx context.Context, s store.Store) error {
		return s.CreateIssue(ctx, issue)
	})
	if err != nil {
		return nil, err
	}
	return issue, nil
}

// Update applies patch after validating the merged result.
func (c *Issues) Update(ctx context.Context, id string, patch models.IssuePatch) (*models.Issue, error) {
	current, err := c.store.GetIssue(ctx, id)
	if err != nil {
		return nil, err
	}
	candidate := *current
	patch.Apply(&candidate)
	if err := candidate.Validate(); err != nil {
		return nil, err
	}
	if patch.Status != nil {
		patch.Status = &candidate.Status
	}
	c.warnVocabulary(ctx, &candidate)

	var updated *models.Issue
	err = c.Apply(ctx, func(ctx context.Context, s store.Store) error {
		var err error
		updated, err = s.UpdateIssue(ctx, id, patch)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes an issue.
func (c *Issues) Delete(ctx context.Context, id string) error {
	return c.Apply(ctx, func(ctx context.Context, s store.Store) error {
		return s.DeleteIssue(ctx, id)
	})
}

// MoveStatus is the kanban drag. The store is written only when the status
// actually changes; changed reports whether it did.
func (c *Issues) MoveStatus(ctx context.Context, id string, status models.Status) (changed bool, err error) {
	if !status.Valid() {
		return false, invalidStatus(status)
	}
	current, ok := c.Find(id)
	if !ok {
		current, err = c.store.GetIssue(ctx, id)
		if err != nil {
			return false, err
		}
	}
	if current.Status == status {
		return false, nil
	}
	err = c.Apply(ctx, func(ctx context.Context, s store.Store) error {
		_, err := s.UpdateIssue(ctx, id, models.IssuePatch{Status: &status})
		return err
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func invalidStatus(status models.Status) error {
	return &models.ValidationError{Invalid: []string{fmt.Sprintf("unknown status %q", status)}}
}

// BulkSetStatus sets status on every id.
func (c *Issues) BulkSetStatus(ctx context.Context, ids []string, status models.Status) (int64, error) {
	if !status.Valid() {
		return 0, invalidStatus(status)
	}
	var n int64
	err := c.Apply(ctx, func(ctx context.Context, s store.Store) error {
		var err error
		n, err = s.BulkUpdateIssueStatus(ctx, ids, status)
		return err
	})
	return n, err
}

// BulkDelete removes every id.
func (c *Issues) BulkDelete(ctx context.Context, ids []string) (int64, error) {
	var n int64
	err := c.Apply(ctx, func(ctx context.Context, s store.Store) error {
		var err error
		n, err = s.BulkDeleteIssues(ctx, ids)
		return err
	})
	return n, err
}

// Board groups the visible issues into kanban columns using the configured
// status order.
func (c *Issues) Board(ctx context.Context) view.Board {
	var statuses []models.Status
	if c.vocab != nil {
		statuses = c.vocab.Statuses(ctx)
	}
	return view.BuildBoard(c.Visible(), statuses)
}

// warnVocabulary logs values that are not in the configured vocabularies.
// Free text is still accepted when a vocabulary is empty or stale.
func (c *Issues) warnVocabulary(ctx context.Context, issue *models.Issue) {
	if c.vocab == nil {
		return
	}
	if plugins := c.vocab.Values(ctx, models.PluginOptions); len(plugins) > 0 && !slices.Contains(plugins, issue.PluginName) {
		c.logger.Warn("plugin not in configured options", "plugin_name", issue.PluginName)
	}
	if cats := c.vocab.Values(ctx, models.CategoryOptions); len(cats) > 0 && !slices.Contains(cats, issue.IssueCategory) {
		c.logger.Warn("category not in configured options", "issue_category", issue.IssueCategory)
	}
}
