package store

import (
	"context"
	"errors"

	"github.com/joescharf/supportdesk/internal/models"
)

// ErrNotFound is returned (wrapped) when a record id does not exist.
var ErrNotFound = errors.New("not found")

// SortOrder selects the ordering of ListIssues. The leading "-" means descending.
type SortOrder string

const (
	SortNewest SortOrder = "-created_date"
	SortOldest SortOrder = "created_date"
)

// IssueMatch is an equality filter over issue fields. Empty fields impose no constraint.
type IssueMatch struct {
	ClientReferenceID string
	PluginName        string
	IssueCategory     string
	Status            models.Status
}

// Store defines the persistence interface for supportdesk.
type Store interface {
	// Issues
	ListIssues(ctx context.Context, sort SortOrder) ([]*models.Issue, error)
	FilterIssues(ctx context.Context, match IssueMatch) ([]*models.Issue, error)
	GetIssue(ctx context.Context, id string) (*models.Issue, error)
	CreateIssue(ctx context.Context, issue *models.Issue) error
	UpdateIssue(ctx context.Context, id string, patch models.IssuePatch) (*models.Issue, error)
	DeleteIssue(ctx context.Context, id string) error
	BulkUpdateIssueStatus(ctx context.Context, ids []string, status models.Status) (int64, error)
	BulkDeleteIssues(ctx context.Context, ids []string) (int64, error)

	// App config (vocabularies)
	ListConfigs(ctx context.Context) ([]*models.AppConfig, error)
	FilterConfigs(ctx context.Context, key models.OptionKey) ([]*models.AppConfig, error)
	CreateConfig(ctx context.Context, cfg *models.AppConfig) error
	UpdateConfig(ctx context.Context, id string, values []string) (*models.AppConfig, error)
	DeleteConfig(ctx context.Context, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
