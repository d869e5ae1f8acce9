package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/supportdesk/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection serializes writers; SQLite rejects concurrent ones with
	// "database is locked" when the API and an import run together.
	db.SetMaxOpenConns(1)

	pragmas := []struct {
		stmt string
		what string
	}{
		{"PRAGMA journal_mode=WAL", "enable WAL mode"},
		{"PRAGMA busy_timeout=5000", "set busy timeout"},
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p.stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", p.what, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in filename order, skipping
// ones already recorded in schema_migrations.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Support issues ---

const issueColumns = `id, client_reference_id, plugin_name, plugin_version, wordpress_version, woocommerce_version,
	issue_category, issue_summary, detailed_description, steps_to_reproduce, errors_logs, troubleshooting_steps,
	resolution, time_spent, escalated_to_dev, recurring_issue, status, created_date, updated_date`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssue(row rowScanner) (*models.Issue, error) {
	issue := &models.Issue{}
	var status string
	err := row.Scan(&issue.ID, &issue.ClientReferenceID, &issue.PluginName, &issue.PluginVersion,
		&issue.WordPressVersion, &issue.WooCommerceVersion, &issue.IssueCategory, &issue.IssueSummary,
		&issue.DetailedDescription, &issue.StepsToReproduce, &issue.ErrorsLogs, &issue.TroubleshootingSteps,
		&issue.Resolution, &issue.TimeSpent, &issue.EscalatedToDev, &issue.RecurringIssue, &status,
		&issue.CreatedDate, &issue.UpdatedDate)
	if err != nil {
		return nil, err
	}
	issue.Status = models.Status(status)
	return issue, nil
}

func (s *SQLiteStore) queryIssues(ctx context.Context, query string, args ...any) ([]*models.Issue, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var issues []*models.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

func orderClause(order SortOrder) string {
	if order == SortOldest {
		return " ORDER BY created_date ASC, id ASC"
	}
	return " ORDER BY created_date DESC, id DESC"
}

func (s *SQLiteStore) ListIssues(ctx context.Context, order SortOrder) ([]*models.Issue, error) {
	return s.queryIssues(ctx, "SELECT "+issueColumns+" FROM support_issues"+orderClause(order))
}

func (s *SQLiteStore) FilterIssues(ctx context.Context, match IssueMatch) ([]*models.Issue, error) {
	query := "SELECT " + issueColumns + " FROM support_issues"
	var conditions []string
	var args []any

	if match.ClientReferenceID != "" {
		conditions = append(conditions, "client_reference_id = ?")
		args = append(args, match.ClientReferenceID)
	}
	if match.PluginName != "" {
		conditions = append(conditions, "plugin_name = ?")
		args = append(args, match.PluginName)
	}
	if match.IssueCategory != "" {
		conditions = append(conditions, "issue_category = ?")
		args = append(args, match.IssueCategory)
	}
	if match.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(match.Status))
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	return s.queryIssues(ctx, query+orderClause(SortNewest), args...)
}

func (s *SQLiteStore) GetIssue(ctx context.Context, id string) (*models.Issue, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+issueColumns+" FROM support_issues WHERE id = ?", id)
	issue, err := scanIssue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("issue %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get issue: %w", err)
	}
	return issue, nil
}

// CreateIssue inserts issue, assigning its ID and created/updated dates.
func (s *SQLiteStore) CreateIssue(ctx context.Context, issue *models.Issue) error {
	if issue.ID == "" {
		issue.ID = newULID()
	}
	if issue.Status == "" {
		issue.Status = models.StatusOpen
	}
	now := time.Now().UTC()
	issue.CreatedDate = now
	issue.UpdatedDate = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO support_issues (`+issueColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		issue.ID, issue.ClientReferenceID, issue.PluginName, issue.PluginVersion,
		issue.WordPressVersion, issue.WooCommerceVersion, issue.IssueCategory, issue.IssueSummary,
		issue.DetailedDescription, issue.StepsToReproduce, issue.ErrorsLogs, issue.TroubleshootingSteps,
		issue.Resolution, issue.TimeSpent, boolToInt(issue.EscalatedToDev), boolToInt(issue.RecurringIssue),
		string(issue.Status), issue.CreatedDate, issue.UpdatedDate,
	)
	if err != nil {
		return fmt.Errorf("create issue: %w", err)
	}
	return nil
}

// UpdateIssue applies patch to the stored issue and returns the result.
func (s *SQLiteStore) UpdateIssue(ctx context.Context, id string, patch models.IssuePatch) (*models.Issue, error) {
	issue, err := s.GetIssue(ctx, id)
	if err != nil {
		return nil, err
	}
	patch.Apply(issue)
	issue.UpdatedDate = time.Now().UTC()

	result, err := s.db.ExecContext(ctx,
		`UPDATE support_issues SET client_reference_id=?, plugin_name=?, plugin_version=?, wordpress_version=?,
		woocommerce_version=?, issue_category=?, issue_summary=?, detailed_description=?, steps_to_reproduce=?,
		errors_logs=?, troubleshooting_steps=?, resolution=?, time_spent=?, escalated_to_dev=?, recurring_issue=?,
		status=?, updated_date=?
		WHERE id=?`,
		issue.ClientReferenceID, issue.PluginName, issue.PluginVersion, issue.WordPressVersion,
		issue.WooCommerceVersion, issue.IssueCategory, issue.IssueSummary, issue.DetailedDescription,
		issue.StepsToReproduce, issue.ErrorsLogs, issue.TroubleshootingSteps, issue.Resolution,
		issue.TimeSpent, boolToInt(issue.EscalatedToDev), boolToInt(issue.RecurringIssue),
		string(issue.Status), issue.UpdatedDate, issue.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update issue: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("issue %s: %w", id, ErrNotFound)
	}
	return issue, nil
}

func (s *SQLiteStore) DeleteIssue(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM support_issues WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("issue %s: %w", id, ErrNotFound)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func (s *SQLiteStore) BulkUpdateIssueStatus(ctx context.Context, ids []string, status models.Status) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	args := make([]any, 0, len(ids)+2)
	args = append(args, string(status), time.Now().UTC())
	for _, id := range ids {
		args = append(args, id)
	}

	query := fmt.Sprintf("UPDATE support_issues SET status=?, updated_date=? WHERE id IN (%s)", placeholders(len(ids)))
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("bulk update issue status: %w", err)
	}
	n, _ := result.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) BulkDeleteIssues(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := fmt.Sprintf("DELETE FROM support_issues WHERE id IN (%s)", placeholders(len(ids)))
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("bulk delete issues: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// --- App config ---

func (s *SQLiteStore) queryConfigs(ctx context.Context, query string, args ...any) ([]*models.AppConfig, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list configs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var configs []*models.AppConfig
	for rows.Next() {
		cfg := &models.AppConfig{}
		var key, valueJSON string
		if err := rows.Scan(&cfg.ID, &key, &valueJSON, &cfg.CreatedDate, &cfg.UpdatedDate); err != nil {
			return nil, fmt.Errorf("scan config: %w", err)
		}
		cfg.Key = models.OptionKey(key)
		if err := json.Unmarshal([]byte(valueJSON), &cfg.Value); err != nil {
			return nil, fmt.Errorf("decode config %s value: %w", cfg.ID, err)
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

func (s *SQLiteStore) ListConfigs(ctx context.Context) ([]*models.AppConfig, error) {
	return s.queryConfigs(ctx, "SELECT id, key, value, created_date, updated_date FROM app_configs ORDER BY created_date, id")
}

func (s *SQLiteStore) FilterConfigs(ctx context.Context, key models.OptionKey) ([]*models.AppConfig, error) {
	return s.queryConfigs(ctx,
		"SELECT id, key, value, created_date, updated_date FROM app_configs WHERE key = ? ORDER BY created_date, id", string(key))
}

func encodeValues(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encode config value: %w", err)
	}
	return string(data), nil
}

func (s *SQLiteStore) CreateConfig(ctx context.Context, cfg *models.AppConfig) error {
	if cfg.ID == "" {
		cfg.ID = newULID()
	}
	now := time.Now().UTC()
	cfg.CreatedDate = now
	cfg.UpdatedDate = now

	valueJSON, err := encodeValues(cfg.Value)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO app_configs (id, key, value, created_date, updated_date) VALUES (?, ?, ?, ?, ?)`,
		cfg.ID, string(cfg.Key), valueJSON, cfg.CreatedDate, cfg.UpdatedDate)
	if err != nil {
		return fmt.Errorf("create config: %w", err)
	}
	return nil
}

// UpdateConfig replaces the stored value list. Last write wins.
func (s *SQLiteStore) UpdateConfig(ctx context.Context, id string, values []string) (*models.AppConfig, error) {
	valueJSON, err := encodeValues(values)
	if err != nil {
		return nil, err
	}
	result, err := s.db.ExecContext(ctx,
		"UPDATE app_configs SET value=?, updated_date=? WHERE id=?", valueJSON, time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("update config: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("config %s: %w", id, ErrNotFound)
	}

	configs, err := s.queryConfigs(ctx, "SELECT id, key, value, created_date, updated_date FROM app_configs WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(configs) == 0 {
		return nil, fmt.Errorf("config %s: %w", id, ErrNotFound)
	}
	return configs[0], nil
}

func (s *SQLiteStore) DeleteConfig(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM app_configs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete config: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("config %s: %w", id, ErrNotFound)
	}
	return nil
}
