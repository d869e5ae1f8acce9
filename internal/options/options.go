// Package options is the single access point for the admin-configurable
// vocabularies (plugin names, issue categories, statuses). Consumers receive a
// Provider instead of querying the store themselves.
package options

import (
	"context"
	"log/slog"
	"slices"

	"github.com/joescharf/supportdesk/internal/models"
)

// ConfigStore is the subset of store.Store the options package needs.
type ConfigStore interface {
	FilterConfigs(ctx context.Context, key models.OptionKey) ([]*models.AppConfig, error)
	CreateConfig(ctx context.Context, cfg *models.AppConfig) error
	UpdateConfig(ctx context.Context, id string, values []string) (*models.AppConfig, error)
}

// Defaults returns the fallback vocabulary for key, used when no config
// record exists or the store cannot be read.
func Defaults(key models.OptionKey) []string {
	if key == models.StatusOptions {
		statuses := models.Statuses()
		out := make([]string, len(statuses))
		for i, s := range statuses {
			out[i] = string(s)
		}
		return out
	}
	return []string{}
}

// Vocabulary is the full set of selectable values for forms and filters.
type Vocabulary struct {
	Plugins    []string        `json:"plugins"`
	Categories []string        `json:"categories"`
	Statuses   []models.Status `json:"statuses"`
}

// Provider reads vocabularies with fallback defaults.
type Provider struct {
	store  ConfigStore
	logger *slog.Logger
}

// NewProvider creates a Provider. A nil logger uses slog.Default().
func NewProvider(s ConfigStore, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{store: s, logger: logger}
}

// Values returns the configured list for key. The first record for a key wins.
func (p *Provider) Values(ctx context.Context, key models.OptionKey) []string {
	configs, err := p.store.FilterConfigs(ctx, key)
	if err != nil {
		p.logger.Warn("failed to load options, using defaults", "key", key, "error", err)
		return Defaults(key)
	}
	if len(configs) == 0 {
		return Defaults(key)
	}
	return slices.Clone(configs[0].Value)
}

// Statuses returns the configured status order. Values that are not a known
// status are dropped; an empty result falls back to every known status.
func (p *Provider) Statuses(ctx context.Context) []models.Status {
	var out []models.Status
	for _, raw := range p.Values(ctx, models.StatusOptions) {
		st, err := models.ParseStatus(raw)
		if err != nil || raw == "" {
			p.logger.Warn("ignoring unknown status option", "value", raw)
			continue
		}
		if !slices.Contains(out, st) {
			out = append(out, st)
		}
	}
	if len(out) == 0 {
		return models.Statuses()
	}
	return out
}

// Vocabulary loads all three vocabularies.
func (p *Provider) Vocabulary(ctx context.Context) Vocabulary {
	return Vocabulary{
		Plugins:    p.Values(ctx, models.PluginOptions),
		Categories: p.Values(ctx, models.CategoryOptions),
		Statuses:   p.Statuses(ctx),
	}
}
