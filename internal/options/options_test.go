package options

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/supportdesk/internal/models"
)

type fakeConfigStore struct {
	configs []*models.AppConfig
	err     error
	nextID  int
}

func (f *fakeConfigStore) FilterConfigs(_ context.Context, key models.OptionKey) ([]*models.AppConfig, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.AppConfig
	for _, c := range f.configs {
		if c.Key == key {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeConfigStore) CreateConfig(_ context.Context, cfg *models.AppConfig) error {
	f.nextID++
	cfg.ID = fmt.Sprintf("cfg-%d", f.nextID)
	f.configs = append(f.configs, cfg)
	return nil
}

func (f *fakeConfigStore) UpdateConfig(_ context.Context, id string, values []string) (*models.AppConfig, error) {
	for _, c := range f.configs {
		if c.ID == id {
			c.Value = values
			return c, nil
		}
	}
	return nil, errors.New("not found")
}

func TestProvider_Defaults(t *testing.T) {
	p := NewProvider(&fakeConfigStore{}, nil)
	ctx := context.Background()

	assert.Equal(t, []string{"Open", "Resolved", "Escalated"}, p.Values(ctx, models.StatusOptions))
	assert.Empty(t, p.Values(ctx, models.PluginOptions))
	assert.Equal(t, models.Statuses(), p.Statuses(ctx))
}

func TestProvider_StoreErrorFallsBack(t *testing.T) {
	p := NewProvider(&fakeConfigStore{err: errors.New("db down")}, nil)
	vocab := p.Vocabulary(context.Background())

	assert.Empty(t, vocab.Plugins)
	assert.Empty(t, vocab.Categories)
	assert.Equal(t, models.Statuses(), vocab.Statuses)
}

func TestProvider_ConfiguredValues(t *testing.T) {
	fs := &fakeConfigStore{configs: []*models.AppConfig{
		{ID: "1", Key: models.PluginOptions, Value: []string{"Checkout Plus", "Bookings"}},
		{ID: "2", Key: models.StatusOptions, Value: []string{"Escalated", "Open", "Archived", "open"}},
	}}
	p := NewProvider(fs, nil)
	ctx := context.Background()

	assert.Equal(t, []string{"Checkout Plus", "Bookings"}, p.Values(ctx, models.PluginOptions))
	assert.Equal(t, []models.Status{models.StatusEscalated, models.StatusOpen}, p.Statuses(ctx))
}

func TestEditor(t *testing.T) {
	fs := &fakeConfigStore{}
	ctx := context.Background()

	e, err := Load(ctx, fs, models.CategoryOptions)
	require.NoError(t, err)
	assert.Empty(t, e.Values())

	require.NoError(t, e.Add("  Bug  "))
	require.NoError(t, e.Add("Feature Request"))
	assert.Error(t, e.Add("   "))
	require.NoError(t, e.Rename(1, "Question"))
	assert.Error(t, e.Rename(5, "x"))
	assert.Equal(t, []string{"Bug", "Question"}, e.Values())

	cfg, err := e.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cfg-1", cfg.ID)
	assert.Equal(t, []string{"Bug", "Question"}, cfg.Value)

	require.NoError(t, e.Remove(0))
	assert.Error(t, e.Remove(3))
	cfg, err = e.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cfg-1", cfg.ID, "second save updates the same record")
	assert.Equal(t, []string{"Question"}, cfg.Value)
	assert.Len(t, fs.configs, 1)
}

func TestEditor_StatusOptionsRestricted(t *testing.T) {
	e, err := Load(context.Background(), &fakeConfigStore{}, models.StatusOptions)
	require.NoError(t, err)
	assert.Equal(t, []string{"Open", "Resolved", "Escalated"}, e.Values())

	err = e.Add("Pending")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown status")

	require.NoError(t, e.Replace([]string{"Resolved", " ", "Open"}))
	assert.Equal(t, []string{"Resolved", "Open"}, e.Values())
	assert.Equal(t, 1, e.IndexOf("Open"))
}
