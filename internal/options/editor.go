package options

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/joescharf/supportdesk/internal/models"
)

// Editor edits one vocabulary in memory and saves it back as a whole.
type Editor struct {
	store  ConfigStore
	key    models.OptionKey
	id     string
	values []string
}

// Load reads the current vocabulary for key. A missing record yields an
// editor seeded with the defaults; Save then creates the record.
func Load(ctx context.Context, s ConfigStore, key models.OptionKey) (*Editor, error) {
	configs, err := s.FilterConfigs(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	e := &Editor{store: s, key: key}
	if len(configs) > 0 {
		e.id = configs[0].ID
		e.values = slices.Clone(configs[0].Value)
	} else {
		e.values = Defaults(key)
	}
	return e, nil
}

// Key returns the vocabulary being edited.
func (e *Editor) Key() models.OptionKey { return e.key }

// Values returns a copy of the current list.
func (e *Editor) Values() []string { return slices.Clone(e.values) }

// Add appends a trimmed value. Blank values are rejected.
func (e *Editor) Add(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("option value is empty")
	}
	if err := e.check(value); err != nil {
		return err
	}
	e.values = append(e.values, value)
	return nil
}

// Rename replaces the value at index.
func (e *Editor) Rename(index int, value string) error {
	if index < 0 || index >= len(e.values) {
		return fmt.Errorf("option index %d out of range", index)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("option value is empty")
	}
	if err := e.check(value); err != nil {
		return err
	}
	e.values[index] = value
	return nil
}

// Remove deletes the value at index.
func (e *Editor) Remove(index int) error {
	if index < 0 || index >= len(e.values) {
		return fmt.Errorf("option index %d out of range", index)
	}
	e.values = slices.Delete(e.values, index, index+1)
	return nil
}

// IndexOf returns the position of value, or -1.
func (e *Editor) IndexOf(value string) int {
	return slices.Index(e.values, value)
}

// Replace swaps the whole list, trimming and dropping blank entries.
func (e *Editor) Replace(values []string) error {
	next := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if err := e.check(v); err != nil {
			return err
		}
		next = append(next, v)
	}
	e.values = next
	return nil
}

// check keeps status_options inside the status enumeration.
func (e *Editor) check(value string) error {
	if e.key != models.StatusOptions {
		return nil
	}
	if _, err := models.ParseStatus(value); err != nil {
		return err
	}
	return nil
}

// Save writes the list back. Last write wins.
func (e *Editor) Save(ctx context.Context) (*models.AppConfig, error) {
	if e.id == "" {
		cfg := &models.AppConfig{Key: e.key, Value: e.Values()}
		if err := e.store.CreateConfig(ctx, cfg); err != nil {
			return nil, fmt.Errorf("save %s: %w", e.key, err)
		}
		e.id = cfg.ID
		return cfg, nil
	}
	cfg, err := e.store.UpdateConfig(ctx, e.id, e.Values())
	if err != nil {
		return nil, fmt.Errorf("save %s: %w", e.key, err)
	}
	return cfg, nil
}
