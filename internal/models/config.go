package models

import (
	"fmt"
	"time"
)

// OptionKey names an admin-configurable vocabulary.
type OptionKey string

const (
	PluginOptions   OptionKey = "plugin_options"
	CategoryOptions OptionKey = "category_options"
	StatusOptions   OptionKey = "status_options"
)

// OptionKeys returns the known vocabulary keys.
func OptionKeys() []OptionKey {
	return []OptionKey{PluginOptions, CategoryOptions, StatusOptions}
}

// ParseOptionKey validates a raw vocabulary key.
func ParseOptionKey(raw string) (OptionKey, error) {
	for _, k := range OptionKeys() {
		if string(k) == raw {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown option key %q (use: plugin_options, category_options, status_options)", raw)
}

// AppConfig stores one vocabulary: the ordered list of selectable values for a key.
type AppConfig struct {
	ID          string    `json:"id"`
	Key         OptionKey `json:"key"`
	Value       []string  `json:"value"`
	CreatedDate time.Time `json:"created_date"`
	UpdatedDate time.Time `json:"updated_date"`
}
