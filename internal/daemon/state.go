// Package daemon tracks a background `supportdesk serve` process through a
// small JSON state file.
package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrNotRunning is returned when no live server is recorded.
var ErrNotRunning = errors.New("server is not running")

// Record describes a background server.
type Record struct {
	PID     int       `json:"pid"`
	Port    int       `json:"port"`
	LogPath string    `json:"log_path,omitempty"`
	Started time.Time `json:"started"`
}

// URL returns the local address the server listens on.
func (r Record) URL() string {
	return fmt.Sprintf("http://localhost:%d", r.Port)
}

// StateFile stores the Record of the background server.
type StateFile struct {
	Path string
}

// NewStateFile returns a StateFile at path.
func NewStateFile(path string) *StateFile {
	return &StateFile{Path: path}
}

// Write saves rec, creating the parent directory if needed.
func (f *StateFile) Write(rec Record) error {
	if rec.PID <= 0 {
		return fmt.Errorf("invalid pid %d", rec.PID)
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.Path, append(data, '\n'), 0o644)
}

// Read loads the saved Record.
func (f *StateFile) Read() (Record, error) {
	var rec Record
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("invalid state file %s: %w", f.Path, err)
	}
	if rec.PID <= 0 {
		return rec, fmt.Errorf("invalid state file %s: missing pid", f.Path)
	}
	return rec, nil
}

// Remove deletes the state file. A missing file is not an error.
func (f *StateFile) Remove() error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Running returns the saved Record when its process is alive. A stale file
// (dead process) is removed.
func (f *StateFile) Running() (Record, error) {
	rec, err := f.Read()
	if errors.Is(err, os.ErrNotExist) {
		return rec, ErrNotRunning
	}
	if err != nil {
		return rec, err
	}
	if !processAlive(rec.PID) {
		_ = f.Remove()
		return rec, ErrNotRunning
	}
	return rec, nil
}
