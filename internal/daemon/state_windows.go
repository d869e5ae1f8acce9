//go:build windows

package daemon

import (
	"fmt"
	"os"
	"os/exec"
)

// Detach is a no-op on Windows.
func Detach(_ *exec.Cmd) {}

// ShutdownSignals are the signals a foreground server shuts down on.
func ShutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// processAlive reports whether pid exists. FindProcess opens a handle on
// Windows and fails for unknown pids.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = proc.Release()
	return true
}

// Terminate stops the recorded server. Windows has no SIGTERM, so this kills.
func (f *StateFile) Terminate() error { return f.kill() }

// Kill stops the recorded server immediately.
func (f *StateFile) Kill() error { return f.kill() }

func (f *StateFile) kill() error {
	rec, err := f.Read()
	if err != nil {
		return fmt.Errorf("read state file: %w", err)
	}
	proc, err := os.FindProcess(rec.PID)
	if err != nil {
		return fmt.Errorf("find process %d: %w", rec.PID, err)
	}
	return proc.Kill()
}
