//go:build !windows

package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// Detach puts a background server in its own session so it outlives the
// terminal that started it.
func Detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

// ShutdownSignals are the signals a foreground server shuts down on.
func ShutdownSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}

// processAlive sends signal 0, which only checks that pid exists.
func processAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

// Terminate asks the recorded server to shut down gracefully.
func (f *StateFile) Terminate() error { return f.signal(syscall.SIGTERM) }

// Kill stops the recorded server immediately.
func (f *StateFile) Kill() error { return f.signal(syscall.SIGKILL) }

func (f *StateFile) signal(sig syscall.Signal) error {
	rec, err := f.Read()
	if err != nil {
		return fmt.Errorf("read state file: %w", err)
	}
	return syscall.Kill(rec.PID, sig)
}
