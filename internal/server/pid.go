package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// pidFile records the PID of the running daemon so a second instance can
// detect it and a stop command can signal it.
type pidFile struct {
	path string
}

func newPIDFile() (*pidFile, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolving home directory: %w", err)
	}

	pidDir := filepath.Join(homeDir, ".clipvault")
	if err := os.MkdirAll(pidDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating pid directory: %w", err)
	}

	return &pidFile{
		path: filepath.Join(pidDir, "clipvault.pid"),
	}, nil
}

func (p *pidFile) write() error {
	return os.WriteFile(p.path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func (p *pidFile) read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid pid file contents: %w", err)
	}
	return pid, nil
}

func (p *pidFile) remove() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing pid file: %w", err)
	}
	return nil
}

// isRunning reports whether a process with the given PID exists. On Unix
// FindProcess always succeeds, so probe with signal 0.
func isRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// StopRunning signals a previously started daemon, if any, and cleans up
// its pid file. Returns the PID that was signalled, or 0 when nothing was
// running.
func StopRunning() (int, error) {
	pid, err := newPIDFile()
	if err != nil {
		return 0, err
	}

	old, err := pid.read()
	if err != nil {
		return 0, err
	}
	if old == 0 || !isRunning(old) {
		_ = pid.remove()
		return 0, nil
	}

	process, err := os.FindProcess(old)
	if err != nil {
		return 0, fmt.Errorf("finding process %d: %w", old, err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		if err := process.Kill(); err != nil {
			return 0, fmt.Errorf("stopping process %d: %w", old, err)
		}
	}
	return old, nil
}
