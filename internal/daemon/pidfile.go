package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/gofrs/flock"
)

var (
	// ErrPIDFileNotFound is returned when the PID file doesn't exist.
	ErrPIDFileNotFound = errors.New("PID file not found")

	// ErrAlreadyRunning is returned by Acquire when another daemon holds the lock.
	ErrAlreadyRunning = errors.New("daemon already running")
)

// PIDFile manages a daemon process ID file guarded by an advisory lock, so
// two daemons never serve the same socket.
type PIDFile struct {
	path string
	lock *flock.Flock
}

// NewPIDFile creates a new PIDFile manager for the given path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{path: path, lock: flock.New(path + ".lock")}
}

// Path returns the PID file path.
func (p *PIDFile) Path() string {
	return p.path
}

// Acquire takes the lock without blocking and writes the current PID.
func (p *PIDFile) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return fmt.Errorf("failed to create PID directory: %w", err)
	}
	locked, err := p.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", p.lock.Path(), err)
	}
	if !locked {
		if pid, err := p.Read(); err == nil {
			return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
		}
		return ErrAlreadyRunning
	}
	if err := p.Write(); err != nil {
		_ = p.lock.Unlock()
		return err
	}
	return nil
}

// Release removes the PID file and drops the lock.
func (p *PIDFile) Release() error {
	err := p.Remove()
	if uerr := p.lock.Unlock(); uerr != nil && err == nil {
		err = fmt.Errorf("failed to unlock %s: %w", p.lock.Path(), uerr)
	}
	return err
}

// Write writes the current process's PID to the file.
func (p *PIDFile) Write() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return fmt.Errorf("failed to create PID directory: %w", err)
	}
	data := []byte(strconv.Itoa(os.Getpid()))
	if err := os.WriteFile(p.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

// Read reads the PID from the file.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrPIDFileNotFound
		}
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file: %w", err)
	}
	return pid, nil
}

// Remove deletes the PID file.
// Returns nil if the file doesn't exist.
func (p *PIDFile) Remove() error {
	err := os.Remove(p.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// IsRunning checks if a process with the stored PID is running.
func (p *PIDFile) IsRunning() bool {
	pid, err := p.Read()
	if err != nil {
		return false
	}
	return processExists(pid)
}

// Signal sends a signal to the process with the stored PID.
func (p *PIDFile) Signal(sig syscall.Signal) error {
	pid, err := p.Read()
	if err != nil {
		return fmt.Errorf("failed to read PID: %w", err)
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}
	if err := process.Signal(sig); err != nil {
		return fmt.Errorf("failed to signal process %d: %w", pid, err)
	}
	return nil
}

// processExists checks if a process with the given PID exists.
func processExists(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix FindProcess always succeeds; signal 0 probes for existence.
	return process.Signal(syscall.Signal(0)) == nil
}
