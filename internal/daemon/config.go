// Package daemon serves the catalog over a Unix socket. One daemon holds the
// catalog, caches and rate-limit buckets in memory; CLI invocations talk to
// it with JSON-RPC 2.0 instead of rebuilding state on every call.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds configuration for the daemon service.
type Config struct {
	// SocketPath is the Unix domain socket path for IPC.
	SocketPath string

	// PIDPath is the file path for storing the daemon's process ID. The
	// single-instance lock lives next to it.
	PIDPath string

	// Timeout is the maximum duration for client-daemon communication.
	// Default: 30s
	Timeout time.Duration

	// ShutdownGracePeriod is the time to wait for graceful shutdown.
	// Default: 10s
	ShutdownGracePeriod time.Duration

	// MetricsAddr serves Prometheus metrics over HTTP when set.
	MetricsAddr string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	dir := filepath.Join(os.TempDir(), "barshelf")
	return Config{
		SocketPath:          filepath.Join(dir, "barshelf.sock"),
		PIDPath:             filepath.Join(dir, "barshelf.pid"),
		Timeout:             30 * time.Second,
		ShutdownGracePeriod: 10 * time.Second,
	}
}

// Validate checks that the configuration is valid.
func (c Config) Validate() error {
	if c.SocketPath == "" {
		return fmt.Errorf("socket path cannot be empty")
	}
	if c.PIDPath == "" {
		return fmt.Errorf("PID path cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.ShutdownGracePeriod <= 0 {
		return fmt.Errorf("shutdown grace period must be positive")
	}
	return nil
}

// EnsureDir creates the directory for socket and PID files if it doesn't exist.
func (c Config) EnsureDir() error {
	socketDir := filepath.Dir(c.SocketPath)
	if err := os.MkdirAll(socketDir, 0o700); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	// The PID file might live elsewhere.
	pidDir := filepath.Dir(c.PIDPath)
	if pidDir != socketDir {
		if err := os.MkdirAll(pidDir, 0o700); err != nil {
			return fmt.Errorf("failed to create PID directory: %w", err)
		}
	}
	return nil
}
