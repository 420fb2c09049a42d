package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const appName = "barshelf"

// DefaultLogDir returns $XDG_STATE_HOME/barshelf/logs.
func DefaultLogDir() string {
	return filepath.Join(xdg.StateHome, appName, "logs")
}

// DefaultLogPath returns the daemon log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "server.log")
}

// FindLogFile returns explicit when it exists, else the default log path.
func FindLogFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit, nil
		}
		return "", fmt.Errorf("log file not found: %s", explicit)
	}

	path := DefaultLogPath()
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("no log file found; run with --debug first (expected at %s)", path)
}
