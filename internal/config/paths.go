package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/adrg/xdg"
)

const appName = "barshelf"

// GetUserConfigPath returns $XDG_CONFIG_HOME/barshelf/config.yaml.
func GetUserConfigPath() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// DefaultDataDir is where the local store backends keep their files.
func DefaultDataDir() string {
	return filepath.Join(xdg.DataHome, appName)
}

// DefaultSocketPath is the daemon socket, under the runtime directory when
// the platform has one.
func DefaultSocketPath() string {
	return filepath.Join(runtimeDir(), "barshelf.sock")
}

// DefaultPIDPath is the daemon PID file.
func DefaultPIDPath() string {
	return filepath.Join(runtimeDir(), "barshelf.pid")
}

func runtimeDir() string {
	if xdg.RuntimeDir != "" {
		return filepath.Join(xdg.RuntimeDir, appName)
	}
	return filepath.Join(os.TempDir(), appName+"-"+strconv.Itoa(os.Getuid()))
}
