package daemon

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no socket", func(c *Config) { c.SocketPath = "" }},
		{"no pid path", func(c *Config) { c.PIDPath = "" }},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }},
		{"zero grace", func(c *Config) { c.ShutdownGracePeriod = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfig_EnsureDir(t *testing.T) {
	root := t.TempDir()
	cfg := DefaultConfig()
	cfg.SocketPath = filepath.Join(root, "run", "barshelf.sock")
	cfg.PIDPath = filepath.Join(root, "pid", "barshelf.pid")

	require.NoError(t, cfg.EnsureDir())
	assert.DirExists(t, filepath.Join(root, "run"))
	assert.DirExists(t, filepath.Join(root, "pid"))
}
