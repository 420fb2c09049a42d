package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the user config at an empty temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	t.Cleanup(xdg.Reload)
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	xdg.Reload()
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

// =============================================================================
// Defaults
// =============================================================================

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	// Given: no configuration file exists
	cfg := NewConfig()

	// Then: all defaults should be applied
	require.NotNil(t, cfg)
	assert.Equal(t, "Cocktails!A1:N", cfg.Upstream.Range)
	assert.Equal(t, 10*time.Minute, cfg.Catalog.TTL)
	assert.Equal(t, "catalog:latest", cfg.Catalog.PersistKey)
	assert.Equal(t, 256, cfg.Cache.List.Capacity)
	assert.Equal(t, 60, cfg.RateLimit.Limit)
	assert.Equal(t, 5, cfg.RateLimit.SyncStep)
	assert.Equal(t, 16, cfg.RateLimit.PruneBatch)
	assert.Equal(t, 10000, cfg.RateLimit.PruneThreshold)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.PruneInterval)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.True(t, cfg.Search.VerifyFuzzy)
	assert.Equal(t, 10*time.Second, cfg.Async.TaskTimeout)
	assert.NoError(t, cfg.Validate())

	// No source until one is configured.
	assert.Error(t, cfg.CheckSource())
}

// =============================================================================
// Precedence
// =============================================================================

func TestLoad_Precedence(t *testing.T) {
	userDir := isolate(t)
	project := t.TempDir()

	// Given: a user config, a project config and an env override
	writeFile(t, filepath.Join(userDir, "barshelf", "config.yaml"), `
upstream:
  spreadsheet_id: user-sheet
catalog:
  ttl: 1h
ratelimit:
  limit: 10
`)
	writeFile(t, filepath.Join(project, "barshelf.yaml"), `
catalog:
  ttl: 5m
store:
  backend: memory
`)
	t.Setenv("BARSHELF_RATE_LIMIT", "99")

	// When
	cfg, err := Load(project)

	// Then: each layer wins over the one before it
	require.NoError(t, err)
	assert.Equal(t, "user-sheet", cfg.Upstream.SpreadsheetID)
	assert.Equal(t, 5*time.Minute, cfg.Catalog.TTL)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 99, cfg.RateLimit.Limit)
	// Untouched keys keep their defaults.
	assert.Equal(t, "catalog:latest", cfg.Catalog.PersistKey)
	assert.NoError(t, cfg.CheckSource())
}

func TestLoad_ExplicitZeroTTL(t *testing.T) {
	isolate(t)
	project := t.TempDir()
	writeFile(t, filepath.Join(project, "barshelf.yml"), "catalog:\n  ttl: 0s\nsearch:\n  verify_fuzzy: false\n")

	cfg, err := Load(project)

	require.NoError(t, err)
	assert.Zero(t, cfg.Catalog.TTL, "a zero TTL caches forever and must survive loading")
	assert.False(t, cfg.Search.VerifyFuzzy)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("BARSHELF_CSV_PATH", "/tmp/cocktails.csv")
	t.Setenv("BARSHELF_STORE_BACKEND", "Pebble")
	t.Setenv("BARSHELF_CATALOG_TTL", "90s")
	t.Setenv("BARSHELF_VERIFY_FUZZY", "0")
	t.Setenv("BARSHELF_LOG_LEVEL", "debug")

	cfg, err := Load(t.TempDir())

	require.NoError(t, err)
	assert.Equal(t, "/tmp/cocktails.csv", cfg.Upstream.CSVPath)
	assert.Equal(t, "pebble", cfg.Store.Backend)
	assert.Equal(t, 90*time.Second, cfg.Catalog.TTL)
	assert.False(t, cfg.Search.VerifyFuzzy)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
}

func TestLoad_InvalidYAML(t *testing.T) {
	isolate(t)
	project := t.TempDir()
	writeFile(t, filepath.Join(project, "barshelf.yaml"), "catalog: [not, a, map")

	_, err := Load(project)

	assert.ErrorContains(t, err, "failed to parse config file")
}

// =============================================================================
// Validation
// =============================================================================

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"unknown backend", func(c *Config) { c.Store.Backend = "redis" }, "store.backend"},
		{"valkey without address", func(c *Config) { c.Store.Backend = "valkey"; c.Store.Valkey.Address = "" }, "store.valkey.address"},
		{"zero window", func(c *Config) { c.RateLimit.Window = 0 }, "ratelimit.window"},
		{"zero sync step", func(c *Config) { c.RateLimit.SyncStep = 0 }, "ratelimit.sync_step"},
		{"page size above max", func(c *Config) { c.Search.DefaultPageSize = 500 }, "search.default_page_size"},
		{"bad log level", func(c *Config) { c.Server.LogLevel = "loud" }, "server.log_level"},
		{"empty range", func(c *Config) { c.Upstream.Range = "" }, "upstream.range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.errMsg)
		})
	}
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := NewConfig()
	cfg.Upstream.SpreadsheetID = "sheet-1"
	cfg.Catalog.TTL = 0

	require.NoError(t, cfg.WriteYAML(path))
	loaded, err := LoadFile(path)

	require.NoError(t, err)
	assert.Equal(t, "sheet-1", loaded.Upstream.SpreadsheetID)
	assert.Zero(t, loaded.Catalog.TTL)
	assert.Equal(t, cfg.Cache, loaded.Cache)
}

// =============================================================================
// Backups
// =============================================================================

func TestBackupFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	// Missing file: nothing to back up.
	backup, err := BackupFile(path, time.Now())
	require.NoError(t, err)
	assert.Empty(t, backup)

	writeFile(t, path, "version: 1\n")
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, err := BackupFile(path, start.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}

	backups, err := ListBackups(path)
	require.NoError(t, err)
	require.Len(t, backups, MaxBackups)
	assert.Equal(t, path+".bak.20250101-000400", backups[0])
}
