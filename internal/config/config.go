package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// CurrentVersion is the config schema version written by WriteYAML.
const CurrentVersion = 1

// Config represents the complete barshelf configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Upstream  UpstreamConfig  `yaml:"upstream" json:"upstream"`
	Catalog   CatalogConfig   `yaml:"catalog" json:"catalog"`
	Cache     CacheConfig     `yaml:"cache" json:"cache"`
	RateLimit RateLimitConfig `yaml:"ratelimit" json:"ratelimit"`
	Store     StoreConfig     `yaml:"store" json:"store"`
	Search    SearchConfig    `yaml:"search" json:"search"`
	Server    ServerConfig    `yaml:"server" json:"server"`
	Async     AsyncConfig     `yaml:"async" json:"async"`
}

// UpstreamConfig configures where catalog rows come from. When CSVPath is
// set the local file is used instead of the spreadsheet API.
type UpstreamConfig struct {
	SpreadsheetID string `yaml:"spreadsheet_id" json:"spreadsheet_id"`
	// Range is the A1 range holding the header row and the data.
	Range    string `yaml:"range" json:"range"`
	Endpoint string `yaml:"api_base" json:"api_base"`
	APIKey   string `yaml:"api_key" json:"-"`
	// Token is a static bearer token for private sheets.
	Token             string        `yaml:"token" json:"-"`
	RequestsPerSecond float64       `yaml:"requests_per_second" json:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout"`
	CSVPath           string        `yaml:"csv_path" json:"csv_path"`
	// WatchDebounce delays the reload after the CSV file changes.
	WatchDebounce time.Duration `yaml:"watch_debounce" json:"watch_debounce"`
}

// CatalogConfig configures the catalog loader.
type CatalogConfig struct {
	// TTL is how long a built catalog is served. Zero or negative: forever.
	TTL          time.Duration `yaml:"ttl" json:"ttl"`
	KeepDetails  bool          `yaml:"keep_details" json:"keep_details"`
	PersistKey   string        `yaml:"persist_key" json:"persist_key"`
	StoreTimeout time.Duration `yaml:"store_timeout" json:"store_timeout"`
}

// FamilyConfig sizes one in-memory result cache.
type FamilyConfig struct {
	TTL      time.Duration `yaml:"ttl" json:"ttl"`
	Capacity int           `yaml:"capacity" json:"capacity"`
}

// CacheConfig configures the list and item result caches.
type CacheConfig struct {
	List         FamilyConfig  `yaml:"list" json:"list"`
	Item         FamilyConfig  `yaml:"item" json:"item"`
	PersistTTL   time.Duration `yaml:"persist_ttl" json:"persist_ttl"`
	StoreTimeout time.Duration `yaml:"store_timeout" json:"store_timeout"`
}

// RateLimitConfig configures per-identity admission.
type RateLimitConfig struct {
	// Limit is requests per identity per window. Zero disables limiting.
	Limit          int           `yaml:"limit" json:"limit"`
	Window         time.Duration `yaml:"window" json:"window"`
	SyncStep       int           `yaml:"sync_step" json:"sync_step"`
	PruneBatch     int           `yaml:"prune_batch" json:"prune_batch"`
	PruneThreshold int           `yaml:"prune_threshold" json:"prune_threshold"`
	PruneInterval  time.Duration `yaml:"prune_interval" json:"prune_interval"`
}

// ValkeyConfig locates a shared valkey server.
type ValkeyConfig struct {
	Address  string `yaml:"address" json:"address"`
	Password string `yaml:"password" json:"-"`
	DB       int    `yaml:"db" json:"db"`
	Prefix   string `yaml:"prefix" json:"prefix"`
}

// StoreConfig selects the persistent store.
type StoreConfig struct {
	// Backend is sqlite, pebble, valkey or memory.
	Backend string       `yaml:"backend" json:"backend"`
	Dir     string       `yaml:"dir" json:"dir"`
	Valkey  ValkeyConfig `yaml:"valkey" json:"valkey"`
	// BreakerFailures consecutive write failures suspend writes for
	// BreakerReset.
	BreakerFailures int           `yaml:"breaker_failures" json:"breaker_failures"`
	BreakerReset    time.Duration `yaml:"breaker_reset" json:"breaker_reset"`
}

// SearchConfig configures queries and paging.
type SearchConfig struct {
	// VerifyFuzzy drops prefix/n-gram candidates that do not contain the
	// query token.
	VerifyFuzzy     bool `yaml:"verify_fuzzy" json:"verify_fuzzy"`
	DefaultPageSize int  `yaml:"default_page_size" json:"default_page_size"`
	MaxPageSize     int  `yaml:"max_page_size" json:"max_page_size"`
}

// ServerConfig configures the daemon.
type ServerConfig struct {
	SocketPath  string `yaml:"socket_path" json:"socket_path"`
	PIDPath     string `yaml:"pid_path" json:"pid_path"`
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
	LogLevel    string `yaml:"log_level" json:"log_level"`
}

// AsyncConfig configures background tasks.
type AsyncConfig struct {
	TaskTimeout   time.Duration `yaml:"task_timeout" json:"task_timeout"`
	MaxConcurrent int           `yaml:"max_concurrent" json:"max_concurrent"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		Upstream: UpstreamConfig{
			Range:             "Cocktails!A1:N",
			Endpoint:          "https://sheets.googleapis.com",
			RequestsPerSecond: 1,
			Timeout:           30 * time.Second,
			WatchDebounce:     500 * time.Millisecond,
		},
		Catalog: CatalogConfig{
			TTL:          10 * time.Minute,
			PersistKey:   "catalog:latest",
			StoreTimeout: 2 * time.Second,
		},
		Cache: CacheConfig{
			List:         FamilyConfig{TTL: 5 * time.Minute, Capacity: 256},
			Item:         FamilyConfig{TTL: 10 * time.Minute, Capacity: 512},
			PersistTTL:   time.Hour,
			StoreTimeout: 250 * time.Millisecond,
		},
		RateLimit: RateLimitConfig{
			Limit:          60,
			Window:         time.Minute,
			SyncStep:       5,
			PruneBatch:     16,
			PruneThreshold: 10000,
			PruneInterval:  30 * time.Second,
		},
		Store: StoreConfig{
			Backend:         "sqlite",
			Dir:             DefaultDataDir(),
			Valkey:          ValkeyConfig{Address: "127.0.0.1:6379", Prefix: "barshelf"},
			BreakerFailures: 5,
			BreakerReset:    30 * time.Second,
		},
		Search: SearchConfig{
			VerifyFuzzy:     true,
			DefaultPageSize: 24,
			MaxPageSize:     100,
		},
		Server: ServerConfig{
			SocketPath: DefaultSocketPath(),
			PIDPath:    DefaultPIDPath(),
			LogLevel:   "info",
		},
		Async: AsyncConfig{
			TaskTimeout:   10 * time.Second,
			MaxConcurrent: 64,
		},
	}
}

// Load loads configuration for the project in dir.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config ($XDG_CONFIG_HOME/barshelf/config.yaml)
//  3. Project config (barshelf.yaml in dir)
//  4. Environment variables (BARSHELF_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFile loads defaults overlaid with a single explicit file and the
// environment, as used by --config.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadFromFile loads barshelf.yaml or barshelf.yml from dir if present.
func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{"barshelf.yaml", "barshelf.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return c.loadYAML(path)
		}
	}
	return nil
}

// loadYAML overlays the keys present in path onto c. Keys absent from the
// file keep their current value; explicit zeros are honored.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies BARSHELF_* environment variable overrides.
// Unparseable values are ignored.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("BARSHELF_SPREADSHEET_ID"); v != "" {
		c.Upstream.SpreadsheetID = v
	}
	if v := os.Getenv("BARSHELF_RANGE"); v != "" {
		c.Upstream.Range = v
	}
	if v := os.Getenv("BARSHELF_API_KEY"); v != "" {
		c.Upstream.APIKey = v
	}
	if v := os.Getenv("BARSHELF_TOKEN"); v != "" {
		c.Upstream.Token = v
	}
	if v := os.Getenv("BARSHELF_CSV_PATH"); v != "" {
		c.Upstream.CSVPath = v
	}
	if v := os.Getenv("BARSHELF_CATALOG_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Catalog.TTL = d
		}
	}
	if v := os.Getenv("BARSHELF_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimit.Limit = n
		}
	}
	if v := os.Getenv("BARSHELF_STORE_BACKEND"); v != "" {
		c.Store.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("BARSHELF_STORE_DIR"); v != "" {
		c.Store.Dir = v
	}
	if v := os.Getenv("BARSHELF_VALKEY_ADDR"); v != "" {
		c.Store.Valkey.Address = v
	}
	if v := os.Getenv("BARSHELF_VALKEY_PASSWORD"); v != "" {
		c.Store.Valkey.Password = v
	}
	if v := os.Getenv("BARSHELF_VERIFY_FUZZY"); v != "" {
		c.Search.VerifyFuzzy = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("BARSHELF_SOCKET_PATH"); v != "" {
		c.Server.SocketPath = v
	}
	if v := os.Getenv("BARSHELF_METRICS_ADDR"); v != "" {
		c.Server.MetricsAddr = v
	}
	if v := os.Getenv("BARSHELF_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Upstream.Range == "" {
		return fmt.Errorf("upstream.range must not be empty")
	}
	if c.Upstream.RequestsPerSecond < 0 {
		return fmt.Errorf("upstream.requests_per_second must be non-negative, got %g", c.Upstream.RequestsPerSecond)
	}
	if c.Catalog.PersistKey == "" {
		return fmt.Errorf("catalog.persist_key must not be empty")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("ratelimit.window must be positive, got %s", c.RateLimit.Window)
	}
	if c.RateLimit.SyncStep < 1 {
		return fmt.Errorf("ratelimit.sync_step must be at least 1, got %d", c.RateLimit.SyncStep)
	}
	if c.RateLimit.PruneBatch < 1 || c.RateLimit.PruneThreshold < 1 {
		return fmt.Errorf("ratelimit.prune_batch and ratelimit.prune_threshold must be positive")
	}

	validBackends := map[string]bool{"sqlite": true, "pebble": true, "valkey": true, "memory": true}
	if !validBackends[c.Store.Backend] {
		return fmt.Errorf("store.backend must be 'sqlite', 'pebble', 'valkey', or 'memory', got %s", c.Store.Backend)
	}
	if (c.Store.Backend == "sqlite" || c.Store.Backend == "pebble") && c.Store.Dir == "" {
		return fmt.Errorf("store.dir is required for the %s backend", c.Store.Backend)
	}
	if c.Store.Backend == "valkey" && c.Store.Valkey.Address == "" {
		return fmt.Errorf("store.valkey.address is required for the valkey backend")
	}

	if c.Search.MaxPageSize < 1 {
		return fmt.Errorf("search.max_page_size must be positive, got %d", c.Search.MaxPageSize)
	}
	if c.Search.DefaultPageSize < 1 || c.Search.DefaultPageSize > c.Search.MaxPageSize {
		return fmt.Errorf("search.default_page_size must be between 1 and %d, got %d", c.Search.MaxPageSize, c.Search.DefaultPageSize)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}
	return nil
}

// CheckSource reports whether an upstream source is configured. Commands
// that only inspect config or talk to a running daemon do not need one.
func (c *Config) CheckSource() error {
	if c.Upstream.CSVPath == "" && c.Upstream.SpreadsheetID == "" {
		return fmt.Errorf("upstream.spreadsheet_id or upstream.csv_path is required")
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
