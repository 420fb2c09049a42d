package kvstore

import (
	"fmt"
	"path/filepath"
)

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendPebble = "pebble"
	BackendValkey = "valkey"
	BackendMemory = "memory"
)

// Config selects and configures a backend.
type Config struct {
	Backend string
	// Dir holds the sqlite file or the pebble directory.
	Dir    string
	Valkey ValkeyConfig
}

// Open creates the configured backend.
func Open(cfg Config, opts ...Option) (Store, error) {
	switch cfg.Backend {
	case "", BackendSQLite:
		return NewSQLite(filepath.Join(cfg.Dir, "barshelf.db"), opts...)
	case BackendPebble:
		return NewPebble(filepath.Join(cfg.Dir, "pebble"), nil, opts...)
	case BackendValkey:
		return NewValkey(cfg.Valkey)
	case BackendMemory:
		return NewMemory(opts...), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
