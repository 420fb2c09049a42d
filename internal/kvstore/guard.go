package kvstore

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	shelferrors "github.com/Aman-CERP/barshelf/internal/errors"
)

// GuardedStore puts a circuit breaker in front of Put. Once the breaker
// opens, writes fail fast with a persistence error until it half-opens.
// Reads are never blocked: a failed read is just a miss for the caller.
type GuardedStore struct {
	Store
	breaker *shelferrors.CircuitBreaker
	logger  *slog.Logger

	tripped atomic.Bool
}

// NewGuarded wraps s. A nil breaker uses the defaults (5 failures, 30s).
func NewGuarded(s Store, breaker *shelferrors.CircuitBreaker, logger *slog.Logger) *GuardedStore {
	if breaker == nil {
		breaker = shelferrors.NewCircuitBreaker("kvstore")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GuardedStore{Store: s, breaker: breaker, logger: logger}
}

// Put implements Store.
func (g *GuardedStore) Put(ctx context.Context, key string, value []byte, opts PutOptions) error {
	err := g.breaker.Execute(func() error {
		return g.Store.Put(ctx, key, value, opts)
	})
	switch {
	case err == nil:
		if g.tripped.CompareAndSwap(true, false) {
			g.logger.Info("kvstore_writes_resumed", slog.String("breaker", g.breaker.Name()))
		}
		return nil
	case errors.Is(err, shelferrors.ErrCircuitOpen):
		if g.tripped.CompareAndSwap(false, true) {
			g.logger.Warn("kvstore_writes_suspended",
				slog.String("breaker", g.breaker.Name()),
				slog.Int("failures", g.breaker.Failures()))
		}
		return shelferrors.PersistenceError("store writes suspended", err).WithDetail("key", key)
	default:
		return shelferrors.PersistenceError("store write failed", err).WithDetail("key", key)
	}
}

// Breaker exposes the breaker state for status reporting.
func (g *GuardedStore) Breaker() *shelferrors.CircuitBreaker {
	return g.breaker
}
