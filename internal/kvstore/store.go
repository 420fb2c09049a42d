// Package kvstore provides the persistent key-value stores barshelf uses for
// catalog blobs, layer-2 result cache entries and rate-limit counters.
//
// Every backend treats expiry the same way: a key past its expiry reads as
// absent. Writes are best effort from the caller's point of view.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("kvstore: closed")

// PutOptions controls a single write.
type PutOptions struct {
	// ExpireAfter sets a time-to-live. Zero or negative means no expiry.
	ExpireAfter time.Duration
}

// Store is a persistent key-value store.
type Store interface {
	// Get returns the value for key. A missing or expired key returns
	// found=false with a nil error.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Put writes value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte, opts PutOptions) error

	// Close releases the store's resources.
	Close() error
}

// Option configures the local backends.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func applyOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// GetJSON reads key and decodes it into dst. It reports found=false when the
// key is absent.
func GetJSON(ctx context.Context, s Store, key string, dst any) (bool, error) {
	data, found, err := s.Get(ctx, key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// PutJSON encodes v and writes it under key.
func PutJSON(ctx context.Context, s Store, key string, v any, opts PutOptions) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Put(ctx, key, data, opts)
}

// expiryFor returns the absolute expiry for a write at now, or the zero time.
func expiryFor(now time.Time, opts PutOptions) time.Time {
	if opts.ExpireAfter <= 0 {
		return time.Time{}
	}
	return now.Add(opts.ExpireAfter)
}
