package kvstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// expiryHeaderLen is the big-endian expiry prefix (unix nanos, 0 = none)
// stored in front of every pebble value.
const expiryHeaderLen = 8

var pebbleWriteOptions = pebble.WriteOptions{Sync: false}

// PebbleStore is a Store on an embedded pebble LSM. Expired keys are
// dropped when read.
type PebbleStore struct {
	db  *pebble.DB
	now func() time.Time

	mu     sync.RWMutex
	closed bool
}

// NewPebble opens a pebble database in dir. A nil fs uses the OS filesystem;
// tests pass vfs.NewMem().
func NewPebble(dir string, fs vfs.FS, opts ...Option) (*PebbleStore, error) {
	popts := pebble.Options{}
	if fs != nil {
		popts.FS = fs
	}
	db, err := pebble.Open(dir, &popts)
	if err != nil {
		return nil, fmt.Errorf("open pebble %s: %w", dir, err)
	}
	o := applyOptions(opts)
	return &PebbleStore{db: db, now: o.now}, nil
}

// Get implements Store.
func (p *PebbleStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, false, ErrClosed
	}

	raw, closer, err := p.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	defer closer.Close()

	if len(raw) < expiryHeaderLen {
		return nil, false, fmt.Errorf("get %s: truncated value", key)
	}
	exp := int64(binary.BigEndian.Uint64(raw[:expiryHeaderLen]))
	if exp > 0 && p.now().UnixNano() >= exp {
		_ = p.db.Delete([]byte(key), &pebbleWriteOptions)
		return nil, false, nil
	}
	// raw is only valid until closer.Close.
	out := make([]byte, len(raw)-expiryHeaderLen)
	copy(out, raw[expiryHeaderLen:])
	return out, true, nil
}

// Put implements Store.
func (p *PebbleStore) Put(ctx context.Context, key string, value []byte, opts PutOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	buf := make([]byte, expiryHeaderLen+len(value))
	if exp := expiryFor(p.now(), opts); !exp.IsZero() {
		binary.BigEndian.PutUint64(buf, uint64(exp.UnixNano()))
	}
	copy(buf[expiryHeaderLen:], value)
	if err := p.db.Set([]byte(key), buf, &pebbleWriteOptions); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Close implements Store.
func (p *PebbleStore) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.db.Close()
}
