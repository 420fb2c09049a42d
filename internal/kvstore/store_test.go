package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/pebble/vfs"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	shelferrors "github.com/Aman-CERP/barshelf/internal/errors"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock { return &testClock{now: time.Unix(1_700_000_000, 0)} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type backendFactory func(t *testing.T, clock *testClock) Store

func backends() map[string]backendFactory {
	return map[string]backendFactory{
		"memory": func(t *testing.T, clock *testClock) Store {
			return NewMemory(WithClock(clock.Now))
		},
		"sqlite": func(t *testing.T, clock *testClock) Store {
			s, err := NewSQLite(filepath.Join(t.TempDir(), "kv.db"), WithClock(clock.Now))
			require.NoError(t, err)
			return s
		},
		"sqlite-cgo": func(t *testing.T, clock *testClock) Store {
			db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "kv.db"))
			require.NoError(t, err)
			s, err := NewSQLiteDB(db, WithClock(clock.Now))
			require.NoError(t, err)
			return s
		},
		"pebble": func(t *testing.T, clock *testClock) Store {
			s, err := NewPebble("kv", vfs.NewMem(), WithClock(clock.Now))
			require.NoError(t, err)
			return s
		},
	}
}

// TS01: Every backend honors the Store contract
func TestStore_Contract(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := newTestClock()
			s := factory(t, clock)
			defer func() { _ = s.Close() }()

			// Missing key
			_, found, err := s.Get(ctx, "nope")
			require.NoError(t, err)
			assert.False(t, found)

			// Round trip and overwrite
			require.NoError(t, s.Put(ctx, "k", []byte("v1"), PutOptions{}))
			require.NoError(t, s.Put(ctx, "k", []byte("v2"), PutOptions{}))
			got, found, err := s.Get(ctx, "k")
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, []byte("v2"), got)

			// Expiry
			require.NoError(t, s.Put(ctx, "ttl", []byte("x"), PutOptions{ExpireAfter: time.Minute}))
			clock.Advance(59 * time.Second)
			_, found, err = s.Get(ctx, "ttl")
			require.NoError(t, err)
			assert.True(t, found)

			clock.Advance(time.Second)
			_, found, err = s.Get(ctx, "ttl")
			require.NoError(t, err)
			assert.False(t, found)

			// No expiry survives any amount of time
			clock.Advance(1000 * time.Hour)
			_, found, err = s.Get(ctx, "k")
			require.NoError(t, err)
			assert.True(t, found)
		})
	}
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	type counter struct {
		Count int `json:"count"`
	}
	require.NoError(t, PutJSON(ctx, s, "c", counter{Count: 3}, PutOptions{}))

	var got counter
	found, err := GetJSON(ctx, s, "c", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 3, got.Count)

	found, err = GetJSON(ctx, s, "missing", &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Put(ctx, "bad", []byte("{"), PutOptions{}))
	_, err = GetJSON(ctx, s, "bad", &got)
	assert.Error(t, err)
}

func TestMemoryStore_ClosedAndCanceled(t *testing.T) {
	s := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Put(ctx, "k", nil, PutOptions{}), context.Canceled)

	require.NoError(t, s.Close())
	_, _, err := s.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	buf := []byte("abc")
	require.NoError(t, s.Put(ctx, "k", buf, PutOptions{}))
	buf[0] = 'z'

	got, _, _ := s.Get(ctx, "k")
	assert.Equal(t, "abc", string(got))
}

func TestSQLiteStore_Sweep(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "nested", "kv.db"), WithClock(clock.Now))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Put(ctx, "a", []byte("1"), PutOptions{ExpireAfter: time.Second}))
	require.NoError(t, s.Put(ctx, "b", []byte("2"), PutOptions{}))
	clock.Advance(2 * time.Second)

	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestPebbleStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	fs := vfs.NewMem()

	s, err := NewPebble("kv", fs)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "catalog", []byte("blob"), PutOptions{}))
	require.NoError(t, s.Close())

	s, err = NewPebble("kv", fs)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	got, found, err := s.Get(ctx, "catalog")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "blob", string(got))
}

func TestOpen_Backends(t *testing.T) {
	dir := t.TempDir()
	for _, backend := range []string{BackendSQLite, BackendPebble, BackendMemory} {
		s, err := Open(Config{Backend: backend, Dir: dir})
		require.NoError(t, err, backend)
		require.NoError(t, s.Close())
	}
	_, err := Open(Config{Backend: "etcd"})
	assert.Error(t, err)
}

func TestValkeyStore_Live(t *testing.T) {
	addr := os.Getenv("BARSHELF_TEST_VALKEY_ADDR")
	if addr == "" {
		t.Skip("BARSHELF_TEST_VALKEY_ADDR not set")
	}
	ctx := context.Background()
	s, err := NewValkey(ValkeyConfig{Address: addr, KeyPrefix: "barshelf-test"})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	assert.Equal(t, "barshelf-test:k", s.Key("k"))
	require.NoError(t, s.Put(ctx, "k", []byte("v"), PutOptions{ExpireAfter: 10 * time.Second}))
	got, found, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v", string(got))
}

// failingStore fails every write.
type failingStore struct {
	*MemoryStore
	puts int
}

func (f *failingStore) Put(ctx context.Context, key string, value []byte, opts PutOptions) error {
	f.puts++
	return errors.New("disk on fire")
}

func TestGuardedStore_OpensAfterFailures(t *testing.T) {
	ctx := context.Background()
	inner := &failingStore{MemoryStore: NewMemory()}
	g := NewGuarded(inner, shelferrors.NewCircuitBreaker("test", shelferrors.WithMaxFailures(2)), nil)

	for i := 0; i < 5; i++ {
		err := g.Put(ctx, "k", []byte("v"), PutOptions{})
		require.Error(t, err)
		assert.Equal(t, shelferrors.ErrCodePersistence, shelferrors.GetCode(err))
	}

	// Then: only the first two writes reached the store
	assert.Equal(t, 2, inner.puts)
	assert.Equal(t, shelferrors.StateOpen, g.Breaker().State())

	// Reads still pass through
	_, found, err := g.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNormalizePrefix(t *testing.T) {
	assert.Equal(t, "", normalizePrefix(""))
	assert.Equal(t, "bar:", normalizePrefix("bar"))
	assert.Equal(t, "bar:", normalizePrefix("bar:"))
}
