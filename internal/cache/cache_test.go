package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/barshelf/internal/async"
	"github.com/Aman-CERP/barshelf/internal/kvstore"
	"github.com/Aman-CERP/barshelf/internal/metrics"
	"github.com/Aman-CERP/barshelf/internal/search"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// TS01: Entries expire after the TTL and are deleted on read
func TestLayer_TTL(t *testing.T) {
	clk := newClock()
	l := NewLayer[int](time.Minute, 10, clk.Now)

	l.Set("a", 1)
	clk.Advance(time.Minute)
	v, ok := l.Get("a")
	require.True(t, ok, "an entry exactly at its TTL is still fresh")
	assert.Equal(t, 1, v)

	clk.Advance(time.Second)
	_, ok = l.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, l.Len())
}

// TS02: Eviction follows insertion order, not access order
func TestLayer_InsertionOrderEviction(t *testing.T) {
	l := NewLayer[string](time.Hour, 3, nil)
	l.Set("a", "1")
	l.Set("b", "2")
	l.Set("c", "3")

	// When: the oldest key is read, then a fourth key arrives
	_, ok := l.Get("a")
	require.True(t, ok)
	l.Set("d", "4")

	// Then: the read did not protect "a"
	_, ok = l.Get("a")
	assert.False(t, ok)
	assert.Equal(t, []string{"b", "c", "d"}, l.Keys())

	// When: an existing key is re-set
	l.Set("b", "2b")

	// Then: it moved to newest
	assert.Equal(t, []string{"c", "d", "b"}, l.Keys())
	v, _ := l.Get("b")
	assert.Equal(t, "2b", v)
}

func TestLayer_PrunesExpiredOnSet(t *testing.T) {
	clk := newClock()
	l := NewLayer[int](time.Minute, 100, clk.Now)
	for i := 0; i < 12; i++ {
		l.Set(string(rune('a'+i)), i)
	}
	clk.Advance(2 * time.Minute)

	l.Set("fresh", 1)

	// At most 8 expired entries go per set.
	assert.Equal(t, 12-maxPrunePerSet+1, l.Len())
}

func TestLayer_Disabled(t *testing.T) {
	for _, l := range []*Layer[int]{
		NewLayer[int](0, 10, nil),
		NewLayer[int](time.Minute, 0, nil),
		NewLayer[int](-time.Second, -1, nil),
	} {
		l.Set("a", 1)
		_, ok := l.Get("a")
		assert.False(t, ok)
		assert.False(t, l.Enabled())
		assert.Equal(t, 0, l.Len())
	}
}

// TS03: A fingerprint change purges the layer
func TestLayer_FingerprintInvalidation(t *testing.T) {
	l := NewLayer[int](time.Hour, 10, nil)
	assert.Equal(t, "", l.Observe("fp1", false))
	l.Set("a", 1)

	assert.Equal(t, "", l.Observe("fp1", false))
	_, ok := l.Get("a")
	assert.True(t, ok)

	assert.Equal(t, "fingerprint", l.Observe("fp2", false))
	_, ok = l.Get("a")
	assert.False(t, ok)
}

// TS04: Moving from a filtered request to an unfiltered one purges the layer
func TestLayer_FilterClearInvalidation(t *testing.T) {
	l := NewLayer[int](time.Hour, 10, nil)

	l.Observe("fp", false)
	l.Set("all:1", 1)
	l.Observe("fp", true)
	l.Set("citrus:1", 2)
	assert.Equal(t, 2, l.Len())

	// When: filters are cleared
	reason := l.Observe("fp", false)

	// Then
	assert.Equal(t, "filters_cleared", reason)
	assert.Equal(t, 0, l.Len())

	// Unfiltered to unfiltered keeps entries.
	l.Set("all:1", 1)
	assert.Equal(t, "", l.Observe("fp", false))
	assert.Equal(t, 1, l.Len())
}

func TestListKey(t *testing.T) {
	a := ListKey("fp", search.Query{Text: " Citrus ", Tag: "Sour"}, 1, 20)
	b := ListKey("fp", search.Query{Text: "citrus", Tag: "sour"}, 1, 20)
	c := ListKey("fp", search.Query{Text: "citrus", Mood: "sour"}, 1, 20)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Regexp(t, `^list:fp:[0-9a-f]+:1:20$`, a)
	assert.Equal(t, "item:fp:negroni", ItemKey("fp", "negroni"))
}

// TS05: A layer-1 miss is served from the store when fingerprints match
func TestFamily_LayerTwo(t *testing.T) {
	clk := newClock()
	store := kvstore.NewMemory(kvstore.WithClock(clk.Now))
	sched := async.New(async.DefaultConfig(), nil)
	defer sched.Close(context.Background())
	cfg := Config{TTL: time.Minute, Capacity: 10, PersistTTL: time.Hour}

	writer := NewFamily[[]string]("list", cfg, store, sched, WithClock(clk.Now))
	writer.Set("fp1", "k", []string{"negroni"})
	sched.Wait()

	// Given: a second process with a cold layer 1
	reader := NewFamily[[]string]("list", cfg, store, sched, WithClock(clk.Now))

	// When/Then: the stored entry is adopted
	v, result, ok := reader.Get(context.Background(), "fp1", "k")
	require.True(t, ok)
	assert.Equal(t, metrics.ResultHitL2, result)
	assert.Equal(t, []string{"negroni"}, v)

	_, result, _ = reader.Get(context.Background(), "fp1", "k")
	assert.Equal(t, metrics.ResultHitL1, result)

	// An entry computed against another catalog is ignored.
	other := NewFamily[[]string]("list", cfg, store, sched, WithClock(clk.Now))
	_, result, ok = other.Get(context.Background(), "fp2", "k")
	assert.False(t, ok)
	assert.Equal(t, metrics.ResultMiss, result)
}

type failingStore struct{ kvstore.Store }

func (failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("store down")
}

func TestFamily_StoreErrorIsMiss(t *testing.T) {
	f := NewFamily[int]("item", Config{TTL: time.Minute, Capacity: 1}, failingStore{}, nil)

	_, result, ok := f.Get(context.Background(), "fp", "k")

	assert.False(t, ok)
	assert.Equal(t, metrics.ResultMiss, result)
}

func TestFamily_SetPurgesOnNewFingerprint(t *testing.T) {
	f := NewFamily[int]("item", Config{TTL: time.Minute, Capacity: 10}, nil, nil)
	f.Set("fp1", "a", 1)
	f.Set("fp2", "b", 2)

	assert.Equal(t, []string{"b"}, f.Layer().Keys())
}
