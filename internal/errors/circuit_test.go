package errors

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var errStoreDown = errors.New("store down")

func failing() error { return errStoreDown }
func succeeding() error { return nil }

// TS01: Circuit opens after max failures
func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	// Given: a breaker with 3 max failures
	cb := NewCircuitBreaker("kv", WithMaxFailures(3))

	// When: 3 calls fail
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(failing), errStoreDown)
	}

	// Then: the circuit is open and fn is skipped
	assert.Equal(t, StateOpen, cb.State())
	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

// TS02: Circuit probes after reset timeout and closes on success
func TestCircuitBreaker_RecoversAfterTimeout(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	cb := NewCircuitBreaker("kv", WithMaxFailures(1), WithResetTimeout(time.Second), WithClock(clock.Now))

	_ = cb.Execute(failing)
	require.Equal(t, StateOpen, cb.State())

	clock.Advance(2 * time.Second)
	assert.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, cb.Execute(succeeding))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Failures())
}

func TestCircuitBreaker_HalfOpenFailureReOpens(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	cb := NewCircuitBreaker("kv", WithMaxFailures(1), WithResetTimeout(time.Second), WithClock(clock.Now))

	_ = cb.Execute(failing)
	clock.Advance(2 * time.Second)

	assert.ErrorIs(t, cb.Execute(failing), errStoreDown)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker("kv", WithMaxFailures(3))

	_ = cb.Execute(failing)
	_ = cb.Execute(failing)
	require.Equal(t, 2, cb.Failures())

	require.NoError(t, cb.Execute(succeeding))
	assert.Equal(t, 0, cb.Failures())
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_Concurrent(t *testing.T) {
	cb := NewCircuitBreaker("kv", WithMaxFailures(1000))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = cb.Execute(failing)
			} else {
				_ = cb.Execute(succeeding)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_Allow(t *testing.T) {
	cb := NewCircuitBreaker("kv", WithMaxFailures(1))
	assert.True(t, cb.Allow())

	cb.RecordFailure()
	assert.False(t, cb.Allow())

	cb.RecordSuccess()
	assert.True(t, cb.Allow())
}

func TestNewCircuitBreaker_DefaultValues(t *testing.T) {
	cb := NewCircuitBreaker("persist")

	assert.Equal(t, "persist", cb.Name())
	assert.Equal(t, 5, cb.maxFailures)
	assert.Equal(t, 30*time.Second, cb.resetTimeout)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, "closed", cb.State().String())
}
