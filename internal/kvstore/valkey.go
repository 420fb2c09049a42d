package kvstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	valkeylib "github.com/valkey-io/valkey-go"
)

// DefaultValkeyConnectTimeout bounds the initial ping.
const DefaultValkeyConnectTimeout = 5 * time.Second

// ValkeyConfig holds the connection settings for a ValkeyStore.
type ValkeyConfig struct {
	Address        string
	Password       string
	DB             int
	KeyPrefix      string
	ConnectTimeout time.Duration
}

// ValkeyStore is a Store on a shared valkey server, for deployments where
// several processes should see each other's counters and cache entries.
// Expiry is native.
type ValkeyStore struct {
	inner     valkeylib.Client
	keyPrefix string
}

// NewValkey connects and pings the server. The caller must Close the store.
func NewValkey(cfg ValkeyConfig) (*ValkeyStore, error) {
	opts := valkeylib.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	inner, err := valkeylib.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	timeout := cfg.ConnectTimeout
	if timeout == 0 {
		timeout = DefaultValkeyConnectTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := inner.Do(ctx, inner.B().Ping().Build()).Error(); err != nil {
		inner.Close()
		return nil, fmt.Errorf("failed to ping valkey (timeout: %v): %w", timeout, err)
	}

	return &ValkeyStore{inner: inner, keyPrefix: normalizePrefix(cfg.KeyPrefix)}, nil
}

func normalizePrefix(prefix string) string {
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return prefix
}

// Key returns the server-side key for key.
func (v *ValkeyStore) Key(key string) string {
	return v.keyPrefix + key
}

// Get implements Store.
func (v *ValkeyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	cmd := v.inner.B().Get().Key(v.Key(key)).Build()
	data, err := v.inner.Do(ctx, cmd).AsBytes()
	if err != nil {
		if valkeylib.IsValkeyNil(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return data, true, nil
}

// Put implements Store. Sub-second expiries are rounded up to one second.
func (v *ValkeyStore) Put(ctx context.Context, key string, value []byte, opts PutOptions) error {
	var cmd valkeylib.Completed
	if opts.ExpireAfter > 0 {
		ttl := opts.ExpireAfter
		if ttl < time.Second {
			ttl = time.Second
		}
		cmd = v.inner.B().Set().Key(v.Key(key)).Value(valkeylib.BinaryString(value)).Ex(ttl).Build()
	} else {
		cmd = v.inner.B().Set().Key(v.Key(key)).Value(valkeylib.BinaryString(value)).Build()
	}
	if err := v.inner.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Close implements Store.
func (v *ValkeyStore) Close() error {
	if v.inner != nil {
		v.inner.Close()
	}
	return nil
}
