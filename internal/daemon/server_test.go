package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/barshelf/internal/search"
	"github.com/Aman-CERP/barshelf/internal/service"
)

func startServer(t *testing.T, h Handler) (Config, *Client) {
	t.Helper()
	cfg := daemonTestConfig(t)
	srv := NewServer(cfg.SocketPath, h)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-errCh
	})

	client := NewClient(cfg)
	require.Eventually(t, client.IsRunning, 2*time.Second, 10*time.Millisecond)
	return cfg, client
}

func TestServer_ListenAndServe(t *testing.T) {
	cfg := daemonTestConfig(t)
	srv := NewServer(cfg.SocketPath, newFakeHandler())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(cfg.SocketPath)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}

	// Socket is removed on exit.
	_, err := os.Stat(cfg.SocketPath)
	assert.True(t, os.IsNotExist(err))
}

func TestServer_PingAndStatus(t *testing.T) {
	_, client := startServer(t, newFakeHandler())
	ctx := context.Background()

	require.NoError(t, client.Ping(ctx))

	status, err := client.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.Running)
	assert.Equal(t, os.Getpid(), status.PID)
	assert.Equal(t, 3, status.Service.RateBuckets)
}

func TestServer_List(t *testing.T) {
	h := newFakeHandler()
	_, client := startServer(t, h)

	page, err := client.List(context.Background(), service.ListParams{
		Query: search.Query{Tag: "citrus"},
		Page:  1,
	})

	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "margarita", page.Items[0].Slug)
	assert.Equal(t, "citrus", h.lastList.Tag)
}

func TestServer_ItemNotFound(t *testing.T) {
	_, client := startServer(t, newFakeHandler())

	_, err := client.Item(context.Background(), "mai-tai")

	var rpcErr *Error
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, ErrCodeNotFound, rpcErr.Code)
}

func TestServer_ItemRequiresSlug(t *testing.T) {
	_, client := startServer(t, newFakeHandler())

	_, err := client.Item(context.Background(), "  ")

	assert.ErrorContains(t, err, "slug is required")
}

// Rate-limited calls carry the retry timing.
func TestServer_RateLimited(t *testing.T) {
	h := newFakeHandler()
	h.allowed = 1
	_, client := startServer(t, h)
	ctx := context.Background()

	_, err := client.Item(ctx, "negroni")
	require.NoError(t, err)

	_, err = client.Item(ctx, "negroni")

	var rpcErr *Error
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, ErrCodeRateLimited, rpcErr.Code)
	data, ok := rpcErr.RateLimit()
	require.True(t, ok)
	assert.Equal(t, 42, data.RetryAfterSeconds)
	assert.Equal(t, 1, data.Limit)
	assert.Equal(t, 0, data.Remaining)

	// The denial always reports remaining, even at zero
	fields, ok := rpcErr.Data.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, fields, "remaining")
}

func TestServer_Rebuild(t *testing.T) {
	h := newFakeHandler()
	_, client := startServer(t, h)

	res, err := client.Rebuild(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, res.Records)
	assert.Equal(t, h.catalog.Fingerprint, res.Fingerprint)
	assert.Equal(t, 1, h.rebuilds)
}

func TestServer_UnknownMethodAndBadJSON(t *testing.T) {
	cfg, _ := startServer(t, newFakeHandler())

	conn, err := net.Dial("unix", cfg.SocketPath)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, json.NewEncoder(conn).Encode(Request{JSONRPC: "2.0", Method: "drop_tables", ID: "1"}))
	var resp Response
	require.NoError(t, json.NewDecoder(conn).Decode(&resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeMethodNotFound, resp.Error.Code)

	conn2, err := net.Dial("unix", cfg.SocketPath)
	require.NoError(t, err)
	defer conn2.Close()
	_, err = conn2.Write([]byte("{not json\n"))
	require.NoError(t, err)
	var resp2 Response
	require.NoError(t, json.NewDecoder(conn2).Decode(&resp2))
	require.NotNil(t, resp2.Error)
	assert.Equal(t, ErrCodeParseError, resp2.Error.Code)
}
