package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/Aman-CERP/barshelf/internal/service"
)

// Client talks to a running daemon.
type Client struct {
	socketPath string
	timeout    time.Duration
	identity   string
	requestID  atomic.Uint64
}

// NewClient creates a new daemon client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}
	return &Client{
		socketPath: cfg.SocketPath,
		timeout:    timeout,
		identity:   LocalIdentity,
	}
}

// SetIdentity sets the identity sent with rate-limited calls.
func (c *Client) SetIdentity(id string) { c.identity = identityOr(id) }

// Connect establishes a connection to the daemon.
func (c *Client) Connect() (net.Conn, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	return conn, nil
}

// IsRunning checks if the daemon is accepting connections.
func (c *Client) IsRunning() bool {
	conn, err := c.Connect()
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Ping checks if the daemon is responsive.
func (c *Client) Ping(ctx context.Context) error {
	var res PingResult
	return c.call(ctx, MethodPing, nil, &res)
}

// Status retrieves daemon status.
func (c *Client) Status(ctx context.Context) (*StatusResult, error) {
	var status StatusResult
	if err := c.call(ctx, MethodStatus, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// List fetches one page of the catalog.
func (c *Client) List(ctx context.Context, p service.ListParams) (*service.ListPage, error) {
	var page service.ListPage
	if err := c.call(ctx, MethodList, ListParams{Identity: c.identity, ListParams: p}, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Item fetches a single item by slug.
func (c *Client) Item(ctx context.Context, slug string) (*service.Item, error) {
	params := ItemParams{Identity: c.identity, Slug: slug}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	var item service.Item
	if err := c.call(ctx, MethodItem, params, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Rebuild forces the daemon to rebuild the catalog from upstream.
func (c *Client) Rebuild(ctx context.Context) (*RebuildResult, error) {
	var res RebuildResult
	if err := c.call(ctx, MethodRebuild, RebuildParams{Identity: c.identity}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// call performs one request per connection. RPC errors are returned as
// *Error.
func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	conn, err := c.Connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	// Set deadline from context or timeout
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set deadline: %w", err)
	}

	req := Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID(),
	}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *Error          `json:"error"`
	}
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("failed to receive response: %w", err)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

// nextID generates a unique request ID.
func (c *Client) nextID() string {
	return fmt.Sprintf("req-%d", c.requestID.Add(1))
}
