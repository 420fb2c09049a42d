package daemon

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Aman-CERP/barshelf/internal/service"
)

// JSON-RPC 2.0 method names.
const (
	MethodPing    = "ping"
	MethodStatus  = "status"
	MethodList    = "list"
	MethodItem    = "item"
	MethodRebuild = "rebuild"
)

// Standard JSON-RPC 2.0 error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Custom error codes for daemon-specific errors.
const (
	ErrCodeUpstream    = -32003
	ErrCodeNotFound    = -32004
	ErrCodeRateLimited = -32029
)

// LocalIdentity is used for requests that do not name an identity.
const LocalIdentity = "local"

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      string `json:"id"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
	ID      string `json:"id"`
}

// Error represents a JSON-RPC 2.0 error. It is also returned by Client
// methods, so callers can branch on Code.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (code: %d)", e.Message, e.Code)
}

// NewSuccessResponse creates a successful response.
func NewSuccessResponse(id string, result any) Response {
	return Response{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id string, code int, message string) Response {
	return Response{
		JSONRPC: "2.0",
		Error: &Error{
			Code:    code,
			Message: message,
		},
		ID: id,
	}
}

// RateLimitData is attached to ErrCodeRateLimited errors.
type RateLimitData struct {
	Limit             int       `json:"limit"`
	Remaining         int       `json:"remaining"`
	RetryAfterSeconds int       `json:"retry_after_seconds"`
	ResetAt           time.Time `json:"reset_at"`
}

// ListParams are the parameters for the list method.
type ListParams struct {
	Identity string `json:"identity,omitempty"`
	service.ListParams
}

// ItemParams are the parameters for the item method.
type ItemParams struct {
	Identity string `json:"identity,omitempty"`
	Slug     string `json:"slug"`
}

// Validate checks that required fields are present.
func (p *ItemParams) Validate() error {
	p.Slug = strings.TrimSpace(p.Slug)
	if p.Slug == "" {
		return fmt.Errorf("slug is required")
	}
	return nil
}

// RebuildParams are the parameters for the rebuild method.
type RebuildParams struct {
	Identity string `json:"identity,omitempty"`
}

// RebuildResult describes a forced rebuild.
type RebuildResult struct {
	Fingerprint string `json:"fingerprint"`
	Records     int    `json:"records"`
	Categories  int    `json:"categories"`
	Elapsed     string `json:"elapsed"`
}

// StatusResult contains daemon status information.
type StatusResult struct {
	Running bool           `json:"running"`
	PID     int            `json:"pid"`
	Uptime  string         `json:"uptime"`
	Service service.Status `json:"service"`
}

// PingResult is the response to a ping request.
type PingResult struct {
	Pong bool `json:"pong"`
}

func identityOr(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return LocalIdentity
}

// RateLimit decodes the data of an ErrCodeRateLimited error.
func (e *Error) RateLimit() (RateLimitData, bool) {
	var d RateLimitData
	if e.Code != ErrCodeRateLimited || e.Data == nil {
		return d, false
	}
	raw, err := json.Marshal(e.Data)
	if err != nil {
		return d, false
	}
	return d, json.Unmarshal(raw, &d) == nil
}
