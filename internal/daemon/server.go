package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/Aman-CERP/barshelf/internal/catalog"
	shelferrors "github.com/Aman-CERP/barshelf/internal/errors"
	"github.com/Aman-CERP/barshelf/internal/metrics"
	"github.com/Aman-CERP/barshelf/internal/ratelimit"
	"github.com/Aman-CERP/barshelf/internal/service"
)

// Handler answers catalog requests. *service.Service implements it.
type Handler interface {
	CheckRateLimit(ctx context.Context, identity string) ratelimit.Decision
	GetCatalog(ctx context.Context, force bool) (*catalog.Catalog, error)
	ListPage(ctx context.Context, p service.ListParams) (*service.ListPage, error)
	GetItem(ctx context.Context, slug string) (*service.Item, error)
	Status() service.Status
}

// Server listens on a Unix socket and handles RPC requests.
type Server struct {
	socketPath string
	listener   net.Listener
	handler    Handler
	logger     *slog.Logger
	metrics    *metrics.Metrics
	timeout    time.Duration
	started    time.Time

	mu       sync.Mutex
	shutdown bool
	wg       sync.WaitGroup
}

// NewServer creates a new server that listens on the given socket path.
func NewServer(socketPath string, handler Handler) *Server {
	return &Server{
		socketPath: socketPath,
		handler:    handler,
		logger:     slog.Default(),
		metrics:    metrics.Noop(),
		timeout:    30 * time.Second,
	}
}

// SetLogger sets the logger.
func (s *Server) SetLogger(l *slog.Logger) { s.logger = l }

// SetMetrics sets the collectors.
func (s *Server) SetMetrics(m *metrics.Metrics) { s.metrics = m }

// SetTimeout bounds a single connection.
func (s *Server) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// ListenAndServe starts the server and blocks until context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	// Clean up any stale socket
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.socketPath, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.started = time.Now()
	s.mu.Unlock()

	defer func() {
		_ = listener.Close()
		_ = os.Remove(s.socketPath)
	}()

	s.logger.Info("server_listening", slog.String("socket", s.socketPath))

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			shutdown := s.shutdown
			s.mu.Unlock()
			if shutdown {
				break
			}
			s.logger.Error("accept_failed", slog.String("error", err.Error()))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	// Wait for active connections to finish
	s.wg.Wait()
	return ctx.Err()
}

// handleConnection processes a single client connection.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(s.timeout)); err != nil {
		s.logger.Warn("connection_deadline_failed", slog.String("error", err.Error()))
	}

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	var req Request
	if err := decoder.Decode(&req); err != nil {
		_ = encoder.Encode(NewErrorResponse("", ErrCodeParseError, "failed to parse request"))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp := s.handleRequest(ctx, req)
	outcome := "ok"
	if resp.Error != nil {
		outcome = fmt.Sprint(resp.Error.Code)
	}
	s.metrics.Requests.WithLabelValues(req.Method, outcome).Inc()
	_ = encoder.Encode(resp)
}

// handleRequest dispatches a request to the appropriate handler.
func (s *Server) handleRequest(ctx context.Context, req Request) Response {
	switch req.Method {
	case MethodPing:
		return NewSuccessResponse(req.ID, PingResult{Pong: true})
	case MethodStatus:
		return NewSuccessResponse(req.ID, s.getStatus())
	case MethodList:
		return s.handleList(ctx, req)
	case MethodItem:
		return s.handleItem(ctx, req)
	case MethodRebuild:
		return s.handleRebuild(ctx, req)
	default:
		return NewErrorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

func (s *Server) handleList(ctx context.Context, req Request) Response {
	var params ListParams
	if err := decodeParams(req.Params, &params); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
	}
	if denied := s.admit(ctx, req.ID, params.Identity); denied != nil {
		return *denied
	}
	page, err := s.handler.ListPage(ctx, params.ListParams)
	if err != nil {
		return s.errorResponse(req.ID, err)
	}
	return NewSuccessResponse(req.ID, page)
}

func (s *Server) handleItem(ctx context.Context, req Request) Response {
	var params ItemParams
	if err := decodeParams(req.Params, &params); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
	}
	if err := params.Validate(); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
	}
	if denied := s.admit(ctx, req.ID, params.Identity); denied != nil {
		return *denied
	}
	item, err := s.handler.GetItem(ctx, params.Slug)
	if err != nil {
		return s.errorResponse(req.ID, err)
	}
	return NewSuccessResponse(req.ID, item)
}

func (s *Server) handleRebuild(ctx context.Context, req Request) Response {
	var params RebuildParams
	if err := decodeParams(req.Params, &params); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
	}
	if denied := s.admit(ctx, req.ID, params.Identity); denied != nil {
		return *denied
	}
	start := time.Now()
	c, err := s.handler.GetCatalog(ctx, true)
	if err != nil {
		return s.errorResponse(req.ID, err)
	}
	return NewSuccessResponse(req.ID, RebuildResult{
		Fingerprint: c.Fingerprint,
		Records:     c.Len(),
		Categories:  len(c.Categories),
		Elapsed:     time.Since(start).Round(time.Millisecond).String(),
	})
}

// admit returns a denial response when identity is over its limit.
func (s *Server) admit(ctx context.Context, id, identity string) *Response {
	d := s.handler.CheckRateLimit(ctx, identityOr(identity))
	if d.Allowed {
		return nil
	}
	resp := NewErrorResponse(id, ErrCodeRateLimited, "rate limit exceeded")
	resp.Error.Data = RateLimitData{
		Limit:             d.Limit,
		Remaining:         d.Remaining,
		RetryAfterSeconds: d.RetryAfterSeconds,
		ResetAt:           d.ResetAt,
	}
	return &resp
}

func (s *Server) errorResponse(id string, err error) Response {
	code := ErrCodeInternalError
	switch {
	case errors.Is(err, service.ErrNotFound):
		code = ErrCodeNotFound
	case errors.Is(err, context.DeadlineExceeded), shelferrors.GetCategory(err) == shelferrors.CategoryUpstream:
		code = ErrCodeUpstream
	case shelferrors.GetCode(err) == shelferrors.ErrCodeInvalidInput:
		code = ErrCodeInvalidParams
	}
	if code == ErrCodeInternalError || code == ErrCodeUpstream {
		s.logger.Warn("request_failed", shelferrors.LogAttrs(err)...)
	}
	return NewErrorResponse(id, code, err.Error())
}

func decodeParams(raw any, dst any) error {
	if raw == nil {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to encode params")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to decode params: %w", err)
	}
	return nil
}

// getStatus returns the current server status.
func (s *Server) getStatus() StatusResult {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	return StatusResult{
		Running: true,
		PID:     os.Getpid(),
		Uptime:  time.Since(started).Round(time.Second).String(),
		Service: s.handler.Status(),
	}
}

// Close stops the server.
func (s *Server) Close() error {
	s.mu.Lock()
	s.shutdown = true
	l := s.listener
	s.mu.Unlock()

	if l != nil {
		return l.Close()
	}
	return nil
}
