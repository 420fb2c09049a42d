package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Aman-CERP/barshelf/internal/catalog"
	"github.com/Aman-CERP/barshelf/internal/ratelimit"
	"github.com/Aman-CERP/barshelf/internal/service"
)

// daemonTestConfig creates a test configuration with unique paths. Unix
// socket paths are length-limited, so they live directly under /tmp.
func daemonTestConfig(t *testing.T) Config {
	t.Helper()
	suffix := fmt.Sprintf("%d", time.Now().UnixNano())
	socketPath := filepath.Join("/tmp", fmt.Sprintf("barshelf-test-%s.sock", suffix))
	pidPath := filepath.Join("/tmp", fmt.Sprintf("barshelf-test-%s.pid", suffix))

	t.Cleanup(func() {
		os.Remove(socketPath)
		os.Remove(pidPath)
		os.Remove(pidPath + ".lock")
	})

	return Config{
		SocketPath:          socketPath,
		PIDPath:             pidPath,
		Timeout:             5 * time.Second,
		ShutdownGracePeriod: 2 * time.Second,
	}
}

// fakeHandler serves a fixed catalog and admits a fixed number of calls.
type fakeHandler struct {
	mu       sync.Mutex
	allowed  int
	calls    int
	rebuilds int
	catalog  *catalog.Catalog
	lastList service.ListParams
}

func newFakeHandler() *fakeHandler {
	rows := [][]string{
		{"Name", "Category", "Tags"},
		{"Negroni", "Stirred", "gin, bitter"},
		{"Margarita", "Sour", "citrus, tequila"},
	}
	return &fakeHandler{allowed: -1, catalog: catalog.Build(rows, catalog.Options{})}
}

func (h *fakeHandler) CheckRateLimit(_ context.Context, identity string) ratelimit.Decision {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if h.allowed >= 0 && h.calls > h.allowed {
		return ratelimit.Decision{Limit: h.allowed, RetryAfterSeconds: 42}
	}
	return ratelimit.Decision{Allowed: true, Limit: h.allowed}
}

func (h *fakeHandler) GetCatalog(_ context.Context, force bool) (*catalog.Catalog, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if force {
		h.rebuilds++
	}
	return h.catalog, nil
}

func (h *fakeHandler) ListPage(_ context.Context, p service.ListParams) (*service.ListPage, error) {
	h.mu.Lock()
	h.lastList = p
	h.mu.Unlock()
	return &service.ListPage{
		Fingerprint: h.catalog.Fingerprint,
		Total:       h.catalog.Len(),
		Page:        1,
		PageSize:    10,
		Items:       []service.Summary{{Slug: "margarita", Name: "Margarita"}},
	}, nil
}

func (h *fakeHandler) GetItem(_ context.Context, slug string) (*service.Item, error) {
	if h.catalog.Position(slug) < 0 {
		return nil, service.ErrNotFound
	}
	return &service.Item{Summary: service.Summary{Slug: slug}}, nil
}

func (h *fakeHandler) Status() service.Status {
	return service.Status{RateBuckets: 3}
}
