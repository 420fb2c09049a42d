// Package service is the surface the transport calls: admission, catalog
// access, paged listing and item lookup, each going through the caches.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Aman-CERP/barshelf/internal/cache"
	"github.com/Aman-CERP/barshelf/internal/catalog"
	shelferrors "github.com/Aman-CERP/barshelf/internal/errors"
	"github.com/Aman-CERP/barshelf/internal/index"
	"github.com/Aman-CERP/barshelf/internal/metrics"
	"github.com/Aman-CERP/barshelf/internal/ratelimit"
	"github.com/Aman-CERP/barshelf/internal/search"
)

// ErrNotFound matches, via errors.Is, every lookup that found nothing.
var ErrNotFound = shelferrors.NotFoundError("not found")

// Config holds paging limits.
type Config struct {
	DefaultPageSize int
	MaxPageSize     int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{DefaultPageSize: 24, MaxPageSize: 100}
}

// Deps are the collaborators of a Service. Lists, Items and Limiter may be
// nil.
type Deps struct {
	Loader  *index.Loader
	Engine  *search.Engine
	Lists   *cache.Family[ListPage]
	Items   *cache.Family[Item]
	Limiter *ratelimit.Limiter
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Service answers catalog requests.
type Service struct {
	cfg     Config
	loader  *index.Loader
	engine  *search.Engine
	lists   *cache.Family[ListPage]
	items   *cache.Family[Item]
	limiter *ratelimit.Limiter
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a Service.
func New(cfg Config, deps Deps) *Service {
	d := DefaultConfig()
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = d.DefaultPageSize
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = d.MaxPageSize
	}
	cfg.DefaultPageSize = min(cfg.DefaultPageSize, cfg.MaxPageSize)

	s := &Service{
		cfg:     cfg,
		loader:  deps.Loader,
		engine:  deps.Engine,
		lists:   deps.Lists,
		items:   deps.Items,
		limiter: deps.Limiter,
		logger:  deps.Logger,
		metrics: deps.Metrics,
	}
	if s.engine == nil {
		s.engine = search.New(search.DefaultOptions())
	}
	if s.lists == nil {
		s.lists = cache.NewFamily[ListPage]("list", cache.Config{}, nil, nil)
	}
	if s.items == nil {
		s.items = cache.NewFamily[Item]("item", cache.Config{}, nil, nil)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = metrics.Noop()
	}
	return s
}

// Loader returns the catalog loader.
func (s *Service) Loader() *index.Loader { return s.loader }

// GetCatalog returns the current catalog, rebuilding it when forced.
func (s *Service) GetCatalog(ctx context.Context, force bool) (*catalog.Catalog, error) {
	return s.loader.Get(ctx, force)
}

// Query returns the positions in c matching q, in catalog order.
func (s *Service) Query(c *catalog.Catalog, q search.Query) []int {
	return s.engine.Query(c, q)
}

// CheckRateLimit decides whether identity may make another request.
func (s *Service) CheckRateLimit(ctx context.Context, identity string) ratelimit.Decision {
	if s.limiter == nil {
		return ratelimit.Decision{Allowed: true}
	}
	return s.limiter.Check(ctx, identity)
}

// ListPage returns one page of the records matching p. A page past the end
// is ErrNotFound, except the first page, which may be empty.
func (s *Service) ListPage(ctx context.Context, p ListParams) (*ListPage, error) {
	page := max(p.Page, 1)
	size := p.PageSize
	if size <= 0 {
		size = s.cfg.DefaultPageSize
	}
	size = min(size, s.cfg.MaxPageSize)

	c, err := s.loader.Get(ctx, false)
	if err != nil {
		return nil, err
	}
	fp := c.Fingerprint
	q := p.Query.Normalize()
	filtered := q.Active()
	s.lists.Observe(fp, filtered)

	key := cache.ListKey(fp, q, page, size)
	if p.KnownFingerprint != "" && p.KnownFingerprint == fp && page == 1 && !filtered {
		total := c.Len()
		if cached, ok := s.lists.Layer().Get(key); ok {
			total = cached.Total
		}
		s.metrics.CacheLookups.WithLabelValues(s.lists.Name(), metrics.ResultNotModified).Inc()
		return &ListPage{Fingerprint: fp, Total: total, Page: 1, PageSize: size, NotModified: true}, nil
	}

	if cached, _, ok := s.lists.Get(ctx, fp, key); ok {
		return &cached, nil
	}

	positions := s.engine.Query(c, q)
	start := (page - 1) * size
	if start >= len(positions) && page > 1 {
		return nil, shelferrors.NotFoundError(fmt.Sprintf("page %d is past the last page", page)).
			WithDetail("total", fmt.Sprint(len(positions)))
	}
	end := min(start+size, len(positions))

	out := ListPage{
		Fingerprint: fp,
		Total:       len(positions),
		Page:        page,
		PageSize:    size,
		HasMore:     end < len(positions),
		Categories:  c.Categories,
	}
	if start < end {
		out.Items = make([]Summary, 0, end-start)
		for _, pos := range positions[start:end] {
			out.Items = append(out.Items, summarize(c.Records[pos]))
		}
	}

	s.lists.Set(fp, key, out)
	return &out, nil
}

// GetItem returns the record with the given slug, loading its details from
// upstream when the catalog was built without them.
func (s *Service) GetItem(ctx context.Context, slug string) (*Item, error) {
	c, err := s.loader.Get(ctx, false)
	if err != nil {
		return nil, err
	}

	pos := c.Position(strings.ToLower(strings.TrimSpace(slug)))
	if pos < 0 {
		pos = c.Position(catalog.Slugify(slug))
	}
	if pos < 0 {
		return nil, shelferrors.NotFoundError("no such item").WithDetail("slug", slug)
	}
	rec := c.Records[pos]

	key := cache.ItemKey(c.Fingerprint, rec.Slug)
	if cached, _, ok := s.items.Get(ctx, c.Fingerprint, key); ok {
		return &cached, nil
	}

	details, loaded := c.Details(pos)
	if !loaded {
		details, err = s.loader.BackfillDetails(ctx, c, pos)
		if err != nil {
			s.logger.Warn("item_details_unavailable",
				slog.String("slug", rec.Slug),
				slog.String("error", err.Error()))
			return nil, err
		}
	}

	item := Item{Summary: summarize(rec), Fingerprint: c.Fingerprint}
	if details != nil {
		item.Details = *details
	}
	s.items.Set(c.Fingerprint, key, item)
	return &item, nil
}

// Status summarizes the service for the status command.
type Status struct {
	Catalog     index.Stats `json:"catalog"`
	RateBuckets int         `json:"rate_buckets"`
	ListCached  int         `json:"list_cached"`
	ItemCached  int         `json:"item_cached"`
}

// Status returns a snapshot of the service's state.
func (s *Service) Status() Status {
	st := Status{
		Catalog:    s.loader.Stats(),
		ListCached: s.lists.Layer().Len(),
		ItemCached: s.items.Layer().Len(),
	}
	if s.limiter != nil {
		st.RateBuckets = s.limiter.Len()
	}
	return st
}
