package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/use-agent/basket/cache"
	"github.com/use-agent/basket/models"
	"github.com/use-agent/basket/source"
)

// Searcher is the aggregator as seen by the HTTP layer.
type Searcher interface {
	Report(ctx context.Context, query string) *models.SearchReport
	Stats() models.RendererStats
	Sources() []source.Adapter
}

// Service puts the result cache in front of a Searcher.
type Service struct {
	searcher Searcher
	store    cache.Store
}

// NewService returns a Service. store may be nil to disable caching.
func NewService(s Searcher, store cache.Store) *Service {
	return &Service{searcher: s, store: store}
}

// Search returns the report for query, from the cache when possible. Only
// reports without failed sources are cached, so a transient shop outage is
// not served for the whole TTL.
func (s *Service) Search(ctx context.Context, query string) *models.SearchReport {
	if s.store == nil {
		return s.searcher.Report(ctx, query)
	}

	start := time.Now()
	key := cache.Key(query)
	if cached, hit := s.store.Get(ctx, key); hit {
		r := *cached
		r.Query = query
		r.CacheStatus = "hit"
		r.TookMs = time.Since(start).Milliseconds()
		return &r
	}

	report := s.searcher.Report(ctx, query)
	report.CacheStatus = "miss"
	if !report.Failed() {
		if err := s.store.Set(ctx, key, report); err != nil {
			slog.Warn("cache store failed", "query", query, "error", err)
		}
	}
	return report
}

// Stats reports the renderer state.
func (s *Service) Stats() models.RendererStats {
	return s.searcher.Stats()
}

// Sources returns the configured adapters.
func (s *Service) Sources() []source.Adapter {
	return s.searcher.Sources()
}
