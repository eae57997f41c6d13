// Package scraper runs one scrape pipeline per source concurrently against a
// shared renderer session and merges the outcomes into a single result.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/use-agent/basket/browser"
	"github.com/use-agent/basket/config"
	"github.com/use-agent/basket/models"
	"github.com/use-agent/basket/source"
)

// Scraper is the aggregator. It is safe for concurrent use; each Search
// opens its own browsing contexts on the manager's session.
type Scraper struct {
	manager  *browser.Manager
	adapters []source.Adapter
	pipeline pipeline
}

// New validates adapters and builds a Scraper that drives manager's session.
func New(manager *browser.Manager, adapters []source.Adapter, cfg config.ScraperConfig) (*Scraper, error) {
	if err := source.ValidateAll(adapters); err != nil {
		return nil, fmt.Errorf("invalid sources: %w", err)
	}
	return &Scraper{
		manager:  manager,
		adapters: append([]source.Adapter(nil), adapters...),
		pipeline: pipeline{
			cfg:     cfg,
			profile: browser.ProfileFromConfig(cfg),
		},
	}, nil
}

// Initialize starts the renderer ahead of the first search.
func (s *Scraper) Initialize() error {
	return s.manager.Initialize()
}

// Shutdown releases the renderer. Safe to call more than once.
func (s *Scraper) Shutdown() error {
	return s.manager.Shutdown()
}

// Stats reports the renderer state.
func (s *Scraper) Stats() models.RendererStats {
	return s.manager.Stats()
}

// Sources returns the configured adapters in result order.
func (s *Scraper) Sources() []source.Adapter {
	return append([]source.Adapter(nil), s.adapters...)
}

// Search returns every source's products for query. It never fails: a source
// that could not be scraped maps to an empty list.
func (s *Scraper) Search(ctx context.Context, query string) models.AggregateResult {
	return s.Report(ctx, query).Results
}

// Report runs all pipelines concurrently, waits for every one of them to
// settle and returns the merged result with a per-source report.
func (s *Scraper) Report(ctx context.Context, query string) *models.SearchReport {
	start := time.Now()
	outcomes := make([]outcome, len(s.adapters))

	sess, err := s.manager.Session()
	if err != nil {
		slog.Error("renderer unavailable, all sources fail", "query", query, "error", err)
		for i, a := range s.adapters {
			outcomes[i] = failedOutcome(a.ID, err)
		}
		return s.assemble(query, outcomes, start)
	}

	var wg sync.WaitGroup
	for i, a := range s.adapters {
		wg.Add(1)
		go func(i int, a source.Adapter) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					slog.Error("source pipeline panicked",
						"source", string(a.ID),
						"query", query,
						"panic", r,
						"stack", string(debug.Stack()),
					)
					outcomes[i] = failedOutcome(a.ID,
						models.NewScrapeError(models.ErrCodeInternal, fmt.Sprintf("pipeline panic: %v", r), nil))
				}
			}()
			outcomes[i] = s.pipeline.run(ctx, sess, a, query)
		}(i, a)
	}
	wg.Wait()

	for _, o := range outcomes {
		if o.rendererLost {
			s.manager.Invalidate(sess)
			break
		}
	}
	return s.assemble(query, outcomes, start)
}

func (s *Scraper) assemble(query string, outcomes []outcome, start time.Time) *models.SearchReport {
	report := &models.SearchReport{
		Query:   query,
		Results: make(models.AggregateResult, len(s.adapters)),
		Sources: make([]models.SourceReport, 0, len(s.adapters)),
	}
	for i, a := range s.adapters {
		o := outcomes[i]
		products := o.products
		if products == nil {
			products = []models.Product{}
		}
		report.Results[string(a.ID)] = products
		report.Sources = append(report.Sources, o.report)
	}
	report.TookMs = time.Since(start).Milliseconds()

	slog.Info("search completed",
		"query", query,
		"failed", report.Failed(),
		"took_ms", report.TookMs,
	)
	return report
}

func failedOutcome(id source.ID, err error) outcome {
	se := categorizeError(err, models.ErrCodeBrowserCrash, models.ErrCodeBrowserCrash, "renderer unavailable")
	return outcome{
		products: []models.Product{},
		report: models.SourceReport{
			Source:    string(id),
			Status:    models.SourceFailed,
			ErrorCode: se.Code,
			Error:     se.Message,
		},
	}
}
