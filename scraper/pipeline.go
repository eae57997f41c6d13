package scraper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/use-agent/basket/browser"
	"github.com/use-agent/basket/config"
	"github.com/use-agent/basket/models"
	"github.com/use-agent/basket/source"
)

// pipeline scrapes one source per run. It holds only immutable settings and
// is shared by all concurrent runs.
type pipeline struct {
	cfg     config.ScraperConfig
	profile browser.Profile
}

// outcome is what one run hands back to the aggregator.
type outcome struct {
	products []models.Product
	report   models.SourceReport

	// rendererLost is set when the session refused a new tab while the
	// caller was still waiting, which means the renderer is gone.
	rendererLost bool
}

// run executes one adapter end to end. Every failure is logged and turned
// into an empty product list with a failed report.
//
// Steps, each bound by its own deadline:
//
//  1. Open tab       – isolated browsing context with UA, viewport, blocking
//  2. DEFER: close   – runs on every exit path, including panics
//  3. Navigate       – load search URL and wait for idle (NavigationTimeout)
//  4. Consent        – click the banner if it shows up (ConsentTimeout)
//  5. Ready          – wait for the listing (ReadyTimeout)
//  6. Extract        – DOM snapshot, then goquery over the item nodes
func (p pipeline) run(ctx context.Context, sess browser.Session, a source.Adapter, query string) outcome {
	start := time.Now()
	target := a.URL(query)
	log := slog.With("source", string(a.ID), "query", query)

	fail := func(step string, err *models.ScrapeError) outcome {
		log.Warn("source scrape failed",
			"step", step,
			"code", err.Code,
			"url", target,
			"error", err,
		)
		return outcome{
			products: []models.Product{},
			report: models.SourceReport{
				Source:     string(a.ID),
				Status:     models.SourceFailed,
				ErrorCode:  err.Code,
				Error:      err.Message,
				DurationMs: time.Since(start).Milliseconds(),
			},
		}
	}

	// ── 1. Open tab ──────────────────────────────────────────────────
	openCtx, cancel := context.WithTimeout(ctx, p.cfg.NavigationTimeout)
	tab, err := sess.NewTab(openCtx, p.profile)
	cancel()
	if err != nil {
		o := fail("open", categorizeError(err, models.ErrCodeBrowserCrash, models.ErrCodeBrowserCrash,
			"failed to open browsing context"))
		o.rendererLost = ctx.Err() == nil && !errors.Is(err, context.DeadlineExceeded)
		return o
	}

	// ── 2. Close on every path ───────────────────────────────────────
	defer func() {
		if closeErr := tab.Close(); closeErr != nil {
			log.Debug("browsing context close failed", "error", closeErr)
		}
	}()

	// ── 3. Navigate ──────────────────────────────────────────────────
	navCtx, cancel := context.WithTimeout(ctx, p.cfg.NavigationTimeout)
	err = tab.Navigate(navCtx, target)
	cancel()
	if err != nil {
		return fail("navigate", categorizeError(err, models.ErrCodeNavigationTimeout, models.ErrCodeNavigation,
			"navigation to search page failed"))
	}

	// ── 4. Consent (best effort) ─────────────────────────────────────
	if a.Consent != "" {
		consentCtx, cancel := context.WithTimeout(ctx, p.cfg.ConsentTimeout)
		err = tab.Click(consentCtx, a.Consent)
		cancel()
		switch {
		case err == nil:
			log.Debug("consent banner dismissed")
		case ctx.Err() != nil:
			return fail("consent", categorizeError(ctx.Err(), models.ErrCodeNavigationTimeout, models.ErrCodeNavigation,
				"search canceled"))
		default:
			log.Debug("consent banner not present", "error", err)
		}
	}

	// ── 5. Listing ready ─────────────────────────────────────────────
	readyCtx, cancel := context.WithTimeout(ctx, p.cfg.ReadyTimeout)
	err = tab.WaitElement(readyCtx, a.Ready)
	cancel()
	if err != nil {
		return fail("ready", categorizeError(err, models.ErrCodeNotReady, models.ErrCodeNotReady,
			"product listing did not appear"))
	}

	// ── 6. Extract ───────────────────────────────────────────────────
	htmlCtx, cancel := context.WithTimeout(ctx, p.cfg.ReadyTimeout)
	html, err := tab.HTML(htmlCtx)
	cancel()
	if err != nil {
		return fail("extract", categorizeError(err, models.ErrCodeExtraction, models.ErrCodeExtraction,
			"failed to read page DOM"))
	}

	ex, err := extractProducts(html, a, target)
	if err != nil {
		return fail("extract", models.NewScrapeError(models.ErrCodeExtraction, "failed to parse page DOM", err))
	}
	if ex.Dropped > 0 {
		log.Debug("dropped incomplete listings", "candidates", ex.Candidates, "dropped", ex.Dropped)
	}

	status := models.SourceOK
	if len(ex.Products) == 0 {
		status = models.SourceEmpty
	}
	log.Info("source scraped",
		"products", len(ex.Products),
		"duration", time.Since(start),
	)
	return outcome{
		products: ex.Products,
		report: models.SourceReport{
			Source:     string(a.ID),
			Status:     status,
			Count:      len(ex.Products),
			DurationMs: time.Since(start).Milliseconds(),
		},
	}
}

// categorizeError wraps raw renderer errors into typed ScrapeErrors. A
// deadline maps to timeoutCode, anything else to failCode.
func categorizeError(err error, timeoutCode, failCode, msg string) *models.ScrapeError {
	var se *models.ScrapeError
	if errors.As(err, &se) {
		return se
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(timeoutCode, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(failCode, "search canceled", err)
	default:
		return models.NewScrapeError(failCode, msg, err)
	}
}
