package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
)

// rodTab is one incognito browser context holding a single page.
type rodTab struct {
	session   *rodSession
	incognito *rod.Browser
	page      *rod.Page
	router    *rod.HijackRouter
	profile   Profile

	closeOnce sync.Once
	closeErr  error
}

// Navigate loads url and waits for the configured idle condition.
//
// For the network strategy the idle waiter is registered before Navigate;
// registering it afterwards misses in-flight requests and returns at once.
// The DOM strategy exists because WaitRequestIdle shares the Fetch domain
// with the hijack router and some Chromium builds stall when both run.
func (t *rodTab) Navigate(ctx context.Context, url string) error {
	p := t.page.Context(ctx)
	idle := t.profile.NetworkIdle
	if idle <= 0 {
		idle = 500 * time.Millisecond
	}

	var waitIdle func()
	if t.profile.IdleStrategy != IdleDOM {
		waitIdle = p.WaitRequestIdle(idle, nil, nil, nil)
	}

	if err := p.Navigate(url); err != nil {
		return err
	}

	if waitIdle != nil {
		waitIdle()
		return ctx.Err()
	}

	if err := p.WaitLoad(); err != nil {
		return err
	}
	return settleDOM(ctx, domSettleLimit, func(c context.Context) error {
		return t.page.Context(c).WaitDOMStable(idle, 0.1)
	})
}

// domSettleLimit caps the DOM-stability wait. Pages with carousels or
// tickers never settle.
const domSettleLimit = 5 * time.Second

// settleDOM runs wait for at most limit. A DOM that keeps changing is not an
// error: the page is used as it is. Only the end of ctx fails.
func settleDOM(ctx context.Context, limit time.Duration, wait func(context.Context) error) error {
	settleCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	if err := wait(settleCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Debug("DOM did not settle, proceeding with current DOM", "error", err)
	}
	return nil
}

// WaitElement blocks until selector matches at least one node.
func (t *rodTab) WaitElement(ctx context.Context, selector string) error {
	return t.page.Context(ctx).WaitElementsMoreThan(selector, 0)
}

// Click waits for selector to appear and clicks the first match.
func (t *rodTab) Click(ctx context.Context, selector string) error {
	el, err := t.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("element %q not found: %w", selector, err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (t *rodTab) HTML(ctx context.Context) (string, error) {
	return t.page.Context(ctx).HTML()
}

// Close stops the interceptor, closes the page and disposes of the
// incognito context. It uses the page without a request context so it
// still works after the caller's deadline has passed.
func (t *rodTab) Close() error {
	t.closeOnce.Do(func() {
		defer t.session.active.Add(-1)

		if t.router != nil {
			if err := t.router.Stop(); err != nil {
				slog.Debug("hijack router stop failed", "error", err)
			}
		}
		if err := t.page.Close(); err != nil {
			slog.Debug("page close failed", "error", err)
		}
		// Closing an incognito browser disposes of its browser context.
		t.closeErr = t.incognito.Close()
	})
	return t.closeErr
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
