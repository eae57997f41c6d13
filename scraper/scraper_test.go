package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/basket/browser"
	"github.com/use-agent/basket/browser/browsertest"
	"github.com/use-agent/basket/config"
	"github.com/use-agent/basket/models"
	"github.com/use-agent/basket/source"
)

const (
	reweHost  = "shop.rewe.de"
	lidlHost  = "www.lidl.de"
	aldiHost  = "www.aldi-sued.de"
	pennyHost = "www.penny.de"
)

const reweMilch = `<html><body>
<button id="uc-btn-accept-banner">Alle akzeptieren</button>
<div data-testid="product-card">
  <img src="/images/ja-vollmilch.jpg">
  <div data-testid="product-title">ja! Frische Vollmilch 3,5%</div>
  <div data-testid="product-price">1,09 €</div>
  <div data-testid="product-grammage">1l (1 l = 1,09 €)</div>
</div>
<div data-testid="product-card">
  <img src="https://img.rewe-static.de/weihenstephan.jpg">
  <div data-testid="product-title">Weihenstephan H-Milch 1,5%</div>
  <div data-testid="product-price">€ 1,79</div>
</div>
</body></html>`

const aldiMilch = `<html><body>
<div class="product-tile">
  <div class="product-tile__image"><img src="https://www.aldi-sued.de/milsani.jpg"></div>
  <div class="product-tile__title">MILSANI Frische Milch</div>
  <span class="price__main">0,99</span>
  <span class="price__basic">1 l</span>
</div>
</body></html>`

const pennyMilch = `<html><body>
<div class="penny-product-tile">
  <div class="penny-product-tile__title">Penny Vollmilch</div>
  <span class="penny-product-tile__price-main">1,05 €</span>
</div>
</body></html>`

const lidlMilch = `<html><body>
<div id="onetrust-accept-btn-handler">Zustimmen</div>
<div class="product__grid-card">
  <h3 class="product__title">Milbona Vollmilch</h3>
  <span class="price__amount">0,99</span>
</div>
</body></html>`

const noListing = `<html><body><p>Leider keine Treffer</p></body></html>`

func testConfig() config.ScraperConfig {
	return config.ScraperConfig{
		NavigationTimeout:    time.Second,
		ConsentTimeout:       50 * time.Millisecond,
		ReadyTimeout:         100 * time.Millisecond,
		NetworkIdle:          10 * time.Millisecond,
		IdleStrategy:         browser.IdleNetwork,
		UserAgent:            config.DefaultUserAgent,
		AcceptLanguage:       "de-DE,de;q=0.9,en;q=0.8",
		ViewportWidth:        1920,
		ViewportHeight:       1080,
		BlockedResourceTypes: []string{"Image", "Stylesheet", "Font"},
	}
}

func newTestScraper(t *testing.T, fake *browsertest.Session) *Scraper {
	t.Helper()
	s, err := New(browser.NewManager(fake.Launcher(nil)), source.All(), testConfig())
	require.NoError(t, err)
	return s
}

func allFound() map[string]browsertest.Page {
	return map[string]browsertest.Page{
		reweHost:  {HTML: reweMilch, HideAfterClick: true},
		lidlHost:  {HTML: lidlMilch},
		aldiHost:  {HTML: aldiMilch},
		pennyHost: {HTML: pennyMilch},
	}
}

func assertFixedKeys(t *testing.T, res models.AggregateResult) {
	t.Helper()
	require.Len(t, res, 4)
	for _, k := range []string{"rewe", "lidl", "aldi", "penny"} {
		v, ok := res[k]
		require.True(t, ok, "missing key %s", k)
		require.NotNil(t, v, "key %s must map to a list", k)
	}
}

func reportFor(t *testing.T, r *models.SearchReport, id source.ID) models.SourceReport {
	t.Helper()
	for _, s := range r.Sources {
		if s.Source == string(id) {
			return s
		}
	}
	t.Fatalf("no report for %s", id)
	return models.SourceReport{}
}

func TestSearch_AllSourcesFound(t *testing.T) {
	fake := browsertest.NewSession(allFound())
	s := newTestScraper(t, fake)

	res := s.Search(context.Background(), "milch")

	assertFixedKeys(t, res)
	for k, products := range res {
		assert.NotEmpty(t, products, "source %s", k)
	}
	assert.Equal(t, 0, fake.ActiveTabs())
}

func TestSearch_MilchScenario(t *testing.T) {
	fake := browsertest.NewSession(map[string]browsertest.Page{
		reweHost:  {HTML: reweMilch},
		lidlHost:  {HTML: noListing},
		aldiHost:  {NavigateErr: errors.New("net::ERR_CONNECTION_RESET")},
		pennyHost: {HTML: noListing},
	})
	s := newTestScraper(t, fake)

	report := s.Report(context.Background(), "milch")
	res := report.Results

	assertFixedKeys(t, res)
	require.Len(t, res["rewe"], 2)
	assert.Empty(t, res["lidl"])
	assert.Empty(t, res["aldi"])
	assert.Empty(t, res["penny"])

	first := res["rewe"][0]
	assert.Equal(t, "ja! Frische Vollmilch 3,5%", first.Name)
	assert.InDelta(t, 1.09, first.Price, 1e-9)
	require.NotNil(t, first.Image)
	assert.Equal(t, "https://shop.rewe.de/images/ja-vollmilch.jpg", *first.Image)
	require.NotNil(t, first.Unit)
	assert.Equal(t, "1l (1 l = 1,09 €)", *first.Unit)

	second := res["rewe"][1]
	assert.Equal(t, "Weihenstephan H-Milch 1,5%", second.Name)
	assert.InDelta(t, 1.79, second.Price, 1e-9)
	assert.Nil(t, second.Unit)

	assert.Equal(t, models.SourceOK, reportFor(t, report, source.Rewe).Status)
	lidl := reportFor(t, report, source.Lidl)
	assert.Equal(t, models.SourceFailed, lidl.Status)
	assert.Equal(t, models.ErrCodeNotReady, lidl.ErrorCode)
	aldi := reportFor(t, report, source.Aldi)
	assert.Equal(t, models.ErrCodeNavigation, aldi.ErrorCode)
	assert.True(t, report.Failed())

	assert.Equal(t, []string{"#uc-btn-accept-banner"}, fake.Clicks())
	assert.Equal(t, 0, fake.ActiveTabs())
}

func TestSearch_WireShape(t *testing.T) {
	fake := browsertest.NewSession(map[string]browsertest.Page{
		pennyHost: {HTML: pennyMilch},
	})
	s := newTestScraper(t, fake)

	body, err := json.Marshal(s.Search(context.Background(), "milch"))
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"rewe": [],
		"lidl": [],
		"aldi": [],
		"penny": [{"name": "Penny Vollmilch", "price": 1.05, "image": null, "unit": null}]
	}`, string(body))
}

func TestSearch_ConsentAbsentIsNotAFailure(t *testing.T) {
	routes := allFound()
	routes[lidlHost] = browsertest.Page{HTML: `<html><body>
<div class="product__grid-card"><h3 class="product__title">Milbona Vollmilch</h3><span class="price__amount">0,99</span></div>
</body></html>`}
	fake := browsertest.NewSession(routes)
	s := newTestScraper(t, fake)

	report := s.Report(context.Background(), "milch")

	require.Len(t, report.Results["lidl"], 1)
	assert.Equal(t, models.SourceOK, reportFor(t, report, source.Lidl).Status)
	assert.NotContains(t, fake.Clicks(), "#onetrust-accept-btn-handler")
}

func TestSearch_NavigationTimeout(t *testing.T) {
	routes := allFound()
	routes[aldiHost] = browsertest.Page{HTML: aldiMilch, NavigateDelay: 10 * time.Second}
	fake := browsertest.NewSession(routes)
	s := newTestScraper(t, fake)

	start := time.Now()
	report := s.Report(context.Background(), "milch")

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Empty(t, report.Results["aldi"])
	aldi := reportFor(t, report, source.Aldi)
	assert.Equal(t, models.SourceFailed, aldi.Status)
	assert.Equal(t, models.ErrCodeNavigationTimeout, aldi.ErrorCode)
	assert.NotEmpty(t, report.Results["rewe"])
	assert.NotEmpty(t, report.Results["penny"])
	assert.Equal(t, 0, fake.ActiveTabs())
}

func TestSearch_PipelinesRunConcurrently(t *testing.T) {
	routes := allFound()
	for host, p := range routes {
		p.NavigateDelay = 300 * time.Millisecond
		routes[host] = p
	}
	fake := browsertest.NewSession(routes)
	s := newTestScraper(t, fake)

	start := time.Now()
	res := s.Search(context.Background(), "milch")

	assert.Less(t, time.Since(start), 900*time.Millisecond)
	for k, products := range res {
		assert.NotEmpty(t, products, "source %s", k)
	}
}

func TestSearch_PanicIsIsolated(t *testing.T) {
	routes := allFound()
	routes[pennyHost] = browsertest.Page{Panic: "selector engine exploded"}
	fake := browsertest.NewSession(routes)
	s := newTestScraper(t, fake)

	var report *models.SearchReport
	require.NotPanics(t, func() {
		report = s.Report(context.Background(), "milch")
	})

	assertFixedKeys(t, report.Results)
	assert.Empty(t, report.Results["penny"])
	assert.Equal(t, models.ErrCodeInternal, reportFor(t, report, source.Penny).ErrorCode)
	assert.NotEmpty(t, report.Results["rewe"])
	assert.Equal(t, 0, fake.ActiveTabs(), "tab of the panicking pipeline must be released")
}

func TestSearch_NoContextLeakAfterRepeatedFailures(t *testing.T) {
	fake := browsertest.NewSession(map[string]browsertest.Page{
		reweHost:  {HTML: noListing},
		lidlHost:  {HTML: noListing},
		aldiHost:  {NavigateErr: errors.New("net::ERR_TIMED_OUT")},
		pennyHost: {HTML: pennyMilch, HTMLErr: errors.New("target closed")},
	})
	s := newTestScraper(t, fake)

	const n = 5
	for i := 0; i < n; i++ {
		res := s.Search(context.Background(), "milch")
		assertFixedKeys(t, res)
		for k, products := range res {
			assert.Empty(t, products, "source %s", k)
		}
	}

	assert.Equal(t, n*4, fake.Opened())
	assert.Equal(t, 0, fake.ActiveTabs())
	assert.Equal(t, 0, s.Stats().ActiveContexts)
}

func TestSearch_EmptyListingIsNotAFailure(t *testing.T) {
	routes := allFound()
	routes[pennyHost] = browsertest.Page{HTML: `<html><body>
<div class="penny-product-tile"><div class="penny-product-tile__title">Milch</div></div>
</body></html>`}
	fake := browsertest.NewSession(routes)
	s := newTestScraper(t, fake)

	report := s.Report(context.Background(), "milch")

	assert.Empty(t, report.Results["penny"])
	assert.Equal(t, models.SourceEmpty, reportFor(t, report, source.Penny).Status)
	assert.False(t, report.Failed())
}

func TestSearch_RendererUnavailableRetriesLazily(t *testing.T) {
	fake := browsertest.NewSession(allFound())
	attempts := 0
	m := browser.NewManager(func() (browser.Session, error) {
		attempts++
		if attempts <= 2 {
			return nil, errors.New("chrome: executable not found")
		}
		return fake, nil
	})
	s, err := New(m, source.All(), testConfig())
	require.NoError(t, err)

	require.Error(t, s.Initialize())

	report := s.Report(context.Background(), "milch")
	assertFixedKeys(t, report.Results)
	for k, products := range report.Results {
		assert.Empty(t, products, "source %s", k)
	}
	for _, r := range report.Sources {
		assert.Equal(t, models.ErrCodeBrowserCrash, r.ErrorCode)
	}

	res := s.Search(context.Background(), "milch")
	assert.NotEmpty(t, res["rewe"])
	assert.Equal(t, 3, attempts)
}

func TestSearch_CrashedRendererIsRelaunched(t *testing.T) {
	fake := browsertest.NewSession(allFound())
	launches := 0
	s, err := New(browser.NewManager(fake.Launcher(&launches)), source.All(), testConfig())
	require.NoError(t, err)
	require.NoError(t, s.Initialize())

	fake.NewTabErr = errors.New("websocket: close 1006 (abnormal closure)")
	report := s.Report(context.Background(), "milch")
	for _, r := range report.Sources {
		assert.Equal(t, models.ErrCodeBrowserCrash, r.ErrorCode)
	}
	assert.True(t, fake.Closed(), "dead session should be closed")
	assert.False(t, s.Stats().Running)

	fake.NewTabErr = nil
	res := s.Search(context.Background(), "milch")
	assert.NotEmpty(t, res["rewe"])
	assert.Equal(t, 2, launches)
}

func TestSearch_CanceledOpenKeepsRenderer(t *testing.T) {
	fake := browsertest.NewSession(allFound())
	launches := 0
	s, err := New(browser.NewManager(fake.Launcher(&launches)), source.All(), testConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Search(ctx, "milch")

	assert.True(t, s.Stats().Running)
	assert.False(t, fake.Closed())
	assert.Equal(t, 1, launches)
}

func TestSearch_ProfileApplied(t *testing.T) {
	fake := browsertest.NewSession(allFound())
	s := newTestScraper(t, fake)

	s.Search(context.Background(), "bio milch")

	profiles := fake.Profiles()
	require.Len(t, profiles, 4)
	for _, p := range profiles {
		assert.Equal(t, config.DefaultUserAgent, p.UserAgent)
		assert.Equal(t, 1920, p.ViewportWidth)
		assert.Equal(t, 1080, p.ViewportHeight)
		assert.ElementsMatch(t, []string{"Image", "Stylesheet", "Font"}, p.BlockedResourceTypes)
		assert.Equal(t, "de-DE,de;q=0.9,en;q=0.8", p.Headers["Accept-Language"])
	}
	assert.Contains(t, fake.Visited(), "https://shop.rewe.de/search/bio%20milch")
}

func TestSearch_CallerCancellation(t *testing.T) {
	routes := allFound()
	for host, p := range routes {
		p.NavigateDelay = 10 * time.Second
		routes[host] = p
	}
	fake := browsertest.NewSession(routes)
	s := newTestScraper(t, fake)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	res := s.Search(ctx, "milch")

	assert.Less(t, time.Since(start), 900*time.Millisecond)
	assertFixedKeys(t, res)
	assert.Equal(t, 0, fake.ActiveTabs())
}

func TestNew_RejectsInvalidSources(t *testing.T) {
	fake := browsertest.NewSession(nil)
	_, err := New(browser.NewManager(fake.Launcher(nil)), nil, testConfig())
	assert.Error(t, err)
}
