package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/basket/config"
	"github.com/use-agent/basket/models"
)

// rodSession is a Session backed by one Chrome process driven over CDP.
// Each tab lives in its own incognito browser context.
type rodSession struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	active   atomic.Int32
}

// RodLauncher returns a LaunchFunc that starts Chrome with cfg.
func RodLauncher(cfg config.BrowserConfig) LaunchFunc {
	return func() (Session, error) {
		return LaunchRod(cfg)
	}
}

// LaunchRod starts a headless Chrome and connects to it.
func LaunchRod(cfg config.BrowserConfig) (Session, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.Proxy != "" {
		l = l.Proxy(cfg.Proxy)
	}

	// ── Container-friendly flags ─────────────────────────────────────
	l.Set(flags.Flag("disable-setuid-sandbox"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-accelerated-2d-canvas"))
	l.Set(flags.Flag("disable-gpu"))
	l.Set(flags.Flag("window-size"), fmt.Sprintf("%d,%d", cfg.WindowWidth, cfg.WindowHeight))
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
	}
	slog.Info("browser launched", "controlURL", controlURL)

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to connect to browser", err)
	}

	return &rodSession{browser: b, launcher: l}, nil
}

// NewTab creates an incognito context with one page and applies the profile:
// user agent, viewport, extra headers, stealth and resource blocking. All of
// it happens before the first navigation so it applies to the document load.
//
// The context and page are created without ctx; a cancelled ctx bound to
// them would break Close later. ctx only bounds the setup calls.
func (s *rodSession) NewTab(ctx context.Context, p Profile) (Tab, error) {
	incognito, err := s.browser.Incognito()
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to create browsing context", err)
	}

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = incognito.Close()
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to open page", err)
	}

	s.active.Add(1)
	t := &rodTab{
		session:   s,
		incognito: incognito,
		page:      page,
		profile:   p,
	}

	if err := t.configure(ctx); err != nil {
		_ = t.Close()
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to configure browsing context", err)
	}
	return t, nil
}

func (s *rodSession) ActiveTabs() int {
	return int(s.active.Load())
}

// Close kills the browser process. Open tabs die with it.
func (s *rodSession) Close() error {
	err := s.browser.Close()
	s.launcher.Kill()
	return err
}

func (t *rodTab) configure(ctx context.Context) error {
	p := t.profile
	page := t.page.Context(ctx)

	if p.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent: p.UserAgent,
		}); err != nil {
			return fmt.Errorf("set user agent: %w", err)
		}
	}

	if p.ViewportWidth > 0 && p.ViewportHeight > 0 {
		if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             p.ViewportWidth,
			Height:            p.ViewportHeight,
			DeviceScaleFactor: 1,
		}); err != nil {
			return fmt.Errorf("set viewport: %w", err)
		}
	}

	if len(p.Headers) > 0 {
		if err := (proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeadersMap(p.Headers),
		}).Call(page); err != nil {
			return fmt.Errorf("set extra headers: %w", err)
		}
	}

	if p.Stealth {
		if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", err)
		}
	}

	// The router outlives ctx, so it is bound to the bare page.
	t.router = setupHijack(t.page, newBlocklist(p.BlockedResourceTypes, p.BlockTrackers))
	return nil
}
