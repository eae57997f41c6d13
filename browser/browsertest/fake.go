// Package browsertest provides an in-memory browser.Session for tests. Pages
// are served from canned HTML keyed by host, and element waits are answered
// by matching selectors against that HTML.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/basket/browser"
)

// ErrUnknownHost is returned by Navigate for hosts without a Page.
var ErrUnknownHost = errors.New("net::ERR_NAME_NOT_RESOLVED")

// Page describes how a fake tab behaves once it navigates to a host.
type Page struct {
	HTML string

	// NavigateDelay holds Navigate for this long, or until the context ends.
	NavigateDelay time.Duration
	NavigateErr   error
	HTMLErr       error

	// Panic makes Navigate panic with this value when non-nil.
	Panic any

	// HideAfterClick removes nodes matching the clicked selector, so a
	// dismissed consent banner is gone from later snapshots.
	HideAfterClick bool
}

// Session is a scripted browser.Session.
type Session struct {
	Routes map[string]Page

	// NewTabErr makes every NewTab call fail.
	NewTabErr error

	mu       sync.Mutex
	active   int
	opened   int
	closed   bool
	clicks   []string
	profiles []browser.Profile
	visited  []string
}

// NewSession returns a Session serving routes.
func NewSession(routes map[string]Page) *Session {
	return &Session{Routes: routes}
}

// Launcher returns a LaunchFunc that hands out s and counts launches.
func (s *Session) Launcher(launches *int) browser.LaunchFunc {
	return func() (browser.Session, error) {
		s.mu.Lock()
		s.closed = false
		s.mu.Unlock()
		if launches != nil {
			*launches++
		}
		return s, nil
	}
}

func (s *Session) NewTab(ctx context.Context, p browser.Profile) (browser.Tab, error) {
	if s.NewTabErr != nil {
		return nil, s.NewTabErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("session closed")
	}
	s.active++
	s.opened++
	s.profiles = append(s.profiles, p)
	return &Tab{session: s}, nil
}

func (s *Session) ActiveTabs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called since the last launch.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Opened reports how many tabs were created in total.
func (s *Session) Opened() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

// Clicks returns every selector clicked, in order.
func (s *Session) Clicks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.clicks...)
}

// Profiles returns the profile of every tab created.
func (s *Session) Profiles() []browser.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]browser.Profile(nil), s.profiles...)
}

// Visited returns every URL navigated to.
func (s *Session) Visited() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.visited...)
}

// Tab is a fake browser.Tab.
type Tab struct {
	session *Session

	mu     sync.Mutex
	page   *Page
	doc    *goquery.Document
	closed bool
}

func (t *Tab) Navigate(ctx context.Context, rawURL string) error {
	t.session.mu.Lock()
	t.session.visited = append(t.session.visited, rawURL)
	t.session.mu.Unlock()

	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	page, ok := t.session.Routes[u.Hostname()]
	if !ok {
		return ErrUnknownHost
	}
	if page.Panic != nil {
		panic(page.Panic)
	}
	if page.NavigateDelay > 0 {
		select {
		case <-time.After(page.NavigateDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if page.NavigateErr != nil {
		return page.NavigateErr
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.page = &page
	t.doc = doc
	t.mu.Unlock()
	return nil
}

// WaitElement returns at once when selector matches, otherwise it blocks
// until ctx ends, like a real page whose DOM never changes.
func (t *Tab) WaitElement(ctx context.Context, selector string) error {
	if t.matches(selector) {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (t *Tab) Click(ctx context.Context, selector string) error {
	if err := t.WaitElement(ctx, selector); err != nil {
		return fmt.Errorf("element %q not found: %w", selector, err)
	}
	t.session.mu.Lock()
	t.session.clicks = append(t.session.clicks, selector)
	t.session.mu.Unlock()

	t.mu.Lock()
	if t.page.HideAfterClick {
		t.doc.Find(selector).Remove()
	}
	t.mu.Unlock()
	return nil
}

func (t *Tab) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.doc == nil {
		return "", errors.New("no document loaded")
	}
	if t.page.HTMLErr != nil {
		return "", t.page.HTMLErr
	}
	return goquery.OuterHtml(t.doc.Selection)
}

func (t *Tab) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.session.mu.Lock()
	t.session.active--
	t.session.mu.Unlock()
	return nil
}

func (t *Tab) matches(selector string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.doc == nil {
		return false
	}
	return t.doc.Find(selector).Length() > 0
}
