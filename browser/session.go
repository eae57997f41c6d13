// Package browser wraps the headless renderer. The scrape pipeline only sees
// the Session and Tab interfaces; LaunchRod provides the Chrome/CDP
// implementation and tests substitute a scripted fake.
package browser

import (
	"context"
	"time"

	"github.com/use-agent/basket/config"
)

// Idle strategies for Tab.Navigate.
const (
	IdleNetwork = "network" // no in-flight requests for Profile.NetworkIdle
	IdleDOM     = "dom"     // load event, then DOM stable for Profile.NetworkIdle
)

// Session is a live renderer that hands out isolated browsing contexts.
// It is safe for concurrent use.
type Session interface {
	// NewTab opens a fresh isolated browsing context configured with p.
	// The caller owns the Tab and must Close it.
	NewTab(ctx context.Context, p Profile) (Tab, error)

	// ActiveTabs reports how many tabs are open and not yet closed.
	ActiveTabs() int

	// Close releases the renderer process.
	Close() error
}

// Tab is one isolated browsing context with a single page. Every blocking
// call is bounded by the deadline of the context passed to it.
type Tab interface {
	// Navigate loads url and waits until the page is idle.
	Navigate(ctx context.Context, url string) error

	// WaitElement blocks until selector matches at least one node.
	WaitElement(ctx context.Context, selector string) error

	// Click clicks the first node matching selector.
	Click(ctx context.Context, selector string) error

	// HTML returns the serialized DOM of the current page.
	HTML(ctx context.Context) (string, error)

	// Close releases the browsing context. Safe to call more than once.
	Close() error
}

// LaunchFunc starts a new renderer session.
type LaunchFunc func() (Session, error)

// Profile configures a browsing context before navigation.
type Profile struct {
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int

	// Headers are sent with every request of the context.
	Headers map[string]string

	// BlockedResourceTypes are aborted by the request interceptor.
	BlockedResourceTypes []string

	// BlockTrackers aborts requests to known ad and analytics hosts.
	BlockTrackers bool

	IdleStrategy string
	NetworkIdle  time.Duration

	Stealth bool
}

// ProfileFromConfig builds the profile every scrape pipeline uses.
func ProfileFromConfig(cfg config.ScraperConfig) Profile {
	headers := map[string]string{}
	if cfg.AcceptLanguage != "" {
		headers["Accept-Language"] = cfg.AcceptLanguage
	}
	return Profile{
		UserAgent:            cfg.UserAgent,
		ViewportWidth:        cfg.ViewportWidth,
		ViewportHeight:       cfg.ViewportHeight,
		Headers:              headers,
		BlockedResourceTypes: cfg.BlockedResourceTypes,
		BlockTrackers:        cfg.BlockTrackers,
		IdleStrategy:         cfg.IdleStrategy,
		NetworkIdle:          cfg.NetworkIdle,
		Stealth:              cfg.Stealth,
	}
}
