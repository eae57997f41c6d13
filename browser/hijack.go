package browser

import (
	"net/url"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// resourceTypes maps config names to Rod protocol resource types.
var resourceTypes = map[string]proto.NetworkResourceType{
	"Image":      proto.NetworkResourceTypeImage,
	"Stylesheet": proto.NetworkResourceTypeStylesheet,
	"Font":       proto.NetworkResourceTypeFont,
	"Media":      proto.NetworkResourceTypeMedia,
	"Script":     proto.NetworkResourceTypeScript,
}

// trackerDomains are ad and analytics hosts the shop pages pull in. Consent
// platforms are deliberately absent: blocking them breaks the cookie banner.
var trackerDomains = map[string]struct{}{
	"doubleclick.net":       {},
	"googlesyndication.com": {},
	"googleadservices.com":  {},
	"google-analytics.com":  {},
	"googletagmanager.com":  {},
	"facebook.net":          {},
	"adnxs.com":             {},
	"criteo.com":            {},
	"criteo.net":            {},
	"outbrain.com":          {},
	"taboola.com":           {},
	"hotjar.com":            {},
	"mixpanel.com":          {},
	"scorecardresearch.com": {},
	"demdex.net":            {},
	"omtrdc.net":            {},
	"adform.net":            {},
	"bing.com":              {},
	"pinterest.com":         {},
	"tiktok.com":            {},
}

// blocklist decides which requests of a browsing context are aborted.
type blocklist struct {
	types    map[proto.NetworkResourceType]struct{}
	trackers bool
}

func newBlocklist(names []string, trackers bool) blocklist {
	b := blocklist{
		types:    make(map[proto.NetworkResourceType]struct{}, len(names)),
		trackers: trackers,
	}
	for _, name := range names {
		if rt, ok := resourceTypes[name]; ok {
			b.types[rt] = struct{}{}
		}
	}
	return b
}

func (b blocklist) empty() bool {
	return len(b.types) == 0 && !b.trackers
}

// blocks reports whether a request of type rt for rawURL must be aborted.
// Document and XHR requests always pass unless they go to a tracker host.
func (b blocklist) blocks(rt proto.NetworkResourceType, rawURL string) bool {
	if _, ok := b.types[rt]; ok {
		return true
	}
	if b.trackers {
		if u, err := url.Parse(rawURL); err == nil && isTrackerHost(u.Hostname()) {
			return true
		}
	}
	return false
}

// isTrackerHost checks host and each of its parent domains.
func isTrackerHost(host string) bool {
	host = strings.ToLower(host)
	for host != "" {
		if _, ok := trackerDomains[host]; ok {
			return true
		}
		idx := strings.IndexByte(host, '.')
		if idx < 0 {
			break
		}
		host = host[idx+1:]
	}
	return false
}

// setupHijack installs a request interceptor on the page that aborts what b
// blocks and lets everything else through. It returns the running router so
// the caller can stop it, or nil if nothing is blocked.
func setupHijack(page *rod.Page, b blocklist) *rod.HijackRouter {
	if b.empty() {
		return nil
	}

	router := page.HijackRequests()

	// Pattern "*" + empty resourceType = intercept every request and decide
	// per request.
	_ = router.Add("*", "", func(ctx *rod.Hijack) {
		if b.blocks(ctx.Request.Type(), ctx.Request.URL().String()) {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})

	// router.Run() blocks until router.Stop().
	go router.Run()

	return router
}
