// Package source holds the per-shop scraping configuration. An Adapter is
// pure data: the scrape pipeline is shared by every shop, so adding a shop
// means adding one Adapter value to the list in sources.go.
package source

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/andybalholm/cascadia"
)

// QueryPlaceholder marks where the escaped query goes in URLTemplate.
const QueryPlaceholder = "{query}"

// ID identifies a source. It is also the key in the aggregate result.
type ID string

// Fields are the selectors resolved relative to one item node.
type Fields struct {
	Name  string
	Price string
	Image string
	Unit  string
}

// Adapter describes how to search one shop and read its listing.
type Adapter struct {
	ID   ID
	Name string

	// URLTemplate is the search URL with QueryPlaceholder for the query.
	URLTemplate string

	// Consent is the cookie-banner accept control. Optional.
	Consent string

	// Ready marks that the listing has rendered.
	Ready string

	// Item matches one product node.
	Item string

	Fields Fields
}

// URL returns the search URL for query. The query is escaped the way
// encodeURIComponent would, so it is safe in both path segments and
// query strings.
func (a Adapter) URL(query string) string {
	return strings.ReplaceAll(a.URLTemplate, QueryPlaceholder, escapeComponent(query))
}

// Validate checks the template and compiles every selector.
func (a Adapter) Validate() error {
	var errs []error
	if a.ID == "" {
		errs = append(errs, errors.New("missing id"))
	}
	if !strings.Contains(a.URLTemplate, QueryPlaceholder) {
		errs = append(errs, fmt.Errorf("url template %q has no %s placeholder", a.URLTemplate, QueryPlaceholder))
	} else if u, err := url.Parse(a.URL("probe")); err != nil || u.Host == "" {
		errs = append(errs, fmt.Errorf("url template %q does not yield an absolute url", a.URLTemplate))
	}

	selectors := []struct {
		name     string
		value    string
		optional bool
	}{
		{"consent", a.Consent, true},
		{"ready", a.Ready, false},
		{"item", a.Item, false},
		{"name", a.Fields.Name, false},
		{"price", a.Fields.Price, false},
		{"image", a.Fields.Image, true},
		{"unit", a.Fields.Unit, true},
	}
	for _, s := range selectors {
		if s.value == "" {
			if !s.optional {
				errs = append(errs, fmt.Errorf("%s selector is required", s.name))
			}
			continue
		}
		if _, err := cascadia.Parse(s.value); err != nil {
			errs = append(errs, fmt.Errorf("%s selector %q: %w", s.name, s.value, err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("source %q: %w", a.ID, err)
	}
	return nil
}

// escapeComponent mirrors encodeURIComponent: spaces become %20, not '+'.
func escapeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
