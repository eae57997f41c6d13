package models

// Product is one listing extracted from a shop's search page.
// Image and Unit serialize as null when the listing has none.
type Product struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Image *string `json:"image"`
	Unit  *string `json:"unit"`
}

// AggregateResult maps every source id to its product list. All source keys
// are always present; a failed or empty source maps to an empty slice.
type AggregateResult map[string][]Product

// Source status tags carried by SourceReport.
const (
	SourceOK     = "ok"     // listing rendered and at least one product kept
	SourceEmpty  = "empty"  // listing rendered, nothing survived extraction
	SourceFailed = "failed" // navigation, readiness or extraction failure
)

// SourceReport describes how one source's pipeline settled.
type SourceReport struct {
	Source     string `json:"source"`
	Status     string `json:"status"`
	Count      int    `json:"count"`
	ErrorCode  string `json:"error_code,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// SearchReport is the full outcome of one aggregated search.
type SearchReport struct {
	Query   string          `json:"query"`
	Results AggregateResult `json:"results"`
	Sources []SourceReport  `json:"sources"`
	TookMs  int64           `json:"took_ms"`

	// CacheStatus is "hit", "miss" or empty when caching is disabled.
	CacheStatus string `json:"cache_status,omitempty"`
}

// Failed reports whether any source ended in a failure.
func (r *SearchReport) Failed() bool {
	for _, s := range r.Sources {
		if s.Status == SourceFailed {
			return true
		}
	}
	return false
}
