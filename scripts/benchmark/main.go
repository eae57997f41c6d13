// Command benchmark measures search latency and per-shop reliability of a
// running basket server. Run the server with BASKET_CACHE_TTL=0, otherwise
// every run after the first is a cache hit and is left out of the averages.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/use-agent/basket/models"
)

// CLI flags
var (
	apiURL  = flag.String("api-url", "http://localhost:3001", "basket API base URL")
	apiKey  = flag.String("api-key", "", "API key for authenticated requests")
	runs    = flag.Int("runs", 3, "Number of runs per query")
	queries = flag.String("queries", "milch,butter,haferdrink,bananen,kaffee", "Comma-separated search terms")
	output  = flag.String("output", "benchmark-results.json", "JSON output file path")
)

// --- Benchmark result types ---

type runResult struct {
	Run         int                   `json:"run"`
	TookMs      int64                 `json:"took_ms"`
	CacheStatus string                `json:"cache_status,omitempty"`
	Sources     []models.SourceReport `json:"sources,omitempty"`
	Error       string                `json:"error,omitempty"`
}

type sourceStats struct {
	Source       string   `json:"source"`
	OK           int      `json:"ok"`
	Empty        int      `json:"empty"`
	Failed       int      `json:"failed"`
	AvgMs        float64  `json:"avg_ms"`
	AvgProducts  float64  `json:"avg_products"`
	FailureCodes []string `json:"failure_codes,omitempty"`
}

type queryResult struct {
	Query   string        `json:"query"`
	Runs    []runResult   `json:"runs"`
	AvgMs   float64       `json:"avg_ms"`
	Sources []sourceStats `json:"sources"`
}

type benchmarkReport struct {
	Timestamp    string        `json:"timestamp"`
	APIURL       string        `json:"api_url"`
	RunsPerQuery int           `json:"runs_per_query"`
	Results      []queryResult `json:"results"`
}

func main() {
	flag.Parse()

	fmt.Println("=== basket benchmark ===")
	fmt.Printf("API URL:    %s\n", *apiURL)
	fmt.Printf("Runs/query: %d\n", *runs)
	fmt.Printf("Output:     %s\n", *output)
	fmt.Println()

	if err := checkAPI(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		fmt.Fprintf(os.Stderr, "Make sure basket is running (go run ./cmd/basket)\n")
		os.Exit(1)
	}

	report := benchmarkReport{
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		APIURL:       *apiURL,
		RunsPerQuery: *runs,
	}

	client := &http.Client{Timeout: 3 * time.Minute}
	for _, q := range strings.Split(*queries, ",") {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		fmt.Printf("Benchmarking %q ...\n", q)
		qr := queryResult{Query: q}

		for i := 1; i <= *runs; i++ {
			fmt.Printf("  Run %d/%d ... ", i, *runs)
			rr := benchmarkQuery(client, q, i)
			switch {
			case rr.Error != "":
				fmt.Printf("FAILED: %s\n", rr.Error)
			case rr.CacheStatus == "hit":
				fmt.Printf("cache hit\n")
			default:
				fmt.Printf("OK  %dms\n", rr.TookMs)
			}
			qr.Runs = append(qr.Runs, rr)
		}

		qr.AvgMs, qr.Sources = aggregate(qr.Runs)
		report.Results = append(report.Results, qr)
		fmt.Println()
	}

	printTable(report.Results)

	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func checkAPI(baseURL string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(baseURL + "/api/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func benchmarkQuery(client *http.Client, query string, run int) runResult {
	rr := runResult{Run: run}

	req, err := http.NewRequest(http.MethodGet, *apiURL+"/api/v1/search?q="+url.QueryEscape(query), nil)
	if err != nil {
		rr.Error = fmt.Sprintf("request error: %v", err)
		return rr
	}
	if *apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+*apiKey)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		rr.Error = fmt.Sprintf("request failed: %v", err)
		return rr
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e models.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		rr.Error = fmt.Sprintf("status %d: %s", resp.StatusCode, e.Error)
		return rr
	}

	var sr models.SearchReport
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		rr.Error = fmt.Sprintf("decode error: %v", err)
		return rr
	}

	rr.TookMs = time.Since(start).Milliseconds()
	rr.CacheStatus = sr.CacheStatus
	rr.Sources = sr.Sources
	return rr
}

// aggregate averages the live (non-cached, non-errored) runs.
func aggregate(runs []runResult) (float64, []sourceStats) {
	bySource := map[string]*sourceStats{}
	var live int
	var totalMs float64
	durations := map[string]float64{}
	products := map[string]float64{}

	for _, r := range runs {
		if r.Error != "" || r.CacheStatus == "hit" {
			continue
		}
		live++
		totalMs += float64(r.TookMs)
		for _, s := range r.Sources {
			st, ok := bySource[s.Source]
			if !ok {
				st = &sourceStats{Source: s.Source}
				bySource[s.Source] = st
			}
			switch s.Status {
			case models.SourceOK:
				st.OK++
			case models.SourceEmpty:
				st.Empty++
			default:
				st.Failed++
				st.FailureCodes = append(st.FailureCodes, s.ErrorCode)
			}
			durations[s.Source] += float64(s.DurationMs)
			products[s.Source] += float64(s.Count)
		}
	}
	if live == 0 {
		return 0, nil
	}

	out := make([]sourceStats, 0, len(bySource))
	for id, st := range bySource {
		n := float64(st.OK + st.Empty + st.Failed)
		st.AvgMs = durations[id] / n
		st.AvgProducts = products[id] / n
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return totalMs / float64(live), out
}

func printTable(results []queryResult) {
	fmt.Println(strings.Repeat("─", 78))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Query\tSource\tOK/Empty/Failed\tAvg Latency\tAvg Products\n")
	fmt.Fprintf(w, "─────\t──────\t───────────────\t───────────\t────────────\n")

	for _, r := range results {
		if len(r.Sources) == 0 {
			fmt.Fprintf(w, "%s\t-\tFAILED\t-\t-\n", r.Query)
			continue
		}
		for i, s := range r.Sources {
			label := ""
			if i == 0 {
				label = r.Query
			}
			fmt.Fprintf(w, "%s\t%s\t%d/%d/%d\t%dms\t%.1f\n",
				label, s.Source, s.OK, s.Empty, s.Failed, int64(s.AvgMs), s.AvgProducts)
		}
	}

	w.Flush()
	fmt.Println(strings.Repeat("─", 78))
}

func writeJSON(path string, report benchmarkReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
