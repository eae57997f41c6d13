package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/use-agent/basket/models"
	"github.com/use-agent/basket/source"
)

// writeReport prints report in format: "json" is the full report, "products"
// the bare result map with all sources, "table" one line per product grouped by shop.
func writeReport(w io.Writer, report *models.SearchReport, adapters []source.Adapter, format string) error {
	switch format {
	case "json":
		return writeJSON(w, report)
	case "products":
		return writeJSON(w, fullResult(report.Results))
	case "table":
		return writeTable(w, report, adapters)
	default:
		return fmt.Errorf("unknown format %q (want table, json or products)", format)
	}
}

// fullResult returns res with every built-in source present, so a search
// restricted with --only still prints all keys of the result map.
func fullResult(res models.AggregateResult) models.AggregateResult {
	out := make(models.AggregateResult, len(res))
	for _, a := range source.All() {
		out[string(a.ID)] = []models.Product{}
	}
	for id, products := range res {
		if products == nil {
			products = []models.Product{}
		}
		out[id] = products
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeTable(w io.Writer, report *models.SearchReport, adapters []source.Adapter) error {
	status := make(map[string]models.SourceReport, len(report.Sources))
	for _, s := range report.Sources {
		status[s.Source] = s
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SHOP\tPRICE\tUNIT\tPRODUCT")
	for _, a := range adapters {
		id := string(a.ID)
		products := report.Results[id]
		if len(products) == 0 {
			s := status[id]
			note := "no products"
			if s.Status == models.SourceFailed {
				note = fmt.Sprintf("failed: %s", s.ErrorCode)
			}
			fmt.Fprintf(tw, "%s\t-\t-\t(%s)\n", a.Name, note)
			continue
		}
		for _, p := range products {
			unit := "-"
			if p.Unit != nil {
				unit = *p.Unit
			}
			fmt.Fprintf(tw, "%s\t%.2f €\t%s\t%s\n", a.Name, p.Price, unit, p.Name)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%s: searched %d shops in %dms\n", report.Query, len(adapters), report.TookMs)
	return err
}
