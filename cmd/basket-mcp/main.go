package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/basket/models"
)

func main() {
	apiURL := os.Getenv("BASKET_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:3001"
	}
	client := newAPIClient(strings.TrimRight(apiURL, "/"), os.Getenv("BASKET_API_KEY"))

	s := server.NewMCPServer(
		"basket",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	s.AddTool(mcp.NewTool("search_products",
		mcp.WithDescription("Search REWE, Lidl, ALDI SÜD and PENNY for a grocery product and list name, price (EUR) and unit per shop. Takes 10-40 seconds because every shop page is rendered in a headless browser."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Product search term, in German works best (e.g. 'milch', 'bio butter')"),
		),
	), handleSearch(client))

	s.AddTool(mcp.NewTool("batch_search",
		mcp.WithDescription("Search several products at once, e.g. a shopping list. Returns the cheapest offer per product and shop."),
		mcp.WithArray("queries",
			mcp.Required(),
			mcp.Description("List of product search terms"),
			mcp.Items(map[string]any{"type": "string"}),
		),
	), handleBatch(client))

	s.AddTool(mcp.NewTool("list_sources",
		mcp.WithDescription("List the supermarkets basket can search."),
	), handleSources(client))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func handleSearch(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil || strings.TrimSpace(query) == "" {
			return mcp.NewToolResultError("query is required"), nil
		}
		report, err := c.Search(ctx, query)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(formatReport(report)), nil
	}
}

func handleBatch(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		queries, err := request.RequireStringSlice("queries")
		if err != nil || len(queries) == 0 {
			return mcp.NewToolResultError("queries is required and must be an array of strings"), nil
		}
		status, err := c.Batch(ctx, queries)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Batch %s: %s (%d/%d)\n", status.ID, status.Status, status.Completed, status.Total)
		for _, r := range status.Results {
			if r == nil {
				continue
			}
			b.WriteString("\n")
			b.WriteString(formatCheapest(r))
		}
		return mcp.NewToolResultText(b.String()), nil
	}
}

func handleSources(c *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sources, err := c.Sources(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		var b strings.Builder
		for _, s := range sources {
			fmt.Fprintf(&b, "- %s (%s): %s\n", s.Name, s.ID, s.ExampleURL)
		}
		return mcp.NewToolResultText(b.String()), nil
	}
}

// formatReport renders every product per shop, noting failed shops.
func formatReport(r *models.SearchReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Results for %q\n", r.Query)
	for _, s := range r.Sources {
		products := r.Results[s.Source]
		fmt.Fprintf(&b, "\n## %s", s.Source)
		switch {
		case s.Status == models.SourceFailed:
			fmt.Fprintf(&b, " (unavailable: %s)\n", s.ErrorCode)
			continue
		case len(products) == 0:
			b.WriteString(" (no products)\n")
			continue
		}
		b.WriteString("\n")
		for _, p := range products {
			fmt.Fprintf(&b, "- %s: %.2f EUR", p.Name, p.Price)
			if p.Unit != nil {
				fmt.Fprintf(&b, " (%s)", *p.Unit)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// formatCheapest renders one line per shop with its cheapest product.
func formatCheapest(r *models.SearchReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s:\n", r.Query)
	for _, s := range r.Sources {
		products := r.Results[s.Source]
		if len(products) == 0 {
			fmt.Fprintf(&b, "  %s: -\n", s.Source)
			continue
		}
		best := products[0]
		for _, p := range products[1:] {
			if p.Price < best.Price {
				best = p
			}
		}
		fmt.Fprintf(&b, "  %s: %.2f EUR %s\n", s.Source, best.Price, best.Name)
	}
	return b.String()
}
