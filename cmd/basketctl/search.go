package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/basket/browser"
	"github.com/use-agent/basket/config"
	"github.com/use-agent/basket/logging"
	"github.com/use-agent/basket/scraper"
	"github.com/use-agent/basket/source"
)

func newSearchCmd() *cobra.Command {
	var (
		format   string
		timeout  time.Duration
		only     []string
		showUI   bool
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search all shops for a product",
		Example: `  basketctl search milch
  basketctl search "bio butter" -f json
  basketctl search hafermilch --only rewe,lidl --timeout 90s`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.TrimSpace(strings.Join(args, " "))
			if query == "" {
				return fmt.Errorf("query must not be blank")
			}

			cfg := config.Load()
			if cmd.Flags().Changed("log-level") || os.Getenv("BASKET_LOG_LEVEL") == "" {
				cfg.Log.Level = logLevel
			}
			if os.Getenv("BASKET_LOG_FORMAT") == "" {
				cfg.Log.Format = "text"
			}
			if showUI {
				cfg.Browser.Headless = false
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logging.Init(cfg.Log, os.Stderr)

			adapters, err := selectSources(only)
			if err != nil {
				return err
			}

			sc, err := scraper.New(browser.NewManager(browser.RodLauncher(cfg.Browser)), adapters, cfg.Scraper)
			if err != nil {
				return err
			}
			defer func() {
				if err := sc.Shutdown(); err != nil {
					slog.Warn("renderer shutdown failed", "error", err)
				}
			}()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			report := sc.Report(ctx, query)
			return writeReport(cmd.OutOrStdout(), report, adapters, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format (table, json, products)")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 2*time.Minute, "Overall search timeout")
	cmd.Flags().StringSliceVar(&only, "only", nil, "Restrict the search to these source ids")
	cmd.Flags().BoolVar(&showUI, "showui", false, "Show browser UI (disable headless mode)")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	return cmd
}

// selectSources returns the built-in adapters, filtered by ids when given.
func selectSources(ids []string) ([]source.Adapter, error) {
	if len(ids) == 0 {
		return source.All(), nil
	}
	out := make([]source.Adapter, 0, len(ids))
	for _, id := range ids {
		a, ok := source.Lookup(source.ID(strings.ToLower(strings.TrimSpace(id))))
		if !ok {
			return nil, fmt.Errorf("unknown source %q", id)
		}
		out = append(out, a)
	}
	return out, nil
}
