package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:     "basketctl",
		Short:   "Search German supermarkets from the command line",
		Version: version,
		Long: `basketctl runs the basket scraper in-process: it starts a headless
Chrome, searches every configured shop concurrently and prints the merged
product list. Configuration is read from the same BASKET_* environment
variables (and .env file) as the server.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newSearchCmd(), newSourcesCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
