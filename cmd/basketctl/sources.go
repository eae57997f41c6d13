package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/use-agent/basket/source"
)

func newSourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources [query]",
		Short: "List configured shops and their search URLs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := "milch"
			if len(args) == 1 {
				query = strings.TrimSpace(args[0])
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tURL")
			for _, a := range source.All() {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", a.ID, a.Name, a.URL(query))
			}
			return tw.Flush()
		},
	}
}
