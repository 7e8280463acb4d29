package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:          "ammd",
		Short:        "AMM pool ledger with pluggable pricing curves",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "config file path (default ./ammd.yaml if present)")

	root.AddCommand(newServeCmd(), newQuoteCmd(), newWatchCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
