package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var flagConfig string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gunter",
		Short: "Personal assistant that schedules daily recommendations",
		Long: "gunter reads your calendar and preferences, decides when to wake you, " +
			"where to eat and when to train, and proposes weekend trips.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "./config.json", "path to config (json or yaml)")

	root.AddCommand(
		newServeCmd(),
		newQueryCmd(),
		newCheckCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
