// Package main provides the ferroinfer binary: the classification HTTP server
// plus a few operator commands.
package main

import (
	"fmt"
	"os"

	"github.com/ferro-labs/ferroinfer/internal/version"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ferroinfer",
		Short: "Serve a text-classification model over HTTP",
		Long: `ferroinfer loads one text-classification model at startup and serves
predictions over HTTP. Identical texts are classified once and answered
from a bounded LRU cache; concurrent requests for the same text share a
single model call.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "config file (JSON/YAML); defaults to $FERROINFER_CONFIG")

	root.AddCommand(newServeCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newPredictionsCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
