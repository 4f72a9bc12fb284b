// Package cmd implements the tgen command line interface.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/lmforge/tgen/logx"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "tgen",
	Short: "tgen - local causal language model text generation",
	Long: `tgen loads GPT-2 family models exported to ONNX and generates text
with sampling or beam search, from the command line or over an HTTP API.`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logx.Configure(logLevel)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(rmCmd)
}
