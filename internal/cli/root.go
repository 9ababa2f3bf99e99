// Package cli implements the mailtrackctl command tree. Every command is
// a thin wrapper over the pipeline's control API.
package cli

import (
	"github.com/spf13/cobra"
)

var serverURL string

var rootCmd = &cobra.Command{
	Use:   "mailtrackctl",
	Short: "Mailtrack pipeline control CLI",
	Long: `mailtrackctl drives the delivery-status pipeline over its control API.

Inspect and control the queue poller, and drain or purge the
dead-letter queue.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8086", "base URL of the pipeline control API")
	rootCmd.PersistentFlags().String("output", "text", "output format: text, json")
}
