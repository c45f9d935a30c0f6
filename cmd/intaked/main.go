// Package main implements the intaked daemon and its operator CLI.
//
// The serve command runs the capture intake daemon: HTTP API, offline queue,
// audit log, and the optional NATS chat bridge. The remaining commands are
// thin HTTP clients for a running daemon.
//
// Usage:
//
//	# Start the daemon with defaults
//	intaked serve
//
//	# Start with a config file
//	intaked serve --config /etc/intaked/config.yaml
//
//	# Drain the offline queue of a running daemon
//	intaked sync
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var (
	// serverURL is the base URL client commands talk to.
	serverURL string
	// configPath is the config file for the serve command.
	configPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "intaked",
	Short: "Confidence-gated capture intake daemon",
	Long: `intaked turns free-form captures from chat into structured records.

High-confidence captures are filed automatically; everything else lands in a
review backlog for the debrief flow. When the record store is unreachable,
captures queue locally and sync later.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:9820", "intaked server URL")
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"intaked by Fyrsmith Labs\nVersion:    %s\nCommit:     %s\nBuild Date: %s\n",
		version, gitCommit, buildDate))

	serveCmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(undoCmd)
	rootCmd.AddCommand(queueCmd)
}
