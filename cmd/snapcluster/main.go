// Package main is the entry point for the snapcluster CLI.
//
// Snapcluster runs a fixed pool of headless Chrome browsers and renders
// screenshots on them, either as a long-running HTTP service or as a
// one-shot batch.
//
// Usage:
//
//	snapcluster serve -c config.yaml         # Start the screenshot service
//	snapcluster screenshot page.html ...     # Render files or URLs once
//	snapcluster validate -c config.yaml      # Validate configuration
//	snapcluster version                      # Show version info
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "snapcluster",
	Short: "A pool of headless browsers that renders screenshots",
	Long: `Snapcluster keeps a fixed pool of headless Chrome browsers and spreads
screenshot tasks across them, always picking the browser with the
shortest queue.

Quick start:
  1. Create a config file (snapcluster.yaml), or rely on the defaults
  2. Run: snapcluster serve -c snapcluster.yaml
  3. POST {"url": "https://example.com"} to http://localhost:8080/api/screenshot
  4. Open http://localhost:8080 to watch the workers

Example config:
  port: 8080
  workers: 4
  interval_between_tasks: 30ms
  browser:
    headless: true
    args: ["--no-sandbox"]`,
	SilenceUsage: true,
	// No Run/RunE means this just shows help when called without subcommands
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this snapcluster binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "snapcluster %s\n", version)
		fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", commit)
		fmt.Fprintf(cmd.OutOrStdout(), "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	// Register subcommands with root
	rootCmd.AddCommand(versionCmd)
}

// newLogger creates a JSON logger for CLI use at the level given by the
// --log-level flag.
func newLogger(cmd *cobra.Command) (*slog.Logger, error) {
	raw, _ := cmd.Flags().GetString("log-level")

	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", raw, err)
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})), nil
}
