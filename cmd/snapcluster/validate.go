package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pedroviniv/simple-puppeteer-cluster/config"
)

// validateCmd validates a config file without starting anything.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a snapcluster configuration file without launching browsers.

This command parses the YAML, applies environment overrides, expands
environment variables, and validates all fields. It's useful for CI/CD
pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  snapcluster validate -c config.yaml
  snapcluster validate --config /etc/snapcluster/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	rate := "unlimited"
	if cfg.Server.RateLimit > 0 {
		rate = fmt.Sprintf("%g/s (burst %d)", cfg.Server.RateLimit, cfg.Server.RateBurst)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Port:          %d\n", cfg.Port)
	fmt.Fprintf(out, "  Workers:       %d\n", cfg.Workers)
	fmt.Fprintf(out, "  Interval:      %s\n", cfg.Interval())
	fmt.Fprintf(out, "  Headless:      %t\n", cfg.IsHeadless())
	fmt.Fprintf(out, "  Browser args:  %s\n", strings.Join(cfg.Browser.Args, " "))
	fmt.Fprintf(out, "  Task timeout:  %s\n", cfg.Server.TaskTimeout.Duration())
	fmt.Fprintf(out, "  Rate limit:    %s\n", rate)

	return nil
}
