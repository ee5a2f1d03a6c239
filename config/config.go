// Package config provides YAML configuration parsing for snapcluster.
//
// This package enables running the cluster as a standalone screenshot
// service with a configuration file, as an alternative to wiring options
// programmatically.
//
// Example configuration:
//
//	port: 8080
//	workers: 4
//	interval_between_tasks: 30ms
//
//	browser:
//	  headless: true
//	  args: ["--no-sandbox", "--window-size=1280,720"]
//	  exec_path: ${CHROME_PATH:-}
//
//	server:
//	  task_timeout: 30s
//	  rate_limit: 5
//	  rate_burst: 10
//
// A few settings can also be overridden from the environment; see
// [ApplyEnv].
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables read by [ApplyEnv].
const (
	EnvWorkers  = "CLUSTER_WORKERS_NUMBER"
	EnvInterval = "CLUSTER_INTERVAL_BETWEEN_TASKS"
	EnvHeadless = "BROWSER_HEADLESS"
	EnvArgs     = "BROWSER_ARGS"
)

// Legacy names of the same overrides, read when the newer name is unset so
// existing puppeteer-cluster deployments keep working.
const (
	LegacyEnvWorkers  = "PUPPETEER_WORKERS_NUMBER"
	LegacyEnvInterval = "INTERVAL_BETWEEN_TASKS"
	LegacyEnvHeadless = "PUPPETEER_IS_HEADLESS"
	LegacyEnvArgs     = "PUPPETEER_ARGS"
)

// EnvNames lists every variable [ApplyEnv] reads.
var EnvNames = []string{
	EnvWorkers, EnvInterval, EnvHeadless, EnvArgs,
	LegacyEnvWorkers, LegacyEnvInterval, LegacyEnvHeadless, LegacyEnvArgs,
}

const (
	defaultPort        = 8080
	defaultWorkers     = 4
	defaultInterval    = 30 * time.Millisecond
	defaultTaskTimeout = 30 * time.Second
	defaultQuality     = 90
	defaultHistory     = 500

	// maxWorkers guards against a typo launching hundreds of browsers.
	maxWorkers = 64
)

// Config is the root configuration structure for snapcluster.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Title is the dashboard title. Defaults to "Snapcluster" if not set.
	Title string `yaml:"title"`

	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	// Workers is the number of browsers in the pool. Defaults to 4.
	Workers int `yaml:"workers"`

	// IntervalBetweenTasks is each worker's pause between execution
	// cycles. Zero runs tasks back to back. Defaults to 30ms.
	IntervalBetweenTasks *Duration `yaml:"interval_between_tasks"`

	// Browser configures how each browser is launched.
	Browser BrowserConfig `yaml:"browser"`

	// Server configures the HTTP API.
	Server ServerConfig `yaml:"server"`
}

// BrowserConfig defines browser launch settings.
type BrowserConfig struct {
	// Headless runs Chrome without a window. Defaults to true.
	Headless *bool `yaml:"headless"`

	// Args are extra Chrome switches. Defaults to ["--no-sandbox"].
	// Values support environment variable substitution.
	Args []string `yaml:"args"`

	// ExecPath is the Chrome binary. Empty searches the usual locations.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	ExecPath string `yaml:"exec_path"`

	// LaunchAttempts is how many times a browser start is tried.
	// Defaults to 3.
	LaunchAttempts int `yaml:"launch_attempts"`
}

// ServerConfig defines the HTTP API settings.
type ServerConfig struct {
	// TaskTimeout bounds how long a request waits for its screenshot.
	// Defaults to 30s.
	TaskTimeout Duration `yaml:"task_timeout"`

	// Quality is the default screenshot quality (1-100). 100 produces PNG.
	// Defaults to 90.
	Quality int `yaml:"quality"`

	// RateLimit is the sustained number of screenshot requests accepted
	// per second. Zero disables limiting.
	RateLimit float64 `yaml:"rate_limit"`

	// RateBurst is the token bucket size. Defaults to 1 when RateLimit is
	// set.
	RateBurst int `yaml:"rate_burst"`

	// History is how many task records the dashboard keeps. Defaults to 500.
	History int `yaml:"history"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Interval returns the resolved interval between tasks.
func (c *Config) Interval() time.Duration {
	if c.IntervalBetweenTasks == nil {
		return defaultInterval
	}
	return c.IntervalBetweenTasks.Duration()
}

// IsHeadless returns the resolved headless setting.
func (c *Config) IsHeadless() bool {
	if c.Browser.Headless == nil {
		return true
	}
	return *c.Browser.Headless
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment overrides are applied first, then defaults, then
// environment variables are expanded in browser args and exec_path and the
// result is validated.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the configuration used when no file is given, with
// environment overrides applied.
func Default() (*Config, error) {
	return Parse(nil)
}

// ApplyEnv overrides cfg from the environment.
//
//   - CLUSTER_WORKERS_NUMBER: integer worker count
//   - CLUSTER_INTERVAL_BETWEEN_TASKS: a duration ("50ms") or plain
//     milliseconds ("50")
//   - BROWSER_HEADLESS: "true" or "false"
//   - BROWSER_ARGS: comma separated switches, each trimmed
//
// Each variable falls back to its legacy name (PUPPETEER_WORKERS_NUMBER,
// INTERVAL_BETWEEN_TASKS, PUPPETEER_IS_HEADLESS, PUPPETEER_ARGS) when unset.
// PUPPETEER_IS_HEADLESS keeps its old meaning: any value other than "true"
// is false.
//
// Unset or empty variables leave cfg untouched.
func ApplyEnv(cfg *Config) error {
	if name, v := lookupEnv(EnvWorkers, LegacyEnvWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: invalid integer %q", name, v)
		}
		cfg.Workers = n
	}

	if name, v := lookupEnv(EnvInterval, LegacyEnvInterval); v != "" {
		d, err := parseInterval(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		interval := Duration(d)
		cfg.IntervalBetweenTasks = &interval
	}

	if name, v := lookupEnv(EnvHeadless, LegacyEnvHeadless); v != "" {
		headless := v == "true"
		if name == EnvHeadless {
			var err error
			if headless, err = strconv.ParseBool(v); err != nil {
				return fmt.Errorf("%s: invalid boolean %q", name, v)
			}
		}
		cfg.Browser.Headless = &headless
	}

	if _, v := lookupEnv(EnvArgs, LegacyEnvArgs); v != "" {
		var args []string
		for _, arg := range strings.Split(v, ",") {
			if arg = strings.TrimSpace(arg); arg != "" {
				args = append(args, arg)
			}
		}
		cfg.Browser.Args = args
	}

	return nil
}

// lookupEnv returns the first of names that is set to a non-empty value.
func lookupEnv(names ...string) (name, value string) {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return n, v
		}
	}
	return "", ""
}

// parseInterval accepts a Go duration or an integer number of milliseconds.
func parseInterval(s string) (time.Duration, error) {
	if ms, err := strconv.Atoi(s); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q", s)
	}
	return d, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.Workers == 0 {
		c.Workers = defaultWorkers
	}
	if c.Browser.Args == nil {
		c.Browser.Args = []string{"--no-sandbox"}
	}
	if c.Server.TaskTimeout == 0 {
		c.Server.TaskTimeout = Duration(defaultTaskTimeout)
	}
	if c.Server.Quality == 0 {
		c.Server.Quality = defaultQuality
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst == 0 {
		c.Server.RateBurst = 1
	}
	if c.Server.History == 0 {
		c.Server.History = defaultHistory
	}
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.Workers > maxWorkers {
		return fmt.Errorf("workers must not exceed %d, got %d", maxWorkers, c.Workers)
	}

	if c.Interval() < 0 {
		return fmt.Errorf("interval_between_tasks cannot be negative, got %s", c.Interval())
	}

	for i, arg := range c.Browser.Args {
		expanded, err := expandEnvVars(arg)
		if err != nil {
			return fmt.Errorf("browser.args[%d]: %w", i, err)
		}
		if strings.TrimSpace(expanded) == "" {
			return fmt.Errorf("browser.args[%d]: argument is empty", i)
		}
		c.Browser.Args[i] = expanded
	}

	expanded, err := expandEnvVars(c.Browser.ExecPath)
	if err != nil {
		return fmt.Errorf("browser.exec_path: %w", err)
	}
	c.Browser.ExecPath = expanded

	if c.Browser.LaunchAttempts < 0 {
		return fmt.Errorf("browser.launch_attempts cannot be negative, got %d", c.Browser.LaunchAttempts)
	}

	if c.Server.TaskTimeout.Duration() < time.Second {
		return fmt.Errorf("server.task_timeout must be at least 1s, got %s", c.Server.TaskTimeout.Duration())
	}
	if c.Server.Quality < 1 || c.Server.Quality > 100 {
		return fmt.Errorf("server.quality must be between 1 and 100, got %d", c.Server.Quality)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit cannot be negative, got %g", c.Server.RateLimit)
	}
	if c.Server.RateBurst < 0 {
		return fmt.Errorf("server.rate_burst cannot be negative, got %d", c.Server.RateBurst)
	}
	if c.Server.History < 1 {
		return fmt.Errorf("server.history must be at least 1, got %d", c.Server.History)
	}

	return nil
}
