package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pedroviniv/simple-puppeteer-cluster/config"
)

// clearEnv blanks the environment overrides so a developer's shell does not
// leak into the tests.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range config.EnvNames {
		t.Setenv(name, "")
	}
}

// executeCmd runs the root command with args and returns captured stdout
// and any error.
func executeCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return buf.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestRunValidate_ValidConfig(t *testing.T) {
	clearEnv(t)

	configPath := writeConfig(t, `
port: 9090
workers: 2
interval_between_tasks: 100ms
browser:
  headless: false
  args: [--no-sandbox, --disable-gpu]
server:
  rate_limit: 5
  rate_burst: 10
`)

	output, err := executeCmd(t, "validate", "-c", configPath)
	if err != nil {
		t.Fatalf("validate command error = %v", err)
	}

	expectedPhrases := []string{
		"Config is valid!",
		"Port:          9090",
		"Workers:       2",
		"Interval:      100ms",
		"Headless:      false",
		"Browser args:  --no-sandbox --disable-gpu",
		"Task timeout:  30s",
		"Rate limit:    5/s (burst 10)",
	}

	for _, phrase := range expectedPhrases {
		if !strings.Contains(output, phrase) {
			t.Errorf("output missing %q\nGot: %s", phrase, output)
		}
	}
}

func TestRunValidate_EnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv(config.EnvWorkers, "6")

	output, err := executeCmd(t, "validate", "-c", writeConfig(t, "workers: 2\n"))
	if err != nil {
		t.Fatalf("validate command error = %v", err)
	}
	if !strings.Contains(output, "Workers:       6") {
		t.Errorf("output should show the env override, got: %s", output)
	}
	if !strings.Contains(output, "Rate limit:    unlimited") {
		t.Errorf("output should show no rate limit, got: %s", output)
	}
}

func TestRunValidate_InvalidConfig(t *testing.T) {
	clearEnv(t)

	_, err := executeCmd(t, "validate", "-c", writeConfig(t, "workers: -1\n"))
	if err == nil {
		t.Fatal("validate command expected error for invalid config, got nil")
	}

	if !strings.Contains(err.Error(), "workers must be at least 1") {
		t.Errorf("error should mention the worker count, got: %v", err)
	}
}

func TestRunValidate_MissingFile(t *testing.T) {
	clearEnv(t)

	_, err := executeCmd(t, "validate", "-c", "/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("validate command expected error for missing file, got nil")
	}

	if !strings.Contains(err.Error(), "failed to read") {
		t.Errorf("error should mention 'failed to read', got: %v", err)
	}
}

func TestVersionCmd(t *testing.T) {
	output, err := executeCmd(t, "version")
	if err != nil {
		t.Fatalf("version command error = %v", err)
	}
	if !strings.HasPrefix(output, "snapcluster dev\n") {
		t.Errorf("output = %q, want version line first", output)
	}
}
