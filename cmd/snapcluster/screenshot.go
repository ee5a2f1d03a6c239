package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	cluster "github.com/pedroviniv/simple-puppeteer-cluster"
	"github.com/pedroviniv/simple-puppeteer-cluster/browser"
)

// screenshotCmd renders a batch of files or URLs once and exits.
var screenshotCmd = &cobra.Command{
	Use:   "screenshot [file|url]...",
	Short: "Render HTML files or URLs to images",
	Long: `Launch the browser pool, screenshot every argument concurrently, write
the images and exit.

Arguments with an http, https, file or data scheme are navigated to; any
other argument is read as an HTML file. Images are written to the output
directory as <name>.jpg, or <name>.png at quality 100.

Exit codes:
  0 - Every screenshot was written
  1 - At least one screenshot failed (all failures are listed)

Example:
  snapcluster screenshot invoice.html receipt.html
  snapcluster screenshot -o shots -q 100 https://example.com
  snapcluster screenshot -c config.yaml pages/*.html`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScreenshot,
}

func init() {
	rootCmd.AddCommand(screenshotCmd)

	screenshotCmd.Flags().StringP("config", "c", "", "path to config file")
	screenshotCmd.Flags().StringP("output", "o", ".", "directory to write images to")
	screenshotCmd.Flags().IntP("quality", "q", 0, "image quality 1-100, 100 writes PNG (default from config)")
}

// job is one argument resolved into a render target.
type job struct {
	source string
	name   string
	target browser.Target
}

func runScreenshot(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	quality, _ := cmd.Flags().GetInt("quality")
	if quality == 0 {
		quality = cfg.Server.Quality
	}
	if quality < 1 || quality > 100 {
		return fmt.Errorf("quality must be between 1 and 100, got %d", quality)
	}

	outDir, _ := cmd.Flags().GetString("output")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	jobs, err := resolveJobs(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := newCluster(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create cluster: %w", err)
	}
	if err := c.Launch(ctx); err != nil {
		return fmt.Errorf("failed to launch cluster: %w", err)
	}
	defer func() {
		if err := c.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("cluster close reported errors", "error", err)
		}
	}()

	ext := ".jpg"
	if quality == 100 {
		ext = ".png"
	}

	futures := make([]*cluster.Future[[]byte], len(jobs))
	for i, j := range jobs {
		futures[i] = c.Execute(browser.Screenshot(j.target, quality), cluster.WithDescription(j.source))
	}

	var (
		mu       sync.Mutex
		failures error
	)
	out := cmd.OutOrStdout()

	var g errgroup.Group
	for i, j := range jobs {
		g.Go(func() error {
			img, err := futures[i].Await(ctx)
			if err == nil {
				path := filepath.Join(outDir, j.name+ext)
				if err = os.WriteFile(path, img, 0o644); err == nil {
					mu.Lock()
					fmt.Fprintf(out, "%s -> %s\n", j.source, path)
					mu.Unlock()
					return nil
				}
			}

			mu.Lock()
			failures = multierr.Append(failures, fmt.Errorf("%s: %w", j.source, err))
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return failures
}

// resolveJobs turns arguments into targets, reading HTML files up front so
// a missing file fails before any browser starts. Output names are made
// unique by suffixing repeats.
func resolveJobs(args []string) ([]job, error) {
	jobs := make([]job, 0, len(args))
	seen := make(map[string]int)

	for _, arg := range args {
		j := job{source: arg}

		if isURL(arg) {
			j.target = browser.Target{URL: arg}
			j.name = nameForURL(arg)
		} else {
			content, err := os.ReadFile(arg)
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", arg, err)
			}
			if len(content) == 0 {
				return nil, fmt.Errorf("%s is empty", arg)
			}
			j.target = browser.Target{HTML: string(content)}
			j.name = strings.TrimSuffix(filepath.Base(arg), filepath.Ext(arg))
		}

		if err := j.target.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", arg, err)
		}

		seen[j.name]++
		if n := seen[j.name]; n > 1 {
			j.name = fmt.Sprintf("%s-%d", j.name, n)
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func isURL(arg string) bool {
	u, err := url.Parse(arg)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "http", "https", "file", "data":
		return true
	}
	return false
}

// nameForURL derives a file name from the host and path of raw.
func nameForURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || (u.Host == "" && u.Path == "") {
		return "page"
	}

	name := strings.Trim(u.Host+u.Path, "/")
	if name == "" {
		return "page"
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
