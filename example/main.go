// Command example launches a small browser cluster, screenshots a batch of
// generated pages concurrently and writes the images to ./screenshots.
//
// It needs a local Chrome or Chromium.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	cluster "github.com/pedroviniv/simple-puppeteer-cluster"
	"github.com/pedroviniv/simple-puppeteer-cluster/browser"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// start the page server (see page_server.go)
	go StartPageServer(":9999")
	time.Sleep(100 * time.Millisecond)

	c, err := cluster.New[*browser.Browser, []byte](browser.Launch,
		cluster.WithWorkers(3),
		cluster.WithPollInterval(30*time.Millisecond),
		cluster.WithLogger(logger),
		cluster.WithTaskCallback(func(ev cluster.TaskEvent) {
			if ev.Status.Terminal() {
				fmt.Printf("  %-9s worker %d  %-28s %s\n", ev.Status, ev.WorkerID, ev.Description, ev.Duration.Round(time.Millisecond))
			}
		}),
	)
	if err != nil {
		slog.Error("failed to create cluster", "error", err)
		os.Exit(1)
	}

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := c.Launch(ctx); err != nil {
		slog.Error("failed to launch cluster", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := c.Close(context.Background()); err != nil {
			slog.Error("cluster close error", "error", err)
		}
	}()

	targets := map[string]browser.Target{
		"hello": {HTML: "<h1>Hello, World</h1>"},
	}
	for _, title := range []string{"Revenue", "Signups", "Churn", "Latency", "Errors", "Costs"} {
		targets[title] = browser.Target{
			URL: "http://localhost:9999/page?rows=8&title=" + url.QueryEscape(title),
		}
	}

	// every task is queued up front; the cluster spreads them over the workers
	futures := make(map[string]*cluster.Future[[]byte], len(targets))
	for name, target := range targets {
		futures[name] = c.Execute(browser.Screenshot(target, 90), cluster.WithDescription(name))
	}
	fmt.Printf("queued %d screenshots, queue lengths %v\n", len(futures), c.QueueLengths())

	if err := os.MkdirAll("screenshots", 0o755); err != nil {
		slog.Error("failed to create output directory", "error", err)
		os.Exit(1)
	}

	for name, f := range futures {
		img, err := f.Await(ctx)
		if err != nil {
			slog.Error("screenshot failed", "name", name, "error", err)
			continue
		}
		path := filepath.Join("screenshots", name+".jpg")
		if err := os.WriteFile(path, img, 0o644); err != nil {
			slog.Error("failed to write screenshot", "path", path, "error", err)
		}
	}
	fmt.Println("done, images in ./screenshots")
}
