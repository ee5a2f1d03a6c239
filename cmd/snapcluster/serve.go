package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	cluster "github.com/pedroviniv/simple-puppeteer-cluster"
	"github.com/pedroviniv/simple-puppeteer-cluster/browser"
	"github.com/pedroviniv/simple-puppeteer-cluster/config"
	"github.com/pedroviniv/simple-puppeteer-cluster/dashboard"
	"github.com/pedroviniv/simple-puppeteer-cluster/internal/poller"
	"github.com/pedroviniv/simple-puppeteer-cluster/internal/server"
	"github.com/pedroviniv/simple-puppeteer-cluster/internal/store"
)

const (
	shutdownTimeout = 10 * time.Second

	// sampleInterval is how often worker queue lengths are pushed to the
	// dashboard.
	sampleInterval = 250 * time.Millisecond
)

// browserCluster is the cluster type every command runs.
type browserCluster = cluster.Cluster[*browser.Browser, []byte]

// serveCmd starts the screenshot service.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the screenshot service",
	Long: `Start the snapcluster screenshot service.

The service will:
  - Load configuration from the specified YAML file (defaults otherwise)
  - Launch one headless browser per worker
  - Serve the screenshot API, the dashboard and /metrics on the configured port

The service runs until interrupted (Ctrl+C) or receives SIGTERM. Tasks
already running are allowed to finish; queued tasks are rejected.

Example:
  snapcluster serve
  snapcluster serve -c config.yaml
  CLUSTER_WORKERS_NUMBER=8 snapcluster serve --config /etc/snapcluster/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file")
}

// loadConfig reads the --config file, or the defaults when none is given.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")
	if configFile == "" {
		return config.Default()
	}
	return config.Load(configFile)
}

// newCluster builds an unlaunched browser cluster from cfg.
func newCluster(cfg *config.Config, logger *slog.Logger, extra ...cluster.Option) (*browserCluster, error) {
	opts := append(config.BuildOptions(cfg), cluster.WithLogger(logger))
	opts = append(opts, extra...)
	return cluster.New[*browser.Browser, []byte](config.BuildFactory(cfg, logger), opts...)
}

// submitter routes HTTP screenshot requests into c.
func submitter(c *browserCluster) server.Submitter {
	return func(target browser.Target, quality int, description string) *cluster.Future[[]byte] {
		return c.Execute(browser.Screenshot(target, quality), cluster.WithDescription(description))
	}
}

// workerLoads samples c for the load poller.
func workerLoads(c *browserCluster) poller.Source {
	return func() []poller.WorkerLoad {
		workers := c.Workers()
		loads := make([]poller.WorkerLoad, len(workers))
		for i, w := range workers {
			loads[i] = poller.WorkerLoad{
				ID:          w.ID(),
				QueueLength: w.QueueLength(),
				Running:     w.Running(),
			}
		}
		return loads
	}
}

// publishLoads copies every load snapshot into st until results closes.
func publishLoads(results <-chan poller.Snapshot, st store.Store) {
	for snap := range results {
		states := make([]store.WorkerState, len(snap.Workers))
		for i, w := range snap.Workers {
			states[i] = store.WorkerState{ID: w.ID, QueueLength: w.QueueLength, Running: w.Running}
		}
		st.SetWorkers(states)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Info("config loaded",
		"workers", cfg.Workers,
		"interval", cfg.Interval().String(),
		"headless", cfg.IsHeadless(),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	st := store.NewMemoryStore(cfg.Server.History)

	c, err := newCluster(cfg, logger,
		cluster.WithTaskCallback(store.Recorder(st)),
		cluster.WithMetricsRegisterer(reg),
	)
	if err != nil {
		return fmt.Errorf("failed to create cluster: %w", err)
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// detached so a signal stops intake without cancelling running tasks;
	// Close is what stops the workers
	if err := c.Launch(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("failed to launch cluster: %w", err)
	}

	sampler := poller.NewScheduler(workerLoads(c), sampleInterval, logger)
	sampler.Start(ctx)
	go publishLoads(sampler.Results(), st)

	srv := server.NewServer(st, cfg.Port, dashboard.Assets, cfg.Title, logger,
		server.WithSubmitter(submitter(c)),
		server.WithTaskTimeout(cfg.Server.TaskTimeout.Duration()),
		server.WithQuality(cfg.Server.Quality),
		server.WithRateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst),
		server.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
	)
	if err := srv.Start(ctx); err != nil {
		sampler.Stop()
		_ = c.Close(context.Background())
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("serving", "port", cfg.Port)
	<-ctx.Done()
	logger.Info("shutting down")

	sampler.Stop()

	// wait for running tasks with a bound; browsers are released either way
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := c.Close(shutdownCtx); err != nil {
		logger.Warn("cluster close reported errors", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
