package config

import (
	"log/slog"

	cluster "github.com/pedroviniv/simple-puppeteer-cluster"
	"github.com/pedroviniv/simple-puppeteer-cluster/browser"
)

// BuildOptions converts parsed configuration into cluster options.
//
// The returned options cover the pool shape and browser settings. Callers
// append their own logger, callbacks and metrics registerer.
func BuildOptions(cfg *Config) []cluster.Option {
	return []cluster.Option{
		cluster.WithWorkers(cfg.Workers),
		cluster.WithPollInterval(cfg.Interval()),
		cluster.WithResourceSettings(cluster.ResourceSettings{
			Headless: cfg.IsHeadless(),
			Args:     cfg.Browser.Args,
		}),
	}
}

// BuildFactory returns the browser factory described by cfg.
func BuildFactory(cfg *Config, logger *slog.Logger) cluster.Factory[*browser.Browser] {
	return browser.NewFactory(browser.Options{
		ExecPath:       cfg.Browser.ExecPath,
		LaunchAttempts: cfg.Browser.LaunchAttempts,
		Logger:         logger,
	})
}
