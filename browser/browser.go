// Package browser provides a chromedp-backed [cluster.Resource] and the
// screenshot work the cluster runs on it.
//
// Each [Browser] is one Chrome process with its own allocator. Work gets a
// fresh browser context per task so cookies and storage never leak between
// tasks sharing a worker.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	boff "github.com/Andrej220/go-utils/backoff"
	"github.com/chromedp/chromedp"
	"go.uber.org/multierr"

	cluster "github.com/pedroviniv/simple-puppeteer-cluster"
)

const (
	defaultLaunchAttempts = 3
	defaultRetryInitial   = 200 * time.Millisecond
	defaultRetryMax       = 2 * time.Second
)

// Options configure how browsers are started.
type Options struct {
	// ExecPath is the Chrome binary. Empty lets chromedp search the usual
	// locations.
	ExecPath string

	// LaunchAttempts is how many times starting Chrome is tried before the
	// factory gives up. Defaults to 3.
	LaunchAttempts int

	// RetryInitial and RetryMax bound the backoff between attempts.
	RetryInitial time.Duration
	RetryMax     time.Duration

	// Logger defaults to [slog.Default].
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.LaunchAttempts <= 0 {
		o.LaunchAttempts = defaultLaunchAttempts
	}
	if o.RetryInitial <= 0 {
		o.RetryInitial = defaultRetryInitial
	}
	if o.RetryMax <= 0 {
		o.RetryMax = defaultRetryMax
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Browser is one running Chrome instance.
type Browser struct {
	index int
	ctx   context.Context

	cancel      context.CancelFunc
	allocCancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// Launch starts a browser with default [Options]. It satisfies
// [cluster.Factory].
func Launch(ctx context.Context, index int, settings cluster.ResourceSettings) (*Browser, error) {
	return NewFactory(Options{})(ctx, index, settings)
}

// NewFactory returns a [cluster.Factory] that starts browsers with opts,
// retrying failed starts with jittered exponential backoff.
func NewFactory(opts Options) cluster.Factory[*Browser] {
	opts = opts.withDefaults()

	return func(ctx context.Context, index int, settings cluster.ResourceSettings) (*Browser, error) {
		logger := opts.Logger.With("browser", index)
		bo := boff.New(opts.RetryInitial, opts.RetryMax, time.Now().UnixNano())

		var lastErr error
		for attempt := 1; attempt <= opts.LaunchAttempts; attempt++ {
			b, err := start(ctx, index, settings, opts.ExecPath)
			if err == nil {
				logger.Info("browser started", "attempt", attempt, "headless", settings.Headless)
				return b, nil
			}
			lastErr = err
			if attempt == opts.LaunchAttempts {
				break
			}

			delay := bo.Next()
			logger.Warn("browser start failed; backing off",
				"attempt", attempt,
				"sleep", delay.String(),
				"error", err.Error(),
			)
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, fmt.Errorf("start browser %d: %w", index, multierr.Append(lastErr, ctx.Err()))
			}
		}
		return nil, fmt.Errorf("start browser %d after %d attempts: %w", index, opts.LaunchAttempts, lastErr)
	}
}

// start runs one attempt. The browser outlives ctx: only its values are
// kept, so cancelling the launch context later does not kill Chrome.
func start(ctx context.Context, index int, settings cluster.ResourceSettings, execPath string) (*Browser, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(
		context.WithoutCancel(ctx),
		allocatorOptions(settings, execPath)...,
	)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	// an empty Run starts the browser process
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		allocCancel()
		return nil, err
	}

	return &Browser{
		index:       index,
		ctx:         browserCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
	}, nil
}

// allocatorOptions maps cluster settings onto chromedp allocator flags.
func allocatorOptions(settings cluster.ResourceSettings, execPath string) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, chromedp.Flag("headless", settings.Headless))
	if execPath != "" {
		opts = append(opts, chromedp.ExecPath(execPath))
	}
	for _, f := range ParseArgs(settings.Args) {
		opts = append(opts, chromedp.Flag(f.Name, f.Value))
	}
	return opts
}

// Flag is one parsed command-line switch. Value is true for bare switches
// and the text after '=' otherwise.
type Flag struct {
	Name  string
	Value any
}

// ParseArgs turns "--name" and "--name=value" arguments into flags. Leading
// dashes are optional; blank entries are skipped.
func ParseArgs(args []string) []Flag {
	flags := make([]Flag, 0, len(args))
	for _, arg := range args {
		arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
		if arg == "" {
			continue
		}
		name, value, ok := strings.Cut(arg, "=")
		if !ok {
			flags = append(flags, Flag{Name: name, Value: true})
			continue
		}
		flags = append(flags, Flag{Name: name, Value: value})
	}
	return flags
}

// Index returns the zero-based index the browser was created for.
func (b *Browser) Index() int {
	return b.index
}

// Context returns the chromedp context bound to this browser. Derive tab
// contexts from it with [chromedp.NewContext].
func (b *Browser) Context() context.Context {
	return b.ctx
}

// Connected reports whether the browser process is still usable.
func (b *Browser) Connected() bool {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed || b.ctx.Err() != nil {
		return false
	}
	c := chromedp.FromContext(b.ctx)
	return c != nil && c.Browser != nil
}

// Close shuts Chrome down gracefully and removes its allocator. Calls after
// the first are no-ops.
func (b *Browser) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	err := chromedp.Cancel(b.ctx)
	b.cancel()
	b.allocCancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close browser %d: %w", b.index, err)
	}
	return nil
}
