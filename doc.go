// Package cluster runs asynchronous work on a fixed pool of long-lived,
// exclusively owned resources such as headless browser instances.
//
// A caller submits work without knowing which resource will run it and
// awaits that one task's result independently of every other task.
//
// # Quick Start
//
// Launch a pool of browsers and take a screenshot:
//
//	c, _ := cluster.New[*browser.Browser, []byte](browser.Launch,
//	    cluster.WithWorkers(4),
//	    cluster.WithPollInterval(30*time.Millisecond),
//	)
//	if err := c.Launch(ctx); err != nil {
//	    return err
//	}
//	defer c.Close(context.Background())
//
//	img, err := c.Execute(browser.Screenshot(browser.Target{HTML: "<h1>Hello</h1>"}, 90)).Await(ctx)
//
// # Model
//
// Three pieces cooperate:
//
//   - [Task]: a [Work] function, its one-shot [Future] and a [Status]
//   - [Worker]: one [Resource] and a private FIFO queue, drained by its own
//     goroutine at most one task per poll interval
//   - [Cluster]: creates the workers through a [Factory], routes every task
//     to the worker with the shortest queue and coordinates shutdown
//
// Routing is a linear scan where only a strictly shorter queue wins, so on a
// tie the lowest-indexed worker is chosen. Tasks routed to the same worker
// start in submission order; nothing is promised across workers.
//
// # Failure Handling
//
// An error or panic inside work settles only that task's future; the worker
// carries on with its next cycle. A worker whose resource reports itself
// disconnected skips cycles until it reconnects. [Cluster.Close] lets
// running tasks finish, rejects queued ones with [ErrClosed] and reports
// every resource that failed to close.
//
// There is no per-task timeout. Pass a context with a deadline to
// [Future.Await] to bound how long a caller waits.
//
// # Architecture
//
// Outside the core:
//
//   - browser: chromedp-backed [Resource] and screenshot work
//   - config: YAML and environment configuration
//   - internal/metrics: Prometheus instruments
//   - internal/store: in-memory task records with pub/sub
//   - internal/server: HTTP API, Server-Sent Events and /metrics
//   - dashboard: embedded web UI assets
package cluster
