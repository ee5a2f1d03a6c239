// Package server provides the HTTP API and dashboard for a screenshot cluster.
//
// This package handles all HTTP concerns:
//
//   - Screenshot API: POST "/api/screenshot" queues a render and waits for it
//   - REST API: JSON snapshots at "/api/tasks" and "/api/workers"
//   - Server-Sent Events: Real-time task and worker changes at "/api/sse"
//   - Metrics: Prometheus exposition at "/metrics" when configured
//   - Dashboard serving: Serves the embedded HTML dashboard at "/"
//
// Screenshot requests are optionally rate limited with a token bucket; a
// request over the limit is answered 429 without touching the cluster.
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
package server
