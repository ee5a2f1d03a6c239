// Package dashboard provides the embedded web UI for snapcluster.
//
// The dashboard is a single HTML page that subscribes to the server's SSE
// stream and shows per-worker queue lengths and recent tasks. It is
// compiled into the binary, so serving it needs no external files.
package dashboard

import "embed"

// Assets is an embedded filesystem containing the dashboard web UI.
//
// The filesystem structure is:
//
//	assets/
//	  index.html    - Dashboard page with inline CSS and JavaScript
//
//go:embed assets/*
var Assets embed.FS
