package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	cluster "github.com/pedroviniv/simple-puppeteer-cluster"
	"github.com/pedroviniv/simple-puppeteer-cluster/browser"
)

// maxRequestBytes caps the screenshot request body, inline HTML included.
const maxRequestBytes = 5 << 20

// Submitter queues a screenshot of target and returns its future.
type Submitter func(target browser.Target, quality int, description string) *cluster.Future[[]byte]

// ScreenshotRequest is the body of POST /api/screenshot.
type ScreenshotRequest struct {
	browser.Target

	// Quality overrides the server default (1-100). 100 produces PNG.
	Quality int `json:"quality,omitempty"`

	// Description labels the task in logs and the dashboard.
	Description string `json:"description,omitempty"`
}

// ScreenshotResponse is returned once the screenshot is taken.
type ScreenshotResponse struct {
	ID     string `json:"id"`
	Format string `json:"format"`
	Image  string `json:"image"`
}

type errorResponse struct {
	ID    string `json:"id,omitempty"`
	Error string `json:"error"`
}

// handleScreenshot queues a screenshot and waits for it, bounded by the
// task timeout and the request context.
func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.submit == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "screenshots are not enabled"})
		return
	}
	if s.limiter != nil && !s.limiter.Allow() {
		w.Header().Set("Retry-After", "1")
		s.writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
		return
	}

	var req ScreenshotRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	if err := req.Target.Validate(); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	quality := req.Quality
	if quality == 0 {
		quality = s.quality
	}
	if quality < 1 || quality > 100 {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "quality must be between 1 and 100"})
		return
	}

	description := req.Description
	if description == "" {
		description = req.Target.Description()
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.taskTimeout)
	defer cancel()

	future := s.submit(req.Target, quality, description)
	img, err := future.Await(ctx)
	if err != nil {
		status := statusFor(err)
		s.logger.Warn("screenshot request failed",
			"task", future.ID(),
			"status", status,
			"error", err,
		)
		s.writeJSON(w, status, errorResponse{ID: future.ID(), Error: err.Error()})
		return
	}

	format := "jpeg"
	if quality == 100 {
		format = "png"
	}
	s.writeJSON(w, http.StatusOK, ScreenshotResponse{
		ID:     future.ID(),
		Format: format,
		Image:  base64.StdEncoding.EncodeToString(img),
	})
}

// statusFor maps a task error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, cluster.ErrNotLaunched),
		errors.Is(err, cluster.ErrClosed),
		errors.Is(err, cluster.ErrNoWorkers):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
