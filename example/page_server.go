package main

import (
	"fmt"
	"html"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// palette cycles background colours so consecutive screenshots differ.
var palette = []string{"#0f766e", "#7c3aed", "#b45309", "#be123c"}

// StartPageServer serves generated report pages at /page?title=...&rows=N.
// Every request for the same title renders the next colour in the palette.
// Call this in a goroutine before submitting screenshots.
func StartPageServer(addr string) {
	var (
		renders = make(map[string]int)
		mu      sync.Mutex
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		title := r.URL.Query().Get("title")
		if title == "" {
			title = "Untitled"
		}
		rows, err := strconv.Atoi(r.URL.Query().Get("rows"))
		if err != nil || rows < 1 {
			rows = 5
		}

		// simulate a slow backend so queues build up
		time.Sleep(time.Duration(50+rand.Intn(150)) * time.Millisecond)

		mu.Lock()
		n := renders[title]
		renders[title]++
		mu.Unlock()

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<!DOCTYPE html><html><body style="margin:0;font-family:sans-serif;background:%s;color:#fff">`,
			palette[n%len(palette)])
		fmt.Fprintf(w, `<h1 style="padding:24px;margin:0">%s</h1><table style="margin:0 24px;border-collapse:collapse">`,
			html.EscapeString(title))
		for i := 1; i <= rows; i++ {
			fmt.Fprintf(w, `<tr><td style="padding:4px 12px">row %d</td><td style="padding:4px 12px">%d</td></tr>`,
				i, rand.Intn(1000))
		}
		fmt.Fprint(w, `</table></body></html>`)
	})

	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("page server error", "error", err)
	}
}
