package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"unicode/utf8"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	cluster "github.com/pedroviniv/simple-puppeteer-cluster"
)

// Target is what a screenshot renders: inline HTML or a page URL. Exactly
// one must be set.
type Target struct {
	HTML string `json:"html,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Validate reports whether exactly one of HTML and URL is set and, for URLs,
// that the scheme is one Chrome can navigate to.
func (t Target) Validate() error {
	switch {
	case t.HTML == "" && t.URL == "":
		return errors.New("target needs html or url")
	case t.HTML != "" && t.URL != "":
		return errors.New("target cannot have both html and url")
	case t.URL != "":
		u, err := url.Parse(t.URL)
		if err != nil {
			return fmt.Errorf("invalid url: %w", err)
		}
		switch u.Scheme {
		case "http", "https", "file", "data":
		default:
			return fmt.Errorf("unsupported url scheme %q", u.Scheme)
		}
	}
	return nil
}

// Description is a short label for logs and task records.
func (t Target) Description() string {
	if t.URL != "" {
		return t.URL
	}
	const maxLen = 40
	if len(t.HTML) <= maxLen {
		return "html:" + t.HTML
	}

	// cut on a rune boundary so the label stays valid UTF-8
	cut := 0
	for cut < maxLen {
		_, size := utf8.DecodeRuneInString(t.HTML[cut:])
		if cut+size > maxLen {
			break
		}
		cut += size
	}
	return "html:" + t.HTML[:cut] + "..."
}

// Screenshot returns work that renders target in a fresh browser context
// and captures the full page.
//
// quality below 100 produces a JPEG of that quality; 100 produces a PNG.
// The tab is closed when the work returns or ctx is cancelled.
func Screenshot(target Target, quality int) cluster.Work[*Browser, []byte] {
	return func(ctx context.Context, b *Browser) ([]byte, error) {
		if err := target.Validate(); err != nil {
			return nil, err
		}

		tabCtx, cancel := chromedp.NewContext(b.Context(), chromedp.WithNewBrowserContext())
		defer cancel()
		stop := context.AfterFunc(ctx, cancel)
		defer stop()

		var buf []byte
		if err := chromedp.Run(tabCtx, load(target), chromedp.FullScreenshot(&buf, quality)); err != nil {
			return nil, fmt.Errorf("screenshot %s: %w", target.Description(), err)
		}
		return buf, nil
	}
}

// load navigates to the target URL or replaces the blank page's document
// with the target HTML.
func load(target Target) chromedp.Action {
	if target.URL != "" {
		return chromedp.Navigate(target.URL)
	}
	return chromedp.ActionFunc(func(ctx context.Context) error {
		tree, err := page.GetFrameTree().Do(ctx)
		if err != nil {
			return err
		}
		return page.SetDocumentContent(tree.Frame.ID, target.HTML).Do(ctx)
	})
}
