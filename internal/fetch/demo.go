package fetch

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/oversift/trustwatch/internal/trust"
)

// DemoFetcher answers fetches from an in-process table keyed by URL. It
// backs demo mode and the end-to-end tests; SetPage mutates a page between
// crawls to simulate vendors editing their sites.
type DemoFetcher struct {
	mu    sync.RWMutex
	pages map[string]string
}

// NewDemoFetcher builds a DemoFetcher preloaded with the given pages.
func NewDemoFetcher(pages map[string]string) *DemoFetcher {
	table := make(map[string]string, len(pages))
	for url, text := range pages {
		table[url] = text
	}
	return &DemoFetcher{pages: table}
}

// SetPage installs or replaces the text served for url.
func (f *DemoFetcher) SetPage(url, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[url] = text
}

// RemovePage deletes url from the table; subsequent fetches fail like a 404.
func (f *DemoFetcher) RemovePage(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pages, url)
}

// Fetch returns the table entry for url or a not-found error.
func (f *DemoFetcher) Fetch(ctx context.Context, url string) (trust.Page, error) {
	if err := ctx.Err(); err != nil {
		return trust.Page{}, fmt.Errorf("fetch canceled: %w", err)
	}
	f.mu.RLock()
	text, ok := f.pages[url]
	f.mu.RUnlock()
	if !ok {
		return trust.Page{}, fmt.Errorf("fetch %s: unexpected status %d", url, http.StatusNotFound)
	}
	return trust.Page{
		URL:        url,
		Text:       text,
		StatusCode: http.StatusOK,
		Duration:   time.Millisecond,
	}, nil
}
