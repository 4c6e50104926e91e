package fetch

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/oversift/trustwatch/internal/trust"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// CollyFetcher fetches pages over the network using a Colly collector and
// canonicalises the HTML into markdown-style plain text.
type CollyFetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

// NewCollyFetcher builds a CollyFetcher.
func NewCollyFetcher(cfg Config) *CollyFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.SetRequestTimeout(cfg.Timeout)
	return &CollyFetcher{cfg: cfg, baseCollector: c}
}

// Fetch executes a single HTTP GET and returns the canonicalised text.
// Transport failures and non-2xx statuses surface as errors; an empty body
// on a 2xx response returns an empty page, not an error.
func (f *CollyFetcher) Fetch(ctx context.Context, url string) (trust.Page, error) {
	var (
		result   trust.Page
		fetchErr error
	)
	start := time.Now()

	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.OnRequest(func(r *colly.Request) {
		select {
		case <-ctx.Done():
			r.Abort()
		default:
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		result = trust.Page{
			URL:        r.Request.URL.String(),
			Text:       CanonicalText(r.Body),
			StatusCode: r.StatusCode,
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = fmt.Errorf("fetch %s: status %d: %w", url, status, err)
	})

	if err := collector.Visit(url); err != nil {
		return trust.Page{}, fmt.Errorf("visit %s: %w", url, err)
	}
	collector.Wait()

	if ctx.Err() != nil {
		return trust.Page{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	}
	if fetchErr != nil {
		return trust.Page{}, fetchErr
	}
	if result.StatusCode >= http.StatusBadRequest {
		return trust.Page{}, fmt.Errorf("fetch %s: unexpected status %d", url, result.StatusCode)
	}
	return result, nil
}

// CanonicalText converts an HTML document to a stable markdown-style plain
// text rendering: headings prefixed with #, list items with -, scripts and
// styles dropped, whitespace collapsed per block.
func CanonicalText(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		// Not HTML; treat the body as preformatted text.
		return strings.TrimSpace(string(body))
	}
	doc.Find("script, style, noscript, iframe, svg").Remove()

	var b strings.Builder
	doc.Find("h1, h2, h3, h4, h5, h6, p, li, td, th, blockquote, pre, title").Each(func(_ int, s *goquery.Selection) {
		text := collapseSpace(s.Text())
		if text == "" {
			return
		}
		switch goquery.NodeName(s) {
		case "h1":
			b.WriteString("# " + text)
		case "h2":
			b.WriteString("## " + text)
		case "h3", "h4", "h5", "h6":
			b.WriteString("### " + text)
		case "li":
			b.WriteString("- " + text)
		default:
			b.WriteString(text)
		}
		b.WriteString("\n\n")
	})

	out := strings.TrimSpace(b.String())
	if out == "" {
		// Pages without block structure still contribute their bare text.
		out = collapseSpace(doc.Text())
	}
	return out
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
