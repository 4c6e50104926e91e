// Package pdfparse implements the PDF-parsing capability as a client for the
// out-of-band parser service.
package pdfparse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/oversift/trustwatch/internal/trust"
)

// Config controls the parser service client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client calls the external parser service's POST /parse endpoint.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient builds a Client. The default timeout matches the slow path of
// large audit reports.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

type parseRequest struct {
	URL string `json:"url"`
}

type parseResponse struct {
	Text  string            `json:"text"`
	Pages map[string]string `json:"pages"`
}

// Parse submits the PDF URL and returns the full text plus per-page text.
func (c *Client) Parse(ctx context.Context, pdfURL string) (trust.PDFDocument, error) {
	body, err := json.Marshal(parseRequest{URL: pdfURL})
	if err != nil {
		return trust.PDFDocument{}, fmt.Errorf("marshal parse request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/parse", bytes.NewReader(body))
	if err != nil {
		return trust.PDFDocument{}, fmt.Errorf("build parse request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return trust.PDFDocument{}, fmt.Errorf("call parser: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return trust.PDFDocument{}, fmt.Errorf("parser returned status %d for %s", resp.StatusCode, pdfURL)
	}

	var out parseResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return trust.PDFDocument{}, fmt.Errorf("decode parser response: %w", err)
	}

	doc := trust.PDFDocument{Text: out.Text, Pages: make(map[int]string, len(out.Pages))}
	for k, v := range out.Pages {
		page, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		doc.Pages[page] = v
	}
	return doc, nil
}
