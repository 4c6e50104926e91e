package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalText(t *testing.T) {
	t.Parallel()

	html := `<html><head><title>Trust Center</title><style>body{}</style></head>
	<body><h1>Security</h1><script>var x=1;</script>
	<p>We are   SOC 2 Type II
	compliant.</p><ul><li>AES-256 at rest</li><li>TLS 1.3 in transit</li></ul></body></html>`

	text := CanonicalText([]byte(html))
	assert.Contains(t, text, "# Security")
	assert.Contains(t, text, "We are SOC 2 Type II compliant.")
	assert.Contains(t, text, "- AES-256 at rest")
	assert.NotContains(t, text, "var x=1")
	assert.NotContains(t, text, "body{}")
}

func TestCollyFetcherFetch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body><p>We guarantee 99.99% uptime.</p></body></html>"))
	}))
	defer srv.Close()

	f := NewCollyFetcher(Config{UserAgent: "trustwatch-test", Timeout: 5 * time.Second})
	page, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Contains(t, page.Text, "We guarantee 99.99% uptime.")
}

func TestCollyFetcherSurfacesHTTPErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	f := NewCollyFetcher(Config{Timeout: 5 * time.Second})
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
}

func TestDemoFetcher(t *testing.T) {
	t.Parallel()

	f := NewDemoFetcher(map[string]string{
		"https://demo.acme.example/security": "We are SOC 2 Type II compliant.",
	})

	page, err := f.Fetch(context.Background(), "https://demo.acme.example/security")
	require.NoError(t, err)
	assert.Equal(t, "We are SOC 2 Type II compliant.", page.Text)

	_, err = f.Fetch(context.Background(), "https://demo.acme.example/missing")
	require.Error(t, err)

	f.SetPage("https://demo.acme.example/security", "updated")
	page, err = f.Fetch(context.Background(), "https://demo.acme.example/security")
	require.NoError(t, err)
	assert.Equal(t, "updated", page.Text)
}

func TestRouterSelection(t *testing.T) {
	t.Parallel()

	demo := NewDemoFetcher(map[string]string{"https://demo.acme.example/trust": "demo page"})
	network := NewDemoFetcher(map[string]string{"https://real.example/trust": "network page"})

	r, err := NewRouter(network, demo, true, `://([a-z0-9-]+\.)?demo\.`)
	require.NoError(t, err)

	page, err := r.Fetch(context.Background(), "https://demo.acme.example/trust")
	require.NoError(t, err)
	assert.Equal(t, "demo page", page.Text)

	page, err = r.Fetch(context.Background(), "https://real.example/trust")
	require.NoError(t, err)
	assert.Equal(t, "network page", page.Text)

	// Demo mode off routes everything to the network fetcher.
	r, err = NewRouter(network, demo, false, `://([a-z0-9-]+\.)?demo\.`)
	require.NoError(t, err)
	_, err = r.Fetch(context.Background(), "https://demo.acme.example/trust")
	require.Error(t, err)
}
