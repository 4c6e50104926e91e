// Package fetch implements the content fetch capability: a colly-backed
// network fetcher, an in-process demo fetcher, and the router that selects
// between them.
package fetch

import (
	"context"
	"fmt"
	"regexp"

	"github.com/oversift/trustwatch/internal/trust"
)

// Router picks the demo fetcher for matching URLs when demo mode is on and
// the network fetcher otherwise.
type Router struct {
	network trust.Fetcher
	demo    trust.Fetcher
	enabled bool
	pattern *regexp.Regexp
}

// NewRouter builds a Router. pattern is a regular expression matched against
// the full URL; it is only consulted when demo mode is enabled.
func NewRouter(network, demo trust.Fetcher, demoEnabled bool, pattern string) (*Router, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile demo pattern: %w", err)
	}
	return &Router{
		network: network,
		demo:    demo,
		enabled: demoEnabled,
		pattern: re,
	}, nil
}

// Fetch routes to the in-process demo fetcher or the network fetcher.
func (r *Router) Fetch(ctx context.Context, url string) (trust.Page, error) {
	if r.enabled && r.demo != nil && r.pattern.MatchString(url) {
		return r.demo.Fetch(ctx, url)
	}
	return r.network.Fetch(ctx, url)
}
