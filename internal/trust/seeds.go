package trust

import "strings"

// SeedURLs derives the watch URLs for a company from its enabled
// categories. The domain is prefixed with https:// unless it already
// carries a scheme, in which case it is used verbatim as the base; a
// trailing slash is dropped either way.
func SeedURLs(domain string, categories []Category) []string {
	base := strings.TrimSuffix(domain, "/")
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}

	var urls []string
	seen := make(map[string]bool)
	for _, c := range categories {
		for _, path := range SeedPaths(c) {
			u := base + path
			if !seen[u] {
				seen[u] = true
				urls = append(urls, u)
			}
		}
	}
	return urls
}
