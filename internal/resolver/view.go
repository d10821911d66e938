package resolver

import (
	"net/url"
	"strings"
)

// BuildViewURL computes a document's canonical web location by resolving its
// path against the publication base with standard URL-reference resolution.
// Bases without a scheme are assumed https.
func BuildViewURL(base, path string) (string, bool) {
	if base == "" {
		return "", false
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", false
	}

	return baseURL.ResolveReference(ref).String(), true
}
