// Package fetcher downloads review request documents published over HTTP,
// such as the output of an upstream label extraction service.
package fetcher

import (
	"context"
	"io"
	"strings"
)

// Fetcher defines the interface for downloading remote documents.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// IsURL reports whether src names an http(s) resource rather than a local path.
func IsURL(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}
