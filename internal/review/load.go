package review

import (
	"context"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/label-review/internal/fetcher"
)

// maxRequestBytes bounds a downloaded request document.
const maxRequestBytes = 10 << 20

// LoadRequest reads a review request from a YAML or JSON file.
func LoadRequest(path string) (*Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "review: read %s", path)
	}
	return ParseRequest(data)
}

// FetchRequest downloads and parses a review request published at url.
func FetchRequest(ctx context.Context, f fetcher.Fetcher, url string) (*Request, error) {
	body, err := f.Download(ctx, url)
	if err != nil {
		return nil, eris.Wrapf(err, "review: fetch %s", url)
	}
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(body, maxRequestBytes+1))
	if err != nil {
		return nil, eris.Wrapf(err, "review: read %s", url)
	}
	if len(data) > maxRequestBytes {
		return nil, eris.Errorf("review: request at %s exceeds %d bytes", url, maxRequestBytes)
	}
	return ParseRequest(data)
}

// ParseRequest decodes a review request. JSON input is accepted since it is
// valid YAML.
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := yaml.Unmarshal(data, &req); err != nil {
		return nil, eris.Wrap(err, "review: parse request")
	}
	if err := ValidateApplication(req.Application); err != nil {
		return nil, err
	}
	return &req, nil
}
