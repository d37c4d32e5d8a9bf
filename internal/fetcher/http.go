package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/label-review/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int           // total attempts per download
	Backoff    time.Duration // first retry delay, doubled each attempt
	// RateLimit is the starting requests per second. It adapts to 429s.
	RateLimit rate.Limit
	Burst     int
}

// StatusError is a response other than 200 OK.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d from %s", e.StatusCode, e.URL)
}

// Retryable reports whether a later attempt could succeed.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// AdaptiveLimiter is a token bucket whose rate backs off on 429 responses
// (halving, floor initial/4) and recovers on success (+20%, ceiling 2x initial).
type AdaptiveLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	floor   rate.Limit
	ceiling rate.Limit
}

// NewAdaptiveLimiter creates an adaptive limiter starting at initial.
func NewAdaptiveLimiter(initial rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter: rate.NewLimiter(initial, burst),
		floor:   initial / 4,
		ceiling: initial * 2,
	}
}

// Wait blocks until a request may be sent.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess raises the rate.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.limiter.SetLimit(min(a.limiter.Limit()*1.2, a.ceiling))
}

// OnRateLimit lowers the rate after a 429.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	next := max(a.limiter.Limit()*0.5, a.floor)
	a.limiter.SetLimit(next)
	zap.L().Warn("fetcher: throttled, lowering request rate", zap.Float64("rate", float64(next)))
}

// Limit returns the current rate.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.limiter.Limit()
}

// HTTPFetcher downloads documents with rate limiting and retries.
type HTTPFetcher struct {
	client  *http.Client
	opts    HTTPOptions
	limiter *AdaptiveLimiter
}

// NewHTTPFetcher creates an HTTPFetcher, filling unset options with defaults.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.Backoff == 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "label-review/1.0"
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = 5
	}

	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:    opts,
		limiter: NewAdaptiveLimiter(opts.RateLimit, opts.Burst),
	}
}

// Download fetches rawURL and returns the response body. Throttling, server
// errors, and transport failures are retried; other statuses fail at once.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "application/json, application/yaml;q=0.9, */*;q=0.5")

	retry := resilience.RetryConfig{
		MaxAttempts:    f.opts.MaxRetries,
		InitialBackoff: f.opts.Backoff,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2,
		JitterFraction: 0.25,
		ShouldRetry:    retryable,
		OnRetry:        resilience.RetryLogger("fetch", zap.String("url", rawURL)),
	}

	var body io.ReadCloser
	err = resilience.Do(ctx, retry, func(ctx context.Context) error {
		if err := f.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "fetcher: rate limiter wait")
		}

		resp, err := f.client.Do(req.Clone(ctx))
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusTooManyRequests {
				f.limiter.OnRateLimit()
			}
			return &StatusError{StatusCode: resp.StatusCode, URL: rawURL}
		}

		f.limiter.OnSuccess()
		body = resp.Body
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: download %s", rawURL)
	}
	return body, nil
}

// retryable treats throttling, 5xx, and transport errors as worth another try.
func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return !errors.Is(err, context.Canceled)
	}
	return resilience.IsTransient(err)
}
