// Package fetch issues the HTTP GET requests behind every resolver and
// classifies their failures as network or decode errors.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

var (
	// ErrNetwork covers connection failures, timeouts and non-2xx responses.
	ErrNetwork = errors.New("network error")
	// ErrDecode is returned when a response body cannot be read as text.
	ErrDecode = errors.New("decode error")
)

// maxBodyBytes caps response bodies; flight-plan payloads run to a few MB.
const maxBodyBytes = 16 << 20

// Fetcher performs a single logical GET and returns the body as text.
type Fetcher interface {
	Get(ctx context.Context, uri string) (string, error)
}

// Options tunes the HTTP fetcher.
type Options struct {
	Timeout           time.Duration
	MaxRetries        int
	RetryWaitMin      time.Duration
	RetryWaitMax      time.Duration
	RequestsPerSecond float64 // 0 disables rate limiting
	UserAgent         string
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Timeout:      15 * time.Second,
		MaxRetries:   2,
		RetryWaitMin: 500 * time.Millisecond,
		RetryWaitMax: 4 * time.Second,
		UserAgent:    "gfd",
	}
}

// HTTPFetcher is the default Fetcher backed by a retrying, pooled client.
type HTTPFetcher struct {
	client    *retryablehttp.Client
	limiter   *rate.Limiter
	userAgent string
}

// NewHTTPFetcher creates a fetcher from opts.
func NewHTTPFetcher(opts Options) *HTTPFetcher {
	rc := retryablehttp.NewClient()
	rc.HTTPClient = cleanhttp.DefaultPooledClient()
	rc.HTTPClient.Timeout = opts.Timeout
	rc.RetryMax = opts.MaxRetries
	if opts.RetryWaitMin > 0 {
		rc.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		rc.RetryWaitMax = opts.RetryWaitMax
	}
	// the default logger prints full URLs, which carry the API key
	rc.Logger = nil
	rc.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			slog.Info("Retrying request",
				"uri", RedactURI(req.URL.String()),
				"attempt", attempt,
				"maxRetries", opts.MaxRetries)
		}
	}
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	f := &HTTPFetcher{client: rc, userAgent: opts.UserAgent}
	if opts.RequestsPerSecond > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return f
}

// Get performs the request and returns the body text.
func (f *HTTPFetcher) Get(ctx context.Context, uri string) (string, error) {
	safe := RedactURI(uri)

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: GET %s: rate limiter: %w", ErrNetwork, safe, err)
		}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return "", fmt.Errorf("%w: GET %s: %w", ErrNetwork, safe, err)
	}
	req.Header.Set("Accept", "application/json")
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: GET %s: %s", ErrNetwork, safe, redactErr(err, uri, safe))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return "", fmt.Errorf("%w: GET %s: unexpected status %d", ErrNetwork, safe, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("%w: GET %s: read body: %w", ErrDecode, safe, err)
	}
	if !utf8.Valid(body) {
		return "", fmt.Errorf("%w: GET %s: body is not valid UTF-8", ErrDecode, safe)
	}

	slog.Debug("Request complete",
		"uri", safe,
		"status", resp.StatusCode,
		"bytes", len(body),
		"duration", time.Since(start).String())
	return string(body), nil
}

// RedactURI masks credential-bearing query parameters for logging.
func RedactURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return "<invalid uri>"
	}
	q := u.Query()
	changed := false
	for _, key := range []string{"token", "api_token", "key"} {
		if q.Has(key) {
			q.Set(key, "***")
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// redactErr renders err with any occurrence of the raw URI replaced.
func redactErr(err error, raw, safe string) string {
	msg := err.Error()
	if raw == safe {
		return msg
	}
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return fmt.Sprintf("%s %q: %v", uerr.Op, safe, uerr.Err)
	}
	return strings.ReplaceAll(msg, raw, safe)
}
