package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/couchcryptid/flood-extent-service/internal/domain"
	"github.com/couchcryptid/flood-extent-service/internal/observability"
)

// maxPayloadBytes caps a single dataset download.
const maxPayloadBytes = 256 << 20

// HTTPFetcher implements domain.Fetcher against a static file host.
type HTTPFetcher struct {
	baseURL    *url.URL
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewHTTPFetcher creates a fetcher rooted at baseURL. A requestsPerSecond of
// zero or less disables rate limiting.
func NewHTTPFetcher(baseURL string, timeout time.Duration, requestsPerSecond float64, metrics *observability.Metrics, logger *slog.Logger) (*HTTPFetcher, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return &HTTPFetcher{
		baseURL:    u,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    newLimiter(requestsPerSecond),
		metrics:    metrics,
		logger:     logger,
	}, nil
}

func newLimiter(requestsPerSecond float64) *rate.Limiter {
	if requestsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
}

// Fetch downloads ref relative to the base URL. 404 and 410 wrap
// domain.ErrUnavailable.
func (f *HTTPFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	start := time.Now()
	body, err := f.doRequest(ctx, f.baseURL.JoinPath(ref).String())
	f.metrics.SourceDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		f.metrics.SourceRequests.WithLabelValues("ok").Inc()
	case errors.Is(err, domain.ErrUnavailable):
		f.metrics.SourceRequests.WithLabelValues("not_found").Inc()
	default:
		f.metrics.SourceRequests.WithLabelValues("error").Inc()
		f.logger.Debug("source request failed", "source_ref", ref, "error", err)
	}
	return body, err
}

func (f *HTTPFetcher) doRequest(ctx context.Context, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, fmt.Errorf("%s: %w", fullURL, domain.ErrUnavailable)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("source error: status %d: %s", resp.StatusCode, body)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxPayloadBytes {
		return nil, fmt.Errorf("payload exceeds %d bytes", maxPayloadBytes)
	}
	return body, nil
}
