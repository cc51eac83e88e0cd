// Package client provides the shared PokeAPI transport: one pooled HTTP
// client with per-request timeouts, transport-level retry, optional Redis
// response caching and error classification.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/pokeapi-harvester/pkg/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for API client operations.
var (
	apiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_api_requests_total",
		Help: "Total PokeAPI requests by endpoint and status",
	}, []string{"endpoint", "status"})

	apiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "harvester_api_request_duration_seconds",
		Help:    "PokeAPI request duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	apiErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_api_errors_total",
		Help: "Total PokeAPI errors by class",
	}, []string{"class"})
)

// DefaultBaseURL is the public PokeAPI v2 root.
const DefaultBaseURL = "https://pokeapi.co/api/v2/"

// Client is the shared PokeAPI transport.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	cache      *cache.Manager
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API root that relative references resolve against.
	BaseURL string

	// UserAgent header sent with every request.
	UserAgent string

	// Timeout bounds each individual attempt, body included. Zero disables it.
	Timeout time.Duration

	// Retry is the transport-level retry policy for JSON requests.
	Retry RetryPolicy

	// MaxIdleConnsPerHost sizes the shared connection pool.
	MaxIdleConnsPerHost int

	// Redis enables the response cache when non-nil.
	Redis *redis.Client
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		BaseURL:             DefaultBaseURL,
		UserAgent:           userAgent,
		Timeout:             30 * time.Second,
		Retry:               DefaultRetryPolicy(),
		MaxIdleConnsPerHost: 100,
	}
}

// New creates a new PokeAPI client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must be >= 0 (got %s)", cfg.Timeout)
	}
	if cfg.Retry.MaxRetries < 0 || cfg.Retry.Backoff < 0 {
		return nil, fmt.Errorf("retry policy must not be negative")
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if !base.IsAbs() {
		return nil, fmt.Errorf("base url must be absolute (got %q)", cfg.BaseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = 100
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxIdleConns:        cfg.MaxIdleConnsPerHost * 2,
		IdleConnTimeout:     90 * time.Second,
	}

	c := &Client{
		httpClient: &http.Client{Transport: transport},
		baseURL:    base,
		config:     cfg,
		logger:     log.With().Str("component", "api-client").Logger(),
	}
	if cfg.Redis != nil {
		c.cache = cache.NewManager(cfg.Redis)
	}

	return c, nil
}

// Resolve turns a reference into an absolute URL. Absolute references are
// returned unchanged; relative ones resolve against the base URL.
func (c *Client) Resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse reference %q: %w", ref, err)
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	return c.baseURL.ResolveReference(&url.URL{Path: strings.TrimPrefix(u.Path, "/"), RawQuery: u.RawQuery}).String(), nil
}

// Do performs a request with caching, per-attempt timeout and retry. The
// response body is read inside the attempt, so the returned body is always
// fully buffered and transport errors while streaming count as retryable.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := req.URL.Path

	startTime := time.Now()
	defer func() {
		apiRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	cacheKey := cache.KeyFromURL(req.URL)
	var cachedEntry *cache.CacheEntry
	if c.cache != nil && req.Method == http.MethodGet {
		entry, err := c.cache.Get(ctx, cacheKey)
		switch {
		case err == nil && !entry.IsExpired():
			c.logger.Debug().Str("endpoint", endpoint).Msg("Serving from cache")
			apiRequestsTotal.WithLabelValues(endpoint, "cache").Inc()
			return cache.EntryToResponse(entry, req), nil
		case err == nil:
			cachedEntry = entry
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
		}
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	if cache.ShouldMakeConditionalRequest(cachedEntry) {
		cache.AddConditionalHeaders(req, cachedEntry)
		c.logger.Debug().
			Str("endpoint", endpoint).
			Str("etag", cachedEntry.ETag).
			Msg("Making conditional request")
	}

	var resp *http.Response

	retryErr := retryWithBackoff(ctx, c.config.Retry, func(attempt int) (ErrorClass, error) {
		r, class, err := c.attempt(req)
		if err != nil {
			apiErrorsTotal.WithLabelValues(string(class)).Inc()
			apiRequestsTotal.WithLabelValues(endpoint, string(class)).Inc()
			c.logger.Warn().
				Err(err).
				Str("endpoint", endpoint).
				Int("attempt", attempt+1).
				Str("error_class", string(class)).
				Msg("PokeAPI request failed")
			return class, err
		}

		resp = r
		apiRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(r.StatusCode)).Inc()
		if class := ClassifyStatus(r.StatusCode); class != "" {
			// non-retryable status, the caller decides what it means
			apiErrorsTotal.WithLabelValues(string(class)).Inc()
		}
		return "", nil
	})
	if retryErr != nil {
		return nil, retryErr
	}

	if resp.StatusCode == http.StatusNotModified && cachedEntry != nil {
		c.logger.Debug().Str("endpoint", endpoint).Msg("304 Not Modified - using cache")
		cache.NotModifiedResponses.Inc()

		entry, err := cache.ResponseToEntry(resp)
		if err == nil {
			if err := c.cache.UpdateTTL(ctx, cacheKey, entry.Expires); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to update cache TTL")
			}
		}
		return cache.EntryToResponse(cachedEntry, req), nil
	}

	if c.cache != nil && resp.StatusCode == http.StatusOK {
		entry, err := cache.ResponseToEntry(resp)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to create cache entry")
		} else if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache response")
		}
	}

	return resp, nil
}

// attempt executes one request under the per-attempt timeout and buffers
// the body. Retryable statuses are returned as errors.
func (c *Client) attempt(req *http.Request) (*http.Response, ErrorClass, error) {
	ctx := req.Context()
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	resp, err := c.httpClient.Do(req.Clone(ctx))
	if err != nil {
		return nil, ErrorClassNetwork, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ErrorClassNetwork, fmt.Errorf("read body: %w", err)
	}

	if class := ClassifyStatus(resp.StatusCode); shouldRetry(class) {
		return nil, class, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			URL:        req.URL.String(),
			Message:    resp.Status,
		}
	}

	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	return resp, "", nil
}

// Get performs a GET request for a reference (absolute URL or path relative
// to the base URL).
func (c *Client) Get(ctx context.Context, ref string) (*http.Response, error) {
	target, err := c.Resolve(ref)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	return c.Do(req)
}

// GetJSON fetches ref and decodes a 200 response into v. Any other status
// yields an *APIError.
func (c *Client) GetJSON(ctx context.Context, ref string, v any) error {
	resp, err := c.Get(ctx, ref)
	if err != nil {
		return fmt.Errorf("get %s: %w", ref, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		target := ref
		if resp.Request != nil {
			target = resp.Request.URL.String()
		}
		return &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: ClassifyStatus(resp.StatusCode),
			URL:        target,
			Message:    resp.Status,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", ref, err)
	}
	return nil
}

// HTTPClient returns the pooled HTTP client so other stages (the asset
// fetcher) reuse the same connections.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
