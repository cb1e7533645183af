// Package client provides the catalog HTTP client with error classification,
// optional retry, optional conditional-request caching, and the endpoint
// methods the release pipeline consumes.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/Sternrassler/release-radar/pkg/auth"
	"github.com/Sternrassler/release-radar/pkg/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultBaseURL is the public catalog API root.
const DefaultBaseURL = "https://api.spotify.com"

// Prometheus metrics for catalog client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "radar_requests_total",
		Help: "Total catalog requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "radar_request_duration_seconds",
		Help:    "Catalog request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "radar_errors_total",
		Help: "Total catalog errors by class",
	}, []string{"class"})
)

// Client is the catalog client. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	cache      *cache.Manager
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// HTTPClient performs the requests. It is expected to attach credentials
	// (see auth.Provider.Client).
	HTTPClient *http.Client

	// BaseURL of the catalog API (default DefaultBaseURL)
	BaseURL string

	// User-Agent header
	UserAgent string

	// Market sent with release queries that do not name one
	Market string

	// Cache enables conditional requests when set
	Cache *cache.Manager

	// CacheScope separates cached user-specific responses (e.g., per account)
	CacheScope string

	// Retry policy; MaxAttempts 1 disables retries
	Retry RetryConfig

	// Timeout bounds a single request including retries (0 = none)
	Timeout time.Duration
}

// DefaultConfig returns the default configuration around an authenticated HTTP client.
func DefaultConfig(httpClient *http.Client, userAgent string) Config {
	return Config{
		HTTPClient: httpClient,
		BaseURL:    DefaultBaseURL,
		UserAgent:  userAgent,
		Market:     "from_token",
		CacheScope: "default",
		Retry:      DefaultRetryConfig(),
		Timeout:    30 * time.Second,
	}
}

// New creates a new catalog client.
func New(cfg Config) (*Client, error) {
	if cfg.HTTPClient == nil {
		return nil, fmt.Errorf("http client is required")
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url must be absolute (got %q)", cfg.BaseURL)
	}

	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry.MaxAttempts = 1
	}

	return &Client{
		httpClient: cfg.HTTPClient,
		baseURL:    base,
		cache:      cfg.Cache,
		config:     cfg,
		logger:     log.With().Str("component", "catalog-client").Logger(),
	}, nil
}

// Do performs a GET request with caching, classification and retry.
//
// A status of 400 or above is returned as *CatalogError and the response is
// discarded. A fresh cached entry is served without contacting the catalog;
// a stale one is revalidated with a conditional request.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := endpointLabel(req.URL.Path)

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: Check Cache
	var (
		cacheKey    cache.Key
		cachedEntry *cache.Entry
	)
	if c.cache != nil && req.Method == http.MethodGet {
		cacheKey = cache.KeyForURL(req.URL, c.config.CacheScope)

		entry, err := c.cache.Get(ctx, cacheKey)
		if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
		}
		cachedEntry = entry

		if cachedEntry != nil && !cachedEntry.IsExpired() {
			requestsTotal.WithLabelValues(endpoint, "cache").Inc()
			return cache.EntryToResponse(cachedEntry, req), nil
		}

		// Step 2: Make Conditional Request for stale entries
		if cache.ShouldMakeConditionalRequest(cachedEntry) {
			cache.AddConditionalHeaders(req, cachedEntry)
			cache.ConditionalRequestsSent.Inc()
			c.logger.Debug().
				Str("endpoint", endpoint).
				Str("etag", cachedEntry.ETag).
				Msg("Making conditional request")
		}
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	// Step 3: Execute HTTP Request with Retry Logic
	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Msg("Executing catalog request")

	var resp *http.Response
	retryErr := retryWithBackoff(ctx, c.config.Retry, func() error {
		var reqErr error
		resp, reqErr = c.httpClient.Do(req)
		if reqErr != nil {
			resp = nil
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			// Token refresh failures surface here through the oauth2 transport
			if auth.IsAuthError(reqErr) {
				errorsTotal.WithLabelValues(string(ErrorClassAuth)).Inc()
				return &CatalogError{ErrorClass: ErrorClassAuth, Message: "credentials unavailable", Err: reqErr}
			}
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			c.logger.Error().Err(reqErr).Str("endpoint", endpoint).Msg("HTTP request failed")
			return &CatalogError{ErrorClass: ErrorClassNetwork, Message: "request failed", Err: reqErr}
		}

		if resp.StatusCode < 400 {
			return nil
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		catalogErr := newCatalogError(resp.StatusCode, resp.Status, body)
		resp = nil

		errorsTotal.WithLabelValues(string(catalogErr.ErrorClass)).Inc()
		requestsTotal.WithLabelValues(endpoint, strconv.Itoa(catalogErr.StatusCode)).Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", catalogErr.StatusCode).
			Str("error_class", string(catalogErr.ErrorClass)).
			Msg("Catalog request error")

		return catalogErr
	}, classifyError)

	if retryErr != nil {
		return nil, retryErr
	}

	// Step 4: Handle 304 Not Modified
	if resp.StatusCode == http.StatusNotModified && cachedEntry != nil {
		resp.Body.Close()
		requestsTotal.WithLabelValues(endpoint, "304").Inc()
		cache.NotModifiedResponses.Inc()
		c.logger.Debug().Str("endpoint", endpoint).Msg("304 Not Modified - using cache")

		if err := c.cache.UpdateTTL(ctx, cacheKey, cache.ParseExpires(resp.Header)); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update cache TTL")
		}
		return cache.EntryToResponse(cachedEntry, req), nil
	}

	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	// Step 5: Update Cache on success
	if c.cache != nil && resp.StatusCode == http.StatusOK {
		entry, err := cache.ResponseToEntry(resp)
		if err != nil {
			resp.Body.Close()
			return nil, &CatalogError{
				StatusCode: resp.StatusCode,
				ErrorClass: ErrorClassNetwork,
				Message:    "read response body",
				Err:        err,
			}
		}
		if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache response")
		} else {
			c.logger.Debug().
				Str("endpoint", endpoint).
				Dur("ttl", entry.TTL()).
				Msg("Cached response")
		}
	}

	return resp, nil
}

// classifyError extracts the error class used by the retry loop.
func classifyError(err error) ErrorClass {
	var ce *CatalogError
	if errors.As(err, &ce) {
		return ce.ErrorClass
	}
	return ""
}

var idSegment = regexp.MustCompile(`^(/v1/(?:artists|albums)/)[^/]+`)

// endpointLabel collapses resource identifiers so metric cardinality stays bounded.
func endpointLabel(path string) string {
	return idSegment.ReplaceAllString(path, "${1}{id}")
}

// Get performs a GET request to a catalog path relative to the base URL.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	u := c.baseURL.ResolveReference(&url.URL{Path: path, RawQuery: query.Encode()})
	return c.get(ctx, u)
}

func (c *Client) get(ctx context.Context, u *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.Do(req)
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Cache returns the cache manager, or nil when caching is disabled.
func (c *Client) Cache() *cache.Manager {
	return c.cache
}
