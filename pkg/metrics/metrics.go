// Package metrics provides the Prometheus registry and end-of-run push for
// release-radar. All metrics are defined in their respective packages
// (client, cache, pagination, fanout, ratelimit, radar) to maintain modularity and
// avoid circular dependencies.
//
// A radar run is a short-lived batch job, so metrics are pushed to a
// Pushgateway instead of being scraped.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Registry is the default Prometheus registry used by release-radar.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer collects the metrics registered in Registry.
var Gatherer prometheus.Gatherer = prometheus.DefaultGatherer

// DefaultJob is the Pushgateway job name when none is configured.
const DefaultJob = "release_radar"

// PushConfig configures a Pushgateway push.
type PushConfig struct {
	// URL of the Pushgateway (e.g., http://localhost:9091)
	URL string

	// Job name (default DefaultJob)
	Job string

	// Grouping adds extra grouping labels (e.g., run_id)
	Grouping map[string]string

	// HTTPClient overrides the client used for the push
	HTTPClient *http.Client
}

// Push replaces the job's metrics on the Pushgateway with the current values.
func Push(ctx context.Context, cfg PushConfig) error {
	if cfg.URL == "" {
		return fmt.Errorf("pushgateway url is required")
	}
	job := cfg.Job
	if job == "" {
		job = DefaultJob
	}

	pusher := push.New(cfg.URL, job).Gatherer(Gatherer)
	for name, value := range cfg.Grouping {
		pusher = pusher.Grouping(name, value)
	}
	if cfg.HTTPClient != nil {
		pusher = pusher.Client(cfg.HTTPClient)
	}

	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", cfg.URL, err)
	}
	return nil
}

// Metrics Documentation
//
// Run Metrics (pkg/radar):
//   - radar_runs_total{outcome} (Counter): Runs by outcome (success, partial, empty, invalid, error)
//   - radar_run_duration_seconds (Histogram): Run duration
//   - radar_report_entries (Gauge): Entries in the most recent report
//
// Pipeline Metrics (pkg/pagination, pkg/fanout, pkg/ratelimit):
//   - radar_pages_fetched_total{endpoint} (Counter): Pages fetched by cursor walks
//   - radar_creator_fetches_total{category, outcome} (Counter): Per-creator chains by result
//   - radar_inflight_chains (Gauge): Chains currently holding a concurrency slot
//   - radar_limiter_waits_total (Counter): Chains that waited for a concurrency slot
//
// Cache Metrics (pkg/cache):
//   - radar_cache_hits_total{layer="redis"} (Counter): Cache hits by layer
//   - radar_cache_misses_total (Counter): Cache misses
//   - radar_cache_size_bytes{layer="redis"} (Gauge): Bytes written to the cache
//   - radar_304_responses_total (Counter): 304 Not Modified responses
//   - radar_conditional_requests_total (Counter): Conditional requests sent
//   - radar_cache_errors_total{operation} (Counter): Cache operation errors
//
// Request Metrics (pkg/client):
//   - radar_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - radar_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - radar_errors_total{class} (Counter): Errors by class (client, auth, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - radar_retries_total{error_class} (Counter): Retry attempts by error class
//   - radar_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - radar_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Example Prometheus Queries:
//
//   # Failed creator chains in the last run
//   sum by (category) (radar_creator_fetches_total{outcome="failure"})
//
//   # Cache Hit Rate
//   sum(radar_cache_hits_total) /
//   (sum(radar_cache_hits_total) + sum(radar_cache_misses_total))
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(radar_request_duration_seconds_bucket[1h]))
