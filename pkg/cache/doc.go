// Package cache stores catalog responses in Redis so repeated runs can
// revalidate them with conditional requests instead of downloading them again.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient, cache.WithRetention(24*time.Hour))
//
//	key := cache.Key{
//		Endpoint: "/v1/artists/0TnOYISbd1XYRBk9myaseg/albums",
//		Query:    url.Values{"include_groups": []string{"album"}},
//		Scope:    "default",
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the catalog
//	}
//
// # Conditional Requests
//
//	if cache.ShouldMakeConditionalRequest(entry) {
//		cache.AddConditionalHeaders(req, entry)
//		// a 304 Not Modified answer means entry.Data is still current
//	}
//
// # Freshness
//
// Entry lifetime comes from Cache-Control max-age, then Expires, then
// DefaultTTL. Responses marked no-store are never cached. Entries that
// carry an ETag or Last-Modified validator are kept for at least the
// manager's retention period, since a stale entry is still useful for
// revalidation.
//
// # Metrics
//
//   - radar_cache_hits_total{layer="redis"} - Cache hits
//   - radar_cache_misses_total - Cache misses
//   - radar_cache_size_bytes{layer="redis"} - Bytes written to the cache
//   - radar_conditional_requests_total - Conditional requests sent
//   - radar_304_responses_total - 304 Not Modified responses
//   - radar_cache_errors_total{operation} - Cache operation errors
package cache
