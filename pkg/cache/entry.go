package cache

import (
	"net/http"
	"time"
)

// Entry is a cached catalog response.
type Entry struct {
	// Data is the response body
	Data []byte `json:"data"`

	// ETag for conditional requests (If-None-Match)
	ETag string `json:"etag"`

	// Expires is when the entry is dropped from the cache
	Expires time.Time `json:"expires"`

	// LastModified from the Last-Modified header (If-Modified-Since)
	LastModified time.Time `json:"last_modified"`

	// StatusCode is the HTTP status code of the cached response
	StatusCode int `json:"status_code"`

	// Headers are the response headers
	Headers http.Header `json:"headers"`

	// CachedAt is when we cached this response
	CachedAt time.Time `json:"cached_at"`
}

// IsExpired returns true if the entry has expired.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// HasValidator reports whether the entry can be revalidated with a conditional request.
func (e *Entry) HasValidator() bool {
	return e.ETag != "" || !e.LastModified.IsZero()
}
