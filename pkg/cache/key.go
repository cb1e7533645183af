package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix namespaces every cache key in Redis.
const KeyPrefix = "radar"

// Key identifies a cached catalog response.
type Key struct {
	// Endpoint is the request path (e.g., "/v1/me/following")
	Endpoint string

	// Query holds the request query parameters
	Query url.Values

	// Scope separates responses that depend on the authenticated user
	// (e.g., the followed-creator list). Empty for public data.
	Scope string
}

// String generates a deterministic cache key string.
// Format: radar:endpoint:query1=val1:query2=a,b:scope=name
//
// Example:
//
//	radar:v1/me/following:after=abc:limit=50:type=artist:scope=default
func (k Key) String() string {
	parts := []string{KeyPrefix}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.Query) > 0 {
		names := make([]string, 0, len(k.Query))
		for name := range k.Query {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%s", name, strings.Join(k.Query[name], ",")))
		}
	}

	if k.Scope != "" {
		parts = append(parts, "scope="+k.Scope)
	}

	return strings.Join(parts, ":")
}

// KeyForURL builds a key from a request URL.
func KeyForURL(u *url.URL, scope string) Key {
	return Key{
		Endpoint: u.Path,
		Query:    u.Query(),
		Scope:    scope,
	}
}
