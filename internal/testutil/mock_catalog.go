// Package testutil provides testing utilities for the release-radar catalog client.
package testutil

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock catalog endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// Artist is a followed creator served by the mock.
type Artist struct {
	ID   string
	Name string
}

// Album is a release served by the mock.
type Album struct {
	ID        string
	Name      string
	Date      string
	Precision string
	Artists   []string
	URL       string
}

// MockCatalog is a configurable mock catalog server for testing.
//
// It serves the followed-artist listing with cursor pagination, the
// per-artist album listing with next-URL pagination, and a token endpoint.
// Responses carry an ETag and answer matching If-None-Match with 304.
type MockCatalog struct {
	server *httptest.Server
	mu     sync.RWMutex

	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	artists  []Artist
	albums   map[string][]Album // key: artistID + "|" + group
	failures map[string]int     // key: artistID (+ "|" + group), value: status
	token    string
	pageSize int

	// Tracking
	RequestCount      int
	ConditionalCount  int
	LastRequestHeader http.Header
	AlbumRequests     map[string]int // key: artistID
}

// NewMockCatalog creates a new mock catalog server.
func NewMockCatalog() *MockCatalog {
	mock := &MockCatalog{
		handlers:      make(map[string]func(w http.ResponseWriter, r *http.Request)),
		albums:        make(map[string][]Album),
		failures:      make(map[string]int),
		AlbumRequests: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()

		// Track conditional requests
		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			mock.ConditionalCount++
		}
		handler, exists := mock.handlers[r.URL.Path]
		token := mock.token
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		if r.URL.Path == "/api/token" {
			mock.tokenHandler(w, r)
			return
		}

		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			writeError(w, http.StatusUnauthorized, "Invalid access token")
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockCatalog) URL() string {
	return m.server.URL
}

// Client returns an HTTP client for the mock server.
func (m *MockCatalog) Client() *http.Client {
	return m.server.Client()
}

// Close shuts down the mock server.
func (m *MockCatalog) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockCatalog) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.ConditionalCount = 0
	m.LastRequestHeader = nil
	m.AlbumRequests = make(map[string]int)
}

// SetHandler sets a custom handler for a specific path.
func (m *MockCatalog) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockCatalog) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// RequireToken makes catalog endpoints reject requests without this bearer token.
// The token endpoint always issues it.
func (m *MockCatalog) RequireToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
}

// SetPageSize caps the page size the mock serves regardless of the limit requested.
func (m *MockCatalog) SetPageSize(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageSize = n
}

// AddArtists appends followed artists.
func (m *MockCatalog) AddArtists(artists ...Artist) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artists = append(m.artists, artists...)
}

// AddAlbums registers albums for an artist in one include group (e.g., "album", "single").
func (m *MockCatalog) AddAlbums(artistID, group string, albums ...Album) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := artistID + "|" + group
	m.albums[key] = append(m.albums[key], albums...)
}

// FailArtist makes album listings for artistID answer with status.
// An empty group fails every group.
func (m *MockCatalog) FailArtist(artistID, group string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := artistID
	if group != "" {
		key += "|" + group
	}
	m.failures[key] = status
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockCatalog) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetConditionalCount returns the number of conditional requests.
func (m *MockCatalog) GetConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ConditionalCount
}

// GetLastRequestHeader returns the headers of the most recent request.
func (m *MockCatalog) GetLastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader
}

// GetAlbumRequests returns how many album pages were requested for artistID.
func (m *MockCatalog) GetAlbumRequests(artistID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.AlbumRequests[artistID]
}

// defaultHandler routes the catalog endpoints.
func (m *MockCatalog) defaultHandler(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/v1/me/following":
		m.followingHandler(w, r)
	case strings.HasPrefix(r.URL.Path, "/v1/artists/") && strings.HasSuffix(r.URL.Path, "/albums"):
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/artists/"), "/albums")
		m.albumsHandler(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "Service not found")
	}
}

func (m *MockCatalog) followingHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("type") != "artist" {
		writeError(w, http.StatusBadRequest, "Missing or invalid type")
		return
	}
	limit := m.limit(r)

	m.mu.RLock()
	artists := append([]Artist(nil), m.artists...)
	m.mu.RUnlock()

	// The cursor is the ID of the last artist on the previous page
	start := 0
	if after := r.URL.Query().Get("after"); after != "" {
		start = len(artists)
		for i, a := range artists {
			if a.ID == after {
				start = i + 1
				break
			}
		}
	}
	end := min(start+limit, len(artists))

	items := make([]map[string]any, 0, end-start)
	for _, a := range artists[start:end] {
		items = append(items, map[string]any{"id": a.ID, "name": a.Name, "type": "artist"})
	}

	var after any
	if end < len(artists) {
		after = artists[end-1].ID
	}

	writeJSON(w, r, map[string]any{
		"artists": map[string]any{
			"items":   items,
			"cursors": map[string]any{"after": after},
			"limit":   limit,
			"total":   len(artists),
		},
	})
}

func (m *MockCatalog) albumsHandler(w http.ResponseWriter, r *http.Request, artistID string) {
	group := r.URL.Query().Get("include_groups")
	limit := m.limit(r)
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	m.mu.Lock()
	m.AlbumRequests[artistID]++
	status, failAll := m.failures[artistID]
	if groupStatus, ok := m.failures[artistID+"|"+group]; ok {
		status, failAll = groupStatus, true
	}
	albums := append([]Album(nil), m.albums[artistID+"|"+group]...)
	m.mu.Unlock()

	if failAll {
		writeError(w, status, http.StatusText(status))
		return
	}

	end := min(offset+limit, len(albums))
	if offset > end {
		offset = end
	}

	items := make([]map[string]any, 0, end-offset)
	for _, a := range albums[offset:end] {
		artists := make([]map[string]any, 0, len(a.Artists))
		for _, name := range a.Artists {
			artists = append(artists, map[string]any{"name": name})
		}
		if len(artists) == 0 {
			artists = append(artists, map[string]any{"name": artistID})
		}
		precision := a.Precision
		if precision == "" {
			precision = "day"
		}
		item := map[string]any{
			"id":                     a.ID,
			"name":                   a.Name,
			"release_date":           a.Date,
			"release_date_precision": precision,
			"artists":                artists,
			"album_group":            group,
			"external_urls":          map[string]string{},
		}
		if a.URL != "" {
			item["external_urls"] = map[string]string{"spotify": a.URL}
		}
		items = append(items, item)
	}

	var next any
	if end < len(albums) {
		q := r.URL.Query()
		q.Set("offset", strconv.Itoa(end))
		q.Set("limit", strconv.Itoa(limit))
		next = m.server.URL + r.URL.Path + "?" + q.Encode()
	}

	writeJSON(w, r, map[string]any{
		"items":  items,
		"next":   next,
		"limit":  limit,
		"offset": offset,
		"total":  len(albums),
	})
}

// tokenHandler answers OAuth2 token requests with the configured token.
func (m *MockCatalog) tokenHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form")
		return
	}
	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		if r.PostForm.Get("code_verifier") == "" {
			writeError(w, http.StatusBadRequest, "code_verifier required")
			return
		}
	case "refresh_token":
	default:
		writeError(w, http.StatusBadRequest, "unsupported_grant_type")
		return
	}

	m.mu.RLock()
	token := m.token
	m.mu.RUnlock()
	if token == "" {
		token = "test-access-token"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"access_token":  token,
		"token_type":    "Bearer",
		"expires_in":    3600,
		"refresh_token": "test-refresh-token",
		"scope":         "user-follow-read",
	})
}

func (m *MockCatalog) limit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 1 || limit > 50 {
		limit = 20
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.pageSize > 0 && limit > m.pageSize {
		limit = m.pageSize
	}
	return limit
}

// writeJSON writes body with an ETag and answers a matching If-None-Match with 304.
func writeJSON(w http.ResponseWriter, r *http.Request, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h := fnv.New64a()
	h.Write(data)
	etag := fmt.Sprintf(`"%x"`, h.Sum64())

	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "private, max-age=0")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"status": status, "message": message},
	})
}

// NewHealthyResponse creates a standard 200 OK response with caching headers.
func NewHealthyResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: map[string]string{
			"ETag":          `"test-etag-123"`,
			"Cache-Control": "private, max-age=300",
			"Content-Type":  "application/json; charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": {"status": 429, "message": "API rate limit exceeded"}}`,
		Headers: map[string]string{
			"Retry-After":  "1",
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": {"status": 500, "message": "Internal server error"}}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewConditionalHandler creates a handler that responds with 304 for conditional requests.
func NewConditionalHandler(etag string, data string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}

		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "private, max-age=0")
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(data))
	}
}
