package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// DefaultRetention is how long revalidatable entries stay in Redis past their expiry.
const DefaultRetention = 24 * time.Hour

// Manager handles caching operations with Redis backend.
type Manager struct {
	redis     redis.UniversalClient
	retention time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithRetention sets the minimum Redis lifetime of entries that carry a validator.
// Zero disables retention, so entries vanish as soon as they expire.
func WithRetention(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.retention = d
		}
	}
}

// NewManager creates a new cache manager with Redis backend.
func NewManager(redisClient redis.UniversalClient, opts ...Option) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	m := &Manager{
		redis:     redisClient,
		retention: DefaultRetention,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Retention returns the configured retention period.
func (m *Manager) Retention() time.Duration {
	return m.retention
}

// Get retrieves a cache entry by key.
//
// An expired entry is still returned when it carries a validator; callers
// check IsExpired and revalidate it. Expired entries without a validator
// are removed and reported as ErrCacheMiss.
func (m *Manager) Get(ctx context.Context, key Key) (*Entry, error) {
	cacheKey := key.String()

	data, err := m.redis.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired() && !entry.HasValidator() {
		_ = m.Delete(ctx, key)
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("redis").Inc()
	return &entry, nil
}

// Set stores a cache entry. The Redis TTL is the entry's remaining lifetime,
// raised to the retention period for entries with a validator.
func (m *Manager) Set(ctx context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	ttl := m.storageTTL(entry)
	if ttl <= 0 {
		// Already expired and not revalidatable
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	CacheSize.WithLabelValues("redis").Add(float64(len(data)))

	return nil
}

func (m *Manager) storageTTL(entry *Entry) time.Duration {
	ttl := entry.TTL()
	if entry.HasValidator() && ttl < m.retention {
		ttl = m.retention
	}
	return ttl
}

// Delete removes a cache entry.
func (m *Manager) Delete(ctx context.Context, key Key) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}

// UpdateTTL updates the expiry of an existing cache entry.
// Used after a 304 Not Modified response renews the cached representation.
func (m *Manager) UpdateTTL(ctx context.Context, key Key, newExpires time.Time) error {
	entry, err := m.Get(ctx, key)
	if err != nil {
		return err
	}

	entry.Expires = newExpires

	return m.Set(ctx, key, entry)
}
