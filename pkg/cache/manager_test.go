package cache

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// setupTestRedis starts an in-memory Redis and returns a client for it.
// Integration tests under tests/integration run against a real container.
func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return mr, client
}

func TestNewManager(t *testing.T) {
	_, client := setupTestRedis(t)

	manager := NewManager(client)
	if manager == nil {
		t.Fatal("NewManager returned nil")
	}
	if manager.redis != client {
		t.Error("Manager redis client not set correctly")
	}
	if manager.Retention() != DefaultRetention {
		t.Errorf("Retention() = %v, want %v", manager.Retention(), DefaultRetention)
	}

	if got := NewManager(client, WithRetention(time.Hour)).Retention(); got != time.Hour {
		t.Errorf("WithRetention: Retention() = %v, want 1h", got)
	}
}

func TestNewManager_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewManager should panic with nil redis client")
		}
	}()
	NewManager(nil)
}

func TestManager_SetAndGet(t *testing.T) {
	_, client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	key := Key{Endpoint: "/v1/me/following", Scope: "default"}

	entry := &Entry{
		Data:         []byte(`{"artists": {"items": []}}`),
		ETag:         `"abc123"`,
		Expires:      time.Now().Add(5 * time.Minute),
		LastModified: time.Now().Add(-1 * time.Hour),
		StatusCode:   200,
		Headers:      http.Header{"Content-Type": []string{"application/json"}},
		CachedAt:     time.Now(),
	}

	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	retrieved, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if string(retrieved.Data) != string(entry.Data) {
		t.Errorf("Data mismatch: got %s, want %s", retrieved.Data, entry.Data)
	}
	if retrieved.ETag != entry.ETag {
		t.Errorf("ETag mismatch: got %s, want %s", retrieved.ETag, entry.ETag)
	}
	if retrieved.StatusCode != entry.StatusCode {
		t.Errorf("StatusCode mismatch: got %d, want %d", retrieved.StatusCode, entry.StatusCode)
	}
	if retrieved.Headers.Get("Content-Type") != "application/json" {
		t.Errorf("Headers not preserved: %v", retrieved.Headers)
	}
}

func TestManager_Get_CacheMiss(t *testing.T) {
	_, client := setupTestRedis(t)
	manager := NewManager(client)

	_, err := manager.Get(context.Background(), Key{Endpoint: "/v1/nonexistent"})
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestManager_Get_InvalidEntry(t *testing.T) {
	mr, client := setupTestRedis(t)
	manager := NewManager(client)
	key := Key{Endpoint: "/v1/broken"}

	if err := mr.Set(key.String(), "not json"); err != nil {
		t.Fatal(err)
	}

	_, err := manager.Get(context.Background(), key)
	if !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("Expected ErrInvalidEntry, got %v", err)
	}
}

func TestManager_ExpiredWithoutValidator(t *testing.T) {
	mr, client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()
	key := Key{Endpoint: "/v1/test"}

	entry := &Entry{
		Data:    []byte(`{"test": "data"}`),
		Expires: time.Now().Add(-1 * time.Hour),
	}

	// Set should not cache expired entries without a validator
	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if mr.Exists(key.String()) {
		t.Error("expired entry without validator was stored")
	}

	_, err := manager.Get(ctx, key)
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss for expired entry, got %v", err)
	}
}

func TestManager_ExpiredWithValidatorIsRetained(t *testing.T) {
	mr, client := setupTestRedis(t)
	manager := NewManager(client, WithRetention(time.Hour))
	ctx := context.Background()
	key := Key{Endpoint: "/v1/artists/1/albums"}

	entry := &Entry{
		Data:    []byte(`{"items": []}`),
		ETag:    `"v1"`,
		Expires: time.Now().Add(-1 * time.Minute),
	}

	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if ttl := mr.TTL(key.String()); ttl != time.Hour {
		t.Errorf("redis TTL = %v, want retention of 1h", ttl)
	}

	got, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.IsExpired() {
		t.Error("retained entry should still report expired")
	}
	if got.ETag != `"v1"` {
		t.Errorf("ETag = %q, want %q", got.ETag, `"v1"`)
	}

	mr.FastForward(time.Hour + time.Second)
	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss after retention elapsed, got %v", err)
	}
}

func TestManager_FreshEntryTTL(t *testing.T) {
	mr, client := setupTestRedis(t)
	manager := NewManager(client, WithRetention(0))
	key := Key{Endpoint: "/v1/test"}

	entry := &Entry{Data: []byte("x"), Expires: time.Now().Add(10 * time.Minute)}
	if err := manager.Set(context.Background(), key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	ttl := mr.TTL(key.String())
	if ttl <= 9*time.Minute || ttl > 10*time.Minute {
		t.Errorf("redis TTL = %v, want about 10m", ttl)
	}
}

func TestManager_Delete(t *testing.T) {
	_, client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()
	key := Key{Endpoint: "/v1/test"}

	entry := &Entry{
		Data:    []byte(`{"test": "data"}`),
		Expires: time.Now().Add(5 * time.Minute),
	}

	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := manager.Get(ctx, key); err != nil {
		t.Fatalf("Get after Set failed: %v", err)
	}

	if err := manager.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	_, err := manager.Get(ctx, key)
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss after Delete, got %v", err)
	}
}

func TestManager_UpdateTTL(t *testing.T) {
	_, client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()
	key := Key{Endpoint: "/v1/test"}

	entry := &Entry{
		Data:    []byte(`{"test": "data"}`),
		Expires: time.Now().Add(5 * time.Minute),
	}

	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	newExpires := time.Now().Add(10 * time.Minute)
	if err := manager.UpdateTTL(ctx, key, newExpires); err != nil {
		t.Fatalf("UpdateTTL failed: %v", err)
	}

	retrieved, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get after UpdateTTL failed: %v", err)
	}

	diff := retrieved.Expires.Sub(newExpires)
	if diff < -1*time.Second || diff > 1*time.Second {
		t.Errorf("Expires time not updated correctly: got %v, want %v (diff: %v)",
			retrieved.Expires, newExpires, diff)
	}
}

func TestManager_Set_NilEntry(t *testing.T) {
	_, client := setupTestRedis(t)
	manager := NewManager(client)

	if err := manager.Set(context.Background(), Key{Endpoint: "/v1/test"}, nil); err == nil {
		t.Error("Set with nil entry should return error")
	}
}

func TestManager_RedisUnavailable(t *testing.T) {
	mr, client := setupTestRedis(t)
	manager := NewManager(client)
	mr.Close()

	_, err := manager.Get(context.Background(), Key{Endpoint: "/v1/test"})
	if err == nil || errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected redis error, got %v", err)
	}
}
