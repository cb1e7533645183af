//go:build integration

package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Sternrassler/release-radar/internal/testutil"
	"github.com/Sternrassler/release-radar/pkg/auth"
	"github.com/Sternrassler/release-radar/pkg/cache"
	"github.com/Sternrassler/release-radar/pkg/client"
	"github.com/Sternrassler/release-radar/pkg/radar"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/oauth2"
)

const accessToken = "integration-access-token"

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

// seedCatalog adds n followed artists with one recent album each.
func seedCatalog(mock *testutil.MockCatalog, n int) {
	recent := time.Now().AddDate(0, 0, -1).Format("2006-01-02")
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("artist-%02d", i)
		mock.AddArtists(testutil.Artist{ID: id, Name: fmt.Sprintf("Artist %02d", i)})
		mock.AddAlbums(id, "album", testutil.Album{
			ID:      "album-" + id,
			Name:    fmt.Sprintf("Album %02d", i),
			Date:    recent,
			Artists: []string{fmt.Sprintf("Artist %02d", i)},
		})
	}
}

// newCatalogClient wires the credential provider, Redis token store and response cache.
func newCatalogClient(t *testing.T, mock *testutil.MockCatalog, redisClient *redis.Client, store auth.TokenStore) *client.Client {
	t.Helper()

	provider, err := auth.NewProvider(auth.Config{
		ClientID:    "integration-client",
		RedirectURI: "http://127.0.0.1:8888/callback",
		AuthURL:     mock.URL() + "/authorize",
		TokenURL:    mock.URL() + "/api/token",
		Store:       store,
	})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	httpClient, err := provider.Client(context.Background())
	if err != nil {
		t.Fatalf("Failed to create authenticated client: %v", err)
	}

	cfg := client.DefaultConfig(httpClient, "release-radar-integration/1.0")
	cfg.BaseURL = mock.URL()
	cfg.Cache = cache.NewManager(redisClient, cache.WithRetention(time.Hour))
	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return c
}

// TestCachedRerun runs the digest twice; the second run revalidates every response.
func TestCachedRerun(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockCatalog()
	defer mock.Close()
	mock.RequireToken(accessToken)
	seedCatalog(mock, 5)

	ctx := context.Background()
	store := auth.NewRedisStore(redisClient, "")
	if err := store.Save(ctx, &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("Failed to store token: %v", err)
	}

	runner := radar.New(newCatalogClient(t, mock, redisClient, store), radar.Options{})

	first, err := runner.Run(ctx)
	if err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	if len(first.Report.Entries) != 5 {
		t.Fatalf("Expected 5 entries, got %d", len(first.Report.Entries))
	}
	if got := mock.GetConditionalCount(); got != 0 {
		t.Errorf("Expected no conditional requests on a cold cache, got %d", got)
	}

	firstRequests := mock.GetRequestCount()
	mock.Reset()

	second, err := runner.Run(ctx)
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if got := mock.GetRequestCount(); got != firstRequests {
		t.Errorf("Expected %d requests on rerun, got %d", firstRequests, got)
	}
	if got := mock.GetConditionalCount(); got != firstRequests {
		t.Errorf("Expected every rerun request to be conditional, got %d of %d", got, firstRequests)
	}
	for i := range first.Report.Entries {
		if first.Report.Entries[i].Line() != second.Report.Entries[i].Line() {
			t.Errorf("Entry %d differs: %q vs %q", i, first.Report.Entries[i].Line(), second.Report.Entries[i].Line())
		}
	}
}

// TestRefreshedTokenPersisted stores an expired token and checks that the refreshed one is saved.
func TestRefreshedTokenPersisted(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockCatalog()
	defer mock.Close()
	mock.RequireToken(accessToken)
	seedCatalog(mock, 2)

	ctx := context.Background()
	store := auth.NewRedisStore(redisClient, "radar:token:integration")
	expired := &oauth2.Token{
		AccessToken:  "expired-token",
		TokenType:    "Bearer",
		RefreshToken: "refresh-me",
		Expiry:       time.Now().Add(-time.Hour),
	}
	if err := store.Save(ctx, expired); err != nil {
		t.Fatalf("Failed to store token: %v", err)
	}

	res, err := radar.New(newCatalogClient(t, mock, redisClient, store), radar.Options{}).Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.Report.Entries) != 2 {
		t.Errorf("Expected 2 entries, got %d", len(res.Report.Entries))
	}

	saved, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Failed to load token: %v", err)
	}
	if saved.AccessToken != accessToken {
		t.Errorf("Expected refreshed token %q to be persisted, got %q", accessToken, saved.AccessToken)
	}
}

// TestBoundedConcurrency caps concurrent creator chains and still fetches everyone.
func TestBoundedConcurrency(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockCatalog()
	defer mock.Close()
	mock.RequireToken(accessToken)
	mock.SetPageSize(3)
	seedCatalog(mock, 12)

	ctx := context.Background()
	store := auth.NewRedisStore(redisClient, "")
	if err := store.Save(ctx, &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("Failed to store token: %v", err)
	}

	res, err := radar.New(newCatalogClient(t, mock, redisClient, store), radar.Options{MaxConcurrency: 2}).Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.Creators) != 12 {
		t.Errorf("Expected 12 creators across pages, got %d", len(res.Creators))
	}
	if len(res.Report.Entries) != 12 {
		t.Errorf("Expected 12 entries, got %d", len(res.Report.Entries))
	}
	if res.Partial() {
		t.Errorf("Expected no failures, got %v", res.Summary.Failed)
	}
}
