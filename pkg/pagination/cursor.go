// Package pagination provides sequential cursor walking for catalog endpoints
package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/release-radar/pkg/catalog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

var pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "radar_pages_fetched_total",
	Help: "Total pages fetched from cursor-paginated endpoints",
}, []string{"endpoint"})

// ErrCursorLoop is returned when an endpoint hands back the cursor it was just called with.
var ErrCursorLoop = errors.New("pagination cursor did not advance")

// Config holds paginator configuration
type Config struct {
	// PageSize is the number of items requested per page.
	// The catalog caps list endpoints at 50.
	PageSize int
	// PageTimeout bounds a single page fetch (0 disables the per-page deadline)
	PageTimeout time.Duration
}

// DefaultConfig returns the endpoint's practical maximum page size
func DefaultConfig() Config {
	return Config{
		PageSize:    50,
		PageTimeout: 15 * time.Second,
	}
}

// PageFunc fetches the page that starts at cursor. An empty cursor requests the first page.
type PageFunc[T any] func(ctx context.Context, cursor string) (catalog.Page[T], error)

// Paginate walks an endpoint until it returns no cursor and returns every item in fetch order.
func Paginate[T any](ctx context.Context, fetch PageFunc[T]) ([]T, error) {
	return PaginateWith(ctx, Config{}, "", fetch)
}

// PaginateWith is Paginate with a per-page timeout and an endpoint label for metrics.
func PaginateWith[T any](ctx context.Context, cfg Config, endpoint string, fetch PageFunc[T]) ([]T, error) {
	var (
		items  []T
		cursor string
		page   int
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page++

		result, err := fetchOne(ctx, cfg.PageTimeout, cursor, fetch)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		pagesFetchedTotal.WithLabelValues(endpoint).Inc()

		items = append(items, result.Items...)

		if result.Cursor == "" {
			break
		}
		if result.Cursor == cursor {
			return nil, fmt.Errorf("page %d: %w", page, ErrCursorLoop)
		}
		cursor = result.Cursor
	}

	if page > 1 {
		log.Debug().
			Str("endpoint", endpoint).
			Int("pages", page).
			Int("items", len(items)).
			Msg("Pagination complete")
	}

	return items, nil
}

func fetchOne[T any](ctx context.Context, timeout time.Duration, cursor string, fetch PageFunc[T]) (catalog.Page[T], error) {
	if timeout <= 0 {
		return fetch(ctx, cursor)
	}
	pageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fetch(pageCtx, cursor)
}
