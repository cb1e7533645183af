// Package fanout issues one paginated release query per creator concurrently
// and gathers successes and per-creator failures behind a single barrier.
package fanout

import (
	"context"
	"sync"
	"time"

	"github.com/Sternrassler/release-radar/pkg/catalog"
	"github.com/Sternrassler/release-radar/pkg/pagination"
	"github.com/Sternrassler/release-radar/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var creatorFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "radar_creator_fetches_total",
	Help: "Per-creator release queries by category and outcome",
}, []string{"category", "outcome"})

// ReleaseLister is the release-list endpoint of the catalog service.
// Implementations must be safe for concurrent use.
type ReleaseLister interface {
	ListReleases(ctx context.Context, q catalog.ReleaseQuery, cursor string) (catalog.Page[catalog.Release], error)
}

// Config holds fan-out configuration.
type Config struct {
	Market     string
	Pagination pagination.Config
	// Limiter gates chain launch. Nil means unbounded.
	Limiter ratelimit.Limiter
}

// DefaultConfig returns an unbounded fan-out using the market of the access token.
func DefaultConfig() Config {
	return Config{
		Market:     "from_token",
		Pagination: pagination.DefaultConfig(),
		Limiter:    ratelimit.Unbounded{},
	}
}

// Result is the outcome of one category fan-out.
type Result struct {
	Category catalog.Category
	Releases []catalog.Release
	Failures []catalog.FailureRecord
}

// Fetcher runs the per-creator fan-out.
type Fetcher struct {
	lister ReleaseLister
	config Config
	logger zerolog.Logger
}

// NewFetcher creates a fetcher. Zero-valued config fields fall back to defaults.
func NewFetcher(lister ReleaseLister, config Config) *Fetcher {
	def := DefaultConfig()
	if config.Market == "" {
		config.Market = def.Market
	}
	if config.Pagination.PageSize <= 0 {
		config.Pagination.PageSize = def.Pagination.PageSize
	}
	if config.Limiter == nil {
		config.Limiter = def.Limiter
	}

	return &Fetcher{
		lister: lister,
		config: config,
		logger: log.With().Str("component", "fanout").Logger(),
	}
}

// slot is the private result buffer of one creator's chain.
type slot struct {
	releases []catalog.Release
	err      error
}

// FetchAll queries every creator's releases of one category concurrently.
// A failing creator yields a FailureRecord and does not affect the others.
// The returned error is non-nil only when ctx is cancelled, in which case
// no partial result is returned.
func (f *Fetcher) FetchAll(ctx context.Context, creators []catalog.Creator, category catalog.Category) (Result, error) {
	start := time.Now()
	slots := make([]slot, len(creators))

	var wg sync.WaitGroup
	for i := range creators {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			slots[i] = f.fetchCreator(ctx, creators[i], category)
		}(i)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		f.logger.Warn().
			Str("category", string(category)).
			Err(err).
			Msg("Fan-out cancelled, discarding results")
		return Result{}, err
	}

	result := Result{Category: category}
	for i, s := range slots {
		if s.err != nil {
			creatorFetchesTotal.WithLabelValues(string(category), "failure").Inc()
			result.Failures = append(result.Failures, catalog.FailureRecord{
				CreatorID:   creators[i].ID,
				CreatorName: creators[i].Name,
				Category:    category,
				Err:         s.err,
			})
			continue
		}
		creatorFetchesTotal.WithLabelValues(string(category), "success").Inc()
		result.Releases = append(result.Releases, s.releases...)
	}

	f.logger.Info().
		Str("category", string(category)).
		Int("creators", len(creators)).
		Int("releases", len(result.Releases)).
		Int("failures", len(result.Failures)).
		Dur("duration", time.Since(start)).
		Msg("Fan-out complete")

	return result, nil
}

// fetchCreator runs one creator's pagination chain.
func (f *Fetcher) fetchCreator(ctx context.Context, creator catalog.Creator, category catalog.Category) slot {
	if err := f.config.Limiter.Acquire(ctx); err != nil {
		return slot{err: err}
	}
	defer f.config.Limiter.Release()

	query := catalog.ReleaseQuery{
		CreatorID: creator.ID,
		Category:  category,
		Market:    f.config.Market,
		Limit:     f.config.Pagination.PageSize,
	}

	releases, err := pagination.PaginateWith(ctx, f.config.Pagination, "releases",
		func(ctx context.Context, cursor string) (catalog.Page[catalog.Release], error) {
			return f.lister.ListReleases(ctx, query, cursor)
		})
	if err != nil {
		f.logger.Warn().
			Err(err).
			Str("creator_id", creator.ID).
			Str("creator", creator.Name).
			Str("category", string(category)).
			Msg("Creator release fetch failed")
		return slot{err: err}
	}

	for i := range releases {
		releases[i].Category = category
	}
	return slot{releases: releases}
}
