// Package aggregate runs the per-creator fan-out once per release category
// and merges the results into a single catalog for the run.
package aggregate

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/release-radar/pkg/catalog"
	"github.com/Sternrassler/release-radar/pkg/fanout"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// CategoryFetcher fans out one category across creators.
// *fanout.Fetcher implements it.
type CategoryFetcher interface {
	FetchAll(ctx context.Context, creators []catalog.Creator, category catalog.Category) (fanout.Result, error)
}

// Summary describes the outcome of one aggregation.
type Summary struct {
	Creators   int
	Categories []catalog.Category
	Releases   int
	// PerCategory counts releases fetched per category, duplicates included.
	PerCategory map[catalog.Category]int
	Failed      []catalog.FailureRecord
	Duration    time.Duration
}

// FailedCount returns the number of failed (creator, category) fetches.
func (s Summary) FailedCount() int {
	return len(s.Failed)
}

// Empty reports whether the run fetched no releases at all.
func (s Summary) Empty() bool {
	return s.Releases == 0
}

// Aggregator merges category fan-outs.
type Aggregator struct {
	fetcher CategoryFetcher
	logger  zerolog.Logger
}

// New creates an aggregator.
func New(fetcher CategoryFetcher) *Aggregator {
	return &Aggregator{
		fetcher: fetcher,
		logger:  log.With().Str("component", "aggregate").Logger(),
	}
}

// Aggregate fetches every category concurrently and unions the results in
// category order. Cross-category duplicates are preserved. Per-creator
// failures are reported in the summary and never fail the run; only an
// invalid category list or cancellation returns an error.
func (a *Aggregator) Aggregate(ctx context.Context, creators []catalog.Creator, categories []catalog.Category) (catalog.AggregatedCatalog, Summary, error) {
	if err := catalog.ValidateCategories(categories); err != nil {
		return catalog.AggregatedCatalog{}, Summary{}, fmt.Errorf("aggregate: %w", err)
	}

	start := time.Now()
	results := make([]fanout.Result, len(categories))

	g, gctx := errgroup.WithContext(ctx)
	for i, category := range categories {
		g.Go(func() error {
			res, err := a.fetcher.FetchAll(gctx, creators, category)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", category, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return catalog.AggregatedCatalog{}, Summary{}, err
	}

	var merged catalog.AggregatedCatalog
	summary := Summary{
		Creators:    len(creators),
		Categories:  append([]catalog.Category(nil), categories...),
		PerCategory: make(map[catalog.Category]int, len(categories)),
	}
	for i, res := range results {
		merged.Releases = append(merged.Releases, res.Releases...)
		merged.Failures = append(merged.Failures, res.Failures...)
		summary.PerCategory[categories[i]] = len(res.Releases)
	}
	summary.Releases = len(merged.Releases)
	summary.Failed = merged.Failures
	summary.Duration = time.Since(start)

	for _, f := range summary.Failed {
		a.logger.Warn().
			Err(f.Err).
			Str("creator_id", f.CreatorID).
			Str("creator", f.CreatorName).
			Str("category", string(f.Category)).
			Msg("Release fetch failed")
	}

	event := a.logger.Info()
	if summary.FailedCount() > 0 {
		event = a.logger.Warn()
	}
	event.
		Int("creators", summary.Creators).
		Int("categories", len(categories)).
		Int("releases", summary.Releases).
		Int("failed_fetches", summary.FailedCount()).
		Dur("duration", summary.Duration).
		Msg("Aggregation complete")

	if summary.Empty() {
		a.logger.Info().Msg("No releases fetched")
	}

	return merged, summary, nil
}
