// Package radar runs the release digest: it lists followed creators,
// aggregates their releases across categories and builds the report.
package radar

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/release-radar/pkg/aggregate"
	"github.com/Sternrassler/release-radar/pkg/catalog"
	"github.com/Sternrassler/release-radar/pkg/fanout"
	"github.com/Sternrassler/release-radar/pkg/pagination"
	"github.com/Sternrassler/release-radar/pkg/ratelimit"
	"github.com/Sternrassler/release-radar/pkg/report"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for whole runs.
var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "radar_runs_total",
		Help: "Total digest runs by outcome",
	}, []string{"outcome"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "radar_run_duration_seconds",
		Help:    "Digest run duration in seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
	})

	reportEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "radar_report_entries",
		Help: "Number of entries in the most recent digest",
	})
)

// Catalog is the subset of the catalog client a run needs.
// *client.Client implements it.
type Catalog interface {
	fanout.ReleaseLister
	ListFollowedCreators(ctx context.Context, cursor string, limit int) (catalog.Page[catalog.Creator], error)
}

// Options configures a Runner.
type Options struct {
	// RunID tags log lines and pushed metrics. Empty means a new UUID per run.
	RunID string

	Categories []catalog.Category

	CutoffMode CutoffMode
	WindowDays int
	WeekStart  time.Weekday

	Report report.Options

	Market     string
	Pagination pagination.Config

	// MaxConcurrency caps concurrent creator chains (0 = unbounded).
	MaxConcurrency int

	// Timeout bounds the whole run (0 = none).
	Timeout time.Duration

	// Now returns the run time used for the cutoff (default time.Now).
	Now func() time.Time
}

// CutoffMode aliases report.CutoffMode so callers configure a run from one package.
type CutoffMode = report.CutoffMode

// DefaultOptions mirrors the original digest: albums and singles of the last seven days.
func DefaultOptions() Options {
	return Options{
		Categories: catalog.DefaultCategories(),
		CutoffMode: report.CutoffRolling,
		WindowDays: 7,
		WeekStart:  time.Friday,
		Report: report.Options{
			DatePolicy:   catalog.PolicyPeriodStart,
			LinkPriority: report.DefaultLinkPriority,
		},
		Market:     "from_token",
		Pagination: pagination.DefaultConfig(),
	}
}

// Result is the outcome of one run.
type Result struct {
	RunID    string
	Creators []catalog.Creator
	Summary  aggregate.Summary
	Report   report.Report
	Duration time.Duration
}

// Partial reports whether any creator fetch failed.
func (r Result) Partial() bool {
	return r.Summary.FailedCount() > 0
}

// Runner executes digest runs against a catalog.
type Runner struct {
	catalog Catalog
	opts    Options
}

// New creates a runner. Zero-valued options fall back to DefaultOptions.
// A nil Categories selects the default categories; a non-nil empty list is
// kept and rejected by Run with catalog.ErrNoCategories.
func New(cat Catalog, opts Options) *Runner {
	def := DefaultOptions()
	if opts.Categories == nil {
		opts.Categories = def.Categories
	}
	if opts.CutoffMode == "" {
		opts.CutoffMode = def.CutoffMode
	}
	if opts.WindowDays <= 0 {
		opts.WindowDays = def.WindowDays
	}
	if opts.Market == "" {
		opts.Market = def.Market
	}
	if opts.Pagination.PageSize <= 0 {
		opts.Pagination.PageSize = def.Pagination.PageSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{catalog: cat, opts: opts}
}

// Run lists followed creators, aggregates their releases and builds the
// report. Failing creators are recorded in the summary and do not fail the
// run; a failure to list creators, an invalid category list or
// cancellation does.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	runID := r.opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := log.With().Str("component", "radar").Str("run_id", runID).Logger()
	ctx = logger.WithContext(ctx)

	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	now := r.opts.Now()
	result := Result{RunID: runID}

	if err := catalog.ValidateCategories(r.opts.Categories); err != nil {
		runsTotal.WithLabelValues("invalid").Inc()
		return result, fmt.Errorf("run: %w", err)
	}

	creators, err := r.listCreators(ctx, logger)
	if err != nil {
		runsTotal.WithLabelValues("error").Inc()
		return result, err
	}
	result.Creators = creators

	cutoff := report.Cutoff(r.opts.CutoffMode, now, r.opts.WindowDays, r.opts.WeekStart)
	if len(creators) == 0 {
		logger.Info().Msg("No followed creators")
		result.Report = report.Report{Cutoff: cutoff}
		result.Duration = time.Since(start)
		runsTotal.WithLabelValues("empty").Inc()
		return result, nil
	}

	fetcher := fanout.NewFetcher(r.catalog, fanout.Config{
		Market:     r.opts.Market,
		Pagination: r.opts.Pagination,
		Limiter:    ratelimit.New(r.opts.MaxConcurrency),
	})

	agg, summary, err := aggregate.New(fetcher).Aggregate(ctx, creators, r.opts.Categories)
	if err != nil {
		runsTotal.WithLabelValues("error").Inc()
		return result, err
	}
	result.Summary = summary

	result.Report = report.New(r.opts.Report).Build(agg, cutoff)
	result.Duration = time.Since(start)

	outcome := "success"
	if result.Partial() {
		outcome = "partial"
	}
	runsTotal.WithLabelValues(outcome).Inc()
	runDuration.Observe(result.Duration.Seconds())
	reportEntries.Set(float64(len(result.Report.Entries)))

	logRun(logger, result)

	return result, nil
}

// listCreators walks the followed-creator endpoint to its end.
func (r *Runner) listCreators(ctx context.Context, logger zerolog.Logger) ([]catalog.Creator, error) {
	limit := r.opts.Pagination.PageSize
	creators, err := pagination.PaginateWith(ctx, r.opts.Pagination, "following",
		func(ctx context.Context, cursor string) (catalog.Page[catalog.Creator], error) {
			return r.catalog.ListFollowedCreators(ctx, cursor, limit)
		})
	if err != nil {
		logger.Error().Err(err).Msg("Listing followed creators failed")
		return nil, fmt.Errorf("list followed creators: %w", err)
	}

	logger.Debug().Int("creators", len(creators)).Msg("Followed creators listed")
	return creators, nil
}

func logRun(logger zerolog.Logger, res Result) {
	event := logger.Info()
	if res.Partial() {
		event = logger.Warn()
	}
	event.
		Int("creators", len(res.Creators)).
		Int("releases", res.Summary.Releases).
		Int("entries", len(res.Report.Entries)).
		Int("excluded", len(res.Report.Excluded)).
		Int("duplicates", res.Report.Duplicates).
		Int("failed_fetches", res.Summary.FailedCount()).
		Time("cutoff", res.Report.Cutoff).
		Dur("duration", res.Duration).
		Msg("Run complete")
}
