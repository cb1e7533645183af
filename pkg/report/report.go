// Package report deduplicates, filters and orders an aggregated catalog
// into the entries of the new-release digest.
package report

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Sternrassler/release-radar/pkg/catalog"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// ErrDateParse marks a release whose date cannot be compared under the active policy.
var ErrDateParse = errors.New("release date not comparable")

// DefaultLinkPriority is the provider order used when none is configured.
var DefaultLinkPriority = []string{"spotify"}

// Options configures a Reporter.
type Options struct {
	DatePolicy   catalog.DatePolicy
	LinkPriority []string
}

// Entry is one line of the digest.
type Entry struct {
	ReleaseID string           `json:"id"`
	Title     string           `json:"title"`
	Creators  []string         `json:"creators"`
	URL       string           `json:"url,omitempty"`
	Date      time.Time        `json:"-"`
	RawDate   string           `json:"release_date"`
	Category  catalog.Category `json:"category"`
}

// Line formats the entry as " - <title> by <creators> <url>".
// The URL and its separator are omitted when no link is known, the
// creator part when no creator is known.
func (e Entry) Line() string {
	line := " - " + e.Title
	if len(e.Creators) > 0 {
		line += " by " + strings.Join(e.Creators, ", ")
	}
	if e.URL != "" {
		line += " " + e.URL
	}
	return line
}

// Exclusion records a release dropped because its date could not be compared.
type Exclusion struct {
	Release catalog.Release
	Err     error
}

// Report is the outcome of Build.
type Report struct {
	Cutoff  time.Time
	Entries []Entry
	// Excluded lists releases dropped for date reasons.
	Excluded []Exclusion
	// Duplicates counts release instances dropped by ID deduplication.
	Duplicates int
	// Stale counts unique releases older than the cutoff.
	Stale int
}

// Reporter turns an aggregated catalog into a Report.
type Reporter struct {
	opts   Options
	logger zerolog.Logger
}

// New creates a reporter. An empty LinkPriority uses DefaultLinkPriority.
func New(opts Options) *Reporter {
	if opts.DatePolicy == "" {
		opts.DatePolicy = catalog.PolicyPeriodStart
	}
	if len(opts.LinkPriority) == 0 {
		opts.LinkPriority = DefaultLinkPriority
	}
	return &Reporter{
		opts:   opts,
		logger: log.With().Str("component", "report").Logger(),
	}
}

// Build deduplicates by release ID, keeps releases dated on or after cutoff,
// and orders entries by date, title and ID. The first instance of an ID
// with a comparable date wins; an instance whose date cannot be compared
// is kept only when no other instance of the ID has a usable date.
func (r *Reporter) Build(agg catalog.AggregatedCatalog, cutoff time.Time) Report {
	rep := Report{Cutoff: Day(cutoff)}

	type candidate struct {
		rel  catalog.Release
		date time.Time
		err  error
	}
	var candidates []candidate
	index := make(map[string]int, len(agg.Releases))

	for _, rel := range agg.Releases {
		date, err := r.releaseDate(rel)

		i, dup := index[rel.ID]
		if !dup {
			index[rel.ID] = len(candidates)
			candidates = append(candidates, candidate{rel: rel, date: date, err: err})
			continue
		}

		rep.Duplicates++
		kept := &candidates[i]
		if kept.err != nil && err == nil {
			r.logger.Debug().
				Str("release_id", rel.ID).
				Str("dropped_category", string(kept.rel.Category)).
				Str("kept_category", string(rel.Category)).
				Msg("Duplicate with comparable date replaces undated instance")
			*kept = candidate{rel: rel, date: date}
			continue
		}
		r.logger.Debug().
			Str("release_id", rel.ID).
			Str("kept_category", string(kept.rel.Category)).
			Str("dropped_category", string(rel.Category)).
			Msg("Duplicate release dropped")
	}

	for _, c := range candidates {
		rel := c.rel
		if c.err != nil {
			rep.Excluded = append(rep.Excluded, Exclusion{Release: rel, Err: c.err})
			r.logger.Warn().
				Err(c.err).
				Str("release_id", rel.ID).
				Str("title", rel.Title).
				Msg("Release excluded")
			continue
		}

		if c.date.Before(rep.Cutoff) {
			rep.Stale++
			continue
		}

		rep.Entries = append(rep.Entries, Entry{
			ReleaseID: rel.ID,
			Title:     rel.Title,
			Creators:  append([]string(nil), rel.Creators...),
			URL:       SelectLink(rel.Links, r.opts.LinkPriority),
			Date:      c.date,
			RawDate:   rel.ReleaseDate,
			Category:  rel.Category,
		})
	}

	sortEntries(rep.Entries)

	r.logger.Info().
		Time("cutoff", rep.Cutoff).
		Int("entries", len(rep.Entries)).
		Int("excluded", len(rep.Excluded)).
		Int("duplicates", rep.Duplicates).
		Int("stale", rep.Stale).
		Msg("Report built")

	return rep
}

func (r *Reporter) releaseDate(rel catalog.Release) (time.Time, error) {
	d, err := catalog.ParseReleaseDate(rel.ReleaseDate, rel.DatePrecision)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrDateParse, err)
	}
	t, err := d.Normalize(r.opts.DatePolicy)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrDateParse, err)
	}
	return t, nil
}

// SelectLink picks a URL from links: first by priority, then by provider name.
func SelectLink(links map[string]string, priority []string) string {
	for _, provider := range priority {
		if u := links[provider]; u != "" {
			return u
		}
	}
	providers := make([]string, 0, len(links))
	for p, u := range links {
		if u != "" {
			providers = append(providers, p)
		}
	}
	if len(providers) == 0 {
		return ""
	}
	sort.Strings(providers)
	return links[providers[0]]
}

func sortEntries(entries []Entry) {
	coll := collate.New(language.Und, collate.Loose)
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if c := coll.CompareString(a.Title, b.Title); c != 0 {
			return c < 0
		}
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		return a.ReleaseID < b.ReleaseID
	})
}
