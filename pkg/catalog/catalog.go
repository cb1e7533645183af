// Package catalog defines the data model shared by the release pipeline:
// creators, releases, release-type categories and cursor pages.
package catalog

import "fmt"

// Creator is a followed artist or curator on the catalog service.
type Creator struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Page is one response of a cursor-paginated endpoint.
// An empty Cursor marks the last page.
type Page[T any] struct {
	Items  []T
	Cursor string
}

// Release is an album, single, compilation or appears-on entry.
type Release struct {
	ID    string `json:"id"`
	Title string `json:"title"`

	// ReleaseDate is the raw date string as returned by the catalog
	// ("2024", "2024-03" or "2024-03-08").
	ReleaseDate string `json:"release_date"`

	// DatePrecision is the precision reported by the catalog
	// ("year", "month", "day"). May be empty.
	DatePrecision string `json:"release_date_precision,omitempty"`

	// Creators lists contributing creator names in catalog order.
	Creators []string `json:"creators"`

	// Links maps a link provider name to the canonical URL.
	Links map[string]string `json:"links,omitempty"`

	// Category is the category query that produced this instance.
	Category Category `json:"category"`
}

// FailureRecord describes one per-creator query that failed.
type FailureRecord struct {
	CreatorID   string
	CreatorName string
	Category    Category
	Err         error
}

// Error implements the error interface.
func (f FailureRecord) Error() string {
	name := f.CreatorID
	if f.CreatorName != "" {
		name = fmt.Sprintf("%s (%s)", f.CreatorName, f.CreatorID)
	}
	return fmt.Sprintf("fetch %s releases for %s: %v", f.Category, name, f.Err)
}

// Unwrap returns the underlying failure.
func (f FailureRecord) Unwrap() error {
	return f.Err
}

// AggregatedCatalog is the multi-category union of fetched releases for one run.
// It may contain the same release ID more than once.
type AggregatedCatalog struct {
	Releases []Release
	Failures []FailureRecord
}

// ReleaseQuery selects one creator's releases of one category.
type ReleaseQuery struct {
	CreatorID string
	Category  Category
	// Market is an ISO 3166-1 alpha-2 code or "from_token".
	Market string
	Limit  int
}
