package aggregate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/release-radar/pkg/catalog"
	"github.com/Sternrassler/release-radar/pkg/fanout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubLister returns one page per (creator, category).
type stubLister struct {
	mu       sync.Mutex
	releases map[catalog.Category]map[string][]catalog.Release
	failing  map[catalog.Category]map[string]error
	seen     []catalog.Category
}

func (s *stubLister) ListReleases(_ context.Context, q catalog.ReleaseQuery, _ string) (catalog.Page[catalog.Release], error) {
	s.mu.Lock()
	s.seen = append(s.seen, q.Category)
	s.mu.Unlock()

	if err := s.failing[q.Category][q.CreatorID]; err != nil {
		return catalog.Page[catalog.Release]{}, err
	}
	return catalog.Page[catalog.Release]{Items: s.releases[q.Category][q.CreatorID]}, nil
}

func TestAggregate_PreservesCrossCategoryDuplicates(t *testing.T) {
	shared := catalog.Release{ID: "dup", Title: "Both", ReleaseDate: "2024-02-01"}
	lister := &stubLister{
		releases: map[catalog.Category]map[string][]catalog.Release{
			catalog.CategoryAlbum:  {"A": {shared}},
			catalog.CategorySingle: {"A": {shared, {ID: "s1"}}},
		},
	}

	agg := New(fanout.NewFetcher(lister, fanout.Config{}))
	merged, summary, err := agg.Aggregate(context.Background(),
		[]catalog.Creator{{ID: "A"}},
		[]catalog.Category{catalog.CategoryAlbum, catalog.CategorySingle})
	require.NoError(t, err)

	require.Len(t, merged.Releases, 3)
	assert.Equal(t, "dup", merged.Releases[0].ID)
	assert.Equal(t, catalog.CategoryAlbum, merged.Releases[0].Category)
	assert.Equal(t, "dup", merged.Releases[1].ID)
	assert.Equal(t, catalog.CategorySingle, merged.Releases[1].Category)

	assert.Equal(t, 3, summary.Releases)
	assert.Equal(t, 1, summary.PerCategory[catalog.CategoryAlbum])
	assert.Equal(t, 2, summary.PerCategory[catalog.CategorySingle])
	assert.Zero(t, summary.FailedCount())
}

func TestAggregate_ReportsFailuresWithoutFailingRun(t *testing.T) {
	lister := &stubLister{
		releases: map[catalog.Category]map[string][]catalog.Release{
			catalog.CategoryAlbum: {"A": {{ID: "1", ReleaseDate: "2024-01-10"}}},
		},
		failing: map[catalog.Category]map[string]error{
			catalog.CategoryAlbum:  {"B": errors.New("503")},
			catalog.CategorySingle: {"A": errors.New("timeout"), "B": errors.New("timeout")},
		},
	}

	agg := New(fanout.NewFetcher(lister, fanout.Config{}))
	merged, summary, err := agg.Aggregate(context.Background(),
		[]catalog.Creator{{ID: "A"}, {ID: "B"}},
		[]catalog.Category{catalog.CategoryAlbum, catalog.CategorySingle})
	require.NoError(t, err)

	require.Len(t, merged.Releases, 1)
	assert.Equal(t, 3, summary.FailedCount())
	assert.Equal(t, merged.Failures, summary.Failed)
	assert.Equal(t, "B", summary.Failed[0].CreatorID)
	assert.Equal(t, catalog.CategoryAlbum, summary.Failed[0].Category)
}

func TestAggregate_AllFailedIsNotAnError(t *testing.T) {
	lister := &stubLister{
		failing: map[catalog.Category]map[string]error{
			catalog.CategoryAlbum: {"A": errors.New("down")},
		},
	}

	merged, summary, err := New(fanout.NewFetcher(lister, fanout.Config{})).Aggregate(context.Background(),
		[]catalog.Creator{{ID: "A"}}, []catalog.Category{catalog.CategoryAlbum})
	require.NoError(t, err)
	assert.Empty(t, merged.Releases)
	assert.True(t, summary.Empty())
	assert.Equal(t, 1, summary.FailedCount())
}

func TestAggregate_NoCreators(t *testing.T) {
	merged, summary, err := New(fanout.NewFetcher(&stubLister{}, fanout.Config{})).Aggregate(context.Background(),
		nil, catalog.AllCategories())
	require.NoError(t, err)
	assert.Empty(t, merged.Releases)
	assert.True(t, summary.Empty())
	assert.Len(t, summary.Categories, 4)
}

func TestAggregate_RejectsInvalidCategories(t *testing.T) {
	agg := New(fanout.NewFetcher(&stubLister{}, fanout.Config{}))

	_, _, err := agg.Aggregate(context.Background(), []catalog.Creator{{ID: "A"}}, nil)
	assert.ErrorIs(t, err, catalog.ErrNoCategories)

	_, _, err = agg.Aggregate(context.Background(), []catalog.Creator{{ID: "A"}},
		[]catalog.Category{catalog.CategoryAlbum, catalog.CategoryAlbum})
	assert.ErrorIs(t, err, catalog.ErrDuplicateCategory)
}

// blockingFetcher waits for cancellation.
type blockingFetcher struct{}

func (blockingFetcher) FetchAll(ctx context.Context, _ []catalog.Creator, _ catalog.Category) (fanout.Result, error) {
	<-ctx.Done()
	return fanout.Result{}, ctx.Err()
}

func TestAggregate_Cancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	merged, _, err := New(blockingFetcher{}).Aggregate(ctx, []catalog.Creator{{ID: "A"}}, catalog.DefaultCategories())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, merged.Releases)
}

func TestAggregate_Idempotent(t *testing.T) {
	lister := &stubLister{
		releases: map[catalog.Category]map[string][]catalog.Release{
			catalog.CategoryAlbum:  {"A": {{ID: "1"}}, "B": {{ID: "2"}}},
			catalog.CategorySingle: {"B": {{ID: "3"}}},
		},
	}
	agg := New(fanout.NewFetcher(lister, fanout.Config{}))
	creators := []catalog.Creator{{ID: "A"}, {ID: "B"}}

	first, _, err := agg.Aggregate(context.Background(), creators, catalog.DefaultCategories())
	require.NoError(t, err)
	second, _, err := agg.Aggregate(context.Background(), creators, catalog.DefaultCategories())
	require.NoError(t, err)

	assert.Equal(t, first.Releases, second.Releases)
}
