package scrape

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quizstats/quizstats/internal/model"
	"github.com/quizstats/quizstats/internal/reconcile"
	"github.com/quizstats/quizstats/internal/storage"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	store, err := storage.NewCSVStore(t.TempDir())
	require.NoError(t, err)
	e := NewEngine(reconcile.New(store))
	e.retryDelay = time.Millisecond
	return e
}

func testCity(lastGameID string) model.City {
	return model.City{ID: 5, Name: "Пермь", Slug: "perm", Timezone: "Europe/Moscow", LastGameID: lastGameID}
}

// pagedFetcher serves descending ids in fixed-size pages, most recent first.
func pagedFetcher(ids []int, pageSize int) PageFetcher {
	return func(ctx context.Context, page int) ([]GameRow, error) {
		start := (page - 1) * pageSize
		if start >= len(ids) {
			return nil, nil
		}
		end := start + pageSize
		if end > len(ids) {
			end = len(ids)
		}
		var rows []GameRow
		for _, id := range ids[start:end] {
			rows = append(rows, GameRow{
				ID:         strconv.Itoa(id),
				SeriesName: "Классика",
				Number:     id,
				Date:       "2024-05-12 19:00:00",
			})
		}
		return rows, nil
	}
}

func gameIDs(games []model.Game) []string {
	ids := make([]string, 0, len(games))
	for _, g := range games {
		ids = append(ids, g.ID)
	}
	return ids
}

func TestDiscoverStopsAtWatermark(t *testing.T) {
	e := newTestEngine(t)
	fetch := pagedFetcher([]int{105, 104, 103, 102, 101, 100, 99, 98}, 3)

	games, err := e.Discover(context.Background(), testCity("100"), fetch)
	require.NoError(t, err)
	require.Equal(t, []string{"101", "102", "103", "104", "105"}, gameIDs(games),
		"everything newer than the watermark, oldest first")
}

func TestDiscoverIdempotent(t *testing.T) {
	e := newTestEngine(t)
	fetch := pagedFetcher([]int{105, 104, 103}, 3)

	games, err := e.Discover(context.Background(), testCity("105"), fetch)
	require.NoError(t, err)
	require.Empty(t, games, "watermark at the newest game yields zero new games")
}

func TestDiscoverStopsOnDuplicate(t *testing.T) {
	e := newTestEngine(t)
	// The paginator wraps: page 2 repeats page 1.
	fetch := func(ctx context.Context, page int) ([]GameRow, error) {
		return []GameRow{
			{ID: "105", SeriesName: "Классика", Date: "2024-05-12 19:00:00"},
			{ID: "104", SeriesName: "Классика", Date: "2024-05-05 19:00:00"},
		}, nil
	}

	games, err := e.Discover(context.Background(), testCity(""), fetch)
	require.NoError(t, err)
	require.Equal(t, []string{"104", "105"}, gameIDs(games))
}

func TestDiscoverStopsOnEmptyPage(t *testing.T) {
	e := newTestEngine(t)
	games, err := e.Discover(context.Background(), testCity(""), pagedFetcher(nil, 3))
	require.NoError(t, err)
	require.Empty(t, games)
}

func TestDiscoverDropsInvalidRows(t *testing.T) {
	e := newTestEngine(t)
	fetch := func(ctx context.Context, page int) ([]GameRow, error) {
		if page > 1 {
			return nil, nil
		}
		return []GameRow{
			{ID: "105", SeriesName: "Классика", Date: "2024-05-12 19:00:00"},
			{ID: "104", SeriesName: "Классика", Date: "not a date"},
			{ID: "103", SeriesName: "", Date: "2024-04-28 19:00:00"},
			{ID: "102", SeriesName: "Классика", Date: "2024-04-21 19:00:00"},
		}, nil
	}

	games, err := e.Discover(context.Background(), testCity(""), fetch)
	require.NoError(t, err)
	require.Equal(t, []string{"102", "105"}, gameIDs(games),
		"invalid rows are dropped without stopping pagination")
}

func TestDiscoverRetriesOnceThenFails(t *testing.T) {
	e := newTestEngine(t)

	calls := 0
	fetch := func(ctx context.Context, page int) ([]GameRow, error) {
		if page == 1 {
			return []GameRow{{ID: "105", SeriesName: "Классика", Date: "2024-05-12 19:00:00"}}, nil
		}
		calls++
		return nil, fmt.Errorf("malformed payload")
	}

	games, err := e.Discover(context.Background(), testCity(""), fetch)
	require.Error(t, err)
	require.Equal(t, 2, calls, "one retry after the initial attempt")
	require.Equal(t, []string{"105"}, gameIDs(games), "games collected before the failure are kept")
}

func TestDiscoverCooperativeCancellation(t *testing.T) {
	e := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())

	fetch := func(fctx context.Context, page int) ([]GameRow, error) {
		// Cancel mid-run: the engine must not start another page.
		cancel()
		return []GameRow{{ID: strconv.Itoa(200 - page), SeriesName: "Классика", Date: "2024-05-12 19:00:00"}}, nil
	}

	games, err := e.Discover(ctx, testCity(""), fetch)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, []string{"199"}, gameIDs(games))
}

func TestDiscoverResolvesSeriesOnce(t *testing.T) {
	store, err := storage.NewCSVStore(t.TempDir())
	require.NoError(t, err)
	e := NewEngine(reconcile.New(store))
	e.retryDelay = time.Millisecond

	games, err := e.Discover(context.Background(), testCity(""), pagedFetcher([]int{105, 104, 103}, 3))
	require.NoError(t, err)
	require.Len(t, games, 3)

	series, err := store.FindSeriesByName("Классика")
	require.NoError(t, err)
	require.NotNil(t, series)
	for _, g := range games {
		require.Equal(t, series.ID, g.SeriesID, "game stores only the series id")
	}
}
