package scrape

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quizstats/quizstats/internal/model"
	"github.com/quizstats/quizstats/internal/reconcile"
)

// DefaultPageSize is the fixed page size both listing endpoints are asked
// for.
const DefaultPageSize = 20

// GameRow is one listing row as the source reports it, before validation and
// series reconciliation. Date is city-local timestamp text.
type GameRow struct {
	ID           string
	SeriesName   string
	TemplateName string
	TemplateType string
	Number       int
	Date         string
	Price        string
	Venue        string
	Address      string
	IsStream     bool
}

// PageFetcher returns the listing rows of one page, most recent first.
// Page 1 is the most recent page.
type PageFetcher func(ctx context.Context, page int) ([]GameRow, error)

// Engine enumerates the games of a city not yet known to the store.
type Engine struct {
	reconciler *reconcile.Reconciler
	retryDelay time.Duration
}

func NewEngine(rec *reconcile.Reconciler) *Engine {
	return &Engine{reconciler: rec, retryDelay: retryDelay}
}

// Discover paginates in descending recency order and stops on the first of:
// a row id already seen this run (the paginator wrapped), a row id equal to
// the city's watermark (everything older is persisted), or an empty page.
// The batch is returned oldest-first so persistence and watermark updates
// follow chronological order. A page fetch that still fails after its single
// retry aborts discovery for this city; games collected so far are returned
// alongside the error.
func (e *Engine) Discover(ctx context.Context, city model.City, fetch PageFetcher) ([]model.Game, error) {
	seen := make(map[string]bool)
	var batch []model.Game

	for page := 1; ; page++ {
		select {
		case <-ctx.Done():
			return reverse(batch), ctx.Err()
		default:
		}

		rows, err := retryOnce(ctx, e.retryDelay, func() ([]GameRow, error) {
			return fetch(ctx, page)
		})
		if err != nil {
			return reverse(batch), fmt.Errorf("fetching page %d for city %s: %w", page, city.Name, err)
		}
		if len(rows) == 0 {
			break
		}

		stopped := false
		for _, row := range rows {
			if seen[row.ID] {
				stopped = true
				break
			}
			if city.LastGameID != "" && row.ID == city.LastGameID {
				stopped = true
				break
			}
			seen[row.ID] = true

			game, err := e.buildGame(city, row)
			if err != nil {
				logrus.WithFields(logrus.Fields{"city": city.Name, "game_id": row.ID}).
					WithError(err).Warn("Dropping invalid listing row")
				continue
			}
			batch = append(batch, game)
		}
		if stopped {
			break
		}
	}

	return reverse(batch), nil
}

// buildGame validates a listing row and resolves its series before the game
// record is finalized; the game stores only the series id.
func (e *Engine) buildGame(city model.City, row GameRow) (model.Game, error) {
	if row.ID == "" {
		return model.Game{}, fmt.Errorf("missing game id")
	}
	if row.SeriesName == "" {
		return model.Game{}, fmt.Errorf("missing series name")
	}

	date, err := model.ParseLocalTime(row.Date, city.Timezone)
	if err != nil {
		return model.Game{}, fmt.Errorf("parsing date: %w", err)
	}

	series, err := e.reconciler.ResolveSeries(row.SeriesName, row.TemplateName, row.TemplateType)
	if err != nil {
		return model.Game{}, fmt.Errorf("resolving series: %w", err)
	}

	game := model.Game{
		ID:       row.ID,
		CityID:   city.ID,
		SeriesID: series.ID,
		Number:   row.Number,
		Date:     date,
		Price:    row.Price,
		Venue:    row.Venue,
		Address:  row.Address,
		IsStream: row.IsStream,
	}
	if err := game.Validate(); err != nil {
		return model.Game{}, err
	}
	return game, nil
}

// reverse flips fetch order (newest first) into chronological order.
func reverse(games []model.Game) []model.Game {
	for i, j := 0, len(games)-1; i < j; i, j = i+1, j-1 {
		games[i], games[j] = games[j], games[i]
	}
	return games
}
