package scrape

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quizstats/quizstats/internal/model"
	"github.com/quizstats/quizstats/internal/storage"
	"github.com/quizstats/quizstats/internal/table"
)

// resultHorizon bounds result ingestion: a game this far in the past is
// skipped and marked processed, since the source no longer renders a usable
// table for it.
const resultHorizon = 60 * 24 * time.Hour

// Runner drives one full scrape: cities strictly one at a time, and within a
// city pages, games and results strictly sequentially. Cancellation is
// cooperative, checked at the top of each per-city and per-game iteration;
// whatever was persisted before cancellation stays persisted.
type Runner struct {
	store    storage.Store
	selector *Selector
	horizon  time.Duration
}

func NewRunner(store storage.Store, selector *Selector) *Runner {
	return &Runner{
		store:    store,
		selector: selector,
		horizon:  resultHorizon,
	}
}

// Run discovers and ingests all configured cities, then flushes the store to
// the remote. A sync failure is logged, never fatal.
func (r *Runner) Run(ctx context.Context, cityIDs []int) error {
	cities, err := r.store.GetCitiesByIDs(cityIDs)
	if err != nil {
		return fmt.Errorf("loading cities: %w", err)
	}
	if len(cities) == 0 {
		return fmt.Errorf("no known cities among ids %v", cityIDs)
	}

	strategies := r.discoverAll(ctx, cities)
	if err := r.ingestResults(ctx, strategies); err != nil {
		return err
	}

	message := fmt.Sprintf("scrape %s", time.Now().UTC().Format("2006-01-02 15:04"))
	if err := r.store.SyncChanges(message); err != nil {
		logrus.WithError(err).Error("Remote sync failed, will retry next run")
	}

	return nil
}

// discoverAll runs discovery per city and persists each batch. Returns the
// selected strategy per city id for the results phase; excluded cities are
// absent.
func (r *Runner) discoverAll(ctx context.Context, cities []model.City) map[int]Strategy {
	strategies := make(map[int]Strategy, len(cities))

	for _, city := range cities {
		select {
		case <-ctx.Done():
			logrus.Info("Shutdown requested, stopping discovery")
			return strategies
		default:
		}

		log := logrus.WithFields(logrus.Fields{"city": city.Name, "city_id": city.ID})

		strat, err := r.selector.Select(city)
		if err != nil {
			log.WithError(err).Error("Excluding city from this run")
			continue
		}
		strategies[city.ID] = strat

		games, derr := strat.DiscoverGames(ctx)
		if len(games) > 0 {
			if err := r.store.SaveGames(games); err != nil {
				log.WithError(err).Error("Persisting discovered games failed")
				continue
			}
		}
		if derr != nil {
			// Pagination is newest-first, so an aborted run collected only
			// games newer than the failure point. Advancing the watermark
			// now would strand everything between the failure page and the
			// old watermark; the saved batch is deduplicated on the next
			// full pass instead.
			log.WithError(derr).Warn("Discovery aborted early, kept collected games, watermark unchanged")
			continue
		}
		if len(games) > 0 {
			// Batch is oldest-first, so the last id is the new watermark.
			if err := r.store.UpdateCityLastGameID(city.ID, games[len(games)-1].ID); err != nil {
				log.WithError(err).Error("Advancing watermark failed")
				continue
			}
		}
		log.WithField("count", len(games)).Info("Discovery finished")
	}

	return strategies
}

// ingestResults processes every stored game still lacking results.
func (r *Runner) ingestResults(ctx context.Context, strategies map[int]Strategy) error {
	pending, err := r.store.GetGamesWithoutResults()
	if err != nil {
		return fmt.Errorf("loading unprocessed games: %w", err)
	}

	for _, game := range pending {
		select {
		case <-ctx.Done():
			logrus.Info("Shutdown requested, stopping result ingestion")
			return nil
		default:
		}

		strat, ok := strategies[game.CityID]
		if !ok {
			// City excluded or not part of this run.
			continue
		}
		log := logrus.WithFields(logrus.Fields{"game_id": game.ID, "city_id": game.CityID})

		if reason := r.skipReason(game); reason != "" {
			if err := r.store.MarkGameAsProcessed(game.ID); err != nil {
				return fmt.Errorf("marking game %s processed: %w", game.ID, err)
			}
			log.WithField("reason", reason).Info("Skipped game")
			continue
		}

		results, err := strat.FetchResults(ctx, game)
		if err != nil {
			if errors.Is(err, table.ErrColumnNotFound) {
				// The game stays unprocessed; a future run retries once the
				// source renders a parseable table.
				log.WithError(err).Warn("Results table not classifiable")
			} else {
				log.WithError(err).Warn("Fetching results failed")
			}
			continue
		}

		if err := r.store.SaveResults(results); err != nil {
			return fmt.Errorf("saving results for game %s: %w", game.ID, err)
		}
		if err := r.store.MarkGameAsProcessed(game.ID); err != nil {
			return fmt.Errorf("marking game %s processed: %w", game.ID, err)
		}
		log.WithField("teams", len(results)).Info("Ingested results")
	}

	return nil
}

// skipReason reports why a game's results are not worth fetching, or "".
func (r *Runner) skipReason(game model.Game) string {
	if game.IsStream {
		return "stream game"
	}
	if time.Since(game.Date) > r.horizon {
		return "past retention horizon"
	}
	return ""
}
