package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/quizstats/quizstats/internal/model"
	"github.com/quizstats/quizstats/internal/reconcile"
	"github.com/quizstats/quizstats/internal/storage"
	"github.com/quizstats/quizstats/internal/table"
)

const (
	StrategyLegacy = "v1"
	StrategyAPIV2  = "v2"

	UserAgent = "quizstats/1.0 (github.com/quizstats/quizstats)"
	Timeout   = 30 * time.Second

	// retryDelay is the pause before the single retry of a failed page or
	// results fetch.
	retryDelay = 2 * time.Second
)

// ErrStrategyUnknown reports a city configured with an unregistered strategy
// tag.
var ErrStrategyUnknown = errors.New("unknown strategy")

// Strategy is one selectable scraping behavior, bound to a city at selection
// time.
type Strategy interface {
	Name() string
	DiscoverGames(ctx context.Context) ([]model.Game, error)
	FetchResults(ctx context.Context, game model.Game) ([]model.GameResult, error)
}

// Deps carries the collaborators every strategy shares.
type Deps struct {
	Store      storage.Store
	Reconciler *reconcile.Reconciler
	Ranks      []model.RankMapping
	BaseURL    string
	Client     *http.Client
}

type factory func(deps Deps, city model.City) Strategy

var registry = map[string]factory{
	StrategyLegacy: newLegacyStrategy,
	StrategyAPIV2:  newAPIV2Strategy,
}

// Selector chooses a strategy per city from its configured tag.
type Selector struct {
	deps   Deps
	active map[int]bool
}

// NewSelector builds a selector sharing one store, reconciler, HTTP client
// and the current rank-mapping table across all produced strategies.
// activeCityIDs is the scrape set of the current run: misconfigured cities
// inside it are excluded instead of silently falling back.
func NewSelector(store storage.Store, baseURL string, activeCityIDs []int) (*Selector, error) {
	ranks, err := store.GetRankMappings()
	if err != nil {
		return nil, fmt.Errorf("loading rank mappings: %w", err)
	}

	active := make(map[int]bool, len(activeCityIDs))
	for _, id := range activeCityIDs {
		active[id] = true
	}

	return &Selector{
		deps: Deps{
			Store:      store,
			Reconciler: reconcile.New(store),
			Ranks:      ranks,
			BaseURL:    baseURL,
			Client:     &http.Client{Timeout: Timeout},
		},
		active: active,
	}, nil
}

// Select returns the strategy for a city. An unset tag means "v1". An
// unregistered tag logs a warning and falls back to "v1", except for cities
// in the active scrape set, where bad configuration must not scrape with the
// wrong semantics: there it is an error and the caller excludes the city.
func (s *Selector) Select(city model.City) (Strategy, error) {
	tag := city.Strategy
	if tag == "" {
		tag = StrategyLegacy
	}

	f, ok := registry[tag]
	if !ok {
		if s.active[city.ID] {
			return nil, fmt.Errorf("%w: %q configured for active city %s", ErrStrategyUnknown, tag, city.Name)
		}
		logrus.WithFields(logrus.Fields{"city": city.Name, "strategy": tag}).
			Warn("Unknown strategy tag, falling back to v1")
		f = registry[StrategyLegacy]
	}

	return f(s.deps, city), nil
}

// fetchJSON GETs url and decodes the JSON body into v. A non-2xx status or
// an undecodable body is an error; the caller decides whether to retry.
func fetchJSON(ctx context.Context, client *http.Client, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s: %w", url, err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("parsing %s: %w", url, err)
	}
	return nil
}

// retryOnce runs fn and, on failure, retries exactly once after a short
// fixed delay. Context cancellation cuts the wait short.
func retryOnce[T any](ctx context.Context, delay time.Duration, fn func() (T, error)) (T, error) {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), 1), ctx)
	return backoff.RetryWithData(fn, policy)
}

// buildResults resolves each extracted row to a stored team and assembles
// the final GameResult records. Rows whose team cannot be resolved or that
// fail schema validation are dropped with a warning.
func buildResults(rec *reconcile.Reconciler, game model.Game, rows []table.Row) []model.GameResult {
	results := make([]model.GameResult, 0, len(rows))
	for _, row := range rows {
		team, err := rec.ResolveTeam(row.TeamName, game.CityID, row.TeamExternalID, row.RankMissing)
		if err != nil {
			logrus.WithFields(logrus.Fields{"game_id": game.ID, "team": row.TeamName}).
				WithError(err).Warn("Dropping result row, team resolution failed")
			continue
		}

		result := model.GameResult{
			ID:        uuid.NewString(),
			GameID:    game.ID,
			TeamID:    team.ID,
			Rounds:    row.Rounds,
			Total:     row.Total,
			Place:     row.Place,
			RankID:    row.RankID,
			HasErrors: row.HasErrors,
		}
		if err := result.Validate(); err != nil {
			logrus.WithFields(logrus.Fields{"game_id": game.ID, "team": row.TeamName}).
				WithError(err).Warn("Dropping invalid result row")
			continue
		}
		results = append(results, result)
	}
	return results
}
