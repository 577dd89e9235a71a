package scrape

import (
	"context"
	"fmt"
	"net/url"

	"github.com/quizstats/quizstats/internal/model"
	"github.com/quizstats/quizstats/internal/normalize"
	"github.com/quizstats/quizstats/internal/table"
)

// apiV2Strategy talks to the newer JSON API: a per-city game listing with
// page and order parameters, and a JSON results endpoint per game.
type apiV2Strategy struct {
	deps   Deps
	city   model.City
	engine *Engine
}

func newAPIV2Strategy(deps Deps, city model.City) Strategy {
	return &apiV2Strategy{
		deps:   deps,
		city:   city,
		engine: NewEngine(deps.Reconciler),
	}
}

func (s *apiV2Strategy) Name() string { return StrategyAPIV2 }

type apiV2Listing struct {
	Items []struct {
		ID     string `json:"id"`
		Series struct {
			Name     string `json:"name"`
			Template string `json:"template"`
			Type     string `json:"type"`
		} `json:"series"`
		Number      int    `json:"number"`
		ScheduledAt string `json:"scheduled_at"`
		Price       string `json:"price"`
		Venue       string `json:"venue"`
		Address     string `json:"address"`
		Stream      bool   `json:"stream"`
	} `json:"items"`
}

type apiV2Results struct {
	Results []struct {
		Team struct {
			ID   string `json:"id"`
			Name string `json:"name"`
			City string `json:"city"`
		} `json:"team"`
		Rounds []float64 `json:"rounds"`
		Total  string    `json:"total"`
		Place  int       `json:"place"`
		Rank   string    `json:"rank"`
	} `json:"results"`
}

func (s *apiV2Strategy) DiscoverGames(ctx context.Context) ([]model.Game, error) {
	return s.engine.Discover(ctx, s.city, s.fetchPage)
}

func (s *apiV2Strategy) fetchPage(ctx context.Context, page int) ([]GameRow, error) {
	u := fmt.Sprintf("%s/api/v2/games?city_id=%d&page=%d&page_size=%d&order=desc",
		s.deps.BaseURL, s.city.ID, page, DefaultPageSize)

	var listing apiV2Listing
	if err := fetchJSON(ctx, s.deps.Client, u, &listing); err != nil {
		return nil, err
	}

	rows := make([]GameRow, 0, len(listing.Items))
	for _, item := range listing.Items {
		rows = append(rows, GameRow{
			ID:           item.ID,
			SeriesName:   item.Series.Name,
			TemplateName: item.Series.Template,
			TemplateType: item.Series.Type,
			Number:       item.Number,
			Date:         item.ScheduledAt,
			Price:        item.Price,
			Venue:        item.Venue,
			Address:      item.Address,
			IsStream:     item.Stream,
		})
	}
	return rows, nil
}

// FetchResults reads the per-game JSON results. The API reports totals as
// strings with locale-dependent separators, same as the legacy tables, and
// rank as a title rather than a badge image.
func (s *apiV2Strategy) FetchResults(ctx context.Context, game model.Game) ([]model.GameResult, error) {
	u := fmt.Sprintf("%s/api/v2/games/%s/results", s.deps.BaseURL, url.PathEscape(game.ID))

	payload, err := retryOnce(ctx, retryDelay, func() (*apiV2Results, error) {
		var p apiV2Results
		if err := fetchJSON(ctx, s.deps.Client, u, &p); err != nil {
			return nil, err
		}
		return &p, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetching results for game %s: %w", game.ID, err)
	}

	rows := make([]table.Row, 0, len(payload.Results))
	for _, item := range payload.Results {
		row := table.BuildRow(
			item.Team.Name,
			item.Team.City,
			item.Rounds,
			normalize.Decimal(item.Total),
			item.Place,
			item.Rank,
			s.deps.Ranks,
		)
		row.TeamExternalID = item.Team.ID
		rows = append(rows, row)
	}

	return buildResults(s.deps.Reconciler, game, rows), nil
}
