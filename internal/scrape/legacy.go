package scrape

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/quizstats/quizstats/internal/model"
	"github.com/quizstats/quizstats/internal/table"
)

// legacyStrategy scrapes the original site: a paginated JSON game listing
// and an HTML results table per game.
type legacyStrategy struct {
	deps   Deps
	city   model.City
	engine *Engine
}

func newLegacyStrategy(deps Deps, city model.City) Strategy {
	return &legacyStrategy{
		deps:   deps,
		city:   city,
		engine: NewEngine(deps.Reconciler),
	}
}

func (s *legacyStrategy) Name() string { return StrategyLegacy }

// legacyListing mirrors the ajax game-list payload.
type legacyListing struct {
	Games []struct {
		ID       int    `json:"id"`
		Title    string `json:"title"`
		Template string `json:"template"`
		Type     string `json:"type"`
		Number   int    `json:"number"`
		Date     string `json:"date"`
		Price    string `json:"price"`
		Place    string `json:"place"`
		Address  string `json:"address"`
		IsStream bool   `json:"is_stream"`
	} `json:"games"`
}

func (s *legacyStrategy) DiscoverGames(ctx context.Context) ([]model.Game, error) {
	return s.engine.Discover(ctx, s.city, s.fetchPage)
}

func (s *legacyStrategy) fetchPage(ctx context.Context, page int) ([]GameRow, error) {
	u := fmt.Sprintf("%s/ajax/game-list?status=past&city=%s&page=%d&per_page=%d",
		s.deps.BaseURL, url.QueryEscape(s.city.Slug), page, DefaultPageSize)

	var listing legacyListing
	if err := fetchJSON(ctx, s.deps.Client, u, &listing); err != nil {
		return nil, err
	}

	rows := make([]GameRow, 0, len(listing.Games))
	for _, g := range listing.Games {
		rows = append(rows, GameRow{
			// Legacy game ids are integers; stored as strings for parity
			// with the opaque v2 ids.
			ID:           strconv.Itoa(g.ID),
			SeriesName:   g.Title,
			TemplateName: g.Template,
			TemplateType: g.Type,
			Number:       g.Number,
			Date:         g.Date,
			Price:        g.Price,
			Venue:        g.Place,
			Address:      g.Address,
			IsStream:     g.IsStream,
		})
	}
	return rows, nil
}

// FetchResults downloads and parses the game's HTML results table.
func (s *legacyStrategy) FetchResults(ctx context.Context, game model.Game) ([]model.GameResult, error) {
	u := fmt.Sprintf("%s/%s/game-page?id=%s", s.deps.BaseURL, url.PathEscape(s.city.Slug), url.QueryEscape(game.ID))

	doc, err := retryOnce(ctx, retryDelay, func() (*goquery.Document, error) {
		return s.fetchDocument(ctx, u)
	})
	if err != nil {
		return nil, fmt.Errorf("fetching results for game %s: %w", game.ID, err)
	}

	header, body, err := parseResultsTable(doc)
	if err != nil {
		return nil, fmt.Errorf("game %s: %w", game.ID, err)
	}

	layout, err := table.Classify(header)
	if err != nil {
		return nil, fmt.Errorf("game %s: classifying results table: %w", game.ID, err)
	}

	rows := table.Extract(layout, body, s.deps.Ranks)
	return buildResults(s.deps.Reconciler, game, rows), nil
}

func (s *legacyStrategy) fetchDocument(ctx context.Context, u string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := s.deps.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}
	return doc, nil
}

// parseResultsTable locates the first results table and returns its header
// cells and body rows. Cells rendering a badge image instead of text yield
// the image file name, which is what the rank mapping table keys on.
func parseResultsTable(doc *goquery.Document) ([]string, [][]string, error) {
	tbl := doc.Find("table").First()
	if tbl.Length() == 0 {
		return nil, nil, fmt.Errorf("no results table in page")
	}

	trs := tbl.Find("tr")
	if trs.Length() == 0 {
		return nil, nil, fmt.Errorf("results table has no rows")
	}

	var header []string
	trs.First().Find("th, td").Each(func(i int, cell *goquery.Selection) {
		header = append(header, strings.TrimSpace(cell.Text()))
	})

	var body [][]string
	trs.Slice(1, trs.Length()).Each(func(i int, tr *goquery.Selection) {
		var cells []string
		tr.Find("th, td").Each(func(j int, cell *goquery.Selection) {
			cells = append(cells, cellValue(cell))
		})
		if len(cells) > 0 {
			body = append(body, cells)
		}
	})

	return header, body, nil
}

func cellValue(cell *goquery.Selection) string {
	if text := strings.TrimSpace(cell.Text()); text != "" {
		return text
	}
	if src, ok := cell.Find("img").First().Attr("src"); ok {
		return path.Base(src)
	}
	return ""
}
