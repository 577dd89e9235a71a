package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quizstats/quizstats/internal/model"
	"github.com/quizstats/quizstats/internal/normalize"
)

const (
	citiesFile  = "cities.csv"
	seriesFile  = "series.csv"
	gamesFile   = "games.csv"
	teamsFile   = "teams.csv"
	resultsFile = "results.csv"
	ranksFile   = "rank_mappings.csv"

	listSeparator = ";"
)

// Syncer pushes the store's files to a remote. Implemented by GistSync.
type Syncer interface {
	Push(files map[string]string, message string) error
}

// CSVStore implements Store over one CSV file per entity. Each table is read
// once per process and cached; every save rewrites the table's file from the
// cached slice. The design assumes a single active process per data
// directory, so no file locking is done.
type CSVStore struct {
	dataDir string
	syncer  Syncer

	cities  *table[model.City]
	series  *table[model.Series]
	games   *table[model.Game]
	results *table[model.GameResult]
	ranks   *table[model.RankMapping]
	teams   *teamIndex
}

// table is a lazily-loaded in-memory copy of one CSV file.
type table[T any] struct {
	loaded bool
	rows   []T
}

// NewCSVStore creates a store rooted at dataDir, creating the directory if
// needed. A leading ~/ is expanded to the home directory.
func NewCSVStore(dataDir string) (*CSVStore, error) {
	if strings.HasPrefix(dataDir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, dataDir[2:])
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	return &CSVStore{
		dataDir: dataDir,
		cities:  &table[model.City]{},
		series:  &table[model.Series]{},
		games:   &table[model.Game]{},
		results: &table[model.GameResult]{},
		ranks:   &table[model.RankMapping]{},
		teams:   newTeamIndex(),
	}, nil
}

// SetSyncer configures the remote syncer used by SyncChanges.
func (s *CSVStore) SetSyncer(syncer Syncer) {
	s.syncer = syncer
}

// DataDir returns the resolved data directory.
func (s *CSVStore) DataDir() string {
	return s.dataDir
}

func (s *CSVStore) path(name string) string {
	return filepath.Join(s.dataDir, name)
}

// readRecords reads all data records of a CSV file, skipping the header.
// A missing file is an empty table.
func (s *CSVStore) readRecords(name string) ([][]string, error) {
	f, err := os.Open(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	if len(records) <= 1 {
		return nil, nil
	}
	return records[1:], nil
}

// writeRecords rewrites a CSV file with a header and the given records.
func (s *CSVStore) writeRecords(name string, header []string, records [][]string) error {
	f, err := os.Create(s.path(name))
	if err != nil {
		return fmt.Errorf("creating %s: %w", name, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("writing %s header: %w", name, err)
	}
	if err := w.WriteAll(records); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	w.Flush()
	return w.Error()
}

// --- cities ---

var cityHeader = []string{"id", "name", "slug", "timezone", "last_game_id", "strategy"}

func (s *CSVStore) loadCities() error {
	if s.cities.loaded {
		return nil
	}
	records, err := s.readRecords(citiesFile)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if len(rec) < 6 {
			logrus.WithField("file", citiesFile).Warn("Skipping short city record")
			continue
		}
		id, _ := strconv.Atoi(rec[0])
		s.cities.rows = append(s.cities.rows, model.City{
			ID: id, Name: rec[1], Slug: rec[2], Timezone: rec[3],
			LastGameID: rec[4], Strategy: rec[5],
		})
	}
	s.cities.loaded = true
	return nil
}

func (s *CSVStore) flushCities() error {
	records := make([][]string, 0, len(s.cities.rows))
	for _, c := range s.cities.rows {
		records = append(records, []string{
			strconv.Itoa(c.ID), c.Name, c.Slug, c.Timezone, c.LastGameID, c.Strategy,
		})
	}
	return s.writeRecords(citiesFile, cityHeader, records)
}

// GetCitiesByIDs returns the known cities among ids, preserving the order of
// the ids argument. Unknown ids are silently skipped.
func (s *CSVStore) GetCitiesByIDs(ids []int) ([]model.City, error) {
	if err := s.loadCities(); err != nil {
		return nil, err
	}
	byID := make(map[int]model.City, len(s.cities.rows))
	for _, c := range s.cities.rows {
		byID[c.ID] = c
	}
	cities := make([]model.City, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			cities = append(cities, c)
		}
	}
	return cities, nil
}

func (s *CSVStore) FindCityByName(name string) (*model.City, error) {
	if err := s.loadCities(); err != nil {
		return nil, err
	}
	key := normalize.Key(name)
	for i := range s.cities.rows {
		if normalize.Key(s.cities.rows[i].Name) == key {
			c := s.cities.rows[i]
			return &c, nil
		}
	}
	return nil, nil
}

// UpdateCityLastGameID advances a city's discovery watermark.
func (s *CSVStore) UpdateCityLastGameID(cityID int, gameID string) error {
	if err := s.loadCities(); err != nil {
		return err
	}
	for i := range s.cities.rows {
		if s.cities.rows[i].ID == cityID {
			s.cities.rows[i].LastGameID = gameID
			return s.flushCities()
		}
	}
	return fmt.Errorf("updating watermark: unknown city %d", cityID)
}

// SeedCities inserts or refreshes configured cities. Discovery watermarks of
// existing records are preserved; name, slug, timezone and strategy follow
// the configuration.
func (s *CSVStore) SeedCities(cities []model.City) error {
	if err := s.loadCities(); err != nil {
		return err
	}
	existing := make(map[int]int, len(s.cities.rows))
	for i, c := range s.cities.rows {
		existing[c.ID] = i
	}
	for _, c := range cities {
		if i, ok := existing[c.ID]; ok {
			c.LastGameID = s.cities.rows[i].LastGameID
			s.cities.rows[i] = c
			continue
		}
		s.cities.rows = append(s.cities.rows, c)
	}
	return s.flushCities()
}

// --- series ---

var seriesHeader = []string{"id", "name", "slug", "template_name", "template_type"}

func (s *CSVStore) loadSeries() error {
	if s.series.loaded {
		return nil
	}
	records, err := s.readRecords(seriesFile)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if len(rec) < 5 {
			logrus.WithField("file", seriesFile).Warn("Skipping short series record")
			continue
		}
		s.series.rows = append(s.series.rows, model.Series{
			ID: rec[0], Name: rec[1], Slug: rec[2], TemplateName: rec[3], TemplateType: rec[4],
		})
	}
	s.series.loaded = true
	return nil
}

func (s *CSVStore) flushSeries() error {
	records := make([][]string, 0, len(s.series.rows))
	for _, sr := range s.series.rows {
		records = append(records, []string{sr.ID, sr.Name, sr.Slug, sr.TemplateName, sr.TemplateType})
	}
	return s.writeRecords(seriesFile, seriesHeader, records)
}

// FindSeriesByName matches on the normalized lowercase name.
func (s *CSVStore) FindSeriesByName(name string) (*model.Series, error) {
	if err := s.loadSeries(); err != nil {
		return nil, err
	}
	key := normalize.Key(name)
	for i := range s.series.rows {
		if normalize.Key(s.series.rows[i].Name) == key {
			sr := s.series.rows[i]
			return &sr, nil
		}
	}
	return nil, nil
}

func (s *CSVStore) SaveSeries(series model.Series) error {
	if err := s.loadSeries(); err != nil {
		return err
	}
	s.series.rows = append(s.series.rows, series)
	return s.flushSeries()
}

// --- games ---

var gameHeader = []string{"id", "city_id", "series_id", "number", "date", "price", "venue", "address", "is_stream", "processed"}

func (s *CSVStore) loadGames() error {
	if s.games.loaded {
		return nil
	}
	records, err := s.readRecords(gamesFile)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if len(rec) < 10 {
			logrus.WithField("file", gamesFile).Warn("Skipping short game record")
			continue
		}
		cityID, _ := strconv.Atoi(rec[1])
		number, _ := strconv.Atoi(rec[3])
		date, err := time.Parse(time.RFC3339, rec[4])
		if err != nil {
			logrus.WithFields(logrus.Fields{"file": gamesFile, "game_id": rec[0]}).
				Warn("Skipping game with malformed date")
			continue
		}
		s.games.rows = append(s.games.rows, model.Game{
			ID: rec[0], CityID: cityID, SeriesID: rec[2], Number: number, Date: date,
			Price: rec[5], Venue: rec[6], Address: rec[7],
			IsStream: rec[8] == "true", Processed: rec[9] == "true",
		})
	}
	s.games.loaded = true
	return nil
}

func (s *CSVStore) flushGames() error {
	records := make([][]string, 0, len(s.games.rows))
	for _, g := range s.games.rows {
		records = append(records, []string{
			g.ID, strconv.Itoa(g.CityID), g.SeriesID, strconv.Itoa(g.Number),
			g.Date.UTC().Format(time.RFC3339), g.Price, g.Venue, g.Address,
			strconv.FormatBool(g.IsStream), strconv.FormatBool(g.Processed),
		})
	}
	return s.writeRecords(gamesFile, gameHeader, records)
}

// SaveGames appends a discovery batch. Games whose id is already stored are
// skipped, so re-saving an overlapping batch is harmless.
func (s *CSVStore) SaveGames(games []model.Game) error {
	if err := s.loadGames(); err != nil {
		return err
	}
	known := make(map[string]bool, len(s.games.rows))
	for _, g := range s.games.rows {
		known[g.ID] = true
	}
	for _, g := range games {
		if known[g.ID] {
			continue
		}
		known[g.ID] = true
		s.games.rows = append(s.games.rows, g)
	}
	return s.flushGames()
}

func (s *CSVStore) GetGamesWithoutResults() ([]model.Game, error) {
	if err := s.loadGames(); err != nil {
		return nil, err
	}
	var pending []model.Game
	for _, g := range s.games.rows {
		if !g.Processed {
			pending = append(pending, g)
		}
	}
	return pending, nil
}

func (s *CSVStore) MarkGameAsProcessed(gameID string) error {
	if err := s.loadGames(); err != nil {
		return err
	}
	for i := range s.games.rows {
		if s.games.rows[i].ID == gameID {
			s.games.rows[i].Processed = true
			return s.flushGames()
		}
	}
	return fmt.Errorf("marking processed: unknown game %s", gameID)
}

// --- results ---

var resultHeader = []string{"id", "game_id", "team_id", "rounds", "total", "place", "rank_id", "has_errors"}

func (s *CSVStore) loadResults() error {
	if s.results.loaded {
		return nil
	}
	records, err := s.readRecords(resultsFile)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if len(rec) < 8 {
			logrus.WithField("file", resultsFile).Warn("Skipping short result record")
			continue
		}
		var rounds []float64
		for _, part := range strings.Split(rec[3], listSeparator) {
			if part == "" {
				continue
			}
			v, _ := strconv.ParseFloat(part, 64)
			rounds = append(rounds, v)
		}
		total, _ := strconv.ParseFloat(rec[4], 64)
		place, _ := strconv.Atoi(rec[5])
		s.results.rows = append(s.results.rows, model.GameResult{
			ID: rec[0], GameID: rec[1], TeamID: rec[2], Rounds: rounds,
			Total: total, Place: place, RankID: rec[6], HasErrors: rec[7] == "true",
		})
	}
	s.results.loaded = true
	return nil
}

func (s *CSVStore) flushResults() error {
	records := make([][]string, 0, len(s.results.rows))
	for _, r := range s.results.rows {
		parts := make([]string, 0, len(r.Rounds))
		for _, v := range r.Rounds {
			parts = append(parts, strconv.FormatFloat(v, 'f', -1, 64))
		}
		records = append(records, []string{
			r.ID, r.GameID, r.TeamID, strings.Join(parts, listSeparator),
			strconv.FormatFloat(r.Total, 'f', -1, 64), strconv.Itoa(r.Place),
			r.RankID, strconv.FormatBool(r.HasErrors),
		})
	}
	return s.writeRecords(resultsFile, resultHeader, records)
}

// SaveResults appends result rows. Rows whose (game id, team id) pair is
// already stored are skipped, so re-ingesting a game whose processed flag
// failed to persist does not duplicate its results.
func (s *CSVStore) SaveResults(results []model.GameResult) error {
	if err := s.loadResults(); err != nil {
		return err
	}
	known := make(map[string]bool, len(s.results.rows))
	for _, r := range s.results.rows {
		known[r.GameID+"|"+r.TeamID] = true
	}
	for _, r := range results {
		key := r.GameID + "|" + r.TeamID
		if known[key] {
			continue
		}
		known[key] = true
		s.results.rows = append(s.results.rows, r)
	}
	return s.flushResults()
}

// --- rank mappings ---

var rankHeader = []string{"id", "name", "images"}

func (s *CSVStore) loadRanks() error {
	if s.ranks.loaded {
		return nil
	}
	records, err := s.readRecords(ranksFile)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if len(rec) < 3 {
			logrus.WithField("file", ranksFile).Warn("Skipping short rank record")
			continue
		}
		var images []string
		for _, img := range strings.Split(rec[2], listSeparator) {
			if img != "" {
				images = append(images, img)
			}
		}
		s.ranks.rows = append(s.ranks.rows, model.RankMapping{ID: rec[0], Name: rec[1], Images: images})
	}
	s.ranks.loaded = true
	return nil
}

func (s *CSVStore) GetRankMappings() ([]model.RankMapping, error) {
	if err := s.loadRanks(); err != nil {
		return nil, err
	}
	return s.ranks.rows, nil
}

// SeedRankMappings writes the reference table if no file exists yet. The
// table is maintained externally; an existing file is never touched.
func (s *CSVStore) SeedRankMappings(mappings []model.RankMapping) error {
	if _, err := os.Stat(s.path(ranksFile)); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("checking %s: %w", ranksFile, err)
	}
	records := make([][]string, 0, len(mappings))
	for _, m := range mappings {
		records = append(records, []string{m.ID, m.Name, strings.Join(m.Images, listSeparator)})
	}
	return s.writeRecords(ranksFile, rankHeader, records)
}

// --- teams ---

var teamHeader = []string{"id", "external_id", "city_id", "name", "slug", "previous_team_id", "inconsistent_rank"}

func (s *CSVStore) loadTeams() error {
	if s.teams.loaded {
		return nil
	}
	records, err := s.readRecords(teamsFile)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if len(rec) < 7 {
			logrus.WithField("file", teamsFile).Warn("Skipping short team record")
			continue
		}
		cityID, _ := strconv.Atoi(rec[2])
		s.teams.put(model.Team{
			ID: rec[0], ExternalID: rec[1], CityID: cityID, Name: rec[3],
			Slug: rec[4], PreviousTeamID: rec[5], InconsistentRank: rec[6] == "true",
		})
	}
	s.teams.loaded = true
	return nil
}

func (s *CSVStore) flushTeams() error {
	records := make([][]string, 0, len(s.teams.all))
	for _, t := range s.teams.all {
		records = append(records, []string{
			t.ID, t.ExternalID, strconv.Itoa(t.CityID), t.Name, t.Slug,
			t.PreviousTeamID, strconv.FormatBool(t.InconsistentRank),
		})
	}
	return s.writeRecords(teamsFile, teamHeader, records)
}

func (s *CSVStore) FindTeamByNameAndCity(name string, cityID int) (*model.Team, error) {
	if err := s.loadTeams(); err != nil {
		return nil, err
	}
	return s.teams.byName(name, cityID), nil
}

func (s *CSVStore) FindTeamByExternalID(externalID string) (*model.Team, error) {
	if err := s.loadTeams(); err != nil {
		return nil, err
	}
	return s.teams.byExternalID(externalID), nil
}

func (s *CSVStore) FindTeamBySlugAndCity(slug string, cityID int) (*model.Team, error) {
	if err := s.loadTeams(); err != nil {
		return nil, err
	}
	return s.teams.bySlugAndCity(slug, cityID), nil
}

func (s *CSVStore) SaveTeam(team model.Team) error {
	if err := s.loadTeams(); err != nil {
		return err
	}
	s.teams.put(team)
	return s.flushTeams()
}

// UpdateTeams rewrites already-stored teams in place, matched by id.
func (s *CSVStore) UpdateTeams(teams []model.Team) error {
	if err := s.loadTeams(); err != nil {
		return err
	}
	for _, t := range teams {
		s.teams.update(t)
	}
	return s.flushTeams()
}

// --- sync ---

// SyncChanges pushes every table file to the configured remote. With no
// syncer configured this is a no-op.
func (s *CSVStore) SyncChanges(message string) error {
	if s.syncer == nil {
		logrus.Debug("No syncer configured, skipping sync")
		return nil
	}
	files := make(map[string]string)
	for _, name := range []string{citiesFile, seriesFile, gamesFile, teamsFile, resultsFile, ranksFile} {
		data, err := os.ReadFile(s.path(name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("reading %s for sync: %w", name, err)
		}
		files[name] = string(data)
	}
	if err := s.syncer.Push(files, message); err != nil {
		return fmt.Errorf("pushing changes: %w", err)
	}
	return nil
}
