package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quizstats/quizstats/internal/model"
)

func newTestStore(t *testing.T) (*CSVStore, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewCSVStore(dir)
	require.NoError(t, err)
	return store, dir
}

// reopen builds a fresh store over the same directory, dropping all caches.
func reopen(t *testing.T, dir string) *CSVStore {
	t.Helper()
	store, err := NewCSVStore(dir)
	require.NoError(t, err)
	return store
}

func TestGameRoundTrip(t *testing.T) {
	store, dir := newTestStore(t)

	date := time.Date(2024, 5, 12, 16, 0, 0, 0, time.UTC)
	game := model.Game{
		ID: "105", CityID: 5, SeriesID: "s1", Number: 45, Date: date,
		Price: "400 ₽", Venue: "Бар Лето", Address: "ул. Ленина, 1",
	}
	require.NoError(t, store.SaveGames([]model.Game{game}))

	pending, err := reopen(t, dir).GetGamesWithoutResults()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, game.ID, pending[0].ID)
	require.Equal(t, game.CityID, pending[0].CityID)
	require.True(t, game.Date.Equal(pending[0].Date))
	require.Equal(t, game.Venue, pending[0].Venue)
}

func TestSaveGamesSkipsKnownIDs(t *testing.T) {
	store, _ := newTestStore(t)
	game := model.Game{ID: "105", CityID: 5, SeriesID: "s1", Date: time.Now().UTC()}

	require.NoError(t, store.SaveGames([]model.Game{game}))
	require.NoError(t, store.SaveGames([]model.Game{game}))

	pending, err := store.GetGamesWithoutResults()
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestMarkGameAsProcessed(t *testing.T) {
	store, dir := newTestStore(t)
	require.NoError(t, store.SaveGames([]model.Game{
		{ID: "105", CityID: 5, SeriesID: "s1", Date: time.Now().UTC()},
	}))

	require.NoError(t, store.MarkGameAsProcessed("105"))

	pending, err := reopen(t, dir).GetGamesWithoutResults()
	require.NoError(t, err)
	require.Empty(t, pending)

	require.Error(t, store.MarkGameAsProcessed("no-such-game"))
}

func TestCityWatermark(t *testing.T) {
	store, dir := newTestStore(t)
	require.NoError(t, store.SeedCities([]model.City{
		{ID: 5, Name: "Пермь", Slug: "perm", Timezone: "Europe/Moscow"},
	}))

	require.NoError(t, store.UpdateCityLastGameID(5, "105"))

	cities, err := reopen(t, dir).GetCitiesByIDs([]int{5})
	require.NoError(t, err)
	require.Len(t, cities, 1)
	require.Equal(t, "105", cities[0].LastGameID)
}

func TestSeedCitiesPreservesWatermark(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.SeedCities([]model.City{{ID: 5, Name: "Пермь", Timezone: "Europe/Moscow"}}))
	require.NoError(t, store.UpdateCityLastGameID(5, "105"))

	// Re-import with a changed strategy tag; the watermark must survive.
	require.NoError(t, store.SeedCities([]model.City{{ID: 5, Name: "Пермь", Timezone: "Europe/Moscow", Strategy: "v2"}}))

	cities, err := store.GetCitiesByIDs([]int{5})
	require.NoError(t, err)
	require.Equal(t, "105", cities[0].LastGameID)
	require.Equal(t, "v2", cities[0].Strategy)
}

func TestGetCitiesByIDsPreservesOrder(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.SeedCities([]model.City{
		{ID: 5, Name: "Пермь", Timezone: "Europe/Moscow"},
		{ID: 7, Name: "Казань", Timezone: "Europe/Moscow"},
	}))

	cities, err := store.GetCitiesByIDs([]int{7, 5, 99})
	require.NoError(t, err)
	require.Len(t, cities, 2)
	require.Equal(t, 7, cities[0].ID)
	require.Equal(t, 5, cities[1].ID)
}

func TestFindCityByName(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.SeedCities([]model.City{{ID: 5, Name: "Пермь", Timezone: "Europe/Moscow"}}))

	city, err := store.FindCityByName("пермь")
	require.NoError(t, err)
	require.NotNil(t, city)
	require.Equal(t, 5, city.ID)

	missing, err := store.FindCityByName("Мурманск")
	require.NoError(t, err)
	require.Nil(t, missing, "not found is not an error")
}

func TestTeamLookups(t *testing.T) {
	store, dir := newTestStore(t)
	team := model.Team{ID: "t1", CityID: 5, Name: "Ночные Снайперы", Slug: "nochnye-snaipery"}
	require.NoError(t, store.SaveTeam(team))

	found, err := store.FindTeamByNameAndCity("НОЧНЫЕ  СНАЙПЕРЫ", 5)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, "t1", found.ID)

	bySlug, err := store.FindTeamBySlugAndCity("nochnye-snaipery", 5)
	require.NoError(t, err)
	require.NotNil(t, bySlug)

	otherCity, err := store.FindTeamByNameAndCity("Ночные Снайперы", 7)
	require.NoError(t, err)
	require.Nil(t, otherCity)

	// Update adds an external id; the index must follow.
	found.ExternalID = "ext-9"
	require.NoError(t, store.UpdateTeams([]model.Team{*found}))

	byExt, err := reopen(t, dir).FindTeamByExternalID("ext-9")
	require.NoError(t, err)
	require.NotNil(t, byExt)
	require.Equal(t, "t1", byExt.ID)
}

func TestResultsRoundTrip(t *testing.T) {
	store, dir := newTestStore(t)
	result := model.GameResult{
		ID: "res-1", GameID: "105", TeamID: "t1",
		Rounds: []float64{22.5, 23}, Total: 45.5, Place: 1, RankID: "r1", HasErrors: false,
	}
	require.NoError(t, store.SaveResults([]model.GameResult{result}))

	// Force a reload from disk via a fresh store.
	fresh := reopen(t, dir)
	require.NoError(t, fresh.loadResults())
	require.Len(t, fresh.results.rows, 1)
	require.Equal(t, result.Rounds, fresh.results.rows[0].Rounds)
	require.Equal(t, result.Total, fresh.results.rows[0].Total)
}

func TestSaveResultsSkipsStoredGameTeamPairs(t *testing.T) {
	store, dir := newTestStore(t)
	first := model.GameResult{
		ID: "res-1", GameID: "105", TeamID: "t1",
		Rounds: []float64{22.5, 23}, Total: 45.5, Place: 1,
	}
	require.NoError(t, store.SaveResults([]model.GameResult{first}))

	// Re-ingesting the same game produces fresh ids for the same pairs;
	// only the genuinely new team's row may land.
	again := []model.GameResult{
		{ID: "res-2", GameID: "105", TeamID: "t1", Rounds: []float64{22.5, 23}, Total: 45.5, Place: 1},
		{ID: "res-3", GameID: "105", TeamID: "t2", Rounds: []float64{40}, Total: 40, Place: 2},
	}
	require.NoError(t, store.SaveResults(again))

	fresh := reopen(t, dir)
	require.NoError(t, fresh.loadResults())
	require.Len(t, fresh.results.rows, 2)
	require.Equal(t, "res-1", fresh.results.rows[0].ID, "the original row survives")
	require.Equal(t, "t2", fresh.results.rows[1].TeamID)
}

func TestRankMappingsSeedOnce(t *testing.T) {
	store, dir := newTestStore(t)
	mappings := []model.RankMapping{{ID: "r1", Name: "Золотая лига", Images: []string{"rank-gold.svg"}}}
	require.NoError(t, store.SeedRankMappings(mappings))

	// A second seed must not touch the externally-maintained file.
	require.NoError(t, store.SeedRankMappings([]model.RankMapping{{ID: "r9", Name: "Другая"}}))

	loaded, err := reopen(t, dir).GetRankMappings()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, "Золотая лига", loaded[0].Name)
	require.Equal(t, []string{"rank-gold.svg"}, loaded[0].Images)
}

type recordingSyncer struct {
	files   map[string]string
	message string
	err     error
}

func (r *recordingSyncer) Push(files map[string]string, message string) error {
	r.files = files
	r.message = message
	return r.err
}

func TestSyncChanges(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.SeedCities([]model.City{{ID: 5, Name: "Пермь", Timezone: "Europe/Moscow"}}))

	syncer := &recordingSyncer{}
	store.SetSyncer(syncer)

	require.NoError(t, store.SyncChanges("scrape 2024-05-12"))
	require.Equal(t, "scrape 2024-05-12", syncer.message)
	require.Contains(t, syncer.files, "cities.csv")

	syncer.err = errors.New("remote unavailable")
	require.Error(t, store.SyncChanges("again"), "sync failures surface to the caller")
}

func TestSyncChangesWithoutSyncer(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.SyncChanges("noop"))
}
