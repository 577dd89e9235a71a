package scrape

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quizstats/quizstats/internal/model"
	"github.com/quizstats/quizstats/internal/storage"
)

func newAPIV2Server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v2/games", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") != "1" {
			fmt.Fprint(w, `{"items":[]}`)
			return
		}
		fmt.Fprint(w, `{"items":[
			{"id":"g-207","series":{"name":"Классика","template":"classic","type":"regular"},
			 "number":46,"scheduled_at":"2024-05-19 19:00:00","price":"450","venue":"Бар Лето","address":"ул. Ленина, 1","stream":false},
			{"id":"g-206","series":{"name":"Классика","template":"classic","type":"regular"},
			 "number":45,"scheduled_at":"2024-05-12 19:00:00","price":"450","venue":"Бар Лето","address":"ул. Ленина, 1","stream":true}
		]}`)
	})

	mux.HandleFunc("/api/v2/games/g-207/results", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results":[
			{"team":{"id":"ext-1","name":"Ночные Снайперы","city":"Казань"},"rounds":[22.5,23],"total":"45,5","place":1,"rank":"Золотая лига"},
			{"team":{"id":"ext-2","name":"Знатоки","city":"Казань"},"rounds":[20,20],"total":"40","place":2,"rank":""}
		]}`)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newAPIV2StrategyForTest(t *testing.T, baseURL string) (Strategy, *storage.CSVStore) {
	t.Helper()
	store, err := storage.NewCSVStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.SeedRankMappings(testRanks))

	sel, err := NewSelector(store, baseURL, nil)
	require.NoError(t, err)
	strat, err := sel.Select(model.City{ID: 7, Name: "Казань", Slug: "kazan", Timezone: "Europe/Moscow", Strategy: "v2"})
	require.NoError(t, err)
	return strat, store
}

func TestAPIV2DiscoverGames(t *testing.T) {
	server := newAPIV2Server(t)
	strat, _ := newAPIV2StrategyForTest(t, server.URL)

	games, err := strat.DiscoverGames(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"g-206", "g-207"}, gameIDs(games))
	require.True(t, games[0].IsStream)
	require.Equal(t, 7, games[0].CityID)
}

func TestAPIV2FetchResults(t *testing.T) {
	server := newAPIV2Server(t)
	strat, store := newAPIV2StrategyForTest(t, server.URL)

	results, err := strat.FetchResults(context.Background(), model.Game{ID: "g-207", CityID: 7})
	require.NoError(t, err)
	require.Len(t, results, 2)

	// The API reports totals as strings with comma separators.
	require.Equal(t, 45.5, results[0].Total)
	require.False(t, results[0].HasErrors)
	require.Equal(t, "r1", results[0].RankID, "API rank titles resolve against the mapping set")

	// Teams are created with their external ids.
	team, err := store.FindTeamByExternalID("ext-1")
	require.NoError(t, err)
	require.NotNil(t, team)
	require.Equal(t, team.ID, results[0].TeamID)
	require.False(t, team.InconsistentRank, "an absent rank is not an inconsistency")
}

func TestAPIV2ExternalIDBackfill(t *testing.T) {
	server := newAPIV2Server(t)
	strat, store := newAPIV2StrategyForTest(t, server.URL)

	// Team known from a legacy run, by name only.
	require.NoError(t, store.SaveTeam(model.Team{
		ID: "team-1", CityID: 7, Name: "Знатоки", Slug: "znatoki",
	}))

	results, err := strat.FetchResults(context.Background(), model.Game{ID: "g-207", CityID: 7})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "team-1", results[1].TeamID, "name match reuses the legacy record")

	backfilled, err := store.FindTeamByExternalID("ext-2")
	require.NoError(t, err)
	require.NotNil(t, backfilled)
	require.Equal(t, "team-1", backfilled.ID)
}
