package storage

import "github.com/quizstats/quizstats/internal/model"

// Store is the persistence contract the scraping pipeline consumes.
// Lookup methods return (nil, nil) when nothing matches; "not found" is an
// expected outcome, not an error.
type Store interface {
	GetCitiesByIDs(ids []int) ([]model.City, error)
	FindCityByName(name string) (*model.City, error)

	FindSeriesByName(name string) (*model.Series, error)
	SaveSeries(series model.Series) error

	GetRankMappings() ([]model.RankMapping, error)

	SaveGames(games []model.Game) error
	GetGamesWithoutResults() ([]model.Game, error)
	MarkGameAsProcessed(gameID string) error
	UpdateCityLastGameID(cityID int, gameID string) error

	SaveResults(results []model.GameResult) error

	FindTeamByNameAndCity(name string, cityID int) (*model.Team, error)
	FindTeamByExternalID(externalID string) (*model.Team, error)
	FindTeamBySlugAndCity(slug string, cityID int) (*model.Team, error)
	SaveTeam(team model.Team) error
	UpdateTeams(teams []model.Team) error

	// SyncChanges pushes the current state to the configured remote.
	// Best-effort: the caller logs failures and carries on.
	SyncChanges(message string) error
}
