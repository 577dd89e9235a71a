package model

import (
	"fmt"
	"time"
)

// City is a quiz-league city known to the store. LastGameID is the
// incremental-discovery watermark: everything at or before it is already
// persisted. Strategy optionally overrides the scraping strategy tag.
type City struct {
	ID         int
	Name       string
	Slug       string
	Timezone   string
	LastGameID string
	Strategy   string
}

// Series is a recurring game series (e.g. a themed quiz line). Dedup key is
// the normalized lowercase name; a series is immutable after first sighting.
type Series struct {
	ID           string
	Name         string
	Slug         string
	TemplateName string
	TemplateType string
}

// Game is a single scheduled quiz event. Date is stored in UTC, converted
// from the city-local time published by the source. Processed flips true once
// results were ingested or the game was explicitly skipped.
type Game struct {
	ID        string
	CityID    int
	SeriesID  string
	Number    int
	Date      time.Time
	Price     string
	Venue     string
	Address   string
	IsStream  bool
	Processed bool
}

// Team is a playing team, unique per city by normalized name (or by external
// id when the API strategy supplies one). PreviousTeamID links a renamed
// team to its earlier incarnation. InconsistentRank marks teams whose rank
// badge could not be resolved at creation time.
type Team struct {
	ID               string
	ExternalID       string
	CityID           int
	Name             string
	Slug             string
	PreviousTeamID   string
	InconsistentRank bool
}

// GameResult is one team's scored outcome for one game. Rounds keeps the
// per-round scores in table order. HasErrors is derived: the reported total
// disagrees with the sum of rounds by more than 0.01. Never updated once
// written.
type GameResult struct {
	ID        string
	GameID    string
	TeamID    string
	Rounds    []float64
	Total     float64
	Place     int
	RankID    string
	HasErrors bool
}

// RankMapping is a reference-table entry mapping a rank display name to the
// badge image identifiers the legacy site uses to depict it. Maintained
// externally; the pipeline only reads it.
type RankMapping struct {
	ID     string
	Name   string
	Images []string
}

// Validate checks the fields discovery requires before a game enters a batch.
func (g Game) Validate() error {
	if g.ID == "" {
		return fmt.Errorf("game: missing id")
	}
	if g.CityID <= 0 {
		return fmt.Errorf("game %s: missing city id", g.ID)
	}
	if g.SeriesID == "" {
		return fmt.Errorf("game %s: missing series id", g.ID)
	}
	if g.Date.IsZero() {
		return fmt.Errorf("game %s: missing date", g.ID)
	}
	return nil
}

// Validate checks the fields a result row must carry before it is accepted.
func (r GameResult) Validate() error {
	if r.GameID == "" {
		return fmt.Errorf("result: missing game id")
	}
	if r.TeamID == "" {
		return fmt.Errorf("result for game %s: missing team id", r.GameID)
	}
	if len(r.Rounds) == 0 {
		return fmt.Errorf("result for game %s: no round scores", r.GameID)
	}
	return nil
}

// ParseLocalTime parses a source-local timestamp in the given IANA timezone
// and returns it converted to UTC. The source publishes city-local wall time.
func ParseLocalTime(value, timezone string) (time.Time, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("loading timezone %q: %w", timezone, err)
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02T15:04:05"} {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp %q", value)
}
