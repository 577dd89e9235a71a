package table

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/quizstats/quizstats/internal/model"
	"github.com/quizstats/quizstats/internal/normalize"
)

// totalTolerance bounds the disagreement between the reported total and the
// sum of rounds before a row is flagged.
const totalTolerance = 0.01

// Row is a normalized result row, independent of which strategy produced it.
// RankMissing means a rank reference was present but matched no known
// mapping; the team gets the inconsistent_rank flag if it is created from
// this row.
type Row struct {
	TeamName       string
	TeamCity       string
	TeamExternalID string
	Rounds         []float64
	Total          float64
	Place          int
	RankID         string
	RankMissing    bool
	HasErrors      bool
}

// BuildRow assembles a Row from already-parsed values, deriving HasErrors
// and resolving the rank reference. Both strategies funnel through here so
// the derivation rules live in one place.
func BuildRow(teamName, teamCity string, rounds []float64, reportedTotal float64, place int, rankRef string, ranks []model.RankMapping) Row {
	row := Row{
		TeamName: normalize.Clean(teamName),
		TeamCity: normalize.Clean(teamCity),
		Rounds:   rounds,
		Total:    reportedTotal,
		Place:    place,
	}

	var sum float64
	for _, v := range rounds {
		sum += v
	}
	row.HasErrors = math.Abs(sum-reportedTotal) > totalTolerance

	if rankRef != "" {
		if rank := ResolveRank(rankRef, ranks); rank != nil {
			row.RankID = rank.ID
		} else {
			row.RankMissing = true
		}
	}

	return row
}

// ResolveRank matches a badge reference against the mapping set: first by
// exact title, then against the badge image identifiers the legacy site
// uses. Returns nil when nothing matches; mappings are never created here.
func ResolveRank(ref string, ranks []model.RankMapping) *model.RankMapping {
	key := normalize.Key(ref)
	for i := range ranks {
		if normalize.Key(ranks[i].Name) == key {
			return &ranks[i]
		}
	}
	for i := range ranks {
		for _, img := range ranks[i].Images {
			if img == ref {
				return &ranks[i]
			}
		}
	}
	return nil
}

// Extract reads the body rows of a classified table. Rows failing validation
// are dropped with a warning; they never abort the rest of the table.
func Extract(layout *Layout, body [][]string, ranks []model.RankMapping) []Row {
	rows := make([]Row, 0, len(body))
	for i, cells := range body {
		teamName := cellAt(cells, layout.Team)
		if normalize.Clean(teamName) == "" {
			logrus.WithField("row", i).Warn("Dropping result row without a team name")
			continue
		}

		rounds := make([]float64, 0, len(layout.Rounds))
		for _, col := range layout.Rounds {
			rounds = append(rounds, normalize.Decimal(cellAt(cells, col)))
		}

		var place int
		if layout.Place >= 0 {
			place = normalize.Integer(cellAt(cells, layout.Place))
		}

		var rankRef string
		if layout.Rank >= 0 {
			rankRef = cellAt(cells, layout.Rank)
		}

		row := BuildRow(
			teamName,
			cellAt(cells, layout.City),
			rounds,
			normalize.Decimal(cellAt(cells, layout.Total)),
			place,
			rankRef,
			ranks,
		)
		rows = append(rows, row)
	}
	return rows
}

func cellAt(cells []string, i int) string {
	if i < 0 || i >= len(cells) {
		return ""
	}
	return cells[i]
}
