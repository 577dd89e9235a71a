package table

import (
	"errors"
	"fmt"
	"strings"

	"github.com/quizstats/quizstats/internal/normalize"
)

// ErrColumnNotFound reports a table missing one of the mandatory columns.
// The enclosing game stays unprocessed and is retried on a future run.
var ErrColumnNotFound = errors.New("mandatory column not found")

// Role is a semantic column role in a results table.
type Role string

const (
	RoleTeam  Role = "team"
	RoleRound Role = "round"
	RoleTotal Role = "total"
	RolePlace Role = "place"
	RoleCity  Role = "city"
	RoleRank  Role = "rank"
)

// roleKeywords maps each role to the header substrings that identify it,
// matched case-insensitively. Kept as data so locales and header variants
// can be extended without touching the classification logic.
var roleKeywords = []struct {
	role     Role
	keywords []string
}{
	{RolePlace, []string{"место", "place"}},
	{RoleRank, []string{"ранг", "лига", "звание", "rank"}},
	{RoleCity, []string{"город", "city"}},
	{RoleTeam, []string{"команда", "название", "team"}},
	{RoleTotal, []string{"итог", "сумма", "всего", "total"}},
	{RoleRound, []string{"раунд", "тур", "round"}},
}

// Layout records where each semantic column sits. Absent optional columns
// are -1.
type Layout struct {
	Team   int
	Rounds []int
	Total  int
	Place  int
	City   int
	Rank   int
}

// Classify maps a header row to a Layout. A cell matches at most one role;
// round columns repeat and are collected left to right. Team, at least one
// round and total are mandatory. Legacy tables often render an empty header
// above the placement numbers, so an unmatched place role falls back to
// column 0 when that first cell is empty.
func Classify(header []string) (*Layout, error) {
	layout := &Layout{Team: -1, Total: -1, Place: -1, City: -1, Rank: -1}

	for i, cell := range header {
		role, ok := classifyCell(cell)
		if !ok {
			continue
		}
		switch role {
		case RoleRound:
			layout.Rounds = append(layout.Rounds, i)
		case RoleTeam:
			if layout.Team == -1 {
				layout.Team = i
			}
		case RoleTotal:
			if layout.Total == -1 {
				layout.Total = i
			}
		case RolePlace:
			if layout.Place == -1 {
				layout.Place = i
			}
		case RoleCity:
			if layout.City == -1 {
				layout.City = i
			}
		case RoleRank:
			if layout.Rank == -1 {
				layout.Rank = i
			}
		}
	}

	if layout.Place == -1 && len(header) > 0 && strings.TrimSpace(header[0]) == "" {
		layout.Place = 0
	}

	if layout.Team == -1 {
		return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, RoleTeam)
	}
	if len(layout.Rounds) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, RoleRound)
	}
	if layout.Total == -1 {
		return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, RoleTotal)
	}

	return layout, nil
}

// classifyCell returns the first role whose keyword list matches the cell.
func classifyCell(cell string) (Role, bool) {
	text := normalize.Key(cell)
	if text == "" {
		return "", false
	}
	for _, entry := range roleKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(text, kw) {
				return entry.role, true
			}
		}
	}
	return "", false
}
