package storage

import (
	"fmt"

	"github.com/quizstats/quizstats/internal/model"
	"github.com/quizstats/quizstats/internal/normalize"
)

// teamNameKey is the canonical form a team name is indexed under.
func teamNameKey(name string) string {
	return normalize.Key(name)
}

// teamIndex is the explicit in-memory team cache: loaded once per process,
// read-through on lookups, write-through on every save. Lookups by
// (normalized name, city), by external id and by (slug, city) are all O(1)
// after the initial load.
type teamIndex struct {
	loaded     bool
	all        []model.Team
	byNameCity map[string]int
	byExternal map[string]int
	bySlugCity map[string]int
}

func newTeamIndex() *teamIndex {
	return &teamIndex{
		byNameCity: make(map[string]int),
		byExternal: make(map[string]int),
		bySlugCity: make(map[string]int),
	}
}

func nameCityKey(key string, cityID int) string {
	return fmt.Sprintf("%s|%d", key, cityID)
}

// put appends a team and indexes it.
func (ix *teamIndex) put(t model.Team) {
	ix.all = append(ix.all, t)
	ix.index(t, len(ix.all)-1)
}

// update replaces an already-indexed team, matched by id. Unknown ids are
// ignored.
func (ix *teamIndex) update(t model.Team) {
	for i := range ix.all {
		if ix.all[i].ID == t.ID {
			ix.unindex(ix.all[i])
			ix.all[i] = t
			ix.index(t, i)
			return
		}
	}
}

func (ix *teamIndex) index(t model.Team, i int) {
	ix.byNameCity[nameCityKey(teamNameKey(t.Name), t.CityID)] = i
	if t.ExternalID != "" {
		ix.byExternal[t.ExternalID] = i
	}
	if t.Slug != "" {
		ix.bySlugCity[nameCityKey(t.Slug, t.CityID)] = i
	}
}

func (ix *teamIndex) unindex(t model.Team) {
	delete(ix.byNameCity, nameCityKey(teamNameKey(t.Name), t.CityID))
	if t.ExternalID != "" {
		delete(ix.byExternal, t.ExternalID)
	}
	if t.Slug != "" {
		delete(ix.bySlugCity, nameCityKey(t.Slug, t.CityID))
	}
}

func (ix *teamIndex) byName(name string, cityID int) *model.Team {
	if i, ok := ix.byNameCity[nameCityKey(teamNameKey(name), cityID)]; ok {
		t := ix.all[i]
		return &t
	}
	return nil
}

func (ix *teamIndex) byExternalID(externalID string) *model.Team {
	if i, ok := ix.byExternal[externalID]; ok {
		t := ix.all[i]
		return &t
	}
	return nil
}

func (ix *teamIndex) bySlugAndCity(slug string, cityID int) *model.Team {
	if i, ok := ix.bySlugCity[nameCityKey(slug, cityID)]; ok {
		t := ix.all[i]
		return &t
	}
	return nil
}
