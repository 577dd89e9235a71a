package slug

import (
	"fmt"
	"strings"

	gosimple "github.com/gosimple/slug"

	"github.com/quizstats/quizstats/internal/model"
	"github.com/quizstats/quizstats/internal/normalize"
)

// TeamLookup is the single store query uniqueness probing needs.
type TeamLookup interface {
	FindTeamBySlugAndCity(slug string, cityID int) (*model.Team, error)
}

// tokenSubs rewrites domain wordplay and symbol sequences that general
// slugification would mangle or drop entirely. Applied before transliteration.
var tokenSubs = []struct{ old, new string }{
	{"кв!з", "квиз"},
	{"ква!з", "кваиз"},
	{"№", " номер "},
	{"&", " и "},
	{"+", " плюс "},
	{"%", " процентов "},
	{"🦊", " fox "},
	{"🔥", " fire "},
	{"⚡", " lightning "},
	{":)", " smile "},
}

// Base generates the deterministic base slug for a display name:
// canonicalize, substitute domain tokens, then transliterate and slugify.
func Base(name string) string {
	s := strings.ToLower(normalize.Clean(name))
	for _, sub := range tokenSubs {
		s = strings.ReplaceAll(s, sub.old, sub.new)
	}
	return gosimple.Make(s)
}

// Generator produces collision-free team slugs by probing the store.
type Generator struct {
	store TeamLookup
}

func NewGenerator(store TeamLookup) *Generator {
	return &Generator{store: store}
}

// ForSeries returns the base slug; series slugs are global and the series
// dedup key already guarantees one record per name.
func ForSeries(name string) string {
	return Base(name)
}

// ForTeam returns a slug unique within the city. On collision the numeric
// suffix is appended to the base name, not the previous slug, and the result
// is re-slugified; the sequence is base, base-1, base-2, ...
func (g *Generator) ForTeam(name string, cityID int) (string, error) {
	candidate := Base(name)
	for i := 1; ; i++ {
		existing, err := g.store.FindTeamBySlugAndCity(candidate, cityID)
		if err != nil {
			return "", fmt.Errorf("probing slug %q: %w", candidate, err)
		}
		if existing == nil {
			return candidate, nil
		}
		candidate = Base(fmt.Sprintf("%s %d", name, i))
	}
}
