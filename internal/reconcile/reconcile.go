package reconcile

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/quizstats/quizstats/internal/model"
	"github.com/quizstats/quizstats/internal/normalize"
	"github.com/quizstats/quizstats/internal/slug"
	"github.com/quizstats/quizstats/internal/storage"
)

// Reconciler resolves incoming entity references to stored records.
type Reconciler struct {
	store storage.Store
	slugs *slug.Generator
}

func New(store storage.Store) *Reconciler {
	return &Reconciler{
		store: store,
		slugs: slug.NewGenerator(store),
	}
}

// ResolveSeries finds a series by normalized name or creates it. A series is
// immutable after first sighting, so an existing record is returned as-is
// even when the source now reports a different template.
func (r *Reconciler) ResolveSeries(name, templateName, templateType string) (*model.Series, error) {
	existing, err := r.store.FindSeriesByName(name)
	if err != nil {
		return nil, fmt.Errorf("looking up series %q: %w", name, err)
	}
	if existing != nil {
		return existing, nil
	}

	series := model.Series{
		ID:           uuid.NewString(),
		Name:         normalize.Clean(name),
		Slug:         slug.ForSeries(name),
		TemplateName: templateName,
		TemplateType: templateType,
	}
	if err := r.store.SaveSeries(series); err != nil {
		return nil, fmt.Errorf("saving series %q: %w", series.Name, err)
	}
	logrus.WithFields(logrus.Fields{"series": series.Name, "slug": series.Slug}).
		Info("Created series")
	return &series, nil
}

// ResolveTeam finds a team or creates it. With an external id (API strategy)
// the id is tried first; on a miss the (normalized name, city) key is tried
// and a hit gets the external id backfilled. Only when both lookups miss is
// a new team created. rankMissing marks a newly-created team as
// inconsistent_rank; existing teams are never retroactively flagged.
func (r *Reconciler) ResolveTeam(name string, cityID int, externalID string, rankMissing bool) (*model.Team, error) {
	if externalID != "" {
		existing, err := r.store.FindTeamByExternalID(externalID)
		if err != nil {
			return nil, fmt.Errorf("looking up team by external id %s: %w", externalID, err)
		}
		if existing != nil {
			return existing, nil
		}
	}

	existing, err := r.store.FindTeamByNameAndCity(name, cityID)
	if err != nil {
		return nil, fmt.Errorf("looking up team %q in city %d: %w", name, cityID, err)
	}
	if existing != nil {
		if externalID != "" && existing.ExternalID == "" {
			existing.ExternalID = externalID
			if err := r.store.UpdateTeams([]model.Team{*existing}); err != nil {
				return nil, fmt.Errorf("backfilling external id onto team %s: %w", existing.ID, err)
			}
			logrus.WithFields(logrus.Fields{"team": existing.Name, "external_id": externalID}).
				Debug("Backfilled external id")
		}
		return existing, nil
	}

	teamSlug, err := r.slugs.ForTeam(name, cityID)
	if err != nil {
		return nil, fmt.Errorf("generating slug for team %q: %w", name, err)
	}

	team := model.Team{
		ID:               uuid.NewString(),
		ExternalID:       externalID,
		CityID:           cityID,
		Name:             normalize.Clean(name),
		Slug:             teamSlug,
		InconsistentRank: rankMissing,
	}
	if err := r.store.SaveTeam(team); err != nil {
		return nil, fmt.Errorf("saving team %q: %w", team.Name, err)
	}
	logrus.WithFields(logrus.Fields{"team": team.Name, "city_id": cityID, "slug": teamSlug}).
		Info("Created team")
	return &team, nil
}
