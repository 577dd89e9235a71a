// Package model defines the relational entities the scraping pipeline
// produces: cities, series, games, teams, game results and rank mappings.
// It also carries the schema validation applied to rows coming off the
// external source before they are accepted into a batch.
package model
