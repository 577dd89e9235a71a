// Package reconcile deduplicates incoming series and teams against the
// store. Every resolve operation is find-or-create and idempotent under
// identical input: series match on normalized name, teams on external id
// first (API strategy) and then on normalized name within the city, with
// external-id backfill onto name-matched records.
package reconcile
