// Package slug derives URL-safe identifiers from team and series display
// names. Team slugs are unique per city: on collision the base name gets an
// incrementing numeric suffix and is re-slugified until the store reports no
// existing owner, so a new team can never take over another team's slug.
package slug
