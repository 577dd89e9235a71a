// Package scrape implements the scraping pipeline: pluggable per-city
// strategies over the legacy HTML site ("v1") and the newer JSON API ("v2"),
// the incremental game-discovery engine with its pagination stop conditions,
// and the runner that walks cities sequentially, persists discovered games
// and ingests their results.
package scrape
