// Package storage persists the scraped entities. The pipeline only talks to
// the Store interface; the default implementation keeps one CSV file per
// entity under a data directory, with in-memory read-through caches and a
// lazily-built team index so repeated lookups within a run never re-scan
// files. An optional gist-backed syncer pushes the files to a remote for
// best-effort durability.
package storage
