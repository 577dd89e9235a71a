// Package cli wires the cobra commands: scrape (the full
// discover-and-ingest run) and status (store inspection). It owns flag
// parsing, signal-driven cancellation and process exit codes.
package cli
