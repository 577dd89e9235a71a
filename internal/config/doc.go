// Package config loads the scrape configuration: the YAML city list with
// per-city strategy overrides, the active scrape set, the rank-mapping seed
// table, and the secrets the remote sync needs from the environment.
package config
