package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const validConfig = `
base_url: https://example.test
cities:
  - id: 5
    name: Пермь
    slug: perm
    timezone: Europe/Moscow
  - id: 7
    name: Казань
    slug: kazan
    timezone: Europe/Moscow
    strategy: v2
active_cities: [5]
rank_mappings:
  - id: r1
    name: Золотая лига
    images: [rank-gold.svg]
`

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	require.Equal(t, "https://example.test", cfg.BaseURL)
	require.Len(t, cfg.Cities, 2)
	require.Equal(t, "v2", cfg.Cities[1].Strategy)
	require.Equal(t, []int{5}, cfg.ActiveCities)

	cities := cfg.ModelCities()
	require.Equal(t, "perm", cities[0].Slug)

	ranks := cfg.ModelRankMappings()
	require.Len(t, ranks, 1)
	require.Equal(t, []string{"rank-gold.svg"}, ranks[0].Images)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
cities:
  - id: 5
    name: Пермь
    timezone: Europe/Moscow
`))
	require.NoError(t, err)
	require.Equal(t, DefaultBaseURL, cfg.BaseURL)
	require.Equal(t, []int{5}, cfg.ActiveCities, "active set defaults to all cities")
}

func TestLoadRejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not yaml", `cities: [`},
		{"no cities", `base_url: https://example.test`},
		{"city without timezone", "cities:\n  - id: 5\n    name: Пермь"},
		{"bad timezone", "cities:\n  - id: 5\n    name: Пермь\n    timezone: Mars/Olympus"},
		{"duplicate id", "cities:\n  - {id: 5, name: А, timezone: UTC}\n  - {id: 5, name: Б, timezone: UTC}"},
		{"unknown active city", "cities:\n  - {id: 5, name: А, timezone: UTC}\nactive_cities: [9]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
