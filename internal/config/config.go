package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/quizstats/quizstats/internal/model"
)

// DefaultBaseURL points at the production quiz-league site.
const DefaultBaseURL = "https://quizplease.ru"

// City is one configured city.
type City struct {
	ID       int    `yaml:"id"`
	Name     string `yaml:"name"`
	Slug     string `yaml:"slug"`
	Timezone string `yaml:"timezone"`
	Strategy string `yaml:"strategy"`
}

// RankMapping seeds the externally-maintained badge reference table on first
// run.
type RankMapping struct {
	ID     string   `yaml:"id"`
	Name   string   `yaml:"name"`
	Images []string `yaml:"images"`
}

// Config is the full YAML configuration.
type Config struct {
	BaseURL      string        `yaml:"base_url"`
	Cities       []City        `yaml:"cities"`
	ActiveCities []int         `yaml:"active_cities"`
	RankMappings []RankMapping `yaml:"rank_mappings"`
}

// Load reads and validates the configuration file. Configuration errors are
// fatal at startup; a bad schedule must not start a run at all.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if len(cfg.Cities) == 0 {
		return nil, fmt.Errorf("config: no cities defined")
	}

	known := make(map[int]bool, len(cfg.Cities))
	for i, c := range cfg.Cities {
		if c.ID <= 0 {
			return nil, fmt.Errorf("config: city %d has no id", i)
		}
		if known[c.ID] {
			return nil, fmt.Errorf("config: duplicate city id %d", c.ID)
		}
		known[c.ID] = true
		if c.Name == "" {
			return nil, fmt.Errorf("config: city %d has no name", c.ID)
		}
		if c.Timezone == "" {
			return nil, fmt.Errorf("config: city %q has no timezone", c.Name)
		}
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return nil, fmt.Errorf("config: city %q: %w", c.Name, err)
		}
	}

	// Default scrape set is every configured city, in file order.
	if len(cfg.ActiveCities) == 0 {
		for _, c := range cfg.Cities {
			cfg.ActiveCities = append(cfg.ActiveCities, c.ID)
		}
	}
	for _, id := range cfg.ActiveCities {
		if !known[id] {
			return nil, fmt.Errorf("config: active city %d is not defined", id)
		}
	}

	return &cfg, nil
}

// ModelCities converts the configured cities for the store import.
func (c *Config) ModelCities() []model.City {
	cities := make([]model.City, 0, len(c.Cities))
	for _, city := range c.Cities {
		cities = append(cities, model.City{
			ID: city.ID, Name: city.Name, Slug: city.Slug,
			Timezone: city.Timezone, Strategy: city.Strategy,
		})
	}
	return cities
}

// ModelRankMappings converts the configured rank seed table.
func (c *Config) ModelRankMappings() []model.RankMapping {
	mappings := make([]model.RankMapping, 0, len(c.RankMappings))
	for _, m := range c.RankMappings {
		mappings = append(mappings, model.RankMapping{ID: m.ID, Name: m.Name, Images: m.Images})
	}
	return mappings
}

// Secrets holds the credentials the gist syncer needs.
type Secrets struct {
	GistID      string
	GithubToken string
}

// LoadSecrets reads secrets from the environment, first loading a .env file
// when one is present.
func LoadSecrets() Secrets {
	_ = godotenv.Load()
	return Secrets{
		GistID:      os.Getenv("QUIZSTATS_GIST_ID"),
		GithubToken: os.Getenv("QUIZSTATS_GITHUB_TOKEN"),
	}
}
