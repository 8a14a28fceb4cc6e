package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Catalog is the seed data applied by `conedexctl seed`.
type Catalog struct {
	Badges []CatalogBadge `yaml:"badges"`
	Quests []CatalogQuest `yaml:"quests"`
}

// CatalogBadge describes one badge. Key is a stable reference used by quests.
type CatalogBadge struct {
	Key         string `yaml:"key"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	ImageURL    string `yaml:"image_url"`
	Criteria    string `yaml:"criteria"`
	Threshold   int    `yaml:"threshold"`
	Category    string `yaml:"category"`
	Points      int    `yaml:"points"`
}

// CatalogQuest describes one quest.
type CatalogQuest struct {
	Title       string             `yaml:"title"`
	Description string             `yaml:"description"`
	Points      int                `yaml:"points"`
	Badge       string             `yaml:"badge"`
	StartsAt    time.Time          `yaml:"starts_at"`
	EndsAt      *time.Time         `yaml:"ends_at"`
	Objectives  []CatalogObjective `yaml:"objectives"`
}

// CatalogObjective is one quest objective.
type CatalogObjective struct {
	Kind     string `yaml:"kind"`
	Target   int    `yaml:"target"`
	Category string `yaml:"category"`
}

// LoadCatalog loads the seed catalog from path.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	keys := make(map[string]bool, len(cat.Badges))
	for i, b := range cat.Badges {
		if b.Key == "" || b.Name == "" {
			return nil, fmt.Errorf("badge %d: key and name are required", i)
		}
		if keys[b.Key] {
			return nil, fmt.Errorf("badge %s: duplicate key", b.Key)
		}
		keys[b.Key] = true
	}
	for i, q := range cat.Quests {
		if q.Title == "" {
			return nil, fmt.Errorf("quest %d: title is required", i)
		}
		if q.Badge != "" && !keys[q.Badge] {
			return nil, fmt.Errorf("quest %s: unknown badge %q", q.Title, q.Badge)
		}
	}

	return &cat, nil
}
