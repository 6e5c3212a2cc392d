package config

import (
	"fmt"
	"os"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// Rank is one rank letter and the colour it is drawn with
type Rank struct {
	Name  string `yaml:"name"`
	Color string `yaml:"color"`
}

// Catalog lists the tracked stats and the ranks a stat can hold
type Catalog struct {
	Stats       []string `yaml:"stats"`
	Ranks       []Rank   `yaml:"ranks"`
	DefaultRank string   `yaml:"default_rank"`
}

// DefaultCatalog returns the built-in stat and rank catalog
func DefaultCatalog() *Catalog {
	return &Catalog{
		Stats: []string{"Counter Dash", "Rush", "Passive", "M1 Trade", "M1 Catch", "Tech Combo"},
		Ranks: []Rank{
			{Name: "D", Color: "#808080"},
			{Name: "C", Color: "#FFA500"},
			{Name: "F", Color: "#FFFFFF"},
			{Name: "B", Color: "#DC143C"},
			{Name: "A", Color: "#00008B"},
			{Name: "S", Color: "#87CEEB"},
			{Name: "SS", Color: "#FF4500"},
			{Name: "SSS", Color: "#000000"},
			{Name: "SSS+", Color: "#000000"},
		},
		DefaultRank: "F",
	}
}

// LoadCatalog reads a YAML catalog file. An empty path returns the default catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes YAML catalog data and validates it
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	if len(c.Stats) == 0 {
		return nil, fmt.Errorf("catalog has no stats")
	}
	if len(c.Ranks) == 0 {
		return nil, fmt.Errorf("catalog has no ranks")
	}
	if c.DefaultRank == "" {
		c.DefaultRank = c.Ranks[0].Name
	}
	if _, ok := c.LookupRank(c.DefaultRank); !ok {
		return nil, fmt.Errorf("default rank %q is not a listed rank", c.DefaultRank)
	}
	return &c, nil
}

// LookupStat resolves a stat by name or slug, case-insensitively
func (c *Catalog) LookupStat(input string) (string, bool) {
	key := Slug(input)
	for _, stat := range c.Stats {
		if Slug(stat) == key {
			return stat, true
		}
	}
	return "", false
}

// LookupRank resolves a rank name case-insensitively
func (c *Catalog) LookupRank(input string) (string, bool) {
	input = strings.TrimSpace(input)
	for _, r := range c.Ranks {
		if strings.EqualFold(r.Name, input) {
			return r.Name, true
		}
	}
	return "", false
}

// Color returns the colour for a rank, white when unknown
func (c *Catalog) Color(rank string) string {
	for _, r := range c.Ranks {
		if r.Name == rank {
			return r.Color
		}
	}
	return "#FFFFFF"
}

// RankNames returns the rank names in catalog order
func (c *Catalog) RankNames() []string {
	names := make([]string, len(c.Ranks))
	for i, r := range c.Ranks {
		names[i] = r.Name
	}
	return names
}

// Slug lowercases a stat name and joins its words with underscores
func Slug(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.ReplaceAll(s, "_", " "))), "_")
}
