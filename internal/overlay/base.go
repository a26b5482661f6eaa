package overlay

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/meur/cardshop/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed base_catalog.yaml
var defaultBaseYAML []byte

// Base is the static catalog the overlay is layered on. It is never mutated.
type Base struct {
	Version    string               `yaml:"version"`
	Archetypes []models.CatalogItem `yaml:"archetypes"`
	Staples    []models.CatalogItem `yaml:"staples"`
}

// DefaultBase returns the embedded base catalog
func DefaultBase() (Base, error) {
	return parseBase(defaultBaseYAML)
}

// LoadBase reads a base catalog YAML file. An empty path selects the embedded catalog.
func LoadBase(path string) (Base, error) {
	if path == "" {
		return DefaultBase()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Base{}, fmt.Errorf("read base catalog: %w", err)
	}
	return parseBase(b)
}

func parseBase(b []byte) (Base, error) {
	var base Base
	if err := yaml.Unmarshal(b, &base); err != nil {
		return Base{}, fmt.Errorf("parse base catalog: %w", err)
	}
	if err := base.normalize(); err != nil {
		return Base{}, err
	}
	return base, nil
}

// normalize validates entries and derives missing prices from ratings
func (b *Base) normalize() error {
	var errs []string
	seen := map[string]bool{}
	check := func(section string, items []models.CatalogItem) {
		for i := range items {
			it := &items[i]
			it.Name = strings.TrimSpace(it.Name)
			switch {
			case it.Name == "":
				errs = append(errs, fmt.Sprintf("%s[%d]: name is required", section, i))
				continue
			case seen[section+"/"+it.Name]:
				errs = append(errs, fmt.Sprintf("%s[%d]: duplicate name %q", section, i, it.Name))
			}
			seen[section+"/"+it.Name] = true
			if it.Rating == "" {
				it.Rating = models.RatingC
			}
			r, err := models.ParseRating(string(it.Rating))
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s[%d]: %v", section, i, err))
				continue
			}
			it.Rating = r
			if it.Price < 0 {
				errs = append(errs, fmt.Sprintf("%s[%d]: price must be >= 0", section, i))
			}
			if it.Price == 0 {
				it.Price = r.Price()
			}
		}
	}
	check("archetypes", b.Archetypes)
	check("staples", b.Staples)

	if len(errs) > 0 {
		return errors.New("base catalog validation failed: " + strings.Join(errs, "; "))
	}
	return nil
}

// ArchetypeNames lists the base archetype names in catalog order
func (b Base) ArchetypeNames() []string {
	names := make([]string, 0, len(b.Archetypes))
	for _, a := range b.Archetypes {
		names = append(names, a.Name)
	}
	return names
}
