package overlay

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/meur/cardshop/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultBase(t *testing.T) {
	base, err := DefaultBase()
	require.NoError(t, err)
	require.NotEmpty(t, base.Archetypes)
	require.NotEmpty(t, base.Staples)

	blueEyes := base.Archetypes[0]
	assert.Equal(t, "Blue-Eyes", blueEyes.Name)
	assert.Equal(t, models.RatingC, blueEyes.Rating)
	assert.Equal(t, 25, blueEyes.Price)
	for _, it := range append(base.Archetypes, base.Staples...) {
		assert.True(t, it.Rating.Valid(), it.Name)
	}
}

func TestLoadBaseNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
version: "test"
archetypes:
  - name: "  Labrynth "
    rating: s+
  - name: Runick
    price: 7
staples:
  - name: Maxx C
    rating: a
`), 0o644))

	base, err := LoadBase(path)
	require.NoError(t, err)
	assert.Equal(t, "test", base.Version)
	assert.Equal(t, []models.CatalogItem{
		{Name: "Labrynth", Rating: models.RatingSPlus, Price: 400},
		{Name: "Runick", Rating: models.RatingC, Price: 7},
	}, base.Archetypes)
	assert.Equal(t, []string{"Labrynth", "Runick"}, base.ArchetypeNames())
	assert.Equal(t, models.RatingA, base.Staples[0].Rating)
}

func TestLoadBaseRejectsInvalidEntries(t *testing.T) {
	_, err := parseBase([]byte(`
archetypes:
  - name: ""
  - name: Branded
    rating: Q
  - name: Kashtira
  - name: Kashtira
    price: -3
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archetypes[0]: name is required")
	assert.Contains(t, err.Error(), `unknown rating "Q"`)
	assert.Contains(t, err.Error(), `duplicate name "Kashtira"`)
	assert.Contains(t, err.Error(), "price must be >= 0")

	_, err = LoadBase(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
