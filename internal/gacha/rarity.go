package gacha

import "github.com/meur/cardshop/internal/models"

type rarityStep struct {
	below  float64
	rarity models.Rarity
}

// cumulative thresholds per pack type, rarest first
var rarityTables = map[models.PackType][]rarityStep{
	models.PackStandard: {
		{0.02, models.RarityUltraRare},
		{0.10, models.RaritySuperRare},
		{0.30, models.RarityRare},
	},
	models.PackPremium: {
		{0.05, models.RarityUltraRare},
		{0.20, models.RaritySuperRare},
		{0.50, models.RarityRare},
	},
}

// RarityFor maps a roll in [0, 1) to a rarity. Rarity is cosmetic and never
// influences which card is pulled. Unknown pack types use the standard table.
func RarityFor(packType models.PackType, roll float64) models.Rarity {
	table, ok := rarityTables[packType]
	if !ok {
		table = rarityTables[models.PackStandard]
	}
	for _, step := range table {
		if roll < step.below {
			return step.rarity
		}
	}
	return models.RarityCommon
}
