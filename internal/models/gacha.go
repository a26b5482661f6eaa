package models

import "time"

// PackType selects the rarity distribution of a pack
type PackType string

const (
	PackStandard PackType = "standard"
	PackPremium  PackType = "premium"
)

// Rarity is the cosmetic rarity rolled for a pulled card
type Rarity string

const (
	RarityCommon    Rarity = "Common"
	RarityRare      Rarity = "Rare"
	RaritySuperRare Rarity = "Super Rare"
	RarityUltraRare Rarity = "Ultra Rare"
)

// GachaPack is an admin-defined pack that users can open
type GachaPack struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PackType    PackType  `json:"pack_type"`
	SingleCost  int       `json:"single_cost"`
	MultiCost   int       `json:"multi_cost"`
	ImageURL    string    `json:"image_url,omitempty"`
	CardPool    []string  `json:"cards_archetypes"` // archetype or exact card names
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// GachaPackCreate is the request body for creating or replacing a pack
type GachaPackCreate struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	PackType    PackType `json:"pack_type"`
	SingleCost  int      `json:"single_cost"`
	MultiCost   int      `json:"multi_cost"`
	ImageURL    string   `json:"image_url"`
	CardPool    []string `json:"cards_archetypes"`
	IsActive    *bool    `json:"is_active,omitempty"`
}

// GachaResult is one pulled card. It is never persisted as such.
type GachaResult struct {
	Card            Card   `json:"card"`
	Rarity          Rarity `json:"rarity"`
	IsNew           bool   `json:"is_new"`
	SourcePoolEntry string `json:"source_pool_entry"`
}
