package models

// CardImage holds the artwork references of a card
type CardImage struct {
	ImageURL      string `json:"image_url"`
	ImageURLSmall string `json:"image_url_small"`
}

// BanlistInfo is the directory's view of a card's legality
type BanlistInfo struct {
	BanTCG string `json:"ban_tcg,omitempty"`
}

// Card is a card record as returned by the external card directory
type Card struct {
	ID          int          `json:"id"`
	Name        string       `json:"name"`
	Type        string       `json:"type"`
	Desc        string       `json:"desc"`
	Atk         *int         `json:"atk,omitempty"`
	Def         *int         `json:"def,omitempty"`
	Level       *int         `json:"level,omitempty"`
	Race        string       `json:"race"`
	Attribute   string       `json:"attribute,omitempty"`
	Archetype   string       `json:"archetype,omitempty"`
	CardImages  []CardImage  `json:"card_images"`
	BanlistInfo *BanlistInfo `json:"banlist_info,omitempty"`
}

// ImageURL returns the first full-size artwork, if any
func (c Card) ImageURL() string {
	if len(c.CardImages) == 0 {
		return ""
	}
	return c.CardImages[0].ImageURL
}

// CardList is a collection of cards
type CardList struct {
	Cards      []Card `json:"cards"`
	TotalCount int    `json:"total_count"`
}
