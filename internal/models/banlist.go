package models

import "time"

// BanStatus is the legality of a card
type BanStatus string

const (
	BanForbidden   BanStatus = "forbidden"
	BanLimited     BanStatus = "limited"
	BanSemiLimited BanStatus = "semi-limited"
	BanUnlimited   BanStatus = "unlimited"
)

// Valid reports whether s is a known status
func (s BanStatus) Valid() bool {
	switch s {
	case BanForbidden, BanLimited, BanSemiLimited, BanUnlimited:
		return true
	}
	return false
}

// BanSource tells where a banlist row came from
type BanSource string

const (
	SourceTCG    BanSource = "tcg"
	SourceManual BanSource = "manual"
)

// Valid reports whether s is a known source
func (s BanSource) Valid() bool {
	return s == SourceTCG || s == SourceManual
}

// BannedCard is one row of the banlist. Unlimited cards are never stored.
type BannedCard struct {
	CardName    string    `json:"card_name"`
	BanStatus   BanStatus `json:"ban_status"`
	LastUpdated time.Time `json:"last_updated"`
	Source      BanSource `json:"source"`
}
