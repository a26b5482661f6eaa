package models

import "time"

// ItemKind classifies an ownership record
type ItemKind string

const (
	KindDeck   ItemKind = "Deck"
	KindStaple ItemKind = "Staple"
	KindBundle ItemKind = "Bundle"
	KindGacha  ItemKind = "Gacha"
)

// Valid reports whether k is a known kind
func (k ItemKind) Valid() bool {
	switch k {
	case KindDeck, KindStaple, KindBundle, KindGacha:
		return true
	}
	return false
}

// User is a shop customer and their coin balance
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Coins     int       `json:"coins"`
	CreatedAt time.Time `json:"created_at"`
}

// Purchase is an ownership record: a bought deck/staple/bundle or a pulled card
type Purchase struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ItemName  string    `json:"item_name"`
	ItemKind  ItemKind  `json:"item_kind"`
	Price     int       `json:"price"`
	CreatedAt time.Time `json:"created_at"`
}

// CoinLogEntry is one currency-affecting event
type CoinLogEntry struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Delta        int       `json:"delta"`
	Reason       string    `json:"reason"`
	BalanceAfter int       `json:"balance_after"`
	CreatedAt    time.Time `json:"created_at"`
}

// PurchaseCreate is the request body for buying a catalog item
type PurchaseCreate struct {
	ItemName string   `json:"item_name"`
	ItemKind ItemKind `json:"item_kind"`
}
