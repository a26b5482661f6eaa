// Package ledger owns coin balances, the coin log and ownership records.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/meur/cardshop/internal/models"
	"github.com/meur/cardshop/internal/storage"
)

var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrDuplicateOwnership = errors.New("item already owned")
	ErrUnknownUser        = errors.New("unknown user")
	ErrInvalidRequest     = errors.New("invalid ledger request")
)

// Store is the persistence behind the ledger
type Store interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	AdjustCoins(ctx context.Context, userID string, delta int, reason string) (*models.CoinLogEntry, error)
	BuyItem(ctx context.Context, p *models.Purchase, reason string) (*models.CoinLogEntry, error)
	InsertPurchasesIgnoringDuplicates(ctx context.Context, purchases []models.Purchase) (int, error)
	ListPurchases(ctx context.Context, userID string) ([]models.Purchase, error)
	ListCoinLog(ctx context.Context, userID string) ([]models.CoinLogEntry, error)
}

// Ledger applies economic operations to the store
type Ledger struct {
	store Store
}

// New creates a ledger
func New(store Store) *Ledger {
	return &Ledger{store: store}
}

func mapErr(err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return ErrUnknownUser
	case errors.Is(err, storage.ErrInsufficientCoins):
		return ErrInsufficientFunds
	case errors.Is(err, storage.ErrDuplicate):
		return ErrDuplicateOwnership
	}
	return err
}

// User returns the account of a user
func (l *Ledger) User(ctx context.Context, userID string) (*models.User, error) {
	u, err := l.store.GetUser(ctx, userID)
	if err != nil {
		return nil, mapErr(err)
	}
	return u, nil
}

// Balance returns a user's coins
func (l *Ledger) Balance(ctx context.Context, userID string) (int, error) {
	u, err := l.User(ctx, userID)
	if err != nil {
		return 0, err
	}
	return u.Coins, nil
}

// Grant credits coins
func (l *Ledger) Grant(ctx context.Context, userID string, amount int, reason string) (*models.CoinLogEntry, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: grant must be positive, got %d", ErrInvalidRequest, amount)
	}
	entry, err := l.store.AdjustCoins(ctx, userID, amount, reason)
	if err != nil {
		return nil, mapErr(err)
	}
	return entry, nil
}

// Spend debits coins exactly once and writes one coin log entry.
// A balance below amount fails with ErrInsufficientFunds and changes nothing.
func (l *Ledger) Spend(ctx context.Context, userID string, amount int, reason string) (*models.CoinLogEntry, error) {
	if amount < 0 {
		return nil, fmt.Errorf("%w: spend must not be negative, got %d", ErrInvalidRequest, amount)
	}
	entry, err := l.store.AdjustCoins(ctx, userID, -amount, reason)
	if err != nil {
		return nil, mapErr(err)
	}
	return entry, nil
}

// Purchase buys a deck, staple or bundle. Funds and prior purchases are
// checked before anything is written; a card held only from gacha pulls can
// still be bought once.
func (l *Ledger) Purchase(ctx context.Context, userID, itemName string, kind models.ItemKind, price int) (*models.Purchase, *models.CoinLogEntry, error) {
	if strings.TrimSpace(itemName) == "" {
		return nil, nil, fmt.Errorf("%w: item name is required", ErrInvalidRequest)
	}
	if !kind.Valid() || kind == models.KindGacha {
		return nil, nil, fmt.Errorf("%w: cannot buy item kind %q", ErrInvalidRequest, kind)
	}
	if price < 0 {
		return nil, nil, fmt.Errorf("%w: price must not be negative, got %d", ErrInvalidRequest, price)
	}

	balance, err := l.Balance(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	bought, err := l.bought(ctx, userID, itemName)
	if err != nil {
		return nil, nil, err
	}
	if bought {
		return nil, nil, fmt.Errorf("%w: %s", ErrDuplicateOwnership, itemName)
	}
	if balance < price {
		return nil, nil, fmt.Errorf("%w: %s costs %d, balance is %d", ErrInsufficientFunds, itemName, price, balance)
	}

	p := &models.Purchase{UserID: userID, ItemName: itemName, ItemKind: kind, Price: price}
	entry, err := l.store.BuyItem(ctx, p, fmt.Sprintf("purchase %s %s", strings.ToLower(string(kind)), itemName))
	if err != nil {
		return nil, nil, mapErr(err)
	}
	return p, entry, nil
}

// RecordPulls writes one Gacha ownership record per card name.
// Cards the user already owns are skipped silently. Returns how many were new.
func (l *Ledger) RecordPulls(ctx context.Context, userID string, cardNames []string) (int, error) {
	if len(cardNames) == 0 {
		return 0, nil
	}
	purchases := make([]models.Purchase, 0, len(cardNames))
	for _, name := range cardNames {
		purchases = append(purchases, models.Purchase{UserID: userID, ItemName: name, ItemKind: models.KindGacha})
	}
	n, err := l.store.InsertPurchasesIgnoringDuplicates(ctx, purchases)
	if err != nil {
		return 0, mapErr(err)
	}
	return n, nil
}

// OwnedItems returns every ownership record of a user
func (l *Ledger) OwnedItems(ctx context.Context, userID string) ([]models.Purchase, error) {
	items, err := l.store.ListPurchases(ctx, userID)
	if err != nil {
		return nil, mapErr(err)
	}
	return items, nil
}

// Owns reports whether the user has an ownership record with that exact item name
func (l *Ledger) Owns(ctx context.Context, userID, itemName string) (bool, error) {
	items, err := l.OwnedItems(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, it := range items {
		if it.ItemName == itemName {
			return true, nil
		}
	}
	return false, nil
}

// bought reports whether the user has a non-gacha record with that item name
func (l *Ledger) bought(ctx context.Context, userID, itemName string) (bool, error) {
	items, err := l.OwnedItems(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, it := range items {
		if it.ItemName == itemName && it.ItemKind != models.KindGacha {
			return true, nil
		}
	}
	return false, nil
}

// History returns the coin log of a user, newest first
func (l *Ledger) History(ctx context.Context, userID string) ([]models.CoinLogEntry, error) {
	entries, err := l.store.ListCoinLog(ctx, userID)
	if err != nil {
		return nil, mapErr(err)
	}
	return entries, nil
}
