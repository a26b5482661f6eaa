package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/meur/cardshop/internal/models"
)

// --- Users ---

// GetUser returns a user by ID
func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, coins, created_at FROM users WHERE id = ?
	`, id).Scan(&u.ID, &u.Name, &u.Coins, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpsertUser creates a user or updates its name and balance
func (s *Store) UpsertUser(ctx context.Context, u *models.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, coins, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, coins = excluded.coins
	`, u.ID, u.Name, u.Coins, u.CreatedAt)
	return err
}

// AdjustCoins applies delta to a user's balance and appends a coin_log entry.
// A debit that would go below zero fails with ErrInsufficientCoins and changes nothing.
func (s *Store) AdjustCoins(ctx context.Context, userID string, delta int, reason string) (*models.CoinLogEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	entry, err := adjustCoinsTx(ctx, tx, userID, delta, reason)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return entry, nil
}

func adjustCoinsTx(ctx context.Context, tx *sql.Tx, userID string, delta int, reason string) (*models.CoinLogEntry, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE users SET coins = coins + ? WHERE id = ? AND coins + ? >= 0
	`, delta, userID, delta)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE id = ?`, userID).Scan(&exists)
		if err != nil {
			return nil, err
		}
		if exists == 0 {
			return nil, ErrNotFound
		}
		return nil, ErrInsufficientCoins
	}

	entry := &models.CoinLogEntry{
		ID:        uuid.New().String(),
		UserID:    userID,
		Delta:     delta,
		Reason:    reason,
		CreatedAt: time.Now(),
	}
	if err := tx.QueryRowContext(ctx, `SELECT coins FROM users WHERE id = ?`, userID).Scan(&entry.BalanceAfter); err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO coin_log (id, user_id, delta, reason, balance_after, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.UserID, entry.Delta, entry.Reason, entry.BalanceAfter, entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("write coin log: %w", err)
	}
	return entry, nil
}

// ListCoinLog returns a user's coin history, newest first
func (s *Store) ListCoinLog(ctx context.Context, userID string) ([]models.CoinLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, delta, reason, balance_after, created_at
		FROM coin_log WHERE user_id = ? ORDER BY created_at DESC, rowid DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.CoinLogEntry
	for rows.Next() {
		var e models.CoinLogEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Delta, &e.Reason, &e.BalanceAfter, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Purchases ---

// BuyItem charges the user and records the purchase in one transaction.
// It returns ErrDuplicate if the user already bought an item with that name.
// A card the user only pulled from gacha is upgraded to the bought kind.
func (s *Store) BuyItem(ctx context.Context, p *models.Purchase, reason string) (*models.CoinLogEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var pulledID string
	var kind models.ItemKind
	err = tx.QueryRowContext(ctx, `
		SELECT id, item_kind FROM purchases WHERE user_id = ? AND item_name = ?
	`, p.UserID, p.ItemName).Scan(&pulledID, &kind)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, err
	case kind != models.KindGacha:
		return nil, ErrDuplicate
	}

	entry, err := adjustCoinsTx(ctx, tx, p.UserID, -p.Price, reason)
	if err != nil {
		return nil, err
	}
	if pulledID != "" {
		p.ID = pulledID
		err = upgradePurchaseTx(ctx, tx, p)
	} else {
		err = insertPurchaseTx(ctx, tx, p)
	}
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return entry, nil
}

// InsertPurchasesIgnoringDuplicates records many purchases in a transaction,
// silently skipping (user, item) pairs that already exist. It returns how many rows were added.
func (s *Store) InsertPurchasesIgnoringDuplicates(ctx context.Context, purchases []models.Purchase) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO purchases (id, user_id, item_name, item_kind, price, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, p := range purchases {
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = time.Now()
		}
		res, err := stmt.ExecContext(ctx, p.ID, p.UserID, p.ItemName, p.ItemKind, p.Price, p.CreatedAt)
		if err != nil {
			return 0, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

func insertPurchaseTx(ctx context.Context, tx *sql.Tx, p *models.Purchase) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO purchases (id, user_id, item_name, item_kind, price, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.ID, p.UserID, p.ItemName, p.ItemKind, p.Price, p.CreatedAt)
	return err
}

func upgradePurchaseTx(ctx context.Context, tx *sql.Tx, p *models.Purchase) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE purchases SET item_kind = ?, price = ?, created_at = ? WHERE id = ?
	`, p.ItemKind, p.Price, p.CreatedAt, p.ID)
	return err
}

// ListPurchases returns every ownership record of a user
func (s *Store) ListPurchases(ctx context.Context, userID string) ([]models.Purchase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, item_name, item_kind, price, created_at
		FROM purchases WHERE user_id = ? ORDER BY created_at, rowid
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var purchases []models.Purchase
	for rows.Next() {
		var p models.Purchase
		if err := rows.Scan(&p.ID, &p.UserID, &p.ItemName, &p.ItemKind, &p.Price, &p.CreatedAt); err != nil {
			return nil, err
		}
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}
