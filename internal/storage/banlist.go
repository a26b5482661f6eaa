package storage

import (
	"context"

	"github.com/meur/cardshop/internal/models"
)

// ListBans returns every banlist row
func (s *Store) ListBans(ctx context.Context) ([]models.BannedCard, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT card_name, ban_status, last_updated, source FROM banlist ORDER BY card_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bans []models.BannedCard
	for rows.Next() {
		var b models.BannedCard
		if err := rows.Scan(&b.CardName, &b.BanStatus, &b.LastUpdated, &b.Source); err != nil {
			return nil, err
		}
		bans = append(bans, b)
	}
	return bans, rows.Err()
}

// UpsertBans writes many banlist rows in a transaction
func (s *Store) UpsertBans(ctx context.Context, bans []models.BannedCard) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO banlist (card_name, ban_status, last_updated, source) VALUES (?, ?, ?, ?)
		ON CONFLICT(card_name) DO UPDATE SET ban_status = excluded.ban_status,
			last_updated = excluded.last_updated, source = excluded.source
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, b := range bans {
		if _, err := stmt.ExecContext(ctx, b.CardName, b.BanStatus, b.LastUpdated, b.Source); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// DeleteBans removes banlist rows by card name; missing names are ignored
func (s *Store) DeleteBans(ctx context.Context, names []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, name := range names {
		if _, err := tx.ExecContext(ctx, `DELETE FROM banlist WHERE card_name = ?`, name); err != nil {
			return err
		}
	}
	return tx.Commit()
}
