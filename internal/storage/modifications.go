package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/meur/cardshop/internal/models"
)

// ModificationsKey is the constant row key of the overlay snapshot
const ModificationsKey = "global"

// LoadModifications returns the persisted overlay snapshot, or ErrNotFound if none was saved yet
func (s *Store) LoadModifications(ctx context.Context) (models.Snapshot, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM card_modifications WHERE id = ?
	`, ModificationsKey).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return models.Snapshot{}, err
	}

	var snap models.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return models.Snapshot{}, fmt.Errorf("decode modifications: %w", err)
	}
	return snap.Clone(), nil
}

// SaveModifications upserts the whole overlay snapshot
func (s *Store) SaveModifications(ctx context.Context, snap models.Snapshot) error {
	data, err := json.Marshal(snap.Clone())
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO card_modifications (id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, ModificationsKey, string(data), time.Now())
	return err
}
