package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/meur/cardshop/internal/models"
)

// CachedCard is a row of the local card cache
type CachedCard struct {
	Card       models.Card
	Archetypes []string
}

// GetCard returns a cached card by exact name (case-insensitive)
func (s *Store) GetCard(ctx context.Context, name string) (*models.Card, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM cards WHERE name = ? COLLATE NOCASE
	`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var card models.Card
	if err := json.Unmarshal([]byte(data), &card); err != nil {
		return nil, err
	}
	return &card, nil
}

// GetCardsByArchetype returns every cached card tagged with the archetype
func (s *Store) GetCardsByArchetype(ctx context.Context, archetype string) ([]models.Card, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM cards
		WHERE EXISTS (SELECT 1 FROM json_each(cards.archetypes) WHERE value = ? COLLATE NOCASE)
		ORDER BY name
	`, archetype)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []models.Card
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var card models.Card
		if err := json.Unmarshal([]byte(data), &card); err != nil {
			continue
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

// UpsertCards writes cards into the cache in a transaction.
// Archetype tags are merged with the ones already stored for the card.
func (s *Store) UpsertCards(ctx context.Context, cards []CachedCard) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cards (name, data, archetypes, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET data = excluded.data, archetypes = excluded.archetypes,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, c := range cards {
		var existing string
		err := tx.QueryRowContext(ctx, `SELECT archetypes FROM cards WHERE name = ?`, c.Card.Name).Scan(&existing)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		tags := mergeTags(unmarshalStrings(existing), c.Archetypes)
		if c.Card.Archetype != "" {
			tags = mergeTags(tags, []string{c.Card.Archetype})
		}

		data, err := json.Marshal(c.Card)
		if err != nil {
			return err
		}
		archetypes, err := marshalStrings(tags)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, c.Card.Name, string(data), archetypes, now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func mergeTags(a, b []string) []string {
	out := append([]string{}, a...)
	for _, t := range b {
		dup := false
		for _, have := range out {
			if strings.EqualFold(have, t) {
				dup = true
				break
			}
		}
		if !dup && t != "" {
			out = append(out, t)
		}
	}
	return out
}
