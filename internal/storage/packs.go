package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/meur/cardshop/internal/models"
)

const packColumns = `id, name, description, pack_type, single_cost, multi_cost, image_url,
	cards_archetypes, is_active, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPack(row rowScanner) (*models.GachaPack, error) {
	var p models.GachaPack
	var pool string
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.PackType, &p.SingleCost, &p.MultiCost,
		&p.ImageURL, &pool, &p.IsActive, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.CardPool = unmarshalStrings(pool)
	return &p, nil
}

// ListPacks returns gacha packs, optionally only the active ones
func (s *Store) ListPacks(ctx context.Context, activeOnly bool) ([]models.GachaPack, error) {
	query := `SELECT ` + packColumns + ` FROM gacha_pack`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY created_at, name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var packs []models.GachaPack
	for rows.Next() {
		p, err := scanPack(rows)
		if err != nil {
			return nil, err
		}
		packs = append(packs, *p)
	}
	return packs, rows.Err()
}

// GetPack returns a gacha pack by ID
func (s *Store) GetPack(ctx context.Context, id string) (*models.GachaPack, error) {
	p, err := scanPack(s.db.QueryRowContext(ctx, `SELECT `+packColumns+` FROM gacha_pack WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// CreatePack creates a new gacha pack. An explicit id (seed data) is kept.
func (s *Store) CreatePack(ctx context.Context, id string, req *models.GachaPackCreate) (*models.GachaPack, error) {
	if id == "" {
		id = uuid.New().String()
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	pool, err := marshalStrings(req.CardPool)
	if err != nil {
		return nil, err
	}
	now := time.Now()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO gacha_pack (`+packColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, req.Name, req.Description, req.PackType, req.SingleCost, req.MultiCost,
		req.ImageURL, pool, active, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return s.GetPack(ctx, id)
}

// UpdatePack replaces the editable fields of a gacha pack
func (s *Store) UpdatePack(ctx context.Context, id string, req *models.GachaPackCreate) (*models.GachaPack, error) {
	existing, err := s.GetPack(ctx, id)
	if err != nil {
		return nil, err
	}
	active := existing.IsActive
	if req.IsActive != nil {
		active = *req.IsActive
	}
	pool, err := marshalStrings(req.CardPool)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE gacha_pack SET name = ?, description = ?, pack_type = ?, single_cost = ?,
			multi_cost = ?, image_url = ?, cards_archetypes = ?, is_active = ?
		WHERE id = ?
	`, req.Name, req.Description, req.PackType, req.SingleCost, req.MultiCost,
		req.ImageURL, pool, active, id)
	if err != nil {
		return nil, err
	}
	return s.GetPack(ctx, id)
}

// DeletePack deletes a gacha pack by ID
func (s *Store) DeletePack(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM gacha_pack WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
