package gacha

import (
	"errors"
	"fmt"
	"strings"

	"github.com/meur/cardshop/internal/models"
)

// Pull counts: a pack is 9 cards, a box is 24 packs
const (
	PackPulls = 9
	BoxPulls  = 24 * PackPulls
)

var (
	ErrInvalidPullCount = errors.New("pull count must be 9 (pack) or 216 (box)")
	ErrPackInactive     = errors.New("pack is not active")
	ErrInvalidPack      = errors.New("invalid pack")
)

// CostFor returns the flat price of a pull; cost does not scale per card
func CostFor(pack models.GachaPack, count int) (int, error) {
	switch count {
	case PackPulls:
		return pack.SingleCost, nil
	case BoxPulls:
		return pack.MultiCost, nil
	}
	return 0, fmt.Errorf("%w: got %d", ErrInvalidPullCount, count)
}

// ValidatePack checks an admin pack definition and fills defaults
func ValidatePack(req *models.GachaPackCreate) error {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidPack)
	}
	if req.PackType == "" {
		req.PackType = models.PackStandard
	}
	if _, ok := rarityTables[req.PackType]; !ok {
		return fmt.Errorf("%w: unknown pack type %q", ErrInvalidPack, req.PackType)
	}
	if req.SingleCost < 0 || req.MultiCost < 0 {
		return fmt.Errorf("%w: costs must not be negative", ErrInvalidPack)
	}

	pool := make([]string, 0, len(req.CardPool))
	for _, entry := range req.CardPool {
		if entry = strings.TrimSpace(entry); entry != "" {
			pool = append(pool, entry)
		}
	}
	req.CardPool = pool
	return nil
}
