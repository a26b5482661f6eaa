package directory

import (
	"context"
	"errors"
	"strings"

	"github.com/apex/log"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/meur/cardshop/internal/models"
	"github.com/meur/cardshop/internal/storage"
)

// CardStore is the local card table in front of the directory
type CardStore interface {
	GetCard(ctx context.Context, name string) (*models.Card, error)
	GetCardsByArchetype(ctx context.Context, archetype string) ([]models.Card, error)
	UpsertCards(ctx context.Context, cards []storage.CachedCard) error
}

// Cached reads through an in-memory LRU and the card table before asking
// the directory, and writes directory answers back to both.
// Misses are never cached.
type Cached struct {
	next  Directory
	store CardStore
	cache *lru.Cache[string, []models.Card]
}

// NewCached wraps next. store may be nil.
func NewCached(next Directory, store CardStore, size int) (*Cached, error) {
	cache, err := lru.New[string, []models.Card](size)
	if err != nil {
		return nil, err
	}
	return &Cached{next: next, store: store, cache: cache}, nil
}

func archetypeKey(name string) string { return "archetype:" + strings.ToLower(name) }
func nameKey(name string) string      { return "name:" + strings.ToLower(name) }

// ByArchetype implements Directory
func (c *Cached) ByArchetype(ctx context.Context, archetype string) ([]models.Card, error) {
	key := archetypeKey(archetype)
	if cards, ok := c.cache.Get(key); ok {
		return append([]models.Card(nil), cards...), nil
	}

	if c.store != nil {
		cards, err := c.store.GetCardsByArchetype(ctx, archetype)
		if err != nil {
			log.WithError(err).WithField("archetype", archetype).Warn("card cache read failed")
		} else if len(cards) > 0 {
			c.cache.Add(key, cards)
			return append([]models.Card(nil), cards...), nil
		}
	}

	cards, err := c.next.ByArchetype(ctx, archetype)
	if err != nil {
		logMiss(err, "archetype", archetype)
		return nil, err
	}
	c.cache.Add(key, cards)
	c.writeBack(ctx, cards, archetype)
	return append([]models.Card(nil), cards...), nil
}

// ByName implements Directory
func (c *Cached) ByName(ctx context.Context, name string) (*models.Card, error) {
	key := nameKey(name)
	if cards, ok := c.cache.Get(key); ok {
		card := cards[0]
		return &card, nil
	}

	if c.store != nil {
		card, err := c.store.GetCard(ctx, name)
		switch {
		case err == nil:
			c.cache.Add(key, []models.Card{*card})
			return card, nil
		case !errors.Is(err, storage.ErrNotFound):
			log.WithError(err).WithField("name", name).Warn("card cache read failed")
		}
	}

	card, err := c.next.ByName(ctx, name)
	if err != nil {
		logMiss(err, "name", name)
		return nil, err
	}
	c.cache.Add(key, []models.Card{*card})
	c.writeBack(ctx, []models.Card{*card}, "")
	return card, nil
}

// Purge drops every in-memory entry
func (c *Cached) Purge() {
	c.cache.Purge()
}

func (c *Cached) writeBack(ctx context.Context, cards []models.Card, archetype string) {
	if c.store == nil {
		return
	}
	rows := make([]storage.CachedCard, 0, len(cards))
	for _, card := range cards {
		row := storage.CachedCard{Card: card}
		if archetype != "" {
			row.Archetypes = []string{archetype}
		}
		rows = append(rows, row)
	}
	if err := c.store.UpsertCards(ctx, rows); err != nil {
		log.WithError(err).WithField("count", len(rows)).Warn("card cache write failed")
	}
}

func logMiss(err error, key, value string) {
	ctx := log.WithField(key, value)
	if errors.Is(err, ErrNotFound) {
		ctx.Debug("no card matching query")
		return
	}
	ctx.WithError(err).Warn("card directory lookup failed")
}
