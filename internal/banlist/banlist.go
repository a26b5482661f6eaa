// Package banlist caches card legality for synchronous lookups.
package banlist

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/meur/cardshop/internal/models"
	"github.com/meur/cardshop/internal/notify"
)

// ErrInvalidEntry is returned for an empty name or unknown status/source
var ErrInvalidEntry = errors.New("invalid banlist entry")

// Store is the persistence the banlist writes through to
type Store interface {
	ListBans(ctx context.Context) ([]models.BannedCard, error)
	UpsertBans(ctx context.Context, bans []models.BannedCard) error
	DeleteBans(ctx context.Context, names []string) error
}

// Listener is invoked synchronously with the new version after every change
type Listener func(version uint64)

// Banlist is the in-memory view of the banlist table. Absent cards are unlimited.
type Banlist struct {
	store  Store
	now    func() time.Time
	bus    notify.Bus
	topic  string
	origin string

	mu      sync.RWMutex
	entries map[string]models.BannedCard
	version atomic.Uint64

	lmu          sync.Mutex
	listeners    map[uint64]Listener
	nextListener uint64

	unsubBus func()
}

// Option configures a Banlist
type Option func(*Banlist)

// WithBus announces writes on topic and reloads when another instance announces one
func WithBus(bus notify.Bus, topic string) Option {
	return func(b *Banlist) {
		b.bus = bus
		b.topic = topic
	}
}

// New creates an empty banlist; call Load to fill it and Close to detach from the bus
func New(store Store, opts ...Option) *Banlist {
	b := &Banlist{
		store:     store,
		now:       time.Now,
		bus:       notify.NopBus(),
		origin:    uuid.New().String(),
		entries:   make(map[string]models.BannedCard),
		listeners: make(map[uint64]Listener),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.unsubBus = b.bus.Subscribe(b.topic, b.onMessage)
	return b
}

// Close stops listening for remote changes
func (b *Banlist) Close() {
	b.unsubBus()
}

// Version returns the current banlist version; it only ever increases
func (b *Banlist) Version() uint64 {
	return b.version.Load()
}

// Subscribe registers a change listener until the returned func is called
func (b *Banlist) Subscribe(l Listener) func() {
	b.lmu.Lock()
	defer b.lmu.Unlock()
	b.nextListener++
	id := b.nextListener
	b.listeners[id] = l
	return func() {
		b.lmu.Lock()
		delete(b.listeners, id)
		b.lmu.Unlock()
	}
}

// changed bumps the version and notifies listeners; call without holding mu
func (b *Banlist) changed() {
	v := b.version.Add(1)

	b.lmu.Lock()
	ls := make([]Listener, 0, len(b.listeners))
	for _, l := range b.listeners {
		ls = append(ls, l)
	}
	b.lmu.Unlock()
	for _, l := range ls {
		l(v)
	}
}

func (b *Banlist) publish(ctx context.Context) {
	msg := notify.Message{Type: notify.TypeBanlistUpdated, Origin: b.origin}
	if err := b.bus.Publish(ctx, b.topic, msg); err != nil {
		log.WithError(err).Warn("failed to publish banlist notification")
	}
}

// onMessage reloads the cache when another instance wrote the banlist
func (b *Banlist) onMessage(ctx context.Context, msg notify.Message) {
	if msg.Type != notify.TypeBanlistUpdated || msg.Origin == b.origin {
		return
	}
	if err := b.Load(ctx); err != nil {
		return
	}
	log.WithField("origin", msg.Origin).Debug("reloaded banlist")
}

// Load replaces the cache with the store contents and bumps the version. On
// failure the cache is left empty (nothing banned) and the error is only informational.
func (b *Banlist) Load(ctx context.Context) error {
	bans, err := b.store.ListBans(ctx)

	entries := make(map[string]models.BannedCard, len(bans))
	if err == nil {
		for _, ban := range bans {
			if ban.BanStatus == models.BanUnlimited {
				continue
			}
			entries[ban.CardName] = ban
		}
	}

	b.mu.Lock()
	b.entries = entries
	b.mu.Unlock()
	b.changed()

	if err != nil {
		log.WithError(err).Error("failed to load banlist, treating every card as unlimited")
		return fmt.Errorf("load banlist: %w", err)
	}
	log.WithField("count", len(entries)).Info("loaded banlist")
	return nil
}

// Status returns the legality of a card
func (b *Banlist) Status(name string) models.BanStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if e, ok := b.entries[name]; ok {
		return e.BanStatus
	}
	return models.BanUnlimited
}

// Entry returns the stored row for a card
func (b *Banlist) Entry(name string) (models.BannedCard, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[name]
	return e, ok
}

// All returns every restricted card ordered by name
func (b *Banlist) All() []models.BannedCard {
	b.mu.RLock()
	out := make([]models.BannedCard, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, e)
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CardName < out[j].CardName })
	return out
}

func validate(name string, status models.BanStatus, source models.BanSource) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: card name is required", ErrInvalidEntry)
	case !status.Valid():
		return fmt.Errorf("%w: unknown status %q", ErrInvalidEntry, status)
	case !source.Valid():
		return fmt.Errorf("%w: unknown source %q", ErrInvalidEntry, source)
	}
	return nil
}

// SetStatus writes a card's status to the store and the cache.
// Unlimited deletes the row.
func (b *Banlist) SetStatus(ctx context.Context, name string, status models.BanStatus, source models.BanSource) error {
	if err := validate(name, status, source); err != nil {
		return err
	}
	if status == models.BanUnlimited {
		return b.Unban(ctx, name)
	}

	entry := models.BannedCard{CardName: name, BanStatus: status, LastUpdated: b.now(), Source: source}
	if err := b.store.UpsertBans(ctx, []models.BannedCard{entry}); err != nil {
		return err
	}

	b.mu.Lock()
	b.entries[name] = entry
	b.mu.Unlock()
	b.changed()
	b.publish(ctx)
	return nil
}

// Unban deletes a card's row and cache entry
func (b *Banlist) Unban(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: card name is required", ErrInvalidEntry)
	}
	if err := b.store.DeleteBans(ctx, []string{name}); err != nil {
		return err
	}

	b.mu.Lock()
	delete(b.entries, name)
	b.mu.Unlock()
	b.changed()
	b.publish(ctx)
	return nil
}

// BulkUpdateFromExternalSource writes imported rows tagged as tcg in one call
// and reloads the cache from the store. Unlimited rows are deleted instead.
func (b *Banlist) BulkUpdateFromExternalSource(ctx context.Context, entries []models.BannedCard) error {
	now := b.now()
	var upserts []models.BannedCard
	var deletes []string
	for _, e := range entries {
		e.Source = models.SourceTCG
		if err := validate(e.CardName, e.BanStatus, e.Source); err != nil {
			return err
		}
		if e.BanStatus == models.BanUnlimited {
			deletes = append(deletes, e.CardName)
			continue
		}
		if e.LastUpdated.IsZero() {
			e.LastUpdated = now
		}
		upserts = append(upserts, e)
	}

	if len(upserts) > 0 {
		if err := b.store.UpsertBans(ctx, upserts); err != nil {
			return err
		}
	}
	if len(deletes) > 0 {
		if err := b.store.DeleteBans(ctx, deletes); err != nil {
			return err
		}
	}
	log.WithFields(log.Fields{
		"upserted": len(upserts),
		"deleted":  len(deletes),
	}).Info("applied banlist import")

	if len(upserts) > 0 || len(deletes) > 0 {
		b.publish(ctx)
	}
	return b.Load(ctx)
}

// FromDirectory maps a directory ban_tcg value ("Banned", "Limited",
// "Semi-Limited") to a status; anything else is unlimited.
func FromDirectory(banTCG string) models.BanStatus {
	switch strings.ToLower(strings.TrimSpace(banTCG)) {
	case "banned", "forbidden":
		return models.BanForbidden
	case "limited":
		return models.BanLimited
	case "semi-limited":
		return models.BanSemiLimited
	}
	return models.BanUnlimited
}
