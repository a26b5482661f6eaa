// Package overlay layers admin edits over the static card catalog and keeps
// the edits durable and consistent across instances.
package overlay

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/meur/cardshop/internal/models"
)

// ErrInvalidMutation is returned for structurally invalid overlay input
var ErrInvalidMutation = errors.New("invalid overlay mutation")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidMutation, fmt.Sprintf(format, args...))
}

// Change describes one overlay version bump
type Change struct {
	Version uint64
	// Remote is true when the change came from a reload of persisted state
	Remote bool
	// Archetype is set when that archetype's card list changed
	Archetype string
}

// Listener is invoked synchronously after every change
type Listener func(Change)

// Item is a catalog entry with every override applied
type Item struct {
	models.CatalogItem
	DisplayName string `json:"displayName"`
	IsCustom    bool   `json:"isCustom,omitempty"`
	Removed     bool   `json:"removed,omitempty"`
}

// Catalog is the in-memory modification overlay. Construct one per process
// (or per test) and share it by reference.
type Catalog struct {
	base           Base
	baseArchetypes map[string]models.CatalogItem
	baseStaples    map[string]models.CatalogItem

	mu             sync.RWMutex
	records        map[string]models.ModificationRecord
	customStaples  []models.CatalogItem
	removedStaples []string
	version        atomic.Uint64

	lmu          sync.Mutex
	listeners    map[uint64]Listener
	nextListener uint64
}

// NewCatalog creates an overlay with no modifications over base
func NewCatalog(base Base) *Catalog {
	c := &Catalog{
		base:           base,
		baseArchetypes: make(map[string]models.CatalogItem, len(base.Archetypes)),
		baseStaples:    make(map[string]models.CatalogItem, len(base.Staples)),
		records:        make(map[string]models.ModificationRecord),
		listeners:      make(map[uint64]Listener),
	}
	for _, a := range base.Archetypes {
		c.baseArchetypes[a.Name] = a
	}
	for _, s := range base.Staples {
		c.baseStaples[s.Name] = s
	}
	return c
}

// Version returns the current overlay version; it only ever increases
func (c *Catalog) Version() uint64 {
	return c.version.Load()
}

// Subscribe registers a change listener until the returned func is called
func (c *Catalog) Subscribe(l Listener) func() {
	c.lmu.Lock()
	defer c.lmu.Unlock()
	c.nextListener++
	id := c.nextListener
	c.listeners[id] = l
	return func() {
		c.lmu.Lock()
		delete(c.listeners, id)
		c.lmu.Unlock()
	}
}

func (c *Catalog) notify(ch Change) {
	c.lmu.Lock()
	ls := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		ls = append(ls, l)
	}
	c.lmu.Unlock()
	for _, l := range ls {
		l(ch)
	}
}

// mutate runs fn under the write lock, bumps the version and notifies listeners.
// fn returning an error leaves the overlay and version untouched.
func (c *Catalog) mutate(archetype string, fn func() error) error {
	c.mu.Lock()
	if err := fn(); err != nil {
		c.mu.Unlock()
		return err
	}
	v := c.version.Add(1)
	c.mu.Unlock()

	c.notify(Change{Version: v, Archetype: archetype})
	return nil
}

// editRecord applies fn to the record of name, creating it if needed
func (c *Catalog) editRecord(name string, fn func(*models.ModificationRecord)) {
	rec := c.records[name]
	fn(&rec)
	if isEmptyRecord(rec) {
		delete(c.records, name)
		return
	}
	c.records[name] = rec
}

func isEmptyRecord(r models.ModificationRecord) bool {
	return r.Rating == nil && r.Price == nil && r.DisplayName == nil && r.ImageURL == nil &&
		len(r.CustomCards) == 0 && len(r.ExcludedCards) == 0 && !r.IsRemoved && !r.IsCustom
}

func checkName(name string) error {
	if strings.TrimSpace(name) == "" {
		return invalid("name is required")
	}
	return nil
}

// --- Effective reads ---

// DisplayName returns the overridden display name or the item name
func (c *Catalog) DisplayName(item models.CatalogItem) string {
	rec, _ := c.record(item.Name)
	if rec.DisplayName != nil {
		return *rec.DisplayName
	}
	return item.Name
}

// Rating returns the overridden rating or the base rating
func (c *Catalog) Rating(item models.CatalogItem) models.Rating {
	rec, _ := c.record(item.Name)
	if rec.Rating != nil {
		return *rec.Rating
	}
	return item.Rating
}

// Price returns the overridden price or the base price
func (c *Catalog) Price(item models.CatalogItem) int {
	rec, _ := c.record(item.Name)
	if rec.Price != nil {
		return *rec.Price
	}
	return item.Price
}

// ImageURL returns the overridden image or the base image
func (c *Catalog) ImageURL(item models.CatalogItem) string {
	rec, _ := c.record(item.Name)
	if rec.ImageURL != nil {
		return *rec.ImageURL
	}
	return item.ImageURL
}

// IsRemoved reports whether the item is soft-deleted
func (c *Catalog) IsRemoved(item models.CatalogItem) bool {
	rec, ok := c.record(item.Name)
	return ok && rec.IsRemoved
}

// Record returns a copy of the modification record for name
func (c *Catalog) Record(name string) (models.ModificationRecord, bool) {
	return c.record(name)
}

func (c *Catalog) record(name string) (models.ModificationRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[name]
	if !ok {
		return models.ModificationRecord{}, false
	}
	return rec.Clone(), true
}

// Effective merges every override onto item
func (c *Catalog) Effective(item models.CatalogItem) Item {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.effectiveLocked(item)
}

func (c *Catalog) effectiveLocked(item models.CatalogItem) Item {
	out := Item{CatalogItem: item, DisplayName: item.Name}
	rec, ok := c.records[item.Name]
	if !ok {
		return out
	}
	if rec.Rating != nil {
		out.Rating = *rec.Rating
	}
	if rec.Price != nil {
		out.Price = *rec.Price
	}
	if rec.DisplayName != nil {
		out.DisplayName = *rec.DisplayName
	}
	if rec.ImageURL != nil {
		out.ImageURL = *rec.ImageURL
	}
	out.IsCustom = rec.IsCustom
	out.Removed = rec.IsRemoved
	return out
}

// EffectiveStaples returns (base staples - removed staples) + custom staples,
// without items soft-deleted through MarkRemoved. Items are returned unmerged.
func (c *Catalog) EffectiveStaples() []models.CatalogItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.effectiveStaplesLocked()
}

func (c *Catalog) effectiveStaplesLocked() []models.CatalogItem {
	removed := make(map[string]bool, len(c.removedStaples))
	for _, n := range c.removedStaples {
		removed[n] = true
	}
	out := make([]models.CatalogItem, 0, len(c.base.Staples)+len(c.customStaples))
	for _, s := range c.base.Staples {
		if removed[s.Name] || c.records[s.Name].IsRemoved {
			continue
		}
		out = append(out, s)
	}
	for _, s := range c.customStaples {
		if c.records[s.Name].IsRemoved {
			continue
		}
		out = append(out, s)
	}
	return out
}

// EffectiveArchetypes returns base and admin-created archetypes that are not soft-deleted
func (c *Catalog) EffectiveArchetypes() []models.CatalogItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.effectiveArchetypesLocked()
}

func (c *Catalog) effectiveArchetypesLocked() []models.CatalogItem {
	out := make([]models.CatalogItem, 0, len(c.base.Archetypes))
	for _, a := range c.base.Archetypes {
		if c.records[a.Name].IsRemoved {
			continue
		}
		out = append(out, a)
	}

	var custom []string
	for name, rec := range c.records {
		if rec.IsCustom && !rec.IsRemoved {
			if _, isBase := c.baseArchetypes[name]; !isBase {
				custom = append(custom, name)
			}
		}
	}
	sort.Strings(custom)
	for _, name := range custom {
		rating := models.RatingC
		if r := c.records[name].Rating; r != nil {
			rating = *r
		}
		out = append(out, models.CatalogItem{Name: name, Rating: rating, Price: rating.Price()})
	}
	return out
}

// ArchetypeNames lists the names of every visible archetype
func (c *Catalog) ArchetypeNames() []string {
	items := c.EffectiveArchetypes()
	names := make([]string, 0, len(items))
	for _, it := range items {
		names = append(names, it.Name)
	}
	return names
}

// Archetypes returns the merged view of every visible archetype
func (c *Catalog) Archetypes() []Item {
	c.mu.RLock()
	defer c.mu.RUnlock()
	items := c.effectiveArchetypesLocked()
	out := make([]Item, 0, len(items))
	for _, it := range items {
		out = append(out, c.effectiveLocked(it))
	}
	return out
}

// Staples returns the merged view of every visible staple
func (c *Catalog) Staples() []Item {
	c.mu.RLock()
	defer c.mu.RUnlock()
	items := c.effectiveStaplesLocked()
	out := make([]Item, 0, len(items))
	for _, it := range items {
		out = append(out, c.effectiveLocked(it))
	}
	return out
}

// Lookup finds a visible archetype or staple by name (case-insensitive)
func (c *Catalog) Lookup(name string) (Item, models.ItemKind, bool) {
	for _, it := range c.Archetypes() {
		if strings.EqualFold(it.Name, name) {
			return it, models.KindDeck, true
		}
	}
	for _, it := range c.Staples() {
		if strings.EqualFold(it.Name, name) {
			return it, models.KindStaple, true
		}
	}
	return Item{}, "", false
}

// --- Field overrides ---

// SetRating overrides the rating and resets the price from the rating table
func (c *Catalog) SetRating(name string, rating models.Rating) error {
	if err := checkName(name); err != nil {
		return err
	}
	if !rating.Valid() {
		return invalid("unknown rating %q", rating)
	}
	return c.mutate("", func() error {
		c.editRecord(name, func(rec *models.ModificationRecord) {
			r := rating
			p := rating.Price()
			rec.Rating = &r
			rec.Price = &p
		})
		return nil
	})
}

// SetPrice overrides the price
func (c *Catalog) SetPrice(name string, price int) error {
	if err := checkName(name); err != nil {
		return err
	}
	if price < 0 {
		return invalid("price must be >= 0, got %d", price)
	}
	return c.mutate("", func() error {
		c.editRecord(name, func(rec *models.ModificationRecord) {
			p := price
			rec.Price = &p
		})
		return nil
	})
}

// SetDisplayName overrides the display name; an empty name clears the override
func (c *Catalog) SetDisplayName(name, displayName string) error {
	if err := checkName(name); err != nil {
		return err
	}
	return c.mutate("", func() error {
		c.editRecord(name, func(rec *models.ModificationRecord) {
			if strings.TrimSpace(displayName) == "" {
				rec.DisplayName = nil
				return
			}
			dn := displayName
			rec.DisplayName = &dn
		})
		return nil
	})
}

// SetImageURL overrides the image; an empty URL clears the override
func (c *Catalog) SetImageURL(name, imageURL string) error {
	if err := checkName(name); err != nil {
		return err
	}
	return c.mutate("", func() error {
		c.editRecord(name, func(rec *models.ModificationRecord) {
			if imageURL == "" {
				rec.ImageURL = nil
				return
			}
			u := imageURL
			rec.ImageURL = &u
		})
		return nil
	})
}

// MarkRemoved soft-deletes an item; every other override is kept
func (c *Catalog) MarkRemoved(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	return c.mutate("", func() error {
		c.editRecord(name, func(rec *models.ModificationRecord) { rec.IsRemoved = true })
		return nil
	})
}

// Restore clears the soft-delete flag
func (c *Catalog) Restore(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	return c.mutate("", func() error {
		c.editRecord(name, func(rec *models.ModificationRecord) { rec.IsRemoved = false })
		return nil
	})
}

// AddCustomArchetype creates an archetype that only exists in the overlay.
// For a base archetype it only re-applies the rating and clears a soft delete.
func (c *Catalog) AddCustomArchetype(name string, rating models.Rating) error {
	if err := checkName(name); err != nil {
		return err
	}
	if !rating.Valid() {
		return invalid("unknown rating %q", rating)
	}
	_, isBase := c.baseArchetypes[name]
	return c.mutate("", func() error {
		c.editRecord(name, func(rec *models.ModificationRecord) {
			r := rating
			p := rating.Price()
			rec.Rating = &r
			rec.Price = &p
			rec.IsRemoved = false
			rec.IsCustom = !isBase
		})
		return nil
	})
}

// --- Archetype card lists ---

// AddCustomCardToArchetype attaches a card to an archetype pool. Adding a card
// that was excluded from the base pool lifts the exclusion. Idempotent.
func (c *Catalog) AddCustomCardToArchetype(archetype string, card models.CustomCard) error {
	if err := checkName(archetype); err != nil {
		return err
	}
	if err := checkName(card.Name); err != nil {
		return err
	}
	return c.mutate(archetype, func() error {
		c.editRecord(archetype, func(rec *models.ModificationRecord) {
			rec.ExcludedCards = removeFold(rec.ExcludedCards, card.Name)
			for _, cc := range rec.CustomCards {
				if strings.EqualFold(cc.Name, card.Name) {
					return
				}
			}
			rec.CustomCards = append(rec.CustomCards, card)
		})
		return nil
	})
}

// RemoveCardFromArchetype drops a card from the resolved pool of an archetype.
// Custom cards are detached; the name is also excluded so a base copy stays hidden.
func (c *Catalog) RemoveCardFromArchetype(archetype, cardName string) error {
	if err := checkName(archetype); err != nil {
		return err
	}
	if err := checkName(cardName); err != nil {
		return err
	}
	return c.mutate(archetype, func() error {
		c.editRecord(archetype, func(rec *models.ModificationRecord) {
			kept := rec.CustomCards[:0:0]
			for _, cc := range rec.CustomCards {
				if !strings.EqualFold(cc.Name, cardName) {
					kept = append(kept, cc)
				}
			}
			rec.CustomCards = kept
			if !containsFold(rec.ExcludedCards, cardName) {
				rec.ExcludedCards = append(rec.ExcludedCards, cardName)
			}
		})
		return nil
	})
}

// ArchetypeCards merges an archetype's base pool with the overlay:
// base cards minus exclusions, then custom cards not already present.
func (c *Catalog) ArchetypeCards(archetype string, base []models.Card) []models.Card {
	rec, _ := c.record(archetype)

	out := make([]models.Card, 0, len(base)+len(rec.CustomCards))
	seen := make(map[string]bool, len(base))
	for _, card := range base {
		key := strings.ToLower(card.Name)
		if seen[key] || containsFold(rec.ExcludedCards, card.Name) {
			continue
		}
		seen[key] = true
		out = append(out, card)
	}
	for _, cc := range rec.CustomCards {
		key := strings.ToLower(cc.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		if cc.Data != nil {
			card := *cc.Data
			card.Name = cc.Name
			out = append(out, card)
			continue
		}
		out = append(out, models.Card{Name: cc.Name})
	}
	return out
}

// --- Staples ---

// AddCustomStaple adds a staple. Re-adding a removed base staple restores it
// with the new rating instead of creating a custom duplicate.
func (c *Catalog) AddCustomStaple(item models.CatalogItem, rating models.Rating) error {
	if err := checkName(item.Name); err != nil {
		return err
	}
	if !rating.Valid() {
		return invalid("unknown rating %q", rating)
	}
	if item.Price < 0 {
		return invalid("price must be >= 0, got %d", item.Price)
	}
	return c.mutate("", func() error {
		if _, isBase := c.baseStaples[item.Name]; isBase {
			c.removedStaples = removeExact(c.removedStaples, item.Name)
			c.editRecord(item.Name, func(rec *models.ModificationRecord) {
				r := rating
				p := rating.Price()
				rec.Rating = &r
				rec.Price = &p
			})
			return nil
		}

		item.Rating = rating
		if item.Price == 0 {
			item.Price = rating.Price()
		}
		for i, s := range c.customStaples {
			if s.Name == item.Name {
				c.customStaples[i] = item
				return nil
			}
		}
		c.customStaples = append(c.customStaples, item)
		return nil
	})
}

// RemoveStaple drops a custom staple or hides a base staple. Unknown names are a no-op.
func (c *Catalog) RemoveStaple(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	return c.mutate("", func() error {
		for i, s := range c.customStaples {
			if s.Name == name {
				c.customStaples = append(c.customStaples[:i:i], c.customStaples[i+1:]...)
				return nil
			}
		}
		if _, isBase := c.baseStaples[name]; isBase && !containsExact(c.removedStaples, name) {
			c.removedStaples = append(c.removedStaples, name)
		}
		return nil
	})
}

// --- Snapshot ---

// Snapshot returns a deep copy of the overlay layers
func (c *Catalog) Snapshot() models.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return models.Snapshot{
		Archetypes:     c.records,
		CustomStaples:  c.customStaples,
		RemovedStaples: c.removedStaples,
	}.Clone()
}

// Replace swaps every layer for the persisted snapshot. The change is
// reported as remote so it is never persisted again.
func (c *Catalog) Replace(snap models.Snapshot, archetype string) {
	snap = snap.Clone()

	c.mu.Lock()
	c.records = snap.Archetypes
	c.customStaples = snap.CustomStaples
	c.removedStaples = snap.RemovedStaples
	v := c.version.Add(1)
	c.mu.Unlock()

	c.notify(Change{Version: v, Remote: true, Archetype: archetype})
}

func containsFold(list []string, name string) bool {
	for _, s := range list {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}

func containsExact(list []string, name string) bool {
	for _, s := range list {
		if s == name {
			return true
		}
	}
	return false
}

func removeFold(list []string, name string) []string {
	var out []string
	for _, s := range list {
		if !strings.EqualFold(s, name) {
			out = append(out, s)
		}
	}
	return out
}

func removeExact(list []string, name string) []string {
	out := []string{}
	for _, s := range list {
		if s != name {
			out = append(out, s)
		}
	}
	return out
}
