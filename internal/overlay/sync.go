package overlay

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/meur/cardshop/internal/models"
	"github.com/meur/cardshop/internal/notify"
	"github.com/meur/cardshop/internal/storage"
)

const (
	// DefaultDebounce is the quiet period before a burst of edits is persisted
	DefaultDebounce = 500 * time.Millisecond
	persistTimeout  = 10 * time.Second
)

// SnapshotStore persists the single overlay snapshot row
type SnapshotStore interface {
	LoadModifications(ctx context.Context) (models.Snapshot, error)
	SaveModifications(ctx context.Context, snap models.Snapshot) error
}

// State of the persistence pipeline
type State int

const (
	StateIdle State = iota
	StatePendingPersist
	StatePersisting
)

func (s State) String() string {
	switch s {
	case StatePendingPersist:
		return "pending"
	case StatePersisting:
		return "persisting"
	default:
		return "idle"
	}
}

// Synchronizer persists local overlay changes after a debounce window,
// announces successful writes on the bus and reloads the overlay when
// another instance announces one.
type Synchronizer struct {
	catalog  *Catalog
	store    SnapshotStore
	bus      notify.Bus
	topic    string
	origin   string
	debounce time.Duration
	sched    Scheduler

	mu          sync.Mutex
	state       State
	timer       Timer
	gen         uint64
	dirty       bool
	changed     map[string]struct{}
	syncPending bool

	persistMu sync.Mutex

	unsubCatalog func()
	unsubBus     func()
}

// SyncOption configures a Synchronizer
type SyncOption func(*Synchronizer)

// WithDebounce sets the debounce window
func WithDebounce(d time.Duration) SyncOption {
	return func(s *Synchronizer) { s.debounce = d }
}

// WithScheduler replaces the runtime timer
func WithScheduler(sched Scheduler) SyncOption {
	return func(s *Synchronizer) { s.sched = sched }
}

// WithOrigin sets the instance id stamped on published messages
func WithOrigin(origin string) SyncOption {
	return func(s *Synchronizer) { s.origin = origin }
}

// NewSynchronizer wires catalog changes to store and bus. Call Close to detach.
func NewSynchronizer(catalog *Catalog, store SnapshotStore, bus notify.Bus, topic string, opts ...SyncOption) *Synchronizer {
	s := &Synchronizer{
		catalog:  catalog,
		store:    store,
		bus:      bus,
		topic:    topic,
		origin:   uuid.New().String(),
		debounce: DefaultDebounce,
		sched:    RealScheduler,
		changed:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.unsubCatalog = catalog.Subscribe(s.onChange)
	s.unsubBus = bus.Subscribe(topic, s.onMessage)
	return s
}

// Origin returns the instance id
func (s *Synchronizer) Origin() string {
	return s.origin
}

// State returns the current pipeline state
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SyncPending reports whether the last persist attempt failed.
// The in-memory overlay is still authoritative for this instance.
func (s *Synchronizer) SyncPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncPending
}

// Load replaces the overlay with the persisted snapshot. A missing snapshot
// leaves the overlay empty and is not an error.
func (s *Synchronizer) Load(ctx context.Context) error {
	snap, err := s.store.LoadModifications(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		log.Info("no persisted catalog modifications, starting from base catalog")
		return nil
	}
	if err != nil {
		return err
	}
	s.catalog.Replace(snap, "")
	log.WithFields(log.Fields{
		"records": len(snap.Archetypes),
		"staples": len(snap.CustomStaples),
		"removed": len(snap.RemovedStaples),
	}).Info("loaded catalog modifications")
	return nil
}

// Close detaches from the catalog and bus and cancels a pending persist.
// Call Flush first to keep pending edits.
func (s *Synchronizer) Close() {
	s.unsubCatalog()
	s.unsubBus()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}

func (s *Synchronizer) onChange(ch Change) {
	if ch.Remote {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch.Archetype != "" {
		s.changed[ch.Archetype] = struct{}{}
	}
	if s.state == StatePersisting {
		s.dirty = true
		return
	}
	s.armLocked()
}

func (s *Synchronizer) armLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.state = StatePendingPersist
	s.timer = s.sched.AfterFunc(s.debounce, func() { s.fire(gen) })
}

func (s *Synchronizer) fire(gen uint64) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	if gen != s.gen || s.state != StatePendingPersist {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.state = StatePersisting
	archetypes := s.takeChangedLocked()
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	s.persistLocked(ctx, archetypes)
}

func (s *Synchronizer) takeChangedLocked() []string {
	out := make([]string, 0, len(s.changed))
	for name := range s.changed {
		out = append(out, name)
	}
	sort.Strings(out)
	s.changed = make(map[string]struct{})
	return out
}

// Flush persists pending changes now, after any in-flight write
func (s *Synchronizer) Flush(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	for {
		s.mu.Lock()
		if s.state != StatePendingPersist {
			s.mu.Unlock()
			return nil
		}
		if s.timer != nil {
			s.timer.Stop()
			s.timer = nil
		}
		s.gen++
		s.state = StatePersisting
		archetypes := s.takeChangedLocked()
		s.mu.Unlock()

		if err := s.persistLocked(ctx, archetypes); err != nil {
			return err
		}
	}
}

// persistLocked writes the whole snapshot; the caller holds persistMu.
// Failure is logged and flagged, never rolled back or retried.
func (s *Synchronizer) persistLocked(ctx context.Context, archetypes []string) error {
	version := s.catalog.Version()
	err := s.store.SaveModifications(ctx, s.catalog.Snapshot())

	s.mu.Lock()
	if err != nil {
		s.syncPending = true
		for _, name := range archetypes {
			s.changed[name] = struct{}{}
		}
	} else {
		s.syncPending = false
	}
	if s.dirty {
		s.dirty = false
		s.armLocked()
	} else {
		s.state = StateIdle
	}
	s.mu.Unlock()

	if err != nil {
		log.WithError(err).WithField("version", version).Error("failed to persist catalog modifications")
		return err
	}
	log.WithField("version", version).Debug("persisted catalog modifications")

	s.publish(ctx, notify.Message{Type: notify.TypeUpdated, Origin: s.origin})
	for _, name := range archetypes {
		s.publish(ctx, notify.Message{Type: notify.TypeCardsUpdated, Archetype: name, Origin: s.origin})
	}
	return nil
}

func (s *Synchronizer) publish(ctx context.Context, msg notify.Message) {
	if err := s.bus.Publish(ctx, s.topic, msg); err != nil {
		log.WithError(err).WithField("type", msg.Type).Warn("failed to publish catalog notification")
	}
}

// onMessage reloads the overlay when another instance persisted a change
func (s *Synchronizer) onMessage(ctx context.Context, msg notify.Message) {
	if msg.Origin == s.origin || (msg.Type != notify.TypeUpdated && msg.Type != notify.TypeCardsUpdated) {
		return
	}
	snap, err := s.store.LoadModifications(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		snap = models.Snapshot{}
	} else if err != nil {
		log.WithError(err).WithField("origin", msg.Origin).Error("failed to reload catalog modifications")
		return
	}
	s.catalog.Replace(snap, msg.Archetype)
	log.WithFields(log.Fields{
		"type":      msg.Type,
		"origin":    msg.Origin,
		"archetype": msg.Archetype,
	}).Debug("reloaded catalog modifications")
}
