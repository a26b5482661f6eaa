package overlay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/meur/cardshop/internal/models"
	"github.com/meur/cardshop/internal/notify"
	"github.com/meur/cardshop/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualTimer struct {
	f       func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

// manualScheduler only fires timers when Advance is called
type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
	delays []time.Duration
}

func (m *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{f: f}
	m.timers = append(m.timers, t)
	m.delays = append(m.delays, d)
	return t
}

// Advance fires every pending timer and returns how many ran
func (m *manualScheduler) Advance() int {
	m.mu.Lock()
	var due []*manualTimer
	for _, t := range m.timers {
		if !t.stopped {
			t.stopped = true
			due = append(due, t)
		}
	}
	m.timers = nil
	m.mu.Unlock()

	for _, t := range due {
		t.f()
	}
	return len(due)
}

type memSnapshotStore struct {
	mu    sync.Mutex
	snap  *models.Snapshot
	saves []models.Snapshot
	err   error
}

func (m *memSnapshotStore) LoadModifications(context.Context) (models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return models.Snapshot{}, storage.ErrNotFound
	}
	return m.snap.Clone(), nil
}

func (m *memSnapshotStore) SaveModifications(_ context.Context, snap models.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	c := snap.Clone()
	m.snap = &c
	m.saves = append(m.saves, c)
	return nil
}

func (m *memSnapshotStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saves)
}

type recordingBus struct {
	*notify.MemoryBus
	mu   sync.Mutex
	msgs []notify.Message
}

func newRecordingBus() *recordingBus {
	return &recordingBus{MemoryBus: notify.NewMemoryBus()}
}

func (b *recordingBus) Publish(ctx context.Context, topic string, msg notify.Message) error {
	b.mu.Lock()
	b.msgs = append(b.msgs, msg)
	b.mu.Unlock()
	return b.MemoryBus.Publish(ctx, topic, msg)
}

func (b *recordingBus) messages() []notify.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]notify.Message(nil), b.msgs...)
}

const testTopic = "card-modifications"

func newTestSync(t *testing.T, store SnapshotStore, bus notify.Bus, origin string) (*Catalog, *Synchronizer, *manualScheduler) {
	t.Helper()
	c := NewCatalog(testBase())
	sched := &manualScheduler{}
	s := NewSynchronizer(c, store, bus, testTopic, WithScheduler(sched), WithOrigin(origin))
	t.Cleanup(s.Close)
	return c, s, sched
}

func TestDebounceCoalescesBurst(t *testing.T) {
	store := &memSnapshotStore{}
	c, s, sched := newTestSync(t, store, notify.NopBus(), "a")

	ratings := []models.Rating{models.RatingD, models.RatingB, models.RatingA, models.RatingS, models.RatingSPlus}
	for _, r := range ratings {
		require.NoError(t, c.SetRating("Blue-Eyes", r))
		assert.Equal(t, StatePendingPersist, s.State())
	}
	assert.Zero(t, store.saveCount())

	assert.Equal(t, 1, sched.Advance())
	require.Equal(t, 1, store.saveCount())
	assert.Equal(t, c.Snapshot(), store.saves[0])
	assert.Equal(t, models.RatingSPlus, *store.saves[0].Archetypes["Blue-Eyes"].Rating)
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, DefaultDebounce, sched.delays[0])
}

func TestPersistFailureKeepsLocalState(t *testing.T) {
	store := &memSnapshotStore{err: errors.New("disk full")}
	c, s, sched := newTestSync(t, store, notify.NopBus(), "a")

	require.NoError(t, c.SetPrice("Branded", 999))
	before := c.Snapshot()
	version := c.Version()

	sched.Advance()
	assert.True(t, s.SyncPending())
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, before, c.Snapshot())
	assert.Equal(t, version, c.Version())
	assert.Equal(t, 999, c.Price(testBase().Archetypes[1]))

	// no retry until the next local change
	assert.Zero(t, sched.Advance())

	store.mu.Lock()
	store.err = nil
	store.mu.Unlock()
	require.NoError(t, c.SetPrice("Branded", 1000))
	sched.Advance()
	assert.False(t, s.SyncPending())
	assert.Equal(t, 1, store.saveCount())
}

func TestPersistAnnouncesChanges(t *testing.T) {
	store := &memSnapshotStore{}
	bus := newRecordingBus()
	c, _, sched := newTestSync(t, store, bus, "a")

	require.NoError(t, c.AddCustomCardToArchetype("Branded", models.CustomCard{Name: "Albion the Branded Dragon"}))
	require.NoError(t, c.RemoveCardFromArchetype("Blue-Eyes", "Blue-Eyes White Dragon"))
	require.NoError(t, c.SetPrice("Branded", 5))
	sched.Advance()

	assert.Equal(t, []notify.Message{
		{Type: notify.TypeUpdated, Origin: "a"},
		{Type: notify.TypeCardsUpdated, Archetype: "Blue-Eyes", Origin: "a"},
		{Type: notify.TypeCardsUpdated, Archetype: "Branded", Origin: "a"},
	}, bus.messages())
}

func TestFlushPersistsImmediately(t *testing.T) {
	store := &memSnapshotStore{}
	c, s, sched := newTestSync(t, store, notify.NopBus(), "a")

	require.NoError(t, s.Flush(context.Background()))
	assert.Zero(t, store.saveCount())

	require.NoError(t, c.MarkRemoved("Gem-Knight"))
	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, 1, store.saveCount())
	assert.True(t, store.saves[0].Archetypes["Gem-Knight"].IsRemoved)

	// the cancelled timer must not write again
	sched.Advance()
	assert.Equal(t, 1, store.saveCount())
}

func TestLoad(t *testing.T) {
	store := &memSnapshotStore{}
	c, s, sched := newTestSync(t, store, notify.NopBus(), "a")

	require.NoError(t, s.Load(context.Background()))
	assert.Zero(t, c.Version())

	r := models.RatingSPlus
	store.snap = &models.Snapshot{
		Archetypes:     map[string]models.ModificationRecord{"Gem-Knight": {Rating: &r}},
		RemovedStaples: []string{"Pot of Prosperity"},
	}
	require.NoError(t, s.Load(context.Background()))
	assert.Equal(t, models.RatingSPlus, c.Rating(testBase().Archetypes[2]))
	assert.Len(t, c.EffectiveStaples(), 1)

	// loading is a remote change and is never written back
	assert.Zero(t, sched.Advance())
	assert.Zero(t, store.saveCount())
}

func TestInstancesConverge(t *testing.T) {
	store := &memSnapshotStore{}
	bus := newRecordingBus()
	a, _, schedA := newTestSync(t, store, bus, "a")
	b, _, schedB := newTestSync(t, store, bus, "b")

	var bChanges []Change
	b.Subscribe(func(ch Change) { bChanges = append(bChanges, ch) })

	require.NoError(t, a.SetRating("Blue-Eyes", models.RatingS))
	require.NoError(t, a.AddCustomCardToArchetype("Blue-Eyes", models.CustomCard{Name: "Maiden with Eyes of Blue"}))
	schedA.Advance()

	assert.Equal(t, a.Snapshot(), b.Snapshot())
	assert.Equal(t, 200, b.Price(testBase().Archetypes[0]))
	require.Len(t, bChanges, 2)
	assert.True(t, bChanges[0].Remote)
	assert.Equal(t, "Blue-Eyes", bChanges[1].Archetype)

	// b never re-persists or rebroadcasts what it received
	assert.Zero(t, schedB.Advance())
	assert.Equal(t, 1, store.saveCount())
	assert.Len(t, bus.messages(), 2)
}

func TestBanlistMessagesLeaveOverlayAlone(t *testing.T) {
	store := &memSnapshotStore{}
	bus := newRecordingBus()
	c, _, _ := newTestSync(t, store, bus, "a")

	require.NoError(t, c.SetRating("Blue-Eyes", models.RatingS))
	v := c.Version()

	require.NoError(t, bus.Publish(context.Background(), testTopic, notify.Message{Type: notify.TypeBanlistUpdated, Origin: "b"}))
	assert.Equal(t, v, c.Version())
	assert.Equal(t, models.RatingS, *c.Snapshot().Archetypes["Blue-Eyes"].Rating)
}
