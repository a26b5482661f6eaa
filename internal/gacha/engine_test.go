package gacha

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/meur/cardshop/internal/directory"
	"github.com/meur/cardshop/internal/ledger"
	"github.com/meur/cardshop/internal/models"
	"github.com/meur/cardshop/internal/overlay"
	"github.com/meur/cardshop/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDirectory struct {
	mu          sync.Mutex
	archetypes  map[string][]models.Card
	cards       map[string]models.Card
	unavailable map[string]bool
	// flaky counts down the calls for a name that fail before the directory recovers
	flaky       map[string]int
	calls       int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		archetypes: map[string][]models.Card{
			"Blue-Eyes": {
				{ID: 1, Name: "Blue-Eyes White Dragon", Archetype: "Blue-Eyes"},
				{ID: 2, Name: "Blue-Eyes Alternative White Dragon", Archetype: "Blue-Eyes"},
				{ID: 3, Name: "Blue-Eyes Jet Dragon", Archetype: "Blue-Eyes"},
			},
		},
		cards: map[string]models.Card{
			"Pot of Greed": {ID: 55144522, Name: "Pot of Greed", Type: "Spell Card"},
		},
		unavailable: map[string]bool{},
		flaky:       map[string]int{},
	}
}

func (f *fakeDirectory) down(name string) bool {
	if f.flaky[name] > 0 {
		f.flaky[name]--
		return true
	}
	return f.unavailable[name]
}

func (f *fakeDirectory) ByArchetype(_ context.Context, name string) ([]models.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.down(name) {
		return nil, directory.ErrUnavailable
	}
	cards, ok := f.archetypes[name]
	if !ok {
		return nil, directory.ErrNotFound
	}
	return append([]models.Card(nil), cards...), nil
}

func (f *fakeDirectory) ByName(_ context.Context, name string) (*models.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.down(name) {
		return nil, directory.ErrUnavailable
	}
	card, ok := f.cards[name]
	if !ok {
		return nil, directory.ErrNotFound
	}
	return &card, nil
}

func (f *fakeDirectory) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fixture struct {
	engine  *Engine
	dir     *fakeDirectory
	catalog *overlay.Catalog
	ledger  *ledger.Ledger
}

func newFixture(t *testing.T, coins int) *fixture {
	t.Helper()
	store, err := storage.New(filepath.Join(t.TempDir(), "gacha.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.UpsertUser(context.Background(), &models.User{ID: "kaiba", Coins: coins}))

	catalog := overlay.NewCatalog(overlay.Base{
		Archetypes: []models.CatalogItem{
			{Name: "Blue-Eyes", Rating: models.RatingC, Price: 25},
			{Name: "Exodia", Rating: models.RatingF},
		},
	})
	dir := newFakeDirectory()
	l := ledger.New(store)
	return &fixture{
		engine:  NewEngine(dir, catalog, l, WithRNG(NewSeededRNG(42))),
		dir:     dir,
		catalog: catalog,
		ledger:  l,
	}
}

func testPack(pool ...string) models.GachaPack {
	return models.GachaPack{
		ID:         "p1",
		Name:       "Legend of Blue Eyes",
		PackType:   models.PackStandard,
		SingleCost: 100,
		MultiCost:  2000,
		CardPool:   pool,
		IsActive:   true,
	}
}

func (f *fixture) balance(t *testing.T) int {
	t.Helper()
	b, err := f.ledger.Balance(context.Background(), "kaiba")
	require.NoError(t, err)
	return b
}

func TestPullChargesFlatCost(t *testing.T) {
	f := newFixture(t, 5000)
	ctx := context.Background()

	summary, err := f.engine.Pull(ctx, PullRequest{Pack: testPack("Blue-Eyes"), Count: PackPulls, UserID: "kaiba"})
	require.NoError(t, err)
	assert.Len(t, summary.Results, 9)
	assert.Equal(t, 100, summary.Cost)
	assert.Equal(t, 5000, summary.BalanceBefore)
	assert.Equal(t, 4900, summary.BalanceAfter)
	assert.Equal(t, 4900, f.balance(t))

	summary, err = f.engine.Pull(ctx, PullRequest{Pack: testPack("Blue-Eyes"), Count: BoxPulls, UserID: "kaiba"})
	require.NoError(t, err)
	assert.Len(t, summary.Results, 216)
	assert.Equal(t, 2000, summary.Cost)
	assert.Equal(t, 2900, f.balance(t))

	history, err := f.ledger.History(ctx, "kaiba")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestPartialResolutionStillChargesOnce(t *testing.T) {
	f := newFixture(t, 5000)

	summary, err := f.engine.Pull(context.Background(), PullRequest{
		Pack:   testPack("Blue-Eyes", "Not A Real Card"),
		Count:  BoxPulls,
		UserID: "kaiba",
	})
	require.NoError(t, err)
	assert.True(t, summary.Partial())
	assert.NotEmpty(t, summary.Failures)
	assert.Equal(t, summary.Requested, summary.Resolved+len(summary.Failures))
	for _, fail := range summary.Failures {
		assert.Equal(t, "Not A Real Card", fail.Entry)
	}
	assert.Equal(t, 3000, summary.BalanceAfter)
	assert.Equal(t, 3000, f.balance(t))

	// each pool entry is resolved once per batch
	assert.Equal(t, 3, f.dir.callCount())
}

func TestInsufficientFundsShortCircuits(t *testing.T) {
	f := newFixture(t, 99)

	summary, err := f.engine.Pull(context.Background(), PullRequest{Pack: testPack("Blue-Eyes"), Count: PackPulls, UserID: "kaiba"})
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	assert.Nil(t, summary)
	assert.Zero(t, f.dir.callCount())
	assert.Equal(t, 99, f.balance(t))

	owned, err := f.ledger.OwnedItems(context.Background(), "kaiba")
	require.NoError(t, err)
	assert.Empty(t, owned)
}

func TestNothingResolvedIsNotCharged(t *testing.T) {
	f := newFixture(t, 500)
	f.dir.unavailable["Blue-Eyes"] = true

	summary, err := f.engine.Pull(context.Background(), PullRequest{Pack: testPack("Blue-Eyes", "Nope"), Count: PackPulls, UserID: "kaiba"})
	assert.ErrorIs(t, err, ErrNothingResolved)
	require.NotNil(t, summary)
	assert.Zero(t, summary.Resolved)
	assert.Len(t, summary.Failures, 9)
	assert.Equal(t, 500, f.balance(t))

	history, err := f.ledger.History(context.Background(), "kaiba")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestOutageIsRetriedOnLaterPulls(t *testing.T) {
	f := newFixture(t, 500)
	// first archetype query and first name query both fail
	f.dir.flaky["Blue-Eyes"] = 2

	summary, err := f.engine.Pull(context.Background(), PullRequest{Pack: testPack("Blue-Eyes"), Count: PackPulls, UserID: "kaiba"})
	require.NoError(t, err)
	assert.Equal(t, 8, summary.Resolved)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "Blue-Eyes", summary.Failures[0].Entry)
	assert.True(t, summary.Partial())
	assert.Equal(t, 400, f.balance(t))

	// the recovered resolution is shared by the rest of the batch
	assert.Equal(t, 3, f.dir.callCount())
}

type unrecordedWallet struct {
	*ledger.Ledger
}

func (unrecordedWallet) RecordPulls(context.Context, string, []string) (int, error) {
	return 0, errors.New("disk I/O error")
}

func TestChargedPullKeepsSummaryWhenRecordingFails(t *testing.T) {
	f := newFixture(t, 500)
	engine := NewEngine(f.dir, f.catalog, unrecordedWallet{f.ledger}, WithRNG(NewSeededRNG(7)))

	summary, err := engine.Pull(context.Background(), PullRequest{Pack: testPack("Blue-Eyes"), Count: PackPulls, UserID: "kaiba"})
	assert.ErrorIs(t, err, ErrNotRecorded)
	require.NotNil(t, summary)
	assert.Len(t, summary.Results, 9)
	assert.Equal(t, 400, summary.BalanceAfter)
	assert.Equal(t, 400, f.balance(t))

	owned, err := f.ledger.OwnedItems(context.Background(), "kaiba")
	require.NoError(t, err)
	assert.Empty(t, owned)
}

type drainedWallet struct {
	*ledger.Ledger
}

func (drainedWallet) Spend(context.Context, string, int, string) (*models.CoinLogEntry, error) {
	return nil, fmt.Errorf("%w: balance changed during pull", ledger.ErrInsufficientFunds)
}

func TestChargeRechecksFunds(t *testing.T) {
	f := newFixture(t, 500)
	engine := NewEngine(f.dir, f.catalog, drainedWallet{f.ledger}, WithRNG(NewSeededRNG(7)))

	summary, err := engine.Pull(context.Background(), PullRequest{Pack: testPack("Blue-Eyes"), Count: PackPulls, UserID: "kaiba"})
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	assert.Nil(t, summary)
	assert.Equal(t, 500, f.balance(t))

	owned, err := f.ledger.OwnedItems(context.Background(), "kaiba")
	require.NoError(t, err)
	assert.Empty(t, owned)
}

func TestDuplicatePullsAreHarmless(t *testing.T) {
	f := newFixture(t, 500)
	ctx := context.Background()
	req := PullRequest{Pack: testPack("Pot of Greed"), Count: PackPulls, UserID: "kaiba"}

	summary, err := f.engine.Pull(ctx, req)
	require.NoError(t, err)
	require.Len(t, summary.Results, 9)
	assert.True(t, summary.Results[0].IsNew)
	for _, r := range summary.Results[1:] {
		assert.Equal(t, "Pot of Greed", r.Card.Name)
		assert.False(t, r.IsNew)
	}
	assert.Equal(t, 1, summary.NewCards)

	summary, err = f.engine.Pull(ctx, req)
	require.NoError(t, err)
	assert.Zero(t, summary.NewCards)
	assert.False(t, summary.Results[0].IsNew)

	owned, err := f.ledger.OwnedItems(ctx, "kaiba")
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, models.KindGacha, owned[0].ItemKind)
	assert.Equal(t, 300, f.balance(t))
}

func TestPullRejectsBadRequests(t *testing.T) {
	f := newFixture(t, 5000)
	ctx := context.Background()

	_, err := f.engine.Pull(ctx, PullRequest{Pack: testPack("Blue-Eyes"), Count: 10, UserID: "kaiba"})
	assert.ErrorIs(t, err, ErrInvalidPullCount)

	pack := testPack("Blue-Eyes")
	pack.IsActive = false
	_, err = f.engine.Pull(ctx, PullRequest{Pack: pack, Count: PackPulls, UserID: "kaiba"})
	assert.ErrorIs(t, err, ErrPackInactive)

	_, err = f.engine.Pull(ctx, PullRequest{Pack: testPack("Blue-Eyes"), Count: PackPulls, UserID: "pegasus"})
	assert.ErrorIs(t, err, ledger.ErrUnknownUser)

	assert.Zero(t, f.dir.callCount())
	assert.Equal(t, 5000, f.balance(t))
}

func TestEmptyPoolUsesCatalogArchetypes(t *testing.T) {
	f := newFixture(t, 5000)

	summary, err := f.engine.Pull(context.Background(), PullRequest{Pack: testPack(), Count: BoxPulls, UserID: "kaiba"})
	require.NoError(t, err)
	for _, r := range summary.Results {
		assert.Equal(t, "Blue-Eyes", r.SourcePoolEntry)
	}
	for _, fail := range summary.Failures {
		assert.Equal(t, "Exodia", fail.Entry)
	}
	assert.NotEmpty(t, summary.Failures)
}

func TestPullHonorsArchetypeOverlay(t *testing.T) {
	f := newFixture(t, 5000)
	require.NoError(t, f.catalog.RemoveCardFromArchetype("Blue-Eyes", "Blue-Eyes Jet Dragon"))
	require.NoError(t, f.catalog.AddCustomCardToArchetype("Exodia", models.CustomCard{Name: "Exodia the Forbidden One"}))

	summary, err := f.engine.Pull(context.Background(), PullRequest{Pack: testPack("Blue-Eyes", "Exodia"), Count: BoxPulls, UserID: "kaiba"})
	require.NoError(t, err)
	assert.Empty(t, summary.Failures)

	seen := map[string]bool{}
	for _, r := range summary.Results {
		seen[r.Card.Name] = true
	}
	assert.False(t, seen["Blue-Eyes Jet Dragon"])
	assert.True(t, seen["Exodia the Forbidden One"])
	assert.True(t, seen["Blue-Eyes White Dragon"])
}

func TestOwnedDeckMarksCardsNotNew(t *testing.T) {
	f := newFixture(t, 5000)
	ctx := context.Background()
	_, _, err := f.ledger.Purchase(ctx, "kaiba", "Blue-Eyes", models.KindDeck, 25)
	require.NoError(t, err)

	summary, err := f.engine.Pull(ctx, PullRequest{Pack: testPack("Blue-Eyes"), Count: PackPulls, UserID: "kaiba"})
	require.NoError(t, err)
	for _, r := range summary.Results {
		assert.False(t, r.IsNew, r.Card.Name)
	}
}

func TestRarityFor(t *testing.T) {
	tests := []struct {
		pack models.PackType
		roll float64
		want models.Rarity
	}{
		{models.PackStandard, 0.0, models.RarityUltraRare},
		{models.PackStandard, 0.019, models.RarityUltraRare},
		{models.PackStandard, 0.02, models.RaritySuperRare},
		{models.PackStandard, 0.099, models.RaritySuperRare},
		{models.PackStandard, 0.10, models.RarityRare},
		{models.PackStandard, 0.29, models.RarityRare},
		{models.PackStandard, 0.30, models.RarityCommon},
		{models.PackPremium, 0.049, models.RarityUltraRare},
		{models.PackPremium, 0.05, models.RaritySuperRare},
		{models.PackPremium, 0.199, models.RaritySuperRare},
		{models.PackPremium, 0.20, models.RarityRare},
		{models.PackPremium, 0.49, models.RarityRare},
		{models.PackPremium, 0.50, models.RarityCommon},
		{models.PackPremium, 0.999, models.RarityCommon},
		{"mystery", 0.03, models.RaritySuperRare},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RarityFor(tt.pack, tt.roll), "%s %v", tt.pack, tt.roll)
	}
}

func TestValidatePack(t *testing.T) {
	req := &models.GachaPackCreate{Name: "  Starter  ", CardPool: []string{" Blue-Eyes ", "", "Pot of Greed"}}
	require.NoError(t, ValidatePack(req))
	assert.Equal(t, "Starter", req.Name)
	assert.Equal(t, models.PackStandard, req.PackType)
	assert.Equal(t, []string{"Blue-Eyes", "Pot of Greed"}, req.CardPool)

	assert.ErrorIs(t, ValidatePack(&models.GachaPackCreate{}), ErrInvalidPack)
	assert.ErrorIs(t, ValidatePack(&models.GachaPackCreate{Name: "x", PackType: "gold"}), ErrInvalidPack)
	assert.ErrorIs(t, ValidatePack(&models.GachaPackCreate{Name: "x", SingleCost: -1}), ErrInvalidPack)
}
