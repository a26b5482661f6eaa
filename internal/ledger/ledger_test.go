package ledger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/meur/cardshop/internal/models"
	"github.com/meur/cardshop/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T, coins int) (*Ledger, *storage.Store) {
	t.Helper()
	store, err := storage.New(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.UpsertUser(context.Background(), &models.User{ID: "u1", Name: "Yugi", Coins: coins}))
	return New(store), store
}

func TestGrantAndSpend(t *testing.T) {
	l, _ := newTestLedger(t, 100)
	ctx := context.Background()

	entry, err := l.Grant(ctx, "u1", 50, "daily bonus")
	require.NoError(t, err)
	assert.Equal(t, 150, entry.BalanceAfter)

	entry, err = l.Spend(ctx, "u1", 120, "pack")
	require.NoError(t, err)
	assert.Equal(t, -120, entry.Delta)
	assert.Equal(t, 30, entry.BalanceAfter)

	_, err = l.Spend(ctx, "u1", 31, "pack")
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	balance, err := l.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 30, balance)

	history, err := l.History(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "pack", history[0].Reason)

	_, err = l.Grant(ctx, "u1", 0, "nothing")
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = l.Spend(ctx, "nobody", 1, "pack")
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestPurchase(t *testing.T) {
	l, _ := newTestLedger(t, 300)
	ctx := context.Background()

	p, entry, err := l.Purchase(ctx, "u1", "Branded", models.KindDeck, 200)
	require.NoError(t, err)
	assert.Equal(t, "Branded", p.ItemName)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, 100, entry.BalanceAfter)

	_, _, err = l.Purchase(ctx, "u1", "Branded", models.KindDeck, 0)
	assert.ErrorIs(t, err, ErrDuplicateOwnership)

	_, _, err = l.Purchase(ctx, "u1", "Tearlaments", models.KindDeck, 400)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, _, err = l.Purchase(ctx, "u1", "Ash Blossom", models.KindGacha, 0)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	owned, err := l.OwnedItems(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, owned, 1)
	balance, _ := l.Balance(ctx, "u1")
	assert.Equal(t, 100, balance)
}

func TestRecordPullsIgnoresDuplicates(t *testing.T) {
	l, _ := newTestLedger(t, 0)
	ctx := context.Background()

	n, err := l.RecordPulls(ctx, "u1", []string{"Dark Magician", "Dark Magician", "Dark Magical Circle"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = l.RecordPulls(ctx, "u1", []string{"Dark Magician"})
	require.NoError(t, err)
	assert.Zero(t, n)

	owned, err := l.OwnedItems(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, owned, 2)
	for _, p := range owned {
		assert.Equal(t, models.KindGacha, p.ItemKind)
	}

	ok, err := l.Owns(ctx, "u1", "Dark Magician")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPulledCardCanStillBeBought(t *testing.T) {
	l, _ := newTestLedger(t, 300)
	ctx := context.Background()

	_, err := l.RecordPulls(ctx, "u1", []string{"Pot of Greed"})
	require.NoError(t, err)

	p, entry, err := l.Purchase(ctx, "u1", "Pot of Greed", models.KindStaple, 100)
	require.NoError(t, err)
	assert.Equal(t, 200, entry.BalanceAfter)

	owned, err := l.OwnedItems(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, p.ID, owned[0].ID)
	assert.Equal(t, models.KindStaple, owned[0].ItemKind)
	assert.Equal(t, 100, owned[0].Price)

	_, _, err = l.Purchase(ctx, "u1", "Pot of Greed", models.KindStaple, 100)
	assert.ErrorIs(t, err, ErrDuplicateOwnership)

	// pulling it again adds nothing
	n, err := l.RecordPulls(ctx, "u1", []string{"Pot of Greed"})
	require.NoError(t, err)
	assert.Zero(t, n)

	balance, _ := l.Balance(ctx, "u1")
	assert.Equal(t, 200, balance)
}
