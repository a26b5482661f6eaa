// Package gacha resolves pack openings into cards and their economic effects.
package gacha

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/apex/log"
	"github.com/meur/cardshop/internal/directory"
	"github.com/meur/cardshop/internal/ledger"
	"github.com/meur/cardshop/internal/models"
)

var (
	// ErrNothingResolved means no pull of the batch produced a card; nothing was charged
	ErrNothingResolved = errors.New("no card could be resolved for this pull")
	ErrEmptyPool       = errors.New("pack has no card pool and the catalog has no archetypes")
	// ErrNotRecorded means the user was charged but ownership could not be written
	ErrNotRecorded     = errors.New("cards could not be added to your collection")
)

// Wallet is the part of the ledger a pull needs
type Wallet interface {
	Balance(ctx context.Context, userID string) (int, error)
	Spend(ctx context.Context, userID string, amount int, reason string) (*models.CoinLogEntry, error)
	RecordPulls(ctx context.Context, userID string, cardNames []string) (int, error)
	OwnedItems(ctx context.Context, userID string) ([]models.Purchase, error)
}

// Pool is the catalog view used to build candidate lists
type Pool interface {
	ArchetypeNames() []string
	ArchetypeCards(archetype string, base []models.Card) []models.Card
}

// Engine runs pulls
type Engine struct {
	dir    directory.Directory
	pool   Pool
	wallet Wallet
	rng    RandomSource
}

// Option configures an Engine
type Option func(*Engine)

// WithRNG replaces the crypto source
func WithRNG(rng RandomSource) Option {
	return func(e *Engine) { e.rng = rng }
}

// NewEngine creates a pull engine
func NewEngine(dir directory.Directory, pool Pool, wallet Wallet, opts ...Option) *Engine {
	e := &Engine{dir: dir, pool: pool, wallet: wallet, rng: DefaultRNG()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PullRequest opens Count cards of Pack for UserID
type PullRequest struct {
	Pack   models.GachaPack
	Count  int
	UserID string
}

// PullFailure is a pull attempt whose pool entry could not be resolved
type PullFailure struct {
	Entry string `json:"entry"`
	Error string `json:"error"`
}

// PullSummary reports what a pull produced. Requested - Resolved pulls failed
// and are listed in Failures; the cost is charged for the whole batch.
type PullSummary struct {
	Results       []models.GachaResult `json:"results"`
	Requested     int                  `json:"requested"`
	Resolved      int                  `json:"resolved"`
	Failures      []PullFailure        `json:"failures,omitempty"`
	Cost          int                  `json:"cost"`
	BalanceBefore int                  `json:"balance_before"`
	BalanceAfter  int                  `json:"balance_after"`
	NewCards      int                  `json:"new_cards"`
}

// Partial reports whether some pulls of the batch failed to resolve
func (s *PullSummary) Partial() bool {
	return s.Resolved < s.Requested
}

type resolution struct {
	cards []models.Card
	exact bool
	err   error
}

// Pull resolves every card of the batch, then charges the flat cost once and
// records ownership. Insufficient funds is detected before any lookup and
// checked again by the charge itself; a balance that dropped in between fails
// the pull with ErrInsufficientFunds, no summary and nothing written.
// When nothing resolves the user is not charged and ErrNothingResolved is
// returned together with the failure summary. A charged pull whose cards could
// not be recorded returns the summary with ErrNotRecorded.
//
// Resolutions are shared by every pull of the batch that draws the same entry,
// except those that failed because the directory was unavailable.
func (e *Engine) Pull(ctx context.Context, req PullRequest) (*PullSummary, error) {
	pack := req.Pack
	cost, err := CostFor(pack, req.Count)
	if err != nil {
		return nil, err
	}
	if !pack.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrPackInactive, pack.ID)
	}

	balance, err := e.wallet.Balance(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if balance < cost {
		return nil, fmt.Errorf("%w: %s costs %d, balance is %d", ledger.ErrInsufficientFunds, pack.Name, cost, balance)
	}

	entries := pack.CardPool
	if len(entries) == 0 {
		entries = e.pool.ArchetypeNames()
	}
	if len(entries) == 0 {
		return nil, ErrEmptyPool
	}

	ownedNames, ownedDecks := e.ownership(ctx, req.UserID)
	summary := &PullSummary{
		Requested:     req.Count,
		Cost:          cost,
		BalanceBefore: balance,
		BalanceAfter:  balance,
	}
	memo := make(map[string]resolution)
	logger := log.WithFields(log.Fields{"user": req.UserID, "pack": pack.ID, "count": req.Count})

	for i := 0; i < req.Count; i++ {
		entry := entries[pick(e.rng, len(entries))]
		res, ok := memo[entry]
		if !ok {
			res = e.resolve(ctx, entry)
			if !errors.Is(res.err, directory.ErrUnavailable) {
				memo[entry] = res
			}
		}
		if res.err != nil {
			summary.Failures = append(summary.Failures, PullFailure{Entry: entry, Error: res.err.Error()})
			continue
		}

		card := res.cards[0]
		if !res.exact {
			card = res.cards[pick(e.rng, len(res.cards))]
		}
		rarity := RarityFor(pack.PackType, e.rng.Float64())

		key := strings.ToLower(card.Name)
		isNew := !ownedNames[key] && !(card.Archetype != "" && ownedDecks[strings.ToLower(card.Archetype)])
		ownedNames[key] = true

		summary.Results = append(summary.Results, models.GachaResult{
			Card:            card,
			Rarity:          rarity,
			IsNew:           isNew,
			SourcePoolEntry: entry,
		})
	}
	summary.Resolved = len(summary.Results)

	if summary.Resolved == 0 {
		logger.WithField("failures", len(summary.Failures)).Warn("pull resolved no cards, not charging")
		return summary, ErrNothingResolved
	}

	spent, err := e.wallet.Spend(ctx, req.UserID, cost, fmt.Sprintf("gacha %s x%d", pack.Name, req.Count))
	if err != nil {
		return nil, err
	}
	summary.BalanceAfter = spent.BalanceAfter

	names := make([]string, 0, len(summary.Results))
	for _, r := range summary.Results {
		names = append(names, r.Card.Name)
	}
	added, err := e.wallet.RecordPulls(ctx, req.UserID, names)
	if err != nil {
		logger.WithError(err).Error("charged for pull but failed to record cards")
		return summary, fmt.Errorf("%w: %w", ErrNotRecorded, err)
	}
	summary.NewCards = added

	fields := log.Fields{"resolved": summary.Resolved, "cost": cost, "new": added}
	if summary.Partial() {
		logger.WithFields(fields).WithField("failed", len(summary.Failures)).Warn("pull partially resolved")
	} else {
		logger.WithFields(fields).Info("pull complete")
	}
	return summary, nil
}

// resolve turns a pool entry into candidates: archetype query first (through
// the overlay), then the same string as an exact card name.
func (e *Engine) resolve(ctx context.Context, entry string) resolution {
	base, archErr := e.dir.ByArchetype(ctx, entry)
	if archErr != nil {
		base = nil
	}
	if cards := e.pool.ArchetypeCards(entry, base); len(cards) > 0 {
		return resolution{cards: cards}
	}

	card, nameErr := e.dir.ByName(ctx, entry)
	if nameErr == nil {
		return resolution{cards: []models.Card{*card}, exact: true}
	}

	logger := log.WithField("entry", entry)
	if errors.Is(archErr, directory.ErrUnavailable) || errors.Is(nameErr, directory.ErrUnavailable) {
		logger.WithError(nameErr).Warn("card directory unavailable while resolving pool entry")
	} else {
		logger.Debug("pool entry matched no card")
	}
	if archErr != nil {
		return resolution{err: fmt.Errorf("%w; %w", archErr, nameErr)}
	}
	return resolution{err: nameErr}
}

// ownership indexes owned item names and owned decks for the isNew flag.
// isNew is display-only, so lookup failures only disable it.
func (e *Engine) ownership(ctx context.Context, userID string) (names, decks map[string]bool) {
	names = make(map[string]bool)
	decks = make(map[string]bool)
	items, err := e.wallet.OwnedItems(ctx, userID)
	if err != nil {
		log.WithError(err).WithField("user", userID).Warn("failed to load ownership, every card shows as new")
		return names, decks
	}
	for _, it := range items {
		key := strings.ToLower(it.ItemName)
		names[key] = true
		if it.ItemKind == models.KindDeck {
			decks[key] = true
		}
	}
	return names, decks
}
