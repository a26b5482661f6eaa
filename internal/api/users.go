package api

import (
	"net/http"
	"strings"

	"github.com/meur/cardshop/internal/models"
)

// handleGetUser returns a user with their collection and coin history
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	user, err := s.ledger.User(r.Context(), id)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	owned, err := s.ledger.OwnedItems(r.Context(), id)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	history, err := s.ledger.History(r.Context(), id)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if owned == nil {
		owned = []models.Purchase{}
	}
	if history == nil {
		history = []models.CoinLogEntry{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"user":    user,
		"owned":   owned,
		"history": history,
	})
}

// handlePurchase buys a visible deck or staple at its effective price
func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var req models.PurchaseCreate
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	item, kind, ok := s.catalog.Lookup(strings.TrimSpace(req.ItemName))
	if !ok {
		respondError(w, http.StatusNotFound, "Item not found")
		return
	}
	if req.ItemKind != "" && req.ItemKind != kind {
		respondError(w, http.StatusBadRequest, "item_kind does not match the catalog")
		return
	}

	purchase, entry, err := s.ledger.Purchase(r.Context(), pathParam(r, "id"), item.Name, kind, item.Price)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"purchase":      purchase,
		"balance_after": entry.BalanceAfter,
	})
}

type userUpsert struct {
	Name  string `json:"name"`
	Coins int    `json:"coins"`
}

// handleUpsertUser creates a user or resets name and balance
func (s *Server) handleUpsertUser(w http.ResponseWriter, r *http.Request) {
	var req userUpsert
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Coins < 0 {
		respondError(w, http.StatusBadRequest, "coins must not be negative")
		return
	}

	user := &models.User{ID: pathParam(r, "id"), Name: req.Name, Coins: req.Coins}
	if err := s.store.UpsertUser(r.Context(), user); err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

type coinGrant struct {
	Amount int    `json:"amount"`
	Reason string `json:"reason"`
}

// handleGrantCoins credits a user
func (s *Server) handleGrantCoins(w http.ResponseWriter, r *http.Request) {
	var req coinGrant
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Reason == "" {
		req.Reason = "admin grant"
	}

	entry, err := s.ledger.Grant(r.Context(), pathParam(r, "id"), req.Amount, req.Reason)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entry)
}
