package api

import (
	"net/http"

	"github.com/meur/cardshop/internal/models"
)

// handleListBans returns every restricted card
func (s *Server) handleListBans(w http.ResponseWriter, r *http.Request) {
	bans := s.banlist.All()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"items":       bans,
		"total_count": len(bans),
		"version":     s.banlist.Version(),
	})
}

// handleGetBan returns the status of one card; unlisted cards are unlimited
func (s *Server) handleGetBan(w http.ResponseWriter, r *http.Request) {
	name := pathParam(r, "name")
	if entry, ok := s.banlist.Entry(name); ok {
		respondJSON(w, http.StatusOK, entry)
		return
	}
	respondJSON(w, http.StatusOK, models.BannedCard{CardName: name, BanStatus: models.BanUnlimited})
}

type banUpdate struct {
	BanStatus models.BanStatus `json:"ban_status"`
	Source    models.BanSource `json:"source"`
}

// handleSetBan sets a card's status
func (s *Server) handleSetBan(w http.ResponseWriter, r *http.Request) {
	name := pathParam(r, "name")
	var req banUpdate
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Source == "" {
		req.Source = models.SourceManual
	}

	if err := s.banlist.SetStatus(r.Context(), name, req.BanStatus, req.Source); err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, models.BannedCard{CardName: name, BanStatus: s.banlist.Status(name), Source: req.Source})
}

// handleUnban deletes a card's row
func (s *Server) handleUnban(w http.ResponseWriter, r *http.Request) {
	if err := s.banlist.Unban(r.Context(), pathParam(r, "name")); err != nil {
		respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRefreshBanlist reloads the cache from the store
func (s *Server) handleRefreshBanlist(w http.ResponseWriter, r *http.Request) {
	if err := s.banlist.Load(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "Failed to reload banlist")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"total_count": len(s.banlist.All())})
}
