package api

import (
	"errors"
	"net/http"

	"github.com/meur/cardshop/internal/gacha"
	"github.com/meur/cardshop/internal/models"
)

// handleListPacks returns active packs, or every pack with ?all=true
func (s *Server) handleListPacks(w http.ResponseWriter, r *http.Request) {
	packs, err := s.store.ListPacks(r.Context(), r.URL.Query().Get("all") != "true")
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch packs")
		return
	}
	if packs == nil {
		packs = []models.GachaPack{}
	}
	respondJSON(w, http.StatusOK, packs)
}

// handleGetPack returns a single pack
func (s *Server) handleGetPack(w http.ResponseWriter, r *http.Request) {
	pack, err := s.store.GetPack(r.Context(), pathParam(r, "id"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, pack)
}

type pullRequest struct {
	UserID string `json:"user_id"`
	Count  int    `json:"count"`
}

type pullResponse struct {
	*gacha.PullSummary
	Partial bool   `json:"partial"`
	Error   string `json:"error,omitempty"`
}

// handlePull opens a pack (count 9) or a box (count 216).
// 402 means no coins were spent; partial=true means some cards could not be added.
// A 500 carrying results means the coins were spent but the collection was not updated.
func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	var req pullRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if req.Count == 0 {
		req.Count = gacha.PackPulls
	}

	pack, err := s.store.GetPack(r.Context(), pathParam(r, "id"))
	if err != nil {
		respondErr(w, r, err)
		return
	}

	summary, err := s.gacha.Pull(r.Context(), gacha.PullRequest{Pack: *pack, Count: req.Count, UserID: req.UserID})
	if errors.Is(err, gacha.ErrNothingResolved) {
		respondJSON(w, http.StatusBadGateway, pullResponse{PullSummary: summary, Error: err.Error()})
		return
	}
	if errors.Is(err, gacha.ErrNotRecorded) {
		// coins are already spent; the client still gets what was pulled
		respondJSON(w, http.StatusInternalServerError, pullResponse{
			PullSummary: summary,
			Partial:     summary.Partial(),
			Error:       gacha.ErrNotRecorded.Error(),
		})
		return
	}
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, pullResponse{PullSummary: summary, Partial: summary.Partial()})
}

// handleCreatePack creates a pack
func (s *Server) handleCreatePack(w http.ResponseWriter, r *http.Request) {
	var req models.GachaPackCreate
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := gacha.ValidatePack(&req); err != nil {
		respondErr(w, r, err)
		return
	}

	pack, err := s.store.CreatePack(r.Context(), "", &req)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, pack)
}

// handleUpdatePack replaces a pack's editable fields
func (s *Server) handleUpdatePack(w http.ResponseWriter, r *http.Request) {
	var req models.GachaPackCreate
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := gacha.ValidatePack(&req); err != nil {
		respondErr(w, r, err)
		return
	}

	pack, err := s.store.UpdatePack(r.Context(), pathParam(r, "id"), &req)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, pack)
}

// handleDeletePack deletes a pack
func (s *Server) handleDeletePack(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeletePack(r.Context(), pathParam(r, "id")); err != nil {
		respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
