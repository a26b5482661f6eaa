package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/apex/log"
	"github.com/meur/cardshop/internal/models"
)

type itemPatch struct {
	Rating      *string `json:"rating"`
	Price       *int    `json:"price"`
	DisplayName *string `json:"display_name"`
	ImageURL    *string `json:"image_url"`
}

func (s *Server) respondRecord(w http.ResponseWriter, status int, name string) {
	rec, _ := s.catalog.Record(name)
	respondJSON(w, status, map[string]interface{}{
		"name":    name,
		"record":  rec,
		"version": s.catalog.Version(),
	})
}

// handlePatchItem applies field overrides to an archetype or staple.
// A price in the same request wins over the price derived from the rating.
func (s *Server) handlePatchItem(w http.ResponseWriter, r *http.Request) {
	name := pathParam(r, "name")
	var req itemPatch
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Rating != nil {
		rating, err := models.ParseRating(*req.Rating)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := s.catalog.SetRating(name, rating); err != nil {
			respondErr(w, r, err)
			return
		}
	}
	if req.Price != nil {
		if err := s.catalog.SetPrice(name, *req.Price); err != nil {
			respondErr(w, r, err)
			return
		}
	}
	if req.DisplayName != nil {
		if err := s.catalog.SetDisplayName(name, *req.DisplayName); err != nil {
			respondErr(w, r, err)
			return
		}
	}
	if req.ImageURL != nil {
		if err := s.catalog.SetImageURL(name, *req.ImageURL); err != nil {
			respondErr(w, r, err)
			return
		}
	}

	s.respondRecord(w, http.StatusOK, name)
}

// handleRemoveItem soft-deletes a catalog item
func (s *Server) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	name := pathParam(r, "name")
	if err := s.catalog.MarkRemoved(name); err != nil {
		respondErr(w, r, err)
		return
	}
	s.respondRecord(w, http.StatusOK, name)
}

// handleRestoreItem clears a soft delete
func (s *Server) handleRestoreItem(w http.ResponseWriter, r *http.Request) {
	name := pathParam(r, "name")
	if err := s.catalog.Restore(name); err != nil {
		respondErr(w, r, err)
		return
	}
	s.respondRecord(w, http.StatusOK, name)
}

type archetypeCreate struct {
	Name   string `json:"name"`
	Rating string `json:"rating"`
}

// handleCreateArchetype adds an overlay-only archetype
func (s *Server) handleCreateArchetype(w http.ResponseWriter, r *http.Request) {
	var req archetypeCreate
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Rating == "" {
		req.Rating = string(models.RatingC)
	}
	rating, err := models.ParseRating(req.Rating)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := strings.TrimSpace(req.Name)
	if err := s.catalog.AddCustomArchetype(name, rating); err != nil {
		respondErr(w, r, err)
		return
	}
	s.respondRecord(w, http.StatusCreated, name)
}

// handleAddArchetypeCard attaches a card to an archetype pool. Without card
// data the directory is asked for it; a miss still attaches the bare name.
func (s *Server) handleAddArchetypeCard(w http.ResponseWriter, r *http.Request) {
	archetype := pathParam(r, "name")
	var req models.CustomCard
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)

	if req.Data == nil && req.Name != "" && s.directory != nil {
		card, err := s.directory.ByName(r.Context(), req.Name)
		if err == nil {
			req.Data = card
		} else {
			log.WithError(err).WithField("card", req.Name).Debug("adding card without directory data")
		}
	}

	if err := s.catalog.AddCustomCardToArchetype(archetype, req); err != nil {
		respondErr(w, r, err)
		return
	}
	s.respondRecord(w, http.StatusCreated, archetype)
}

// handleRemoveArchetypeCard drops a card from an archetype pool
func (s *Server) handleRemoveArchetypeCard(w http.ResponseWriter, r *http.Request) {
	archetype := pathParam(r, "name")
	if err := s.catalog.RemoveCardFromArchetype(archetype, pathParam(r, "card")); err != nil {
		respondErr(w, r, err)
		return
	}
	s.respondRecord(w, http.StatusOK, archetype)
}

type stapleCreate struct {
	Name     string `json:"name"`
	Rating   string `json:"rating"`
	Price    int    `json:"price"`
	ImageURL string `json:"image_url"`
}

// handleAddStaple adds a custom staple or restores a removed base staple
func (s *Server) handleAddStaple(w http.ResponseWriter, r *http.Request) {
	var req stapleCreate
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Rating == "" {
		req.Rating = string(models.RatingC)
	}
	rating, err := models.ParseRating(req.Rating)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	item := models.CatalogItem{Name: strings.TrimSpace(req.Name), Price: req.Price, ImageURL: req.ImageURL}
	if err := s.catalog.AddCustomStaple(item, rating); err != nil {
		respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"staples": s.catalog.Staples(),
		"version": s.catalog.Version(),
	})
}

// handleRemoveStaple removes a custom staple or hides a base staple
func (s *Server) handleRemoveStaple(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.RemoveStaple(pathParam(r, "name")); err != nil {
		respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type catalogUpdate struct {
	ArchetypeName string `json:"archetypeName"`
	Rating        string `json:"rating"`
	Price         *int   `json:"price"`
}

// handleUpdateCatalog is the admin UI's best-effort catalog rewrite. The
// overlay is updated and persisted through the synchronizer like any other edit.
func (s *Server) handleUpdateCatalog(w http.ResponseWriter, r *http.Request) {
	var req catalogUpdate
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.ArchetypeName) == "" {
		respondError(w, http.StatusBadRequest, "archetypeName is required")
		return
	}

	var errs []error
	if req.Rating != "" {
		rating, err := models.ParseRating(req.Rating)
		if err == nil {
			err = s.catalog.SetRating(req.ArchetypeName, rating)
		}
		errs = append(errs, err)
	}
	if req.Price != nil {
		errs = append(errs, s.catalog.SetPrice(req.ArchetypeName, *req.Price))
	}
	if err := errors.Join(errs...); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"success": true,
		"version": s.catalog.Version(),
	})
}
