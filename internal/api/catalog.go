package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/meur/cardshop/internal/directory"
	"github.com/meur/cardshop/internal/models"
	"github.com/meur/cardshop/internal/overlay"
)

// pathParam returns an unescaped URL parameter; card names carry spaces and punctuation
func pathParam(r *http.Request, key string) string {
	raw := chi.URLParam(r, key)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

type cardView struct {
	models.Card
	BanStatus models.BanStatus `json:"ban_status"`
}

// handleListArchetypes returns visible archetypes with overrides applied
func (s *Server) handleListArchetypes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items := overlay.Search(s.catalog.Archetypes(), q.Get("q"), q.Get("sort"))
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"items":       items,
		"total_count": len(items),
		"version":     s.catalog.Version(),
	})
}

// handleListStaples returns visible staples with overrides applied
func (s *Server) handleListStaples(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items := overlay.Search(s.catalog.Staples(), q.Get("q"), q.Get("sort"))
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"items":       items,
		"total_count": len(items),
		"version":     s.catalog.Version(),
	})
}

func (s *Server) findArchetype(name string) (overlay.Item, bool) {
	for _, it := range s.catalog.Archetypes() {
		if strings.EqualFold(it.Name, name) {
			return it, true
		}
	}
	return overlay.Item{}, false
}

// handleGetArchetype returns a single archetype
func (s *Server) handleGetArchetype(w http.ResponseWriter, r *http.Request) {
	item, ok := s.findArchetype(pathParam(r, "name"))
	if !ok {
		respondError(w, http.StatusNotFound, "Archetype not found")
		return
	}
	respondJSON(w, http.StatusOK, item)
}

// handleGetArchetypeCards returns the resolved card list of an archetype with ban badges
func (s *Server) handleGetArchetypeCards(w http.ResponseWriter, r *http.Request) {
	item, ok := s.findArchetype(pathParam(r, "name"))
	if !ok {
		respondError(w, http.StatusNotFound, "Archetype not found")
		return
	}

	base, err := s.directory.ByArchetype(r.Context(), item.Name)
	if err != nil && !errors.Is(err, directory.ErrNotFound) && !errors.Is(err, directory.ErrUnavailable) {
		respondErr(w, r, err)
		return
	}
	cards := s.catalog.ArchetypeCards(item.Name, base)
	if len(cards) == 0 && errors.Is(err, directory.ErrUnavailable) {
		respondErr(w, r, err)
		return
	}

	views := make([]cardView, 0, len(cards))
	for _, c := range cards {
		views = append(views, cardView{Card: c, BanStatus: s.banlist.Status(c.Name)})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"archetype":   item.Name,
		"cards":       views,
		"total_count": len(views),
	})
}

// handleOverlayVersion reports the overlay version and persistence state
func (s *Server) handleOverlayVersion(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"version": s.catalog.Version()}
	if s.sync != nil {
		resp["sync_pending"] = s.sync.SyncPending()
		resp["state"] = s.sync.State().String()
	}
	respondJSON(w, http.StatusOK, resp)
}
