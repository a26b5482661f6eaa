package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/apex/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/meur/cardshop/internal/banlist"
	"github.com/meur/cardshop/internal/directory"
	"github.com/meur/cardshop/internal/gacha"
	"github.com/meur/cardshop/internal/ledger"
	"github.com/meur/cardshop/internal/overlay"
	"github.com/meur/cardshop/internal/storage"
)

// Deps are the services the HTTP API serves
type Deps struct {
	Store     *storage.Store
	Catalog   *overlay.Catalog
	Sync      *overlay.Synchronizer
	Banlist   *banlist.Banlist
	Ledger    *ledger.Ledger
	Gacha     *gacha.Engine
	Directory directory.Directory
	// Hub serves /ws when set
	Hub     http.Handler
	Origins []string
	// Static is the built frontend directory, served at / when set
	Static string
}

// Server holds the HTTP server dependencies
type Server struct {
	store     *storage.Store
	catalog   *overlay.Catalog
	sync      *overlay.Synchronizer
	banlist   *banlist.Banlist
	ledger    *ledger.Ledger
	gacha     *gacha.Engine
	directory directory.Directory
	hub       http.Handler
	static    string
	router    chi.Router
}

// New creates a new API server
func New(d Deps) *Server {
	s := &Server{
		store:     d.Store,
		catalog:   d.Catalog,
		sync:      d.Sync,
		banlist:   d.Banlist,
		ledger:    d.Ledger,
		gacha:     d.Gacha,
		directory: d.Directory,
		hub:       d.Hub,
		static:    d.Static,
		router:    chi.NewRouter(),
	}

	s.setupMiddleware(d.Origins)
	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupMiddleware(origins []string) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		// Catalog
		r.Get("/catalog/archetypes", s.handleListArchetypes)
		r.Get("/catalog/archetypes/{name}", s.handleGetArchetype)
		r.Get("/catalog/archetypes/{name}/cards", s.handleGetArchetypeCards)
		r.Get("/catalog/staples", s.handleListStaples)
		r.Get("/overlay/version", s.handleOverlayVersion)

		// Banlist
		r.Get("/banlist", s.handleListBans)
		r.Get("/banlist/{name}", s.handleGetBan)

		// Gacha
		r.Get("/gacha/packs", s.handleListPacks)
		r.Get("/gacha/packs/{id}", s.handleGetPack)
		r.Post("/gacha/packs/{id}/pull", s.handlePull)

		// Users
		r.Get("/users/{id}", s.handleGetUser)
		r.Post("/users/{id}/purchases", s.handlePurchase)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/archetypes", s.handleCreateArchetype)
			r.Patch("/archetypes/{name}", s.handlePatchItem)
			r.Post("/archetypes/{name}/remove", s.handleRemoveItem)
			r.Post("/archetypes/{name}/restore", s.handleRestoreItem)
			r.Post("/archetypes/{name}/cards", s.handleAddArchetypeCard)
			r.Delete("/archetypes/{name}/cards/{card}", s.handleRemoveArchetypeCard)

			r.Post("/staples", s.handleAddStaple)
			r.Patch("/staples/{name}", s.handlePatchItem)
			r.Delete("/staples/{name}", s.handleRemoveStaple)

			r.Put("/banlist/{name}", s.handleSetBan)
			r.Delete("/banlist/{name}", s.handleUnban)
			r.Post("/banlist/refresh", s.handleRefreshBanlist)

			r.Post("/gacha/packs", s.handleCreatePack)
			r.Put("/gacha/packs/{id}", s.handleUpdatePack)
			r.Delete("/gacha/packs/{id}", s.handleDeletePack)

			r.Put("/users/{id}", s.handleUpsertUser)
			r.Post("/users/{id}/coins", s.handleGrantCoins)
		})
	})

	// Admin UI side channel
	s.router.Post("/update-catalog", s.handleUpdateCatalog)

	if s.hub != nil {
		s.router.Handle("/ws", s.hub)
	}
	if s.static != "" {
		FileServer(s.router, "/", http.Dir(s.static))
	}

	// Health check
	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

// FileServer conveniently sets up a http.FileServer handler to serve
// static files from a http.FileSystem.
func FileServer(r chi.Router, path string, root http.FileSystem) {
	if strings.ContainsAny(path, "{}*") {
		panic("FileServer does not permit URL parameters.")
	}

	if path != "/" && path[len(path)-1] != '/' {
		r.Get(path, http.RedirectHandler(path+"/", http.StatusMovedPermanently).ServeHTTP)
		path += "/"
	}
	path += "*"

	r.Get(path, func(w http.ResponseWriter, req *http.Request) {
		rctx := chi.RouteContext(req.Context())
		pathPrefix := strings.TrimSuffix(rctx.RoutePattern(), "/*")
		fs := http.StripPrefix(pathPrefix, http.FileServer(root))
		fs.ServeHTTP(w, req)
	})
}

// --- Response helpers ---

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// statusFor maps domain errors to HTTP statuses
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, ledger.ErrDuplicateOwnership),
		errors.Is(err, storage.ErrDuplicate),
		errors.Is(err, gacha.ErrPackInactive),
		errors.Is(err, gacha.ErrEmptyPool):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrUnknownUser),
		errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, overlay.ErrInvalidMutation),
		errors.Is(err, banlist.ErrInvalidEntry),
		errors.Is(err, ledger.ErrInvalidRequest),
		errors.Is(err, gacha.ErrInvalidPullCount),
		errors.Is(err, gacha.ErrInvalidPack):
		return http.StatusBadRequest
	case errors.Is(err, gacha.ErrNothingResolved),
		errors.Is(err, directory.ErrUnavailable):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).WithFields(log.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("request failed")
		respondError(w, status, "Internal server error")
		return
	}
	respondError(w, status, err.Error())
}
