package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	clihander "github.com/apex/log/handlers/cli"
	"github.com/meur/cardshop/internal/api"
	"github.com/meur/cardshop/internal/banlist"
	"github.com/meur/cardshop/internal/config"
	"github.com/meur/cardshop/internal/directory"
	"github.com/meur/cardshop/internal/gacha"
	"github.com/meur/cardshop/internal/ledger"
	"github.com/meur/cardshop/internal/notify"
	"github.com/meur/cardshop/internal/overlay"
	"github.com/meur/cardshop/internal/storage"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	log.SetHandler(clihander.Default)

	cfgPath := flag.String("config", os.Getenv("CARDSHOP_CONFIG"), "Config file (YAML)")
	staticDir := flag.String("static", "", "Serve the built frontend from this directory")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	if cfg.Server.Debug {
		log.SetLevel(log.DebugLevel)
	}

	// Initialize storage
	store, err := storage.New(cfg.DB.Path)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize storage")
	}
	defer store.Close()

	dir, err := directory.NewCached(directory.NewClient(cfg.Directory.BaseURL, cfg.Directory.Timeout), store, cfg.Directory.CacheSize)
	if err != nil {
		log.WithError(err).Fatal("failed to create card directory cache")
	}

	base, err := overlay.LoadBase(cfg.Catalog.Path)
	if err != nil {
		log.WithError(err).Fatal("failed to load base catalog")
	}
	catalog := overlay.NewCatalog(base)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := notify.NewMemoryBus()
	syncer := overlay.NewSynchronizer(catalog, store, bus, cfg.Sync.Topic, overlay.WithDebounce(cfg.Sync.Debounce))
	defer syncer.Close()
	if err := syncer.Load(ctx); err != nil {
		// serve the base catalog; the next successful save repairs the row
		log.WithError(err).Error("failed to load catalog modifications")
	}

	bans := banlist.New(store, banlist.WithBus(bus, cfg.Sync.Topic))
	defer bans.Close()
	bans.Subscribe(func(version uint64) {
		log.WithField("version", version).Debug("banlist changed")
	})
	if err := bans.Load(ctx); err != nil {
		log.WithError(err).Warn("starting with an empty banlist")
	}

	l := ledger.New(store)
	engine := gacha.NewEngine(dir, catalog, l)

	hub := notify.NewHub(bus, cfg.Sync.Topic)
	srv := api.New(api.Deps{
		Store:     store,
		Catalog:   catalog,
		Sync:      syncer,
		Banlist:   bans,
		Ledger:    l,
		Gacha:     engine,
		Directory: dir,
		Hub:       hub,
		Origins:   cfg.CORS.Origins,
		Static:    *staticDir,
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithFields(log.Fields{
			"addr":       cfg.Addr(),
			"db":         cfg.DB.Path,
			"archetypes": len(base.Archetypes),
			"staples":    len(base.Staples),
		}).Info("cardshop API starting")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		hub.Close()
		err := httpServer.Shutdown(shutdownCtx)
		if ferr := syncer.Flush(shutdownCtx); ferr != nil {
			log.WithError(ferr).Error("failed to flush catalog modifications")
		}
		return err
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Fatal("server failed")
	}
	log.Info("server stopped")
}
