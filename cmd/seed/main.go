package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"os"
	"path/filepath"

	"github.com/apex/log"
	clihander "github.com/apex/log/handlers/cli"
	"github.com/meur/cardshop/internal/gacha"
	"github.com/meur/cardshop/internal/models"
	"github.com/meur/cardshop/internal/storage"
)

type seedPack struct {
	ID string `json:"id"`
	models.GachaPackCreate
}

func main() {
	log.SetHandler(clihander.Default)

	dbPath := flag.String("db", "./cardshop.db", "SQLite database path")
	seedsDir := flag.String("seeds", "./seeds", "Seeds directory")
	flag.Parse()

	store, err := storage.New(*dbPath)
	if err != nil {
		log.WithError(err).Fatal("failed to open database")
	}
	defer store.Close()

	ctx := context.Background()

	if err := seedUsers(ctx, store, filepath.Join(*seedsDir, "users.json")); err != nil {
		log.WithError(err).Warn("failed to seed users")
	}
	if err := seedPacks(ctx, store, filepath.Join(*seedsDir, "packs.json")); err != nil {
		log.WithError(err).Warn("failed to seed packs")
	}

	log.Info("seeding complete")
}

func readSeed(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func seedUsers(ctx context.Context, store *storage.Store, path string) error {
	var users []models.User
	if err := readSeed(path, &users); err != nil {
		return err
	}
	for i := range users {
		if err := store.UpsertUser(ctx, &users[i]); err != nil {
			return err
		}
		log.WithFields(log.Fields{"user": users[i].ID, "coins": users[i].Coins}).Info("seeded user")
	}
	return nil
}

// seedPacks creates packs with their fixed ids; packs that already exist are left alone
func seedPacks(ctx context.Context, store *storage.Store, path string) error {
	var packs []seedPack
	if err := readSeed(path, &packs); err != nil {
		return err
	}
	for _, p := range packs {
		req := p.GachaPackCreate
		if err := gacha.ValidatePack(&req); err != nil {
			log.WithError(err).WithField("pack", p.ID).Warn("skipping pack")
			continue
		}
		_, err := store.CreatePack(ctx, p.ID, &req)
		if errors.Is(err, storage.ErrDuplicate) {
			log.WithField("pack", p.ID).Debug("pack exists")
			continue
		}
		if err != nil {
			return err
		}
		log.WithFields(log.Fields{"pack": p.ID, "pool": len(req.CardPool)}).Info("seeded pack")
	}
	return nil
}
