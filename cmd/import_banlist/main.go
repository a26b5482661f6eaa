package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/apex/log"
	clihander "github.com/apex/log/handlers/cli"
	"github.com/meur/cardshop/internal/banlist"
	"github.com/meur/cardshop/internal/directory"
	"github.com/meur/cardshop/internal/models"
	"github.com/meur/cardshop/internal/storage"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func main() {
	log.SetHandler(clihander.Default)

	dbPath := flag.String("db", "./cardshop.db", "SQLite database path")
	dumpPath := flag.String("dump", "", "Saved cardinfo.php?banlist=tcg response; fetched from the directory when empty")
	baseURL := flag.String("base-url", directory.DefaultBaseURL, "Card directory base URL")
	timeout := flag.Duration("timeout", time.Minute, "Directory request timeout")
	dryRun := flag.Bool("dry-run", false, "Print summary without writing to the database")
	flag.Parse()

	ctx := context.Background()

	cards, err := loadCards(ctx, *dumpPath, *baseURL, *timeout)
	if err != nil {
		log.WithError(err).Fatal("failed to load cards")
	}
	fmt.Printf("%s📦 Loaded %d cards%s\n", colorCyan, len(cards), colorReset)

	store, err := storage.New(*dbPath)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer store.Close()

	existing, err := store.ListBans(ctx)
	if err != nil {
		log.WithError(err).Fatal("failed to read existing banlist")
	}

	entries, counts := diffBans(cards, existing)
	for _, status := range []models.BanStatus{models.BanForbidden, models.BanLimited, models.BanSemiLimited, models.BanUnlimited} {
		fmt.Printf("  %-13s %d\n", status, counts[status])
	}

	if *dryRun {
		log.WithField("entries", len(entries)).Info("dry run: nothing written")
		return
	}

	bans := banlist.New(store)
	if err := bans.BulkUpdateFromExternalSource(ctx, entries); err != nil {
		log.WithError(err).Fatal("failed to import banlist")
	}
	fmt.Printf("%s✓ Banlist now holds %d restricted cards%s\n", colorGreen, len(bans.All()), colorReset)
}

func loadCards(ctx context.Context, dumpPath, baseURL string, timeout time.Duration) ([]models.Card, error) {
	if dumpPath != "" {
		f, err := os.Open(dumpPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return directory.ReadDump(f)
	}
	return directory.NewClient(baseURL, timeout).Banlist(ctx)
}

// diffBans turns the directory's ban info into import rows. Cards the previous
// tcg import restricted but the directory no longer lists are set back to
// unlimited; manual entries are left alone.
func diffBans(cards []models.Card, existing []models.BannedCard) ([]models.BannedCard, map[models.BanStatus]int) {
	seen := make(map[string]bool, len(cards))
	counts := make(map[models.BanStatus]int)
	var entries []models.BannedCard
	for _, c := range cards {
		if c.BanlistInfo == nil || strings.TrimSpace(c.Name) == "" {
			continue
		}
		status := banlist.FromDirectory(c.BanlistInfo.BanTCG)
		if status == models.BanUnlimited {
			continue
		}
		seen[strings.ToLower(c.Name)] = true
		counts[status]++
		entries = append(entries, models.BannedCard{CardName: c.Name, BanStatus: status})
	}

	for _, e := range existing {
		if e.Source != models.SourceTCG || seen[strings.ToLower(e.CardName)] {
			continue
		}
		counts[models.BanUnlimited]++
		entries = append(entries, models.BannedCard{CardName: e.CardName, BanStatus: models.BanUnlimited})
	}
	if counts[models.BanUnlimited] > 0 {
		fmt.Printf("%s⚠ %d card(s) left the banlist%s\n", colorYellow, counts[models.BanUnlimited], colorReset)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].CardName < entries[j].CardName })
	return entries, counts
}
