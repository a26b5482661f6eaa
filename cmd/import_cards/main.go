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
	"github.com/meur/cardshop/internal/directory"
	"github.com/meur/cardshop/internal/models"
	"github.com/meur/cardshop/internal/overlay"
	"github.com/meur/cardshop/internal/storage"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

const batchSize = 500

func main() {
	log.SetHandler(clihander.Default)

	dbPath := flag.String("db", "./cardshop.db", "SQLite database path")
	dumpPath := flag.String("dump", "", "Saved cardinfo.php response; fetched from the directory when empty")
	baseURL := flag.String("base-url", directory.DefaultBaseURL, "Card directory base URL")
	catalogPath := flag.String("catalog", "", "Base catalog YAML (embedded catalog when empty)")
	timeout := flag.Duration("timeout", 2*time.Minute, "Directory request timeout")
	dryRun := flag.Bool("dry-run", false, "Print summary without writing to the database")
	flag.Parse()

	ctx := context.Background()

	cards, err := loadCards(ctx, *dumpPath, *baseURL, *timeout)
	if err != nil {
		log.WithError(err).Fatal("failed to load cards")
	}
	if len(cards) == 0 {
		log.Fatal("card source is empty")
	}
	fmt.Printf("%s📦 Loaded %d cards%s\n", colorCyan, len(cards), colorReset)

	base, err := overlay.LoadBase(*catalogPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load base catalog")
	}

	rows, perArchetype := tagCards(cards, base.ArchetypeNames())
	missing := 0
	for _, name := range base.ArchetypeNames() {
		if perArchetype[name] == 0 {
			missing++
			fmt.Printf("%s⚠ No cards for catalog archetype %q%s\n", colorYellow, name, colorReset)
		}
	}

	if *dryRun {
		log.WithFields(log.Fields{
			"cards":      len(rows),
			"archetypes": len(perArchetype),
			"missing":    missing,
		}).Info("dry run: nothing written")
		return
	}

	store, err := storage.New(*dbPath)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer store.Close()

	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))
		if err := store.UpsertCards(ctx, rows[start:end]); err != nil {
			log.WithError(err).WithField("offset", start).Fatal("failed to import cards")
		}
		log.WithFields(log.Fields{"done": end, "total": len(rows)}).Debug("imported batch")
	}

	fmt.Printf("%s✓ Imported %d cards across %d archetypes%s\n", colorGreen, len(rows), len(perArchetype), colorReset)
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
	return directory.NewClient(baseURL, timeout).All(ctx)
}

// tagCards attaches archetype tags to each card. Besides the directory's own
// archetype field, a catalog archetype tags every card whose name contains it,
// which is how name-keyed archetypes like "Blue-Eyes" pick up support cards.
func tagCards(cards []models.Card, catalog []string) ([]storage.CachedCard, map[string]int) {
	rows := make([]storage.CachedCard, 0, len(cards))
	counts := make(map[string]int)
	for _, c := range cards {
		if strings.TrimSpace(c.Name) == "" {
			continue
		}
		var tags []string
		if c.Archetype != "" {
			tags = append(tags, c.Archetype)
		}
		lower := strings.ToLower(c.Name)
		for _, name := range catalog {
			if strings.EqualFold(name, c.Archetype) {
				continue
			}
			if strings.Contains(lower, strings.ToLower(name)) {
				tags = append(tags, name)
			}
		}
		sort.Strings(tags)
		for _, t := range tags {
			counts[t]++
		}
		rows = append(rows, storage.CachedCard{Card: c, Archetypes: tags})
	}
	return rows, counts
}
