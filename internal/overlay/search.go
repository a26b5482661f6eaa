package overlay

import (
	"sort"
	"strings"
)

// Sort orders accepted by Search
const (
	SortByName   = "name"
	SortByPrice  = "price"
	SortByRating = "rating"
)

// Search filters items by a case-insensitive substring of the name or display
// name and sorts them. Price and rating sort best first; ties fall back to name.
func Search(items []Item, query, sortBy string) []Item {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if q == "" ||
			strings.Contains(strings.ToLower(it.Name), q) ||
			strings.Contains(strings.ToLower(it.DisplayName), q) {
			out = append(out, it)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch sortBy {
		case SortByPrice:
			if a.Price != b.Price {
				return a.Price > b.Price
			}
		case SortByRating:
			if ra, rb := a.Rating.Rank(), b.Rating.Rank(); ra != rb {
				return ra > rb
			}
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
	return out
}
