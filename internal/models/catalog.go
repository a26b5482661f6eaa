package models

// CatalogItem is an archetype or staple entry of the shop catalog
type CatalogItem struct {
	Name     string `json:"name" yaml:"name"`
	Rating   Rating `json:"rating" yaml:"rating"`
	Price    int    `json:"price" yaml:"price"`
	ImageURL string `json:"imageUrl,omitempty" yaml:"image_url,omitempty"`
}

// CustomCard is a card attached to an archetype pool by an admin
type CustomCard struct {
	Name string `json:"name"`
	Data *Card  `json:"data,omitempty"`
}

// ModificationRecord holds admin overrides for one catalog item.
// A nil pointer field inherits the base value.
type ModificationRecord struct {
	Rating        *Rating      `json:"rating,omitempty"`
	Price         *int         `json:"price,omitempty"`
	DisplayName   *string      `json:"displayName,omitempty"`
	ImageURL      *string      `json:"imageUrl,omitempty"`
	CustomCards   []CustomCard `json:"customCards,omitempty"`
	ExcludedCards []string     `json:"excludedCards,omitempty"`
	IsRemoved     bool         `json:"is_removed,omitempty"`
	IsCustom      bool         `json:"is_custom,omitempty"`
}

// Clone returns a deep copy of the record
func (m ModificationRecord) Clone() ModificationRecord {
	out := m
	if m.Rating != nil {
		r := *m.Rating
		out.Rating = &r
	}
	if m.Price != nil {
		p := *m.Price
		out.Price = &p
	}
	if m.DisplayName != nil {
		n := *m.DisplayName
		out.DisplayName = &n
	}
	if m.ImageURL != nil {
		u := *m.ImageURL
		out.ImageURL = &u
	}
	if m.CustomCards != nil {
		out.CustomCards = append([]CustomCard(nil), m.CustomCards...)
	}
	if m.ExcludedCards != nil {
		out.ExcludedCards = append([]string(nil), m.ExcludedCards...)
	}
	return out
}

// Snapshot is the persisted form of the whole catalog overlay
type Snapshot struct {
	Archetypes     map[string]ModificationRecord `json:"archetypes"`
	CustomStaples  []CatalogItem                 `json:"customStaples"`
	RemovedStaples []string                      `json:"removedStaples"`
}

// Clone returns a deep copy of the snapshot with non-nil collections
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Archetypes:     make(map[string]ModificationRecord, len(s.Archetypes)),
		CustomStaples:  append([]CatalogItem{}, s.CustomStaples...),
		RemovedStaples: append([]string{}, s.RemovedStaples...),
	}
	for name, rec := range s.Archetypes {
		out.Archetypes[name] = rec.Clone()
	}
	return out
}
