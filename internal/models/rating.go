package models

import (
	"fmt"
	"strings"
)

// Rating is the ordinal strength grade of a catalog item (F < D < C < B < A < S < S+)
type Rating string

const (
	RatingF     Rating = "F"
	RatingD     Rating = "D"
	RatingC     Rating = "C"
	RatingB     Rating = "B"
	RatingA     Rating = "A"
	RatingS     Rating = "S"
	RatingSPlus Rating = "S+"
)

// RatingTier describes how a rating is priced and rendered
type RatingTier struct {
	Rating Rating `json:"rating"`
	Color  string `json:"color"`
	Order  int    `json:"order"`
	Price  int    `json:"price"`
}

var ratingTiers = []RatingTier{
	{Rating: RatingSPlus, Color: "#ff4f9a", Order: 0, Price: 400},
	{Rating: RatingS, Color: "#ff7f7f", Order: 1, Price: 200},
	{Rating: RatingA, Color: "#ffbf7f", Order: 2, Price: 100},
	{Rating: RatingB, Color: "#ffff7f", Order: 3, Price: 50},
	{Rating: RatingC, Color: "#7fff7f", Order: 4, Price: 25},
	{Rating: RatingD, Color: "#7fbfff", Order: 5, Price: 10},
	{Rating: RatingF, Color: "#ff7fff", Order: 6, Price: 0},
}

// RatingTiers returns the S+..F tier table, best first
func RatingTiers() []RatingTier {
	out := make([]RatingTier, len(ratingTiers))
	copy(out, ratingTiers)
	return out
}

// Valid reports whether r is one of the known ratings
func (r Rating) Valid() bool {
	_, ok := r.tier()
	return ok
}

// Price returns the fixed shop price for the rating; unknown ratings cost 0
func (r Rating) Price() int {
	t, _ := r.tier()
	return t.Price
}

// Rank orders ratings so that F=0 and S+=6
func (r Rating) Rank() int {
	t, ok := r.tier()
	if !ok {
		return -1
	}
	return len(ratingTiers) - 1 - t.Order
}

func (r Rating) tier() (RatingTier, bool) {
	for _, t := range ratingTiers {
		if t.Rating == r {
			return t, true
		}
	}
	return RatingTier{}, false
}

// ParseRating accepts ratings case-insensitively ("s+", "S+", "a")
func ParseRating(s string) (Rating, error) {
	r := Rating(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown rating %q", s)
	}
	return r, nil
}
