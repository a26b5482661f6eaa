// Package directory looks cards up in the external card directory.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/meur/cardshop/internal/models"
)

var (
	// ErrNotFound means the directory has no card matching the query
	ErrNotFound = errors.New("no card matching query")
	// ErrUnavailable means the directory could not be reached or answered garbage
	ErrUnavailable = errors.New("card directory unavailable")
)

// DefaultBaseURL is the public YGOPRODeck API
const DefaultBaseURL = "https://db.ygoprodeck.com/api/v7"

// Directory resolves archetypes and exact card names to card records
type Directory interface {
	ByArchetype(ctx context.Context, archetype string) ([]models.Card, error)
	ByName(ctx context.Context, name string) (*models.Card, error)
}

// Client queries the directory over HTTP
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client with a per-request timeout
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type cardInfoResponse struct {
	Data  []models.Card `json:"data"`
	Error string        `json:"error,omitempty"`
}

// ByArchetype returns every card of an archetype
func (c *Client) ByArchetype(ctx context.Context, archetype string) ([]models.Card, error) {
	return c.cardInfo(ctx, "archetype", archetype)
}

// ByName returns the card with the exact name
func (c *Client) ByName(ctx context.Context, name string) (*models.Card, error) {
	cards, err := c.cardInfo(ctx, "name", name)
	if err != nil {
		return nil, err
	}
	for i := range cards {
		if strings.EqualFold(cards[i].Name, name) {
			return &cards[i], nil
		}
	}
	return &cards[0], nil
}

// All returns every card the directory knows; used by the card importer
func (c *Client) All(ctx context.Context) ([]models.Card, error) {
	return c.cardInfo(ctx, "", "")
}

// Banlist returns every card on the current TCG banlist with its banlist_info
func (c *Client) Banlist(ctx context.Context) ([]models.Card, error) {
	return c.cardInfo(ctx, "banlist", "tcg")
}

func (c *Client) cardInfo(ctx context.Context, key, value string) ([]models.Card, error) {
	u := c.baseURL + "/cardinfo.php"
	if key != "" {
		u += "?" + url.Values{key: {value}}.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, resp.Status)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: %s=%q (%s)", ErrNotFound, key, value, resp.Status)
	}

	var body cardInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if len(body.Data) == 0 {
		return nil, fmt.Errorf("%w: %s=%q", ErrNotFound, key, value)
	}
	return body.Data, nil
}

// ReadDump decodes a saved cardinfo.php response, as used for offline imports
func ReadDump(r io.Reader) ([]models.Card, error) {
	var body cardInfoResponse
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode card dump: %w", err)
	}
	return body.Data, nil
}
