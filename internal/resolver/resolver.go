// Package resolver provides strategy objects that fetch ranked or unranked
// lists of recommended item identifiers from one specific backend: the product
// catalog, the search service, a personalization inference gateway, a generic
// HTTP endpoint, or a pass-through no-op.
//
// Resolvers are stateless after construction. All network calls are
// synchronous, made inline within GetItems, and fail fast: no retries are
// attempted at this layer.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultNumResults is used when a request does not specify a result count.
const DefaultNumResults = 10

// ErrMissingUserID is returned when a resolver requires a user id and none was given.
var ErrMissingUserID = errors.New("resolver: user id is required")

// ErrMissingItemID is returned when a resolver requires a current item id and none was given.
var ErrMissingItemID = errors.New("resolver: current item id is required")

// ErrMissingItemList is returned when a ranking resolver is called without candidate items.
var ErrMissingItemList = errors.New("resolver: candidate item list is required")

// Metadata is the experiment annotation attached to every item returned
// through an active experiment. VariationKey is the correlation key for the
// serving variation: the decimal variation index for built-in experiments, or
// the external variation label for externally-evaluated experiments.
type Metadata struct {
	ID             string `json:"id"`
	Feature        string `json:"feature"`
	Name           string `json:"name"`
	Type           string `json:"type"`
	VariationIndex int    `json:"variationIndex"`
	VariationKey   string `json:"variationKey,omitempty"`
	ResultRank     int    `json:"resultRank"`
	CorrelationID  string `json:"correlationId"`
}

// Item is one recommended item. Experiment is nil when the item was resolved
// outside of any experiment.
type Item struct {
	ItemID     string    `json:"itemId"`
	Experiment *Metadata `json:"experiment,omitempty"`
}

// Params carries the per-request inputs to a resolution call.
type Params struct {
	UserID        string
	CurrentItemID string
	ItemIDs       []string // Candidate list for ranking resolvers
	NumResults    int
}

// Resolver fetches an ordered list of item identifiers from one backend.
type Resolver interface {
	GetItems(ctx context.Context, p Params) ([]Item, error)
}

// Endpoints holds the base URLs of the backends resolvers talk to. They come
// from central configuration, not from per-variation resolver config.
type Endpoints struct {
	CatalogURL   string
	SearchURL    string
	InferenceURL string
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

// getJSON performs a GET against url and decodes the JSON response into out.
// Non-2xx statuses are errors; the body is drained so connections are reused.
func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("backend error (status %d): %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func normalizeNumResults(n int) int {
	if n <= 0 {
		return DefaultNumResults
	}
	return n
}
