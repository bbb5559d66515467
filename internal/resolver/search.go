package resolver

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// SimilarProductsResolver returns items similar to the current item, as
// ranked by the search service. A current item id is required.
type SimilarProductsResolver struct {
	baseURL string
	client  *http.Client
}

// NewSimilarProductsResolver creates a resolver backed by the search service.
func NewSimilarProductsResolver(baseURL string) *SimilarProductsResolver {
	return &SimilarProductsResolver{
		baseURL: baseURL,
		client:  newHTTPClient(),
	}
}

// GetItems implements Resolver.
func (r *SimilarProductsResolver) GetItems(ctx context.Context, p Params) ([]Item, error) {
	if p.CurrentItemID == "" {
		return nil, ErrMissingItemID
	}
	numResults := normalizeNumResults(p.NumResults)

	q := url.Values{}
	q.Set("productId", p.CurrentItemID)
	q.Set("numResults", strconv.Itoa(numResults))

	var items []Item
	if err := getJSON(ctx, r.client, r.baseURL+"/similar/products?"+q.Encode(), &items); err != nil {
		return nil, fmt.Errorf("similar products for %q: %w", p.CurrentItemID, err)
	}

	if len(items) > numResults {
		items = items[:numResults]
	}
	return items, nil
}
