package resolver

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// ProductResolver returns items from the catalog service. When a current item
// is given, its category is looked up first and the category listing is
// served; without a category the featured listing is served. The current item
// is always excluded from the result.
type ProductResolver struct {
	baseURL string
	client  *http.Client
}

// NewProductResolver creates a resolver backed by the product catalog service.
func NewProductResolver(baseURL string) *ProductResolver {
	return &ProductResolver{
		baseURL: baseURL,
		client:  newHTTPClient(),
	}
}

type catalogProduct struct {
	ID       string `json:"id"`
	Category string `json:"category"`
}

// GetItems implements Resolver.
func (r *ProductResolver) GetItems(ctx context.Context, p Params) ([]Item, error) {
	numResults := normalizeNumResults(p.NumResults)

	category := ""
	if p.CurrentItemID != "" {
		var current catalogProduct
		u := r.baseURL + "/products/id/" + url.PathEscape(p.CurrentItemID)
		if err := getJSON(ctx, r.client, u, &current); err != nil {
			return nil, fmt.Errorf("catalog lookup for item %q: %w", p.CurrentItemID, err)
		}
		category = current.Category
	}

	listing := r.baseURL + "/products/featured"
	if category != "" {
		listing = r.baseURL + "/products/category/" + url.PathEscape(category)
	}

	var products []catalogProduct
	if err := getJSON(ctx, r.client, listing, &products); err != nil {
		return nil, fmt.Errorf("catalog listing: %w", err)
	}

	items := make([]Item, 0, numResults)
	for _, prod := range products {
		if prod.ID == p.CurrentItemID {
			continue
		}
		items = append(items, Item{ItemID: prod.ID})
		if len(items) == numResults {
			break
		}
	}
	return items, nil
}
