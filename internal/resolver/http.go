package resolver

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Default query parameter names for the generic HTTP resolver. Unlike every
// other resolver parameter these may be omitted and are defaulted.
const (
	defaultUserParam       = "userId"
	defaultItemParam       = "itemId"
	defaultNumResultsParam = "numResults"
)

// HTTPResolver performs a GET against an arbitrary recommendation endpoint
// with configurable query parameter names, and maps the upstream response's
// "id" field to the standard item shape.
type HTTPResolver struct {
	baseURL         string
	userParam       string
	itemParam       string
	numResultsParam string
	client          *http.Client
}

// NewHTTPResolver creates a generic HTTP resolver. The base URL is required;
// unset parameter names fall back to userId/itemId/numResults.
func NewHTTPResolver(cfg Config) (*HTTPResolver, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("http resolver requires baseUrl")
	}
	r := &HTTPResolver{
		baseURL:         cfg.BaseURL,
		userParam:       cfg.UserParam,
		itemParam:       cfg.ItemParam,
		numResultsParam: cfg.NumResultsParam,
		client:          newHTTPClient(),
	}
	if r.userParam == "" {
		r.userParam = defaultUserParam
	}
	if r.itemParam == "" {
		r.itemParam = defaultItemParam
	}
	if r.numResultsParam == "" {
		r.numResultsParam = defaultNumResultsParam
	}
	return r, nil
}

// GetItems implements Resolver.
func (r *HTTPResolver) GetItems(ctx context.Context, p Params) ([]Item, error) {
	numResults := normalizeNumResults(p.NumResults)

	q := url.Values{}
	q.Set(r.numResultsParam, strconv.Itoa(numResults))
	if p.UserID != "" {
		q.Set(r.userParam, p.UserID)
	}
	if p.CurrentItemID != "" {
		q.Set(r.itemParam, p.CurrentItemID)
	}

	sep := "?"
	if u, err := url.Parse(r.baseURL); err == nil && u.RawQuery != "" {
		sep = "&"
	}

	var upstream []struct {
		ID string `json:"id"`
	}
	if err := getJSON(ctx, r.client, r.baseURL+sep+q.Encode(), &upstream); err != nil {
		return nil, fmt.Errorf("http resolver: %w", err)
	}

	items := make([]Item, 0, numResults)
	for _, rec := range upstream {
		items = append(items, Item{ItemID: rec.ID})
		if len(items) == numResults {
			break
		}
	}
	return items, nil
}
