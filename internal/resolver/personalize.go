package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// RecommendationsResolver returns the ranked list produced by a trained
// recommender model behind the inference gateway. The model is identified by
// a campaign ARN carried in the variation config. At least one of user id and
// current item id must be supplied per request; an optional exclusion filter
// narrows the candidate set.
type RecommendationsResolver struct {
	baseURL     string
	campaignARN string
	filterARN   string
	client      *http.Client
}

// NewRecommendationsResolver creates an inference-backed recommendations resolver.
// The campaign ARN is required.
func NewRecommendationsResolver(baseURL, campaignARN, filterARN string) (*RecommendationsResolver, error) {
	if campaignARN == "" {
		return nil, fmt.Errorf("recommendations resolver requires campaignArn")
	}
	return &RecommendationsResolver{
		baseURL:     baseURL,
		campaignARN: campaignARN,
		filterARN:   filterARN,
		client:      newHTTPClient(),
	}, nil
}

// GetItems implements Resolver.
func (r *RecommendationsResolver) GetItems(ctx context.Context, p Params) ([]Item, error) {
	if p.UserID == "" && p.CurrentItemID == "" {
		return nil, fmt.Errorf("recommendations resolver requires a user id or an item id")
	}

	q := url.Values{}
	q.Set("campaignArn", r.campaignARN)
	q.Set("numResults", strconv.Itoa(normalizeNumResults(p.NumResults)))
	if p.UserID != "" {
		q.Set("userId", p.UserID)
	}
	if p.CurrentItemID != "" {
		q.Set("itemId", p.CurrentItemID)
	}
	if r.filterARN != "" {
		q.Set("filterArn", r.filterARN)
	}

	// The model's ranking is returned verbatim; no reordering or truncation
	// happens here beyond what numResults asked the backend for.
	var items []Item
	if err := getJSON(ctx, r.client, r.baseURL+"/recommendations?"+q.Encode(), &items); err != nil {
		return nil, fmt.Errorf("inference recommend: %w", err)
	}
	return items, nil
}

// RankingResolver reorders a caller-supplied candidate list using a reranking
// model behind the inference gateway. Both a user id and a non-empty
// candidate list are required per request.
type RankingResolver struct {
	baseURL     string
	campaignARN string
	client      *http.Client
}

// NewRankingResolver creates an inference-backed reranking resolver.
// The campaign ARN is required.
func NewRankingResolver(baseURL, campaignARN string) (*RankingResolver, error) {
	if campaignARN == "" {
		return nil, fmt.Errorf("ranking resolver requires campaignArn")
	}
	return &RankingResolver{
		baseURL:     baseURL,
		campaignARN: campaignARN,
		client:      newHTTPClient(),
	}, nil
}

type rankRequest struct {
	CampaignARN string   `json:"campaignArn"`
	UserID      string   `json:"userId"`
	InputList   []string `json:"inputList"`
}

// GetItems implements Resolver.
func (r *RankingResolver) GetItems(ctx context.Context, p Params) ([]Item, error) {
	if p.UserID == "" {
		return nil, ErrMissingUserID
	}
	if len(p.ItemIDs) == 0 {
		return nil, ErrMissingItemList
	}

	body, err := json.Marshal(rankRequest{
		CampaignARN: r.campaignARN,
		UserID:      p.UserID,
		InputList:   p.ItemIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference rerank: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("inference rerank error (status %d): %s", resp.StatusCode, string(msg))
	}

	var items []Item
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("failed to decode rerank response: %w", err)
	}
	return items, nil
}
