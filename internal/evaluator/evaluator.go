// Package evaluator is the client for an external experimentation service.
// The service owns variation assignment for "external" experiments; this
// process only asks which variation a user is in and reports outcome metrics
// back.
package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mbolshakov/gotrial/internal/resolver"
)

// ErrNoDecision is returned when the external service has no active
// assignment for the (feature, user) pair.
var ErrNoDecision = errors.New("evaluator: no decision for user")

// Decision is the external service's variation assignment for one user. The
// resolver config tells this process how to fetch items for the assigned
// variation.
type Decision struct {
	VariationKey string          `json:"variationKey"`
	Resolver     resolver.Config `json:"resolver"`
}

// Metric is one outcome observation reported back to the external service.
type Metric struct {
	Feature      string  `json:"feature"`
	Name         string  `json:"name"`
	UserID       string  `json:"userId"`
	VariationKey string  `json:"variationKey"`
	Value        float64 `json:"value"`
	Timestamp    string  `json:"timestamp"`
}

// Evaluator decides variation assignments and receives outcome metrics.
type Evaluator interface {
	Evaluate(ctx context.Context, feature, userID string) (Decision, error)
	SendMetric(ctx context.Context, m Metric) error
}

// Client talks to the external evaluation service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates an evaluator client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate asks the external service which variation the user is assigned to
// for the feature. A 404 means no assignment (ErrNoDecision).
func (c *Client) Evaluate(ctx context.Context, feature, userID string) (Decision, error) {
	u := fmt.Sprintf("%s/v1/features/%s/evaluate?userId=%s",
		c.baseURL, url.PathEscape(feature), url.QueryEscape(userID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Decision{}, fmt.Errorf("evaluation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Decision{}, ErrNoDecision
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Decision{}, fmt.Errorf("evaluator error (status %d): %s", resp.StatusCode, string(body))
	}

	var d Decision
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return Decision{}, fmt.Errorf("failed to decode decision: %w", err)
	}
	if d.VariationKey == "" {
		return Decision{}, ErrNoDecision
	}
	return d, nil
}

// SendMetric reports one outcome metric to the external service.
func (c *Client) SendMetric(ctx context.Context, m Metric) error {
	if m.Timestamp == "" {
		m.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal metric: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/metrics", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("metric request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("evaluator error (status %d)", resp.StatusCode)
	}
	return nil
}
