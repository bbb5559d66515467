package evaluator

import (
	"context"
	"errors"
	"testing"
	"time"
)

type countingEvaluator struct {
	calls    int
	decision Decision
	err      error
}

func (c *countingEvaluator) Evaluate(_ context.Context, _, _ string) (Decision, error) {
	c.calls++
	if c.err != nil {
		return Decision{}, c.err
	}
	return c.decision, nil
}

func (c *countingEvaluator) SendMetric(_ context.Context, _ Metric) error { return nil }

func TestCached_ServesFromCacheWithinTTL(t *testing.T) {
	inner := &countingEvaluator{decision: Decision{VariationKey: "v1"}}
	c := NewCached(inner, 30*time.Second)

	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		d, err := c.Evaluate(ctx, "feat", "u1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d.VariationKey != "v1" {
			t.Errorf("expected v1, got %q", d.VariationKey)
		}
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 upstream call within TTL, got %d", inner.calls)
	}
}

func TestCached_RefreshesAfterTTL(t *testing.T) {
	inner := &countingEvaluator{decision: Decision{VariationKey: "v1"}}
	c := NewCached(inner, 30*time.Second)

	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	ctx := context.Background()
	_, _ = c.Evaluate(ctx, "feat", "u1")

	now = now.Add(31 * time.Second)
	_, _ = c.Evaluate(ctx, "feat", "u1")

	if inner.calls != 2 {
		t.Errorf("expected refresh after TTL, got %d calls", inner.calls)
	}
}

func TestCached_KeysByUserAndFeature(t *testing.T) {
	inner := &countingEvaluator{decision: Decision{VariationKey: "v1"}}
	c := NewCached(inner, 30*time.Second)

	ctx := context.Background()
	_, _ = c.Evaluate(ctx, "feat-a", "u1")
	_, _ = c.Evaluate(ctx, "feat-b", "u1")
	_, _ = c.Evaluate(ctx, "feat-a", "u2")

	if inner.calls != 3 {
		t.Errorf("expected 3 distinct cache keys, got %d calls", inner.calls)
	}
}

func TestCached_CachesNoDecision(t *testing.T) {
	inner := &countingEvaluator{err: ErrNoDecision}
	c := NewCached(inner, 30*time.Second)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := c.Evaluate(ctx, "feat", "u1")
		if !errors.Is(err, ErrNoDecision) {
			t.Fatalf("expected ErrNoDecision, got %v", err)
		}
	}
	if inner.calls != 1 {
		t.Errorf("expected negative result to be cached, got %d calls", inner.calls)
	}
}

func TestCached_DoesNotCacheTransientErrors(t *testing.T) {
	inner := &countingEvaluator{err: errors.New("connection refused")}
	c := NewCached(inner, 30*time.Second)

	ctx := context.Background()
	_, _ = c.Evaluate(ctx, "feat", "u1")
	_, _ = c.Evaluate(ctx, "feat", "u1")

	if inner.calls != 2 {
		t.Errorf("transient errors must not be cached, got %d calls", inner.calls)
	}
}

func TestNewCached_DefaultTTL(t *testing.T) {
	c := NewCached(&countingEvaluator{}, 0)
	if c.ttl != DefaultTTL {
		t.Errorf("expected default TTL %v, got %v", DefaultTTL, c.ttl)
	}
}
