package experiment

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mbolshakov/gotrial/internal/evaluator"
	"github.com/mbolshakov/gotrial/internal/resolver"
	"github.com/mbolshakov/gotrial/internal/store"
)

// fakeEvaluator returns a fixed decision and records metric calls.
type fakeEvaluator struct {
	decision evaluator.Decision
	err      error
	metrics  []evaluator.Metric
}

func (f *fakeEvaluator) Evaluate(_ context.Context, _, _ string) (evaluator.Decision, error) {
	if f.err != nil {
		return evaluator.Decision{}, f.err
	}
	return f.decision, nil
}

func (f *fakeEvaluator) SendMetric(_ context.Context, m evaluator.Metric) error {
	f.metrics = append(f.metrics, m)
	return nil
}

func externalDefinition() *store.Experiment {
	return &store.Experiment{
		ID:      "ext-1",
		Feature: "live_recs",
		Name:    "engine-rollout",
		Type:    store.TypeExternal,
		Status:  store.StatusActive,
		Variations: []store.Variation{
			staticVariation("default"),
		},
	}
}

func newExternal(t *testing.T, st store.Store, eval evaluator.Evaluator, lists map[string][]string) *ExternalExperiment {
	t.Helper()
	def := externalDefinition()
	factory := testFactory(lists)
	b, err := newBase(def, st, factory, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return &ExternalExperiment{base: b, eval: eval, factory: factory}
}

func TestExternal_ServesDecisionVariation(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	_ = st.Create(ctx, *externalDefinition())

	lists := map[string][]string{
		"default":   {"d1", "d2"},
		"treatment": {"t1", "t2"},
	}
	fake := &fakeEvaluator{decision: evaluator.Decision{
		VariationKey: "new-ranker",
		Resolver:     resolver.Config{Type: "static", BaseURL: "treatment"},
	}}
	e := newExternal(t, st, fake, lists)

	items, err := e.GetItems(ctx, Request{UserID: "u1", NumResults: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 || items[0].ItemID != "t1" {
		t.Errorf("expected treatment items, got %+v", items)
	}

	for _, item := range items {
		md := item.Experiment
		if md == nil {
			t.Fatal("expected experiment metadata")
		}
		if md.VariationKey != "new-ranker" {
			t.Errorf("expected external label key, got %q", md.VariationKey)
		}
		corr, err := DecodeCorrelation(md.CorrelationID)
		if err != nil {
			t.Fatalf("invalid correlation token: %v", err)
		}
		if corr.VariationKey != "new-ranker" {
			t.Errorf("correlation carries key %q, want external label", corr.VariationKey)
		}
	}

	// Exposure is reported to the engine with the sentinel value.
	if len(fake.metrics) != 1 {
		t.Fatalf("expected 1 metric, got %d", len(fake.metrics))
	}
	if fake.metrics[0].Value != exposureMetricValue {
		t.Errorf("expected exposure sentinel %v, got %v", exposureMetricValue, fake.metrics[0].Value)
	}
}

func TestExternal_NoDecisionFallsBack(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	_ = st.Create(ctx, *externalDefinition())

	lists := map[string][]string{"default": {"d1", "d2"}}
	fake := &fakeEvaluator{err: evaluator.ErrNoDecision}
	e := newExternal(t, st, fake, lists)

	items, err := e.GetItems(ctx, Request{UserID: "u1", NumResults: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 || items[0].ItemID != "d1" {
		t.Errorf("expected default variation items, got %+v", items)
	}
	// Unenrolled users are served the plain default: no annotation, no metric.
	if items[0].Experiment != nil {
		t.Error("fallback items must not carry experiment metadata")
	}
	if len(fake.metrics) != 0 {
		t.Errorf("no exposure metric expected for unenrolled user, got %d", len(fake.metrics))
	}
}

func TestExternal_ConversionReportsMetric(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	_ = st.Create(ctx, *externalDefinition())

	fake := &fakeEvaluator{}
	e := newExternal(t, st, fake, map[string][]string{"default": {"d1"}})

	at := time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)
	count, err := e.TrackConversion(ctx, Correlation{
		ExperimentID: "ext-1",
		UserID:       "u1",
		VariationKey: "new-ranker",
		ResultRank:   1,
	}, at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 {
		t.Errorf("external counters live remotely, expected 0, got %d", count)
	}

	if len(fake.metrics) != 1 {
		t.Fatalf("expected 1 metric, got %d", len(fake.metrics))
	}
	m := fake.metrics[0]
	if m.Value != conversionMetricValue {
		t.Errorf("expected conversion value %v, got %v", conversionMetricValue, m.Value)
	}
	if m.VariationKey != "new-ranker" || m.UserID != "u1" {
		t.Errorf("metric attribution mismatch: %+v", m)
	}
	if m.Timestamp != at.Format(time.RFC3339) {
		t.Errorf("expected caller-observed timestamp %s, got %s", at.Format(time.RFC3339), m.Timestamp)
	}

	// Local counters must be untouched.
	stored, _ := st.GetByID(ctx, "ext-1")
	if stored.Variations[0].Conversions != 0 {
		t.Error("external conversion must not touch local counters")
	}
}
