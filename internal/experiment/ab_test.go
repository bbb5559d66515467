package experiment

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/mbolshakov/gotrial/internal/store"
)

func abDefinition() store.Experiment {
	return store.Experiment{
		ID:      "ab-1",
		Feature: "home_recs",
		Name:    "homepage-layout",
		Type:    store.TypeAB,
		Status:  store.StatusActive,
		Variations: []store.Variation{
			staticVariation("control"),
			staticVariation("treatment"),
		},
	}
}

func abLists() map[string][]string {
	return map[string][]string{
		"control":   {"c1", "c2", "c3"},
		"treatment": {"t1", "t2", "t3"},
	}
}

func TestAB_EndToEnd(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	if err := st.Create(ctx, abDefinition()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := testManager(st, abLists())

	exp, err := m.GetActive(ctx, "home_recs")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exp == nil {
		t.Fatal("expected active experiment")
	}

	items, err := exp.GetItems(ctx, Request{UserID: "user-7", NumResults: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}

	for i, item := range items {
		md := item.Experiment
		if md == nil {
			t.Fatalf("item %d missing experiment metadata", i)
		}
		if md.ID != "ab-1" || md.Feature != "home_recs" || md.Name != "homepage-layout" || md.Type != store.TypeAB {
			t.Errorf("item %d metadata mismatch: %+v", i, md)
		}
		if md.ResultRank != i+1 {
			t.Errorf("item %d: expected rank %d, got %d", i, i+1, md.ResultRank)
		}
		if md.VariationKey != strconv.Itoa(md.VariationIndex) {
			t.Errorf("item %d: variation key %q does not match index %d", i, md.VariationKey, md.VariationIndex)
		}

		corr, err := DecodeCorrelation(md.CorrelationID)
		if err != nil {
			t.Fatalf("item %d: correlation token invalid: %v", i, err)
		}
		if corr.ExperimentID != "ab-1" || corr.UserID != "user-7" || corr.ResultRank != i+1 {
			t.Errorf("item %d: correlation mismatch: %+v", i, corr)
		}
	}

	// The whole list comes from one variation.
	index := items[0].Experiment.VariationIndex
	for _, item := range items {
		if item.Experiment.VariationIndex != index {
			t.Error("A/B response mixed variations")
		}
	}

	// Exposure recorded once, on the served variation only.
	stored, _ := st.GetByID(ctx, "ab-1")
	if stored.Variations[index].Exposures != 1 {
		t.Errorf("expected 1 exposure on variation %d, got %d", index, stored.Variations[index].Exposures)
	}
	if stored.Variations[1-index].Exposures != 0 {
		t.Errorf("expected 0 exposures on unserved variation, got %d", stored.Variations[1-index].Exposures)
	}
}

func TestAB_Deterministic(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	_ = st.Create(ctx, abDefinition())
	m := testManager(st, abLists())

	var first int
	for i := 0; i < 20; i++ {
		exp, err := m.GetActive(ctx, "home_recs")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		items, err := exp.GetItems(ctx, Request{UserID: "sticky-user", NumResults: 1})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		index := items[0].Experiment.VariationIndex
		if i == 0 {
			first = index
		} else if index != first {
			t.Fatalf("call %d assigned variation %d, first call assigned %d", i, index, first)
		}
	}
}

func TestAB_EmptyUserID(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	_ = st.Create(ctx, abDefinition())
	m := testManager(st, abLists())

	exp, _ := m.GetActive(ctx, "home_recs")
	if _, err := exp.GetItems(ctx, Request{UserID: ""}); err == nil {
		t.Error("expected error for empty user id")
	}
}

func TestAB_ConversionRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	_ = st.Create(ctx, abDefinition())
	m := testManager(st, abLists())

	exp, _ := m.GetActive(ctx, "home_recs")
	items, err := exp.GetItems(ctx, Request{UserID: "user-7", NumResults: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	corr, err := DecodeCorrelation(items[0].Experiment.CorrelationID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	count, err := exp.TrackConversion(ctx, corr, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Errorf("expected conversion count 1, got %d", count)
	}

	// Exactly one variation's conversion counter moved, by exactly 1.
	index := items[0].Experiment.VariationIndex
	stored, _ := st.GetByID(ctx, "ab-1")
	if stored.Variations[index].Conversions != 1 {
		t.Errorf("expected 1 conversion on variation %d, got %d", index, stored.Variations[index].Conversions)
	}
	if stored.Variations[1-index].Conversions != 0 {
		t.Errorf("conversion leaked to unserved variation")
	}
}

func TestAB_ConversionBadVariationKey(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	_ = st.Create(ctx, abDefinition())
	m := testManager(st, abLists())

	exp, _ := m.GetActive(ctx, "home_recs")

	_, err := exp.TrackConversion(ctx, Correlation{ExperimentID: "ab-1", UserID: "u", VariationKey: "treatment", ResultRank: 1}, time.Now())
	if !errors.Is(err, ErrInvalidCorrelationID) {
		t.Errorf("expected ErrInvalidCorrelationID for non-numeric key, got %v", err)
	}

	_, err = exp.TrackConversion(ctx, Correlation{ExperimentID: "ab-1", UserID: "u", VariationKey: "9", ResultRank: 1}, time.Now())
	if !errors.Is(err, store.ErrVariationOutOfRange) {
		t.Errorf("expected ErrVariationOutOfRange, got %v", err)
	}
}
