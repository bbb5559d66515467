package experiment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mbolshakov/gotrial/internal/evaluator"
	"github.com/mbolshakov/gotrial/internal/resolver"
	"github.com/mbolshakov/gotrial/internal/telemetry"
	"github.com/mbolshakov/gotrial/internal/tracker"
)

// Exposure metric values reported to the external evaluation engine. The
// engine aggregates a single metric stream per experiment, so exposures are
// reported as a near-zero sentinel and conversions as 1.0, keeping the
// metric's sum a conversion count while its sample count tracks exposures.
const (
	exposureMetricValue   = 0.0000001
	conversionMetricValue = 1.0
)

// ExternalExperiment delegates variation assignment to an external
// evaluation engine. The engine owns bucketing and counters; this process
// resolves items for whatever variation the engine assigns and reports
// exposure/conversion metrics back to it. Correlation tokens carry the
// engine's variation label rather than a local index.
type ExternalExperiment struct {
	base
	eval    evaluator.Evaluator
	factory *resolver.Factory
}

// GetItems asks the engine for the user's assigned variation, resolves items
// with the variation's resolver config and reports the exposure.
func (e *ExternalExperiment) GetItems(ctx context.Context, req Request) ([]resolver.Item, error) {
	if req.UserID == "" {
		return nil, resolver.ErrMissingUserID
	}

	decision, err := e.eval.Evaluate(ctx, e.def.Feature, req.UserID)
	if errors.Is(err, evaluator.ErrNoDecision) {
		// The engine has not enrolled this user; fall back to the first
		// local variation, unannotated, as the default experience.
		return e.resolveVariation(ctx, 0, req)
	}
	if err != nil {
		return nil, fmt.Errorf("external evaluation: %w", err)
	}

	items, err := e.resolveDecision(ctx, decision, req)
	if err != nil {
		return nil, err
	}

	e.annotate(items, req.UserID, externalVariationIndex, decision.VariationKey)
	e.reportExposure(ctx, req, decision, items)
	return items, nil
}

// TrackConversion reports the outcome to the external engine, stamped with
// the caller-observed time. The variation key is the engine's label, not a
// local index, so no local counter moves.
func (e *ExternalExperiment) TrackConversion(ctx context.Context, c Correlation, at time.Time) (int64, error) {
	err := e.eval.SendMetric(ctx, evaluator.Metric{
		Feature:      e.def.Feature,
		Name:         e.def.Name,
		UserID:       c.UserID,
		VariationKey: c.VariationKey,
		Value:        conversionMetricValue,
		Timestamp:    at.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return 0, fmt.Errorf("external conversion metric: %w", err)
	}
	telemetry.ExperimentConversions.WithLabelValues(e.def.Name).Inc()
	return 0, nil
}

// externalVariationIndex marks metadata whose variation is keyed by the
// engine's label instead of a local list position.
const externalVariationIndex = -1

// resolveDecision builds the resolver the engine's decision names, falling
// back to the first local variation when the decision carries no config.
func (e *ExternalExperiment) resolveDecision(ctx context.Context, d evaluator.Decision, req Request) ([]resolver.Item, error) {
	if d.Resolver.Type == "" {
		return e.resolveVariation(ctx, 0, req)
	}
	r, err := e.factory.New(d.Resolver)
	if err != nil {
		return nil, fmt.Errorf("decision resolver for variation %q: %w", d.VariationKey, err)
	}
	items, err := r.GetItems(ctx, resolver.Params{
		UserID:        req.UserID,
		CurrentItemID: req.CurrentItemID,
		ItemIDs:       req.ItemIDs,
		NumResults:    req.NumResults,
	})
	if err != nil {
		return nil, fmt.Errorf("variation %q resolver: %w", d.VariationKey, err)
	}
	return items, nil
}

// reportExposure sends the sentinel exposure metric and a tracker event.
// Both are best-effort.
func (e *ExternalExperiment) reportExposure(ctx context.Context, req Request, d evaluator.Decision, items []resolver.Item) {
	err := e.eval.SendMetric(ctx, evaluator.Metric{
		Feature:      e.def.Feature,
		Name:         e.def.Name,
		UserID:       req.UserID,
		VariationKey: d.VariationKey,
		Value:        exposureMetricValue,
	})
	if err != nil {
		e.log.Warn().Err(err).Msg("failed to report exposure metric")
	}
	telemetry.ExperimentExposures.WithLabelValues(e.def.Name).Inc()

	if e.tracker == nil {
		return
	}
	itemIDs := make([]string, len(items))
	for i := range items {
		itemIDs[i] = items[i].ItemID
	}
	e.tracker.LogExposure(tracker.Event{
		ExperimentID:   e.def.ID,
		Feature:        e.def.Feature,
		Name:           e.def.Name,
		Type:           e.def.Type,
		VariationIndex: externalVariationIndex,
		UserID:         req.UserID,
		ItemIDs:        itemIDs,
	})
}
