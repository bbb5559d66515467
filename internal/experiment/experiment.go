// Package experiment implements the experiment strategies that decide, per
// request, which variation of a feature's recommendations a user is served:
// classic A/B bucketing, result interleaving, a Thompson-sampling bandit, and
// delegation to an external evaluation service.
//
// Strategy objects are constructed per request from the persisted definition
// and hold no cross-request state; all durable counters live in the store.
package experiment

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/mbolshakov/gotrial/internal/audience"
	"github.com/mbolshakov/gotrial/internal/resolver"
	"github.com/mbolshakov/gotrial/internal/store"
	"github.com/mbolshakov/gotrial/internal/targeting"
	"github.com/mbolshakov/gotrial/internal/telemetry"
	"github.com/mbolshakov/gotrial/internal/tracker"
)

// Request carries the per-call inputs to an experiment decision.
type Request struct {
	UserID        string
	CurrentItemID string
	ItemIDs       []string // candidate list for ranking features
	NumResults    int
	UserContext   audience.UserContext
}

// Experiment serves recommendations for one active experiment and attributes
// outcomes back to the variation that produced them.
type Experiment interface {
	// Definition returns the persisted configuration this instance was
	// built from.
	Definition() *store.Experiment

	// MatchesAudience reports whether the user is eligible for enrollment.
	MatchesAudience(userCtx audience.UserContext) bool

	// GetItems resolves items for the user's assigned variation, annotates
	// each with experiment metadata and a correlation token, and records
	// the exposure.
	GetItems(ctx context.Context, req Request) ([]resolver.Item, error)

	// TrackConversion attributes an outcome observed at the given time to
	// the variation named by a decoded correlation token and returns the
	// variation's new conversion count (zero when the counters live in an
	// external engine). Local counters carry no time dimension; the
	// timestamp reaches metrics reported to an external engine.
	TrackConversion(ctx context.Context, c Correlation, at time.Time) (int64, error)
}

// base carries the machinery shared by every experiment strategy: resolver
// construction, item annotation, exposure recording and index-keyed
// conversion tracking.
type base struct {
	def       *store.Experiment
	store     store.Store
	tracker   tracker.Tracker
	resolvers []resolver.Resolver
	log       zerolog.Logger
}

func newBase(def *store.Experiment, st store.Store, factory *resolver.Factory, tr tracker.Tracker, log zerolog.Logger) (base, error) {
	resolvers := make([]resolver.Resolver, len(def.Variations))
	for i := range def.Variations {
		r, err := factory.New(def.Variations[i].Config)
		if err != nil {
			return base{}, fmt.Errorf("experiment %s variation %d: %w", def.ID, i, err)
		}
		resolvers[i] = r
	}
	return base{
		def:       def,
		store:     st,
		tracker:   tr,
		resolvers: resolvers,
		log:       log.With().Str("experiment", def.ID).Str("feature", def.Feature).Logger(),
	}, nil
}

func (b *base) Definition() *store.Experiment { return b.def }

// MatchesAudience applies the experiment's audience gate. A missing audience
// admits everyone. Evaluation failures (an invalid expression) fail closed:
// an experiment we cannot gate correctly enrolls nobody.
func (b *base) MatchesAudience(userCtx audience.UserContext) bool {
	aud := b.def.Audience
	if aud == nil {
		return true
	}
	if aud.Expression != "" {
		match, err := targeting.Evaluate(aud.Expression, targeting.UserContext(userCtx))
		if err != nil {
			b.log.Warn().Err(err).Msg("audience expression failed to evaluate")
			return false
		}
		if !match {
			return false
		}
	}
	return audience.Matches(aud.Conditions, userCtx)
}

// resolveVariation fetches items from the variation's resolver and records
// the call latency.
func (b *base) resolveVariation(ctx context.Context, index int, req Request) ([]resolver.Item, error) {
	start := time.Now()
	items, err := b.resolvers[index].GetItems(ctx, resolver.Params{
		UserID:        req.UserID,
		CurrentItemID: req.CurrentItemID,
		ItemIDs:       req.ItemIDs,
		NumResults:    req.NumResults,
	})
	telemetry.ObserveResolver(b.def.Variations[index].Config.Type, start)
	if err != nil {
		return nil, fmt.Errorf("variation %d resolver: %w", index, err)
	}
	return items, nil
}

// annotate attaches experiment metadata and a correlation token to every
// item. ResultRank is 1-based position in the served list.
func (b *base) annotate(items []resolver.Item, userID string, variationIndex int, variationKey string) {
	for i := range items {
		rank := i + 1
		items[i].Experiment = &resolver.Metadata{
			ID:             b.def.ID,
			Feature:        b.def.Feature,
			Name:           b.def.Name,
			Type:           b.def.Type,
			VariationIndex: variationIndex,
			VariationKey:   variationKey,
			ResultRank:     rank,
			CorrelationID: Correlation{
				ExperimentID: b.def.ID,
				UserID:       userID,
				VariationKey: variationKey,
				ResultRank:   rank,
			}.Encode(),
		}
	}
}

// recordExposure bumps the durable exposure counter and emits a tracking
// event. Counter failures are logged, not returned: the user already has
// their items and the response must not fail over bookkeeping.
func (b *base) recordExposure(ctx context.Context, req Request, variationIndex int, items []resolver.Item) {
	if _, err := b.store.IncrementExposures(ctx, b.def.ID, variationIndex, 1); err != nil {
		b.log.Error().Err(err).Int("variation", variationIndex).Msg("failed to increment exposure counter")
	}
	telemetry.ExperimentExposures.WithLabelValues(b.def.Name).Inc()

	if b.tracker == nil {
		return
	}
	itemIDs := make([]string, len(items))
	for i := range items {
		itemIDs[i] = items[i].ItemID
	}
	b.tracker.LogExposure(tracker.Event{
		ExperimentID:   b.def.ID,
		Feature:        b.def.Feature,
		Name:           b.def.Name,
		Type:           b.def.Type,
		VariationIndex: variationIndex,
		UserID:         req.UserID,
		ItemIDs:        itemIDs,
	})
}

// trackConversionByIndex is the conversion path shared by the strategies
// whose variation key is a decimal variation index.
func (b *base) trackConversionByIndex(ctx context.Context, c Correlation) (int64, error) {
	index, err := strconv.Atoi(c.VariationKey)
	if err != nil {
		return 0, fmt.Errorf("%w: variation key %q", ErrInvalidCorrelationID, c.VariationKey)
	}
	if index < 0 || index >= len(b.def.Variations) {
		return 0, store.ErrVariationOutOfRange
	}
	count, err := b.store.IncrementConversions(ctx, b.def.ID, index, 1)
	if err != nil {
		return 0, err
	}
	telemetry.ExperimentConversions.WithLabelValues(b.def.Name).Inc()
	return count, nil
}

// variationKey is the correlation key for a built-in variation: its decimal
// index in the definition's variation list.
func variationKey(index int) string {
	return strconv.Itoa(index)
}
