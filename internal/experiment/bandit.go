package experiment

import (
	"context"
	"time"

	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/mbolshakov/gotrial/internal/resolver"
)

// BanditExperiment allocates traffic with Thompson Sampling: each request
// draws from a Beta posterior per variation (conversions as successes,
// exposures as trials) and serves the variation with the highest draw.
// Traffic shifts toward better-converting variations automatically as
// counters accumulate; no scheduled reallocation step is needed.
type BanditExperiment struct {
	base
	src rand.Source // nil uses the default source; tests inject a seeded one
}

// GetItems samples a variation from the posterior, resolves its items and
// records the exposure.
func (e *BanditExperiment) GetItems(ctx context.Context, req Request) ([]resolver.Item, error) {
	if req.UserID == "" {
		return nil, resolver.ErrMissingUserID
	}

	index := e.sampleVariation()
	items, err := e.resolveVariation(ctx, index, req)
	if err != nil {
		return nil, err
	}

	e.annotate(items, req.UserID, index, variationKey(index))
	e.recordExposure(ctx, req, index, items)
	return items, nil
}

// TrackConversion credits the variation encoded in the correlation token.
func (e *BanditExperiment) TrackConversion(ctx context.Context, c Correlation, _ time.Time) (int64, error) {
	return e.trackConversionByIndex(ctx, c)
}

// sampleVariation draws once from each variation's Beta(conversions+1,
// exposures+1) posterior and returns the argmax. The +1 priors keep the
// posterior proper for brand-new variations, which start out uniform and
// therefore fully explored.
func (e *BanditExperiment) sampleVariation() int {
	best := 0
	bestDraw := -1.0
	for i := range e.def.Variations {
		v := &e.def.Variations[i]
		dist := distuv.Beta{
			Alpha: float64(v.Conversions + 1),
			Beta:  float64(v.Exposures + 1),
			Src:   e.src,
		}
		if draw := dist.Rand(); draw > bestDraw {
			bestDraw = draw
			best = i
		}
	}
	return best
}
