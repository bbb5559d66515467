package experiment

import (
	"context"
	"fmt"
	"time"

	"github.com/mbolshakov/gotrial/internal/bucket"
	"github.com/mbolshakov/gotrial/internal/resolver"
)

// ABExperiment assigns each user to a fixed variation by deterministic
// hashing, so the same user sees the same variation on every request for the
// experiment's lifetime without any per-user assignment state.
type ABExperiment struct {
	base
}

// GetItems buckets the user, resolves the assigned variation's items and
// records the exposure.
func (e *ABExperiment) GetItems(ctx context.Context, req Request) ([]resolver.Item, error) {
	index := bucket.VariationIndex(e.def.Feature, e.def.Name, req.UserID, len(e.def.Variations))
	if index < 0 {
		return nil, fmt.Errorf("cannot bucket user %q into experiment %s", req.UserID, e.def.ID)
	}

	items, err := e.resolveVariation(ctx, index, req)
	if err != nil {
		return nil, err
	}

	e.annotate(items, req.UserID, index, variationKey(index))
	e.recordExposure(ctx, req, index, items)
	return items, nil
}

// TrackConversion credits the variation encoded in the correlation token.
// The observation time is not recorded; counters are plain totals.
func (e *ABExperiment) TrackConversion(ctx context.Context, c Correlation, _ time.Time) (int64, error) {
	return e.trackConversionByIndex(ctx, c)
}
