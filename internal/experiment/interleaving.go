package experiment

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/mbolshakov/gotrial/internal/resolver"
	"github.com/mbolshakov/gotrial/internal/store"
)

// overFetchFactor is how many extra items each variation is asked for.
// Variation lists overlap in practice and duplicates are dropped during the
// merge, so each source over-fetches to keep the merged list full.
const overFetchFactor = 3

// InterleavingExperiment serves a single result list merged from every
// variation's list, so each request compares all variations at once instead
// of splitting users between them. Each served item is annotated with the
// variation it came from; a conversion credits that source variation.
type InterleavingExperiment struct {
	base
	rng *rand.Rand
}

// GetItems fetches every variation's list, merges them with the configured
// method and records one exposure per variation.
func (e *InterleavingExperiment) GetItems(ctx context.Context, req Request) ([]resolver.Item, error) {
	if req.UserID == "" {
		return nil, resolver.ErrMissingUserID
	}

	numResults := req.NumResults
	if numResults <= 0 {
		numResults = resolver.DefaultNumResults
	}

	fetchReq := req
	fetchReq.NumResults = numResults * overFetchFactor

	lists := make([][]resolver.Item, len(e.def.Variations))
	for i := range e.def.Variations {
		items, err := e.resolveVariation(ctx, i, fetchReq)
		if err != nil {
			return nil, err
		}
		e.annotate(items, req.UserID, i, variationKey(i))
		lists[i] = items
	}

	var merged []resolver.Item
	switch e.def.Method {
	case store.MethodTeamDraft:
		merged = teamDraftMerge(lists, numResults, e.rng)
	case store.MethodBalanced:
		merged = balancedMerge(lists, numResults, e.rng)
	default:
		return nil, fmt.Errorf("unknown interleaving method %q", e.def.Method)
	}

	// Rank reflects position in the served list, not in the source list.
	for i := range merged {
		m := *merged[i].Experiment
		m.ResultRank = i + 1
		m.CorrelationID = Correlation{
			ExperimentID: e.def.ID,
			UserID:       req.UserID,
			VariationKey: m.VariationKey,
			ResultRank:   m.ResultRank,
		}.Encode()
		merged[i].Experiment = &m
	}

	for i := range e.def.Variations {
		e.recordExposure(ctx, req, i, merged)
	}
	return merged, nil
}

// TrackConversion credits the source variation of the clicked item.
func (e *InterleavingExperiment) TrackConversion(ctx context.Context, c Correlation, _ time.Time) (int64, error) {
	return e.trackConversionByIndex(ctx, c)
}

// balancedMerge round-robins over the lists starting from a random offset,
// taking each list's next unseen item in turn. It stops at size items or when
// every list is exhausted.
func balancedMerge(lists [][]resolver.Item, size int, rng *rand.Rand) []resolver.Item {
	if len(lists) == 0 || size <= 0 {
		return nil
	}

	cursors := make([]int, len(lists))
	seen := make(map[string]struct{}, size)
	merged := make([]resolver.Item, 0, size)
	start := rng.Intn(len(lists))

	for len(merged) < size {
		progressed := false
		for i := 0; i < len(lists); i++ {
			list := lists[(start+i)%len(lists)]
			cursor := &cursors[(start+i)%len(lists)]
			if item, ok := nextUnseen(list, cursor, seen); ok {
				merged = append(merged, item)
				progressed = true
				if len(merged) == size {
					break
				}
			}
		}
		if !progressed {
			break // every list exhausted
		}
	}
	return merged
}

// teamDraftMerge runs a draft: each round the teams pick in a fresh random
// order, and each team drafts its highest-ranked item not already taken.
func teamDraftMerge(lists [][]resolver.Item, size int, rng *rand.Rand) []resolver.Item {
	if len(lists) == 0 || size <= 0 {
		return nil
	}

	cursors := make([]int, len(lists))
	seen := make(map[string]struct{}, size)
	merged := make([]resolver.Item, 0, size)

	for len(merged) < size {
		progressed := false
		for _, team := range rng.Perm(len(lists)) {
			if item, ok := nextUnseen(lists[team], &cursors[team], seen); ok {
				merged = append(merged, item)
				progressed = true
				if len(merged) == size {
					break
				}
			}
		}
		if !progressed {
			break
		}
	}
	return merged
}

// nextUnseen advances cursor past already-taken items and claims the next
// fresh one.
func nextUnseen(list []resolver.Item, cursor *int, seen map[string]struct{}) (resolver.Item, bool) {
	for *cursor < len(list) {
		item := list[*cursor]
		*cursor++
		if _, taken := seen[item.ItemID]; taken {
			continue
		}
		seen[item.ItemID] = struct{}{}
		return item, true
	}
	return resolver.Item{}, false
}
