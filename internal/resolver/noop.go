package resolver

import "context"

// RankingNoOpResolver echoes the candidate list unchanged, reshaped into the
// standard item form. It is the safe fallback when no reranking model is
// configured: input order is preserved exactly.
type RankingNoOpResolver struct{}

// NewRankingNoOpResolver creates a pass-through ranking resolver.
func NewRankingNoOpResolver() *RankingNoOpResolver {
	return &RankingNoOpResolver{}
}

// GetItems implements Resolver. An empty candidate list yields an empty
// result, never an error.
func (r *RankingNoOpResolver) GetItems(_ context.Context, p Params) ([]Item, error) {
	items := make([]Item, len(p.ItemIDs))
	for i, id := range p.ItemIDs {
		items[i] = Item{ItemID: id}
	}
	return items, nil
}
