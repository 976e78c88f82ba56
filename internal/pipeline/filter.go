package pipeline

import (
	"context"

	"github.com/dshills/songmatch/pkg/types"
)

// ContentFilter removes candidates a request must not see. Filters run
// after merging and before ranking.
type ContentFilter interface {
	Filter(ctx context.Context, req Request, cands []types.Candidate) []types.Candidate
}

// ExplicitFilter drops explicit songs unless the room allows them
type ExplicitFilter struct{}

func (ExplicitFilter) Filter(_ context.Context, req Request, cands []types.Candidate) []types.Candidate {
	if req.RoomAllowsExplicit {
		return cands
	}
	out := cands[:0]
	for _, c := range cands {
		if !c.Explicit {
			out = append(out, c)
		}
	}
	return out
}

// FilterChain applies filters in order
type FilterChain []ContentFilter

func (fc FilterChain) Filter(ctx context.Context, req Request, cands []types.Candidate) []types.Candidate {
	for _, f := range fc {
		cands = f.Filter(ctx, req, cands)
	}
	return cands
}
