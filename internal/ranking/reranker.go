package ranking

import (
	"sort"

	"github.com/dshills/songmatch/pkg/types"
)

// Reranker computes final scores and orders candidates
type Reranker struct {
	cfg Config
}

// NewReranker creates a reranker
func NewReranker(cfg Config) *Reranker {
	return &Reranker{cfg: cfg}
}

// Rerank scores every candidate, sorts by final score, then popularity, then
// song id, and returns at most k. recent lists songs already served to this
// session; they are penalized, not removed. The input slice is reordered
// in place.
func (r *Reranker) Rerank(cands []types.Candidate, recent []int64, k int) []types.Candidate {
	if k <= 0 {
		k = r.cfg.DefaultLimit
	}

	seen := make(map[int64]struct{}, len(recent))
	for _, id := range recent {
		seen[id] = struct{}{}
	}

	for i := range cands {
		c := &cands[i]
		c.Scores.Popularity = float64(c.Popularity) / 100
		c.Scores.RepetitionPenalty = 0
		if _, ok := seen[c.SongID]; ok {
			c.Scores.RepetitionPenalty = r.cfg.RepetitionPenalty
			c.AddReason("played recently")
		}
		c.Scores.Final = r.Score(c.Scores)
	}

	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.Scores.Final != b.Scores.Final {
			return a.Scores.Final > b.Scores.Final
		}
		if a.Popularity != b.Popularity {
			return a.Popularity > b.Popularity
		}
		return a.SongID < b.SongID
	})

	if len(cands) > k {
		cands = cands[:k]
	}
	return cands
}

// Score is the weighted sum of the signals. Popularity must already be
// scaled to [0, 1].
func (r *Reranker) Score(s types.SignalScores) float64 {
	w := r.cfg.Weights
	return w.Semantic*s.Semantic +
		w.Keyword*s.Keyword +
		w.Popularity*s.Popularity +
		w.Clarity*s.Clarity +
		s.Mood +
		s.Entity -
		s.RepetitionPenalty
}
