package searcher

import (
	"context"
	"fmt"

	"github.com/dshills/songmatch/internal/catalog"
)

// Strategy ranks songs for a query. Every strategy honors the same
// eligibility, dimension and anomaly rules; they differ in which vectors
// they consult and how the legs are combined.
type Strategy interface {
	Name() StrategyName
	Rank(ctx context.Context, q Query, k int) ([]Match, error)
}

func newStrategy(name StrategyName, s *Searcher) (Strategy, error) {
	switch name {
	case StrategyMetaOnly, "":
		return &metaOnly{s: s}, nil
	case StrategyMetaAboutness:
		return &metaAboutness{s: s, w: s.cfg.Aboutness}, nil
	case StrategyMetaEmotionMoment:
		return &metaEmotionMoment{s: s, w: s.cfg.EmotionMoment}, nil
	default:
		return nil, fmt.Errorf("unknown search strategy %q", name)
	}
}

// metaOnly is the baseline: nearest 2k by metadata vector, thresholded and
// truncated to k
type metaOnly struct {
	s *Searcher
}

func (m *metaOnly) Name() StrategyName { return StrategyMetaOnly }

func (m *metaOnly) Rank(ctx context.Context, q Query, k int) ([]Match, error) {
	s := m.s
	req, err := s.begin(ctx, q, k)
	if err != nil || req == nil {
		return emptyOr(err)
	}

	var neighbors []catalog.Neighbor
	err = s.withPrepared(ctx, req.vector, func(pq catalog.PreparedQuery) error {
		var lerr error
		neighbors, lerr = s.metaLeg(ctx, pq, req, 2*req.k)
		return lerr
	})
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]*Match, len(neighbors))
	for _, n := range neighbors {
		sim := similarity(n.Distance)
		byID[n.SongID] = &Match{
			SongID:     n.SongID,
			Similarity: sim,
			Distance:   n.Distance,
			SimMeta:    sim,
			Legs:       []Leg{LegMeta},
		}
	}

	matches, err := s.hydrate(ctx, byID)
	if err != nil {
		return nil, err
	}
	s.boostPreferred(matches, req.tags)

	kept := matches[:0]
	for _, mt := range matches {
		if mt.Similarity >= s.cfg.MinSimilarity {
			kept = append(kept, mt)
		}
	}
	sortMatches(kept)
	return truncate(kept, req.k), nil
}

// metaAboutness unions the metadata leg with the legacy single aboutness
// vector. Songs found by one leg only score 0 on the other.
type metaAboutness struct {
	s *Searcher
	w AboutnessWeights
}

func (m *metaAboutness) Name() StrategyName { return StrategyMetaAboutness }

func (m *metaAboutness) Rank(ctx context.Context, q Query, k int) ([]Match, error) {
	s := m.s
	req, err := s.begin(ctx, q, k)
	if err != nil || req == nil {
		return emptyOr(err)
	}

	limit := s.cfg.LegCandidates
	var metaN, aboutN []catalog.Neighbor
	err = s.withPrepared(ctx, req.vector, func(pq catalog.PreparedQuery) error {
		var lerr error
		if metaN, lerr = s.metaLeg(ctx, pq, req, limit); lerr != nil {
			return lerr
		}
		aboutN, _ = s.auxLeg(ctx, LegAbout, func() ([]catalog.Neighbor, error) {
			return pq.Nearest(ctx, catalog.ColumnAbout, catalog.NeighborOptions{
				Limit:   limit,
				Breadth: req.breadth(limit),
				Filters: req.filters,
			})
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	u := newUnion()
	u.add(metaN, LegMeta)
	u.add(aboutN, LegAbout)
	for _, mt := range u.matches {
		mt.AboutnessScore = m.w.About * mt.SimAbout
		mt.Similarity = clamp01(m.w.Meta*mt.SimMeta + mt.AboutnessScore)
	}
	return s.finishUnion(ctx, u, req)
}

// metaEmotionMoment unions the metadata and emotion legs, then scores the
// moment vector for that candidate set only
type metaEmotionMoment struct {
	s *Searcher
	w EmotionMomentWeights
}

func (m *metaEmotionMoment) Name() StrategyName { return StrategyMetaEmotionMoment }

func (m *metaEmotionMoment) Rank(ctx context.Context, q Query, k int) ([]Match, error) {
	s := m.s
	req, err := s.begin(ctx, q, k)
	if err != nil || req == nil {
		return emptyOr(err)
	}

	limit := s.cfg.LegCandidates
	u := newUnion()
	err = s.withPrepared(ctx, req.vector, func(pq catalog.PreparedQuery) error {
		metaN, lerr := s.metaLeg(ctx, pq, req, limit)
		if lerr != nil {
			return lerr
		}
		u.add(metaN, LegMeta)

		emotionN, _ := s.auxLeg(ctx, LegEmotion, func() ([]catalog.Neighbor, error) {
			return pq.Nearest(ctx, catalog.ColumnEmotion, catalog.NeighborOptions{
				Limit:   limit,
				Breadth: req.breadth(limit),
				Filters: req.filters,
			})
		})
		u.add(emotionN, LegEmotion)

		// Targeted comparison over the known candidates; no index needed
		momentN, _ := s.auxLeg(ctx, LegMoment, func() ([]catalog.Neighbor, error) {
			dist, derr := pq.Distances(ctx, catalog.ColumnMoment, u.ids())
			if derr != nil {
				return nil, derr
			}
			out := make([]catalog.Neighbor, 0, len(dist))
			for id, d := range dist {
				out = append(out, catalog.Neighbor{SongID: id, Distance: d})
			}
			return out, nil
		})
		u.add(momentN, LegMoment)
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, mt := range u.matches {
		mt.AboutnessScore = m.w.Emotion*mt.SimEmotion + m.w.Moment*mt.SimMoment
		mt.Similarity = clamp01(m.w.Meta*mt.SimMeta + mt.AboutnessScore)
	}
	return s.finishUnion(ctx, u, req)
}

// finishUnion hydrates, boosts and sorts a union, returning 2k candidates
// without a threshold so the caller can apply its own cutoff
func (s *Searcher) finishUnion(ctx context.Context, u *union, req *request) ([]Match, error) {
	for _, mt := range u.matches {
		mt.Distance = 1 - mt.Similarity
	}
	matches, err := s.hydrate(ctx, u.matches)
	if err != nil {
		return nil, err
	}
	s.boostPreferred(matches, req.tags)
	sortMatches(matches)
	return truncate(matches, 2*req.k), nil
}

// union accumulates per-leg similarities keyed by song id
type union struct {
	matches map[int64]*Match
	order   []int64
}

func newUnion() *union {
	return &union{matches: make(map[int64]*Match)}
}

func (u *union) add(neighbors []catalog.Neighbor, leg Leg) {
	for _, n := range neighbors {
		mt, ok := u.matches[n.SongID]
		if !ok {
			if leg == LegMoment {
				// Moment scores only refine songs the other legs found
				continue
			}
			mt = &Match{SongID: n.SongID}
			u.matches[n.SongID] = mt
			u.order = append(u.order, n.SongID)
		}

		sim := similarity(n.Distance)
		switch leg {
		case LegMeta:
			mt.SimMeta = sim
		case LegAbout:
			mt.SimAbout = sim
		case LegEmotion:
			mt.SimEmotion = sim
		case LegMoment:
			mt.SimMoment = sim
		}
		mt.Legs = append(mt.Legs, leg)
	}
}

func (u *union) ids() []int64 {
	out := make([]int64, len(u.order))
	copy(out, u.order)
	return out
}

func emptyOr(err error) ([]Match, error) {
	if err != nil {
		return nil, err
	}
	return []Match{}, nil
}
