package searcher

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/songmatch/internal/catalog"
	"github.com/dshills/songmatch/internal/embedder"
)

// fakeStore serves fixed neighbors per column and records leg traffic
type fakeStore struct {
	mu        sync.Mutex
	stats     catalog.Stats
	songs     map[int64]*catalog.Song
	nearest   map[catalog.Column][]catalog.Neighbor
	failing   map[catalog.Column]error
	distances map[int64]float64

	nearestCalls map[catalog.Column]int
	distanceIDs  []int64
	breadths     []int
	open         int
}

func newFakeStore(ids ...int64) *fakeStore {
	f := &fakeStore{
		stats:        catalog.Stats{TotalSongs: len(ids), EligibleSongs: len(ids), VectorWidth: testDim},
		songs:        make(map[int64]*catalog.Song),
		nearest:      make(map[catalog.Column][]catalog.Neighbor),
		failing:      make(map[catalog.Column]error),
		nearestCalls: make(map[catalog.Column]int),
	}
	for _, id := range ids {
		f.songs[id] = &catalog.Song{ID: id, Title: "song", Popularity: 50, MetaEmbedding: unit(0, 0)}
	}
	return f
}

func (f *fakeStore) Stats(ctx context.Context) (*catalog.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.open > 0 {
		panic("stats read while a prepared query is open")
	}
	st := f.stats
	return &st, nil
}

func (f *fakeStore) GetSongs(ctx context.Context, ids []int64) (map[int64]*catalog.Song, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.open > 0 {
		panic("songs read while a prepared query is open")
	}
	out := make(map[int64]*catalog.Song)
	for _, id := range ids {
		if s, ok := f.songs[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

func (f *fakeStore) PrepareQuery(ctx context.Context, vector []float32) (catalog.PreparedQuery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open++
	return &fakePrepared{f: f}, nil
}

type fakePrepared struct {
	f *fakeStore
}

func (p *fakePrepared) Nearest(ctx context.Context, column catalog.Column, opts catalog.NeighborOptions) ([]catalog.Neighbor, error) {
	p.f.mu.Lock()
	defer p.f.mu.Unlock()
	p.f.nearestCalls[column]++
	p.f.breadths = append(p.f.breadths, opts.Breadth)
	if err := p.f.failing[column]; err != nil {
		return nil, err
	}
	rows := p.f.nearest[column]
	if len(rows) > opts.Limit {
		rows = rows[:opts.Limit]
	}
	return rows, nil
}

func (p *fakePrepared) Distances(ctx context.Context, column catalog.Column, ids []int64) (map[int64]float64, error) {
	p.f.mu.Lock()
	defer p.f.mu.Unlock()
	if err := p.f.failing[column]; err != nil {
		return nil, err
	}
	p.f.distanceIDs = append([]int64(nil), ids...)
	return p.f.distances, nil
}

func (p *fakePrepared) Close() error {
	p.f.mu.Lock()
	defer p.f.mu.Unlock()
	p.f.open--
	return nil
}

func byID(matches []Match) map[int64]Match {
	out := make(map[int64]Match, len(matches))
	for _, m := range matches {
		out[m.SongID] = m
	}
	return out
}

func TestMetaOnly_IndexAnomaly(t *testing.T) {
	ctx := context.Background()

	t.Run("zero rows over populated catalog", func(t *testing.T) {
		store := newFakeStore(1, 2, 3)
		s := newTestSearcher(t, store, newMockEmbedder(unit(0, 0)), testConfig(StrategyMetaOnly))
		_, err := s.FindSimilar(ctx, "happy", 5)
		assert.ErrorIs(t, err, ErrIndexAnomaly)
	})

	t.Run("outright query failure", func(t *testing.T) {
		store := newFakeStore(1)
		store.failing[catalog.ColumnMeta] = errBoom
		s := newTestSearcher(t, store, newMockEmbedder(unit(0, 0)), testConfig(StrategyMetaOnly))
		_, err := s.FindSimilar(ctx, "happy", 5)
		assert.ErrorIs(t, err, ErrIndexAnomaly)
	})

	t.Run("cancelled request is not an anomaly", func(t *testing.T) {
		store := newFakeStore(1)
		store.failing[catalog.ColumnMeta] = context.Canceled
		s := newTestSearcher(t, store, newMockEmbedder(unit(0, 0)), testConfig(StrategyMetaOnly))
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := s.FindSimilar(cctx, "happy", 5)
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrIndexAnomaly)
	})
}

func TestMetaOnly_Breadth(t *testing.T) {
	store := newFakeStore(1)
	store.nearest[catalog.ColumnMeta] = []catalog.Neighbor{{SongID: 1, Distance: 0.1}}
	s := newTestSearcher(t, store, newMockEmbedder(unit(0, 0)), testConfig(StrategyMetaOnly))

	_, err := s.FindSimilar(context.Background(), "happy", 5)
	require.NoError(t, err)
	_, err = s.FindSimilar(context.Background(), "happy", 80)
	require.NoError(t, err)

	assert.Equal(t, []int{100, 160}, store.breadths)
}

func TestMetaOnly_DropsVanishedSongs(t *testing.T) {
	store := newFakeStore(1)
	store.nearest[catalog.ColumnMeta] = []catalog.Neighbor{{SongID: 1, Distance: 0.1}, {SongID: 42, Distance: 0.2}}
	s := newTestSearcher(t, store, newMockEmbedder(unit(0, 0)), testConfig(StrategyMetaOnly))

	matches, err := s.FindSimilar(context.Background(), "happy", 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, matchIDs(matches))
}

func TestMetaAboutness_AboutLegFailureDegrades(t *testing.T) {
	store := newFakeStore(1, 2)
	store.nearest[catalog.ColumnMeta] = []catalog.Neighbor{{SongID: 1, Distance: 0.1}, {SongID: 2, Distance: 0.3}}
	store.failing[catalog.ColumnAbout] = errBoom
	s := newTestSearcher(t, store, newMockEmbedder(unit(0, 0)), testConfig(StrategyMetaAboutness))

	matches, err := s.FindSimilar(context.Background(), "happy", 5)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, matchIDs(matches))
	assert.InDelta(t, 0.6*0.9, matches[0].Similarity, 1e-9)
	assert.Zero(t, matches[0].SimAbout)
}

func TestMetaAboutness_BreakerOpens(t *testing.T) {
	store := newFakeStore(1)
	store.nearest[catalog.ColumnMeta] = []catalog.Neighbor{{SongID: 1, Distance: 0.1}}
	store.failing[catalog.ColumnAbout] = errBoom

	var transitions []string
	cfg := testConfig(StrategyMetaAboutness)
	cfg.Breaker = embedder.BreakerConfig{ConsecutiveFailures: 2, OpenTimeout: 60e9, HalfOpenRequests: 1}
	s, err := New(store, newMockEmbedder(unit(0, 0)), cfg, zerolog.Nop(),
		WithBreakerObserver(func(name, from, to string) { transitions = append(transitions, from+"->"+to) }))
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := s.FindSimilar(context.Background(), "happy", 5)
		require.NoError(t, err)
	}

	assert.Equal(t, 2, store.nearestCalls[catalog.ColumnAbout], "open circuit skips the about leg")
	assert.Equal(t, 4, store.nearestCalls[catalog.ColumnMeta])
	assert.Equal(t, "open", s.BreakerState())
	assert.Equal(t, []string{"closed->open"}, transitions)
}

func TestMetaAboutness_ReturnsTwiceK(t *testing.T) {
	ids := []int64{1, 2, 3, 4, 5, 6, 7, 8}
	store := newFakeStore(ids...)
	for i, id := range ids {
		store.nearest[catalog.ColumnMeta] = append(store.nearest[catalog.ColumnMeta],
			catalog.Neighbor{SongID: id, Distance: 0.05 * float64(i)})
	}
	s := newTestSearcher(t, store, newMockEmbedder(unit(0, 0)), testConfig(StrategyMetaAboutness))

	matches, err := s.FindSimilar(context.Background(), "happy", 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6}, matchIDs(matches))
}

func TestUnion_Breadth(t *testing.T) {
	tests := []struct {
		name     string
		strategy StrategyName
		k        int
		want     []int
	}{
		{"meta_aboutness small k", StrategyMetaAboutness, 5, []int{100, 100}},
		{"meta_aboutness large k", StrategyMetaAboutness, 80, []int{160, 160}},
		{"meta_emotion_moment small k", StrategyMetaEmotionMoment, 5, []int{100, 100}},
		{"meta_emotion_moment large k", StrategyMetaEmotionMoment, 80, []int{160, 160}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore(1)
			store.nearest[catalog.ColumnMeta] = []catalog.Neighbor{{SongID: 1, Distance: 0.1}}
			s := newTestSearcher(t, store, newMockEmbedder(unit(0, 0)), testConfig(tt.strategy))

			_, err := s.FindSimilar(context.Background(), "happy", tt.k)
			require.NoError(t, err)
			// Leg row limits stay at LegCandidates; only exploration grows with k
			assert.Equal(t, tt.want, store.breadths)
		})
	}
}

func TestMetaOnly_TiesPreferPopular(t *testing.T) {
	var ids []int64
	for id := int64(1); id <= 40; id++ {
		ids = append(ids, id)
	}
	store := newFakeStore(ids...)
	for _, id := range ids {
		store.songs[id].Popularity = int(id)
		store.nearest[catalog.ColumnMeta] = append(store.nearest[catalog.ColumnMeta],
			catalog.Neighbor{SongID: id, Distance: 0.1})
	}
	s := newTestSearcher(t, store, newMockEmbedder(unit(0, 0)), testConfig(StrategyMetaOnly))

	matches, err := s.FindSimilar(context.Background(), "happy", 20)
	require.NoError(t, err)
	require.Len(t, matches, 20)
	for i, m := range matches {
		assert.Equal(t, int64(40-i), m.SongID)
	}
}

func TestMetaEmotionMoment(t *testing.T) {
	store := newFakeStore(1, 2, 3)
	store.nearest[catalog.ColumnMeta] = []catalog.Neighbor{{SongID: 1, Distance: 0.1}}
	store.nearest[catalog.ColumnEmotion] = []catalog.Neighbor{{SongID: 2, Distance: 0.2}, {SongID: 1, Distance: 0.6}}
	store.distances = map[int64]float64{1: 0.5, 2: 0.0, 3: 0.0}
	s := newTestSearcher(t, store, newMockEmbedder(unit(0, 0)), testConfig(StrategyMetaEmotionMoment))

	matches, err := s.FindSimilar(context.Background(), "rainy drive home", 5)
	require.NoError(t, err)

	got := byID(matches)
	require.Len(t, got, 2, "moment distances never add new songs")

	ids := append([]int64(nil), store.distanceIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	assert.Equal(t, []int64{1, 2}, ids, "moment leg only compares the union")

	one := got[1]
	assert.InDelta(t, 0.9, one.SimMeta, 1e-9)
	assert.InDelta(t, 0.4, one.SimEmotion, 1e-9)
	assert.InDelta(t, 0.5, one.SimMoment, 1e-9)
	assert.InDelta(t, 0.5*0.9+0.3*0.4+0.2*0.5, one.Similarity, 1e-9)

	two := got[2]
	assert.Equal(t, 0.0, two.SimMeta)
	assert.InDelta(t, 0.3*0.8+0.2*1.0, two.Similarity, 1e-9)
	assert.Equal(t, []Leg{LegEmotion, LegMoment}, two.Legs)

	assert.Equal(t, []int64{1, 2}, matchIDs(matches))
}

func TestMetaEmotionMoment_MissingLegsScoreZero(t *testing.T) {
	store := newFakeStore(1, 2)
	store.nearest[catalog.ColumnMeta] = []catalog.Neighbor{{SongID: 1, Distance: 0.2}}
	store.nearest[catalog.ColumnEmotion] = []catalog.Neighbor{{SongID: 2, Distance: 0.1}}
	store.failing[catalog.ColumnMoment] = errBoom
	s := newTestSearcher(t, store, newMockEmbedder(unit(0, 0)), testConfig(StrategyMetaEmotionMoment))

	matches, err := s.FindSimilar(context.Background(), "rain", 5)
	require.NoError(t, err)

	got := byID(matches)
	require.Len(t, got, 2)
	assert.InDelta(t, 0.5*0.8, got[1].Similarity, 1e-9)
	assert.InDelta(t, 0.3*0.9, got[2].Similarity, 1e-9)
	assert.Zero(t, got[2].SimMoment)
}
