package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err, "Failed to create test store")
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func intPtr(v int) *int { return &v }

// unit returns a 4-dim vector pointing mostly along axis
func unit(axis int, tilt float32) []float32 {
	v := make([]float32, 4)
	v[axis] = 1
	v[(axis+1)%4] = tilt
	return v
}

func seedCatalog(t *testing.T, store *SQLiteStore) {
	t.Helper()
	ctx := context.Background()

	songs := []*Song{
		{ID: 1, Title: "Happy", Artist: "Pharrell Williams", Tags: []string{"happy", "upbeat"}, Year: intPtr(2013), Popularity: 95, MetaEmbedding: unit(0, 0), Phrases: []string{"Happy", "clap along"}},
		{ID: 2, Title: "Walking on Sunshine", Artist: "Katrina and the Waves", Tags: []string{"joy"}, Year: intPtr(1985), Popularity: 80, MetaEmbedding: unit(0, 0.2), Phrases: []string{"walking on sunshine"}},
		{ID: 3, Title: "Placeholder", Artist: "Unknown", Popularity: 99, IsPlaceholder: true, MetaEmbedding: unit(0, 0), Phrases: []string{"happy"}},
		{ID: 4, Title: "No Vector Yet", Artist: "Someone", Popularity: 70, Phrases: []string{"dancing queen"}},
		{ID: 5, Title: "Someone Like You", Artist: "Adele", Tags: []string{"sad"}, Year: intPtr(2011), Popularity: 85, MetaEmbedding: unit(2, 0)},
	}
	for _, s := range songs {
		require.NoError(t, store.UpsertSong(ctx, s))
	}

	require.NoError(t, store.UpsertAboutness(ctx, &Aboutness{
		SongID:         2,
		EmotionText:    "carefree joy",
		AboutEmbedding: unit(0, 0.1),
	}))
	require.NoError(t, store.UpsertAboutness(ctx, &Aboutness{
		SongID:           5,
		EmotionText:      "heartbreak",
		MomentText:       "running into an ex",
		EmotionEmbedding: unit(2, 0.1),
		MomentEmbedding:  unit(0, 0),
		Confidence:       ConfidenceHigh,
	}))
}

func TestSQLiteStore_SongRoundTrip(t *testing.T) {
	store := newTestStore(t)
	seedCatalog(t, store)
	ctx := context.Background()

	song, err := store.GetSong(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Happy", song.Title)
	assert.Equal(t, []string{"happy", "upbeat"}, song.Tags)
	require.NotNil(t, song.Year)
	assert.Equal(t, 2013, *song.Year)
	assert.Equal(t, unit(0, 0), song.MetaEmbedding)
	assert.Equal(t, []string{"clap along", "happy"}, song.Phrases)
	assert.True(t, song.Eligible())

	noVector, err := store.GetSong(ctx, 4)
	require.NoError(t, err)
	assert.Nil(t, noVector.Year)
	assert.Nil(t, noVector.MetaEmbedding)
	assert.Equal(t, []string{}, noVector.Tags)
	assert.False(t, noVector.Eligible())

	_, err = store.GetSong(ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_UpsertReplaces(t *testing.T) {
	store := newTestStore(t)
	seedCatalog(t, store)
	ctx := context.Background()

	err := store.UpsertSong(ctx, &Song{ID: 1, Title: "Happy (Live)", Popularity: 60, Phrases: []string{"live"}})
	require.NoError(t, err)

	song, err := store.GetSong(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Happy (Live)", song.Title)
	assert.Equal(t, 60, song.Popularity)
	assert.Equal(t, []string{"live"}, song.Phrases)

	// nil Phrases leaves the stored list alone
	err = store.UpsertSong(ctx, &Song{ID: 1, Title: "Happy (Live)", Popularity: 61})
	require.NoError(t, err)
	song, err = store.GetSong(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"live"}, song.Phrases)
}

func TestSQLiteStore_UpsertValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		song *Song
	}{
		{"zero id", &Song{Title: "x"}},
		{"missing title", &Song{ID: 1}},
		{"popularity too high", &Song{ID: 1, Title: "x", Popularity: 101}},
		{"negative popularity", &Song{ID: 1, Title: "x", Popularity: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.UpsertSong(ctx, tt.song)
			assert.True(t, errors.Is(err, ErrInvalidSong), "expected ErrInvalidSong, got %v", err)
		})
	}
}

func TestSQLiteStore_FindPhrase(t *testing.T) {
	store := newTestStore(t)
	seedCatalog(t, store)
	ctx := context.Background()

	tests := []struct {
		name   string
		phrase string
		mode   PhraseMode
		want   []int64
	}{
		{"exact excludes placeholder", "happy", PhraseExact, []int64{1}},
		{"exact is normalized", "  Clap, ALONG! ", PhraseExact, []int64{1}},
		{"exact needs whole phrase", "walking", PhraseExact, nil},
		{"exact ignores stop-words", "walking sunshine", PhraseExact, []int64{2}},
		{"lemma matches inflection", "walked on sunshine", PhraseLemma, []int64{2}},
		{"song without vector still has phrases", "dancing queen", PhraseExact, []int64{4}},
		{"empty phrase", "   ", PhraseExact, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits, err := store.FindPhrase(ctx, tt.phrase, tt.mode)
			require.NoError(t, err)
			var got []int64
			for _, h := range hits {
				got = append(got, h.SongID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSQLiteStore_TopPopular(t *testing.T) {
	store := newTestStore(t)
	seedCatalog(t, store)
	ctx := context.Background()

	songs, err := store.TopPopular(ctx, 3, nil)
	require.NoError(t, err)
	require.Len(t, songs, 3)
	assert.Equal(t, []int64{1, 5, 2}, []int64{songs[0].ID, songs[1].ID, songs[2].ID})

	songs, err = store.TopPopular(ctx, 2, []int64{1})
	require.NoError(t, err)
	require.Len(t, songs, 2)
	assert.Equal(t, int64(5), songs[0].ID)
	assert.Equal(t, int64(2), songs[1].ID)

	songs, err = store.TopPopular(ctx, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, songs)
}

func TestSQLiteStore_GetSongs(t *testing.T) {
	store := newTestStore(t)
	seedCatalog(t, store)

	songs, err := store.GetSongs(context.Background(), []int64{1, 5, 404})
	require.NoError(t, err)
	assert.Len(t, songs, 2)
	assert.Equal(t, "Adele", songs[5].Artist)
	_, ok := songs[404]
	assert.False(t, ok)
}

func TestSQLiteStore_Aboutness(t *testing.T) {
	store := newTestStore(t)
	seedCatalog(t, store)
	ctx := context.Background()

	v1, err := store.GetAboutness(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, AboutnessV1, v1.Version)
	assert.Equal(t, ConfidenceMedium, v1.Confidence)
	assert.NotNil(t, v1.AboutEmbedding)
	assert.Nil(t, v1.EmotionEmbedding)

	v2, err := store.GetAboutness(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, AboutnessV2, v2.Version)
	assert.Equal(t, ConfidenceHigh, v2.Confidence)
	assert.Equal(t, "running into an ex", v2.MomentText)

	_, err = store.GetAboutness(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_Stats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	empty, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.EligibleSongs)
	assert.Equal(t, 0, empty.VectorWidth)
	assert.Equal(t, CurrentSchemaVersion, empty.SchemaVersion)

	seedCatalog(t, store)
	st, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, st.TotalSongs)
	assert.Equal(t, 3, st.EligibleSongs)
	assert.Equal(t, 1, st.AboutVectors)
	assert.Equal(t, 1, st.EmotionVecs)
	assert.Equal(t, 1, st.MomentVecs)
	assert.Equal(t, 4, st.VectorWidth)
}

func TestSQLiteStore_Transaction(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.UpsertSong(ctx, &Song{ID: 7, Title: "Rolled back"}))
	require.NoError(t, tx.Rollback())

	_, err = store.GetSong(ctx, 7)
	assert.ErrorIs(t, err, ErrNotFound)

	tx, err = store.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.UpsertSong(ctx, &Song{ID: 7, Title: "Committed"}))
	require.NoError(t, tx.UpsertAboutness(ctx, &Aboutness{SongID: 7, EmotionText: "calm"}))
	require.NoError(t, tx.Commit())

	song, err := store.GetSong(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "Committed", song.Title)
}

func neighborIDs(ns []Neighbor) []int64 {
	ids := make([]int64, len(ns))
	for i, n := range ns {
		ids[i] = n.SongID
	}
	return ids
}

func TestSQLitePreparedQuery_Nearest(t *testing.T) {
	store := newTestStore(t)
	seedCatalog(t, store)
	ctx := context.Background()

	tests := []struct {
		name   string
		column Column
		opts   NeighborOptions
		want   []int64
	}{
		{
			name:   "meta excludes placeholder and null vectors",
			column: ColumnMeta,
			opts:   NeighborOptions{Limit: 10, Breadth: 100},
			want:   []int64{1, 2, 5},
		},
		{
			name:   "limit",
			column: ColumnMeta,
			opts:   NeighborOptions{Limit: 1},
			want:   []int64{1},
		},
		{
			name:   "exclude filter",
			column: ColumnMeta,
			opts:   NeighborOptions{Limit: 10, Filters: &Filters{ExcludeIDs: []int64{1}}},
			want:   []int64{2, 5},
		},
		{
			name:   "popularity floor",
			column: ColumnMeta,
			opts:   NeighborOptions{Limit: 10, Filters: &Filters{MinPopularity: 82}},
			want:   []int64{1, 5},
		},
		{
			name:   "year range",
			column: ColumnMeta,
			opts:   NeighborOptions{Limit: 10, Filters: &Filters{YearFrom: 2000, YearTo: 2012}},
			want:   []int64{5},
		},
		{
			name:   "about column only songs with aboutness",
			column: ColumnAbout,
			opts:   NeighborOptions{Limit: 10},
			want:   []int64{2},
		},
		{
			name:   "emotion column",
			column: ColumnEmotion,
			opts:   NeighborOptions{Limit: 10},
			want:   []int64{5},
		},
		{
			name:   "zero limit",
			column: ColumnMeta,
			opts:   NeighborOptions{},
			want:   []int64{},
		},
	}

	pq, err := store.PrepareQuery(ctx, unit(0, 0))
	require.NoError(t, err)
	defer func() { _ = pq.Close() }()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pq.Nearest(ctx, tt.column, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, neighborIDs(got))
		})
	}

	got, err := pq.Nearest(ctx, ColumnMeta, NeighborOptions{Limit: 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, got[0].Distance, 1e-6)
}

func TestSQLitePreparedQuery_Distances(t *testing.T) {
	store := newTestStore(t)
	seedCatalog(t, store)
	ctx := context.Background()

	pq, err := store.PrepareQuery(ctx, unit(0, 0))
	require.NoError(t, err)

	dist, err := pq.Distances(ctx, ColumnMoment, []int64{1, 2, 5})
	require.NoError(t, err)
	assert.Len(t, dist, 1)
	assert.InDelta(t, 0.0, dist[5], 1e-6)

	dist, err = pq.Distances(ctx, ColumnMeta, []int64{1, 3, 5})
	require.NoError(t, err)
	assert.Len(t, dist, 2, "placeholder song must not be scored")
	assert.InDelta(t, 1.0, dist[5], 1e-6)

	_, err = pq.Distances(ctx, Column("lyrics"), []int64{1})
	assert.ErrorIs(t, err, ErrUnknownColumn)

	require.NoError(t, pq.Close())
	require.NoError(t, pq.Close())

	_, err = pq.Nearest(ctx, ColumnMeta, NeighborOptions{Limit: 1})
	assert.ErrorIs(t, err, ErrQueryClosed)

	// The connection is released after Close
	_, err = store.GetSong(ctx, 1)
	assert.NoError(t, err)
}

func TestSQLiteStore_PrepareQueryEmpty(t *testing.T) {
	store := newTestStore(t)
	_, err := store.PrepareQuery(context.Background(), nil)
	assert.Error(t, err)
}
