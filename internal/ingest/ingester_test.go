package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/songmatch/internal/catalog"
	"github.com/dshills/songmatch/internal/embedder"
	"github.com/dshills/songmatch/internal/logging"
)

// poisonEmbedder fails any batch containing a text with "poison"
type poisonEmbedder struct {
	embedder.Embedder
}

func (p poisonEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	for _, t := range req.Texts {
		if strings.Contains(strings.ToLower(t), "poison") {
			return nil, fmt.Errorf("%w: model rejected input", embedder.ErrProviderFailed)
		}
	}
	return p.Embedder.GenerateBatch(ctx, req)
}

func newTestStore(t *testing.T) *catalog.SQLiteStore {
	t.Helper()
	store, err := catalog.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newLocal(t *testing.T) embedder.Embedder {
	t.Helper()
	emb, err := embedder.NewLocalProvider(embedder.LocalDimension, nil)
	require.NoError(t, err)
	return emb
}

func records(n int) []SongRecord {
	out := make([]SongRecord, n)
	for i := range out {
		out[i] = SongRecord{
			ID:         int64(i + 1),
			Title:      fmt.Sprintf("Song %d", i+1),
			Artist:     "Band",
			Tags:       []string{"pop"},
			Popularity: 50,
		}
	}
	return out
}

func TestIngest(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	in := New(store, newLocal(t), Config{Workers: 2, BatchSize: 2}, nil, logging.Nop())

	file, err := Parse(strings.NewReader(sampleCatalog))
	require.NoError(t, err)

	stats, err := in.Ingest(ctx, file.Songs)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.SongsIndexed)
	assert.Equal(t, 0, stats.SongsFailed)
	assert.Equal(t, 1, stats.Placeholders)
	assert.Equal(t, 1, stats.AboutnessIndexed)
	assert.Equal(t, 2, stats.Batches)
	assert.Empty(t, stats.ErrorMessages)

	st, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.TotalSongs)
	assert.Equal(t, 2, st.EligibleSongs)
	assert.Equal(t, embedder.LocalDimension, st.VectorWidth)

	placeholder, err := store.GetSong(ctx, 3)
	require.NoError(t, err)
	assert.True(t, placeholder.IsPlaceholder)
	assert.Nil(t, placeholder.MetaEmbedding)

	about, err := store.GetAboutness(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, catalog.AboutnessV2, about.Version)
	assert.Equal(t, catalog.ConfidenceHigh, about.Confidence)
	assert.Len(t, about.EmotionEmbedding, embedder.LocalDimension)
	assert.Len(t, about.MomentEmbedding, embedder.LocalDimension)
	assert.Len(t, about.AboutEmbedding, embedder.LocalDimension)

	hits, err := store.FindPhrase(ctx, "clap along", catalog.PhraseExact)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(1), hits[0].SongID)
}

func TestIngest_Reingest(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	in := New(store, newLocal(t), Config{Workers: 1, BatchSize: 10}, nil, logging.Nop())

	recs := records(3)
	_, err := in.Ingest(ctx, recs)
	require.NoError(t, err)

	recs[0].Title = "Renamed"
	stats, err := in.Ingest(ctx, recs)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.SongsIndexed)

	song, err := store.GetSong(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", song.Title)

	st, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.TotalSongs)
}

func TestIngest_FailedBatchIsIsolated(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	in := New(store, poisonEmbedder{newLocal(t)}, Config{Workers: 2, BatchSize: 2}, nil, logging.Nop())

	recs := records(6)
	recs[2].Title = "Poison Ivy" // second batch: songs 3-4

	stats, err := in.Ingest(ctx, recs)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.SongsIndexed)
	assert.Equal(t, 2, stats.SongsFailed)
	require.Len(t, stats.ErrorMessages, 1)
	assert.Contains(t, stats.ErrorMessages[0], "songs 3-4")

	_, err = store.GetSong(ctx, 3)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
	_, err = store.GetSong(ctx, 5)
	assert.NoError(t, err)
}

func TestIngest_InProgress(t *testing.T) {
	in := New(newTestStore(t), newLocal(t), DefaultConfig(), nil, logging.Nop())

	require.True(t, in.lock.TryAcquire())
	assert.True(t, in.Running())

	_, err := in.Ingest(context.Background(), records(1))
	assert.ErrorIs(t, err, ErrInProgress)

	in.lock.Release()
	_, err = in.Ingest(context.Background(), records(1))
	assert.NoError(t, err)
	assert.False(t, in.Running())
}

func TestIngest_Cancelled(t *testing.T) {
	in := New(newTestStore(t), newLocal(t), DefaultConfig(), nil, logging.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := in.Ingest(ctx, records(4))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, in.Running())
}

func TestIngest_Empty(t *testing.T) {
	in := New(newTestStore(t), newLocal(t), DefaultConfig(), nil, logging.Nop())

	stats, err := in.Ingest(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, stats.SongsIndexed)
	assert.Zero(t, stats.Batches)
}

func TestLock(t *testing.T) {
	var l Lock
	assert.True(t, l.TryAcquire())
	assert.False(t, l.TryAcquire())
	assert.True(t, l.Held())
	l.Release()
	assert.False(t, l.Held())
	assert.True(t, l.TryAcquire())
}
