//go:build integration

package catalog

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const pgvectorImage = "pgvector/pgvector:pg16"

func skipIfNoDocker(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if exec.CommandContext(ctx, "docker", "info").Run() != nil {
		t.Skip("Skipping test: Docker not available")
	}
}

func newPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	skipIfNoDocker(t)

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, pgvectorImage,
		postgres.WithDatabase("songmatch"),
		postgres.WithUsername("songmatch"),
		postgres.WithPassword("songmatch"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := NewPostgresStore(ctx, dsn, 4)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPostgresStore_Integration(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()

	songs := []*Song{
		{ID: 1, Title: "Happy", Tags: []string{"happy"}, Year: intPtr(2013), Popularity: 95, MetaEmbedding: unit(0, 0), Phrases: []string{"happy"}},
		{ID: 2, Title: "Walking on Sunshine", Popularity: 80, MetaEmbedding: unit(0, 0.2), Phrases: []string{"walking on sunshine"}},
		{ID: 3, Title: "Placeholder", Popularity: 99, IsPlaceholder: true, MetaEmbedding: unit(0, 0)},
		{ID: 4, Title: "No Vector", Popularity: 70},
		{ID: 5, Title: "Someone Like You", Popularity: 85, MetaEmbedding: unit(2, 0)},
	}
	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	for _, s := range songs {
		require.NoError(t, tx.UpsertSong(ctx, s))
	}
	require.NoError(t, tx.UpsertAboutness(ctx, &Aboutness{
		SongID: 5, EmotionEmbedding: unit(2, 0.1), MomentEmbedding: unit(0, 0),
	}))
	require.NoError(t, tx.Commit())

	t.Run("round trip", func(t *testing.T) {
		song, err := store.GetSong(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"happy"}, song.Tags)
		assert.Equal(t, unit(0, 0), song.MetaEmbedding)
		assert.Equal(t, []string{"happy"}, song.Phrases)
	})

	t.Run("phrases", func(t *testing.T) {
		hits, err := store.FindPhrase(ctx, "walked on sunshine", PhraseLemma)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, int64(2), hits[0].SongID)
	})

	t.Run("top popular", func(t *testing.T) {
		top, err := store.TopPopular(ctx, 2, []int64{1})
		require.NoError(t, err)
		require.Len(t, top, 2)
		assert.Equal(t, int64(5), top[0].ID)
		assert.Equal(t, int64(2), top[1].ID)
	})

	t.Run("stats", func(t *testing.T) {
		st, err := store.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, st.EligibleSongs)
		assert.Equal(t, 4, st.VectorWidth)
		assert.Equal(t, CurrentSchemaVersion, st.SchemaVersion)
	})

	t.Run("prepared query", func(t *testing.T) {
		pq, err := store.PrepareQuery(ctx, unit(0, 0))
		require.NoError(t, err)
		defer func() { _ = pq.Close() }()

		got, err := pq.Nearest(ctx, ColumnMeta, NeighborOptions{Limit: 10, Breadth: 100})
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2, 5}, neighborIDs(got))

		got, err = pq.Nearest(ctx, ColumnMeta, NeighborOptions{Limit: 10, Breadth: 5000,
			Filters: &Filters{ExcludeIDs: []int64{1}}})
		require.NoError(t, err)
		assert.Equal(t, []int64{2, 5}, neighborIDs(got))

		dist, err := pq.Distances(ctx, ColumnMoment, []int64{1, 2, 5})
		require.NoError(t, err)
		require.Len(t, dist, 1)
		assert.InDelta(t, 0.0, dist[5], 1e-6)
	})
}
