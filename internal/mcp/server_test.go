package mcp

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/songmatch/internal/catalog"
	"github.com/dshills/songmatch/internal/embedder"
	"github.com/dshills/songmatch/internal/entity"
	"github.com/dshills/songmatch/internal/history"
	"github.com/dshills/songmatch/internal/ingest"
	"github.com/dshills/songmatch/internal/keyword"
	"github.com/dshills/songmatch/internal/logging"
	"github.com/dshills/songmatch/internal/mood"
	"github.com/dshills/songmatch/internal/pipeline"
	"github.com/dshills/songmatch/internal/searcher"
	"github.com/dshills/songmatch/pkg/types"
)

type fakeRecommender struct {
	last pipeline.Request
	resp *pipeline.Response
	err  error
}

func (f *fakeRecommender) Recommend(_ context.Context, req pipeline.Request) (*pipeline.Response, error) {
	f.last = req
	return f.resp, f.err
}

type fakeStats struct{}

func (fakeStats) Stats(context.Context) (*catalog.Stats, error) {
	return &catalog.Stats{TotalSongs: 3, EligibleSongs: 2, VectorWidth: 384}, nil
}

type fakeIngester struct {
	stats *ingest.Statistics
	err   error
}

func (f fakeIngester) IngestFile(context.Context, string) (*ingest.Statistics, error) {
	return f.stats, f.err
}

func (f fakeIngester) Running() bool { return false }

func newTestServer(t *testing.T, rec Recommender, ing Ingester) (*Server, history.Tracker) {
	t.Helper()
	tracker := history.NewMemoryTracker(history.DefaultConfig())
	s, err := NewServer(Deps{
		Recommender: rec,
		History:     tracker,
		Stats:       fakeStats{},
		Ingester:    ing,
	}, logging.Nop())
	require.NoError(t, err)
	return s, tracker
}

func call(name string, args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	return text.Text
}

func requireMCPError(t *testing.T, err error, code int) {
	t.Helper()
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, code, mcpErr.Code)
}

func TestNewServer_Validation(t *testing.T) {
	tracker := history.NewMemoryTracker(history.DefaultConfig())
	tests := []struct {
		name string
		deps Deps
	}{
		{"no recommender", Deps{History: tracker, Stats: fakeStats{}}},
		{"no history", Deps{Recommender: &fakeRecommender{}, Stats: fakeStats{}}},
		{"no stats", Deps{Recommender: &fakeRecommender{}, History: tracker}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewServer(tt.deps, logging.Nop())
			assert.Error(t, err)
		})
	}
}

func TestRecommendSong(t *testing.T) {
	rec := &fakeRecommender{resp: &pipeline.Response{
		RequestID:  "r1",
		Candidates: []types.Candidate{{SongID: 7, Title: "Happy"}, {SongID: 9, Title: "Walking on Sunshine"}},
	}}
	s, tracker := newTestServer(t, rec, nil)
	ctx := context.Background()
	require.NoError(t, tracker.Record(ctx, "room-1", 3))

	res, err := s.handleRecommendSong(ctx, call("recommend_song", map[string]interface{}{
		"message":        "something happy",
		"limit":          float64(2),
		"session_id":     "room-1",
		"allow_explicit": true,
		"filters": map[string]interface{}{
			"exclude":        []interface{}{float64(4), float64(5)},
			"preferred_tags": []interface{}{"pop", " "},
			"min_popularity": float64(20),
		},
	}))
	require.NoError(t, err)

	assert.Equal(t, "something happy", rec.last.Message)
	assert.Equal(t, 2, rec.last.K)
	assert.True(t, rec.last.RoomAllowsExplicit)
	assert.Equal(t, []int64{3}, rec.last.RecentSongIDs)
	require.NotNil(t, rec.last.Context)
	assert.Equal(t, []int64{4, 5}, rec.last.Context.ExcludeSongIDs)
	assert.Equal(t, []string{"pop"}, rec.last.Context.PreferredTags)
	assert.Equal(t, 20, rec.last.Context.MinPopularity)

	var resp pipeline.Response
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &resp))
	assert.Equal(t, "r1", resp.RequestID)
	require.Len(t, resp.Candidates, 2)

	// Only the top song is recorded as played
	recent, err := tracker.Recent(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 3}, recent)
}

func TestRecommendSong_NoSession(t *testing.T) {
	rec := &fakeRecommender{resp: &pipeline.Response{Candidates: []types.Candidate{}}}
	s, _ := newTestServer(t, rec, nil)

	_, err := s.handleRecommendSong(context.Background(), call("recommend_song", map[string]interface{}{
		"message": "",
	}))
	require.NoError(t, err)
	assert.Empty(t, rec.last.RecentSongIDs)
	assert.Nil(t, rec.last.Context)
	assert.False(t, rec.last.RoomAllowsExplicit)
}

func TestRecommendSong_Limit(t *testing.T) {
	rec := &fakeRecommender{resp: &pipeline.Response{Candidates: []types.Candidate{}}}
	s, _ := newTestServer(t, rec, nil)
	ctx := context.Background()

	for _, limit := range []float64{0, 1, 100} {
		_, err := s.handleRecommendSong(ctx, call("recommend_song", map[string]interface{}{
			"message": "x",
			"limit":   limit,
		}))
		require.NoError(t, err)
		assert.Equal(t, int(limit), rec.last.K)
	}

	_, err := s.handleRecommendSong(ctx, call("recommend_song", map[string]interface{}{
		"message": "x",
		"limit":   101.0,
	}))
	requireMCPError(t, err, ErrorCodeInvalidParams)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, "limit must be between 0 and 100 (0 = default)", mcpErr.Message)
}

func TestRecommendSong_InvalidParams(t *testing.T) {
	tests := []struct {
		name string
		args interface{}
	}{
		{"not an object", "hello"},
		{"missing message", map[string]interface{}{}},
		{"message not string", map[string]interface{}{"message": 42.0}},
		{"limit too large", map[string]interface{}{"message": "x", "limit": 101.0}},
		{"negative limit", map[string]interface{}{"message": "x", "limit": -1.0}},
		{"filters not object", map[string]interface{}{"message": "x", "filters": "pop"}},
		{"bad exclude", map[string]interface{}{"message": "x", "filters": map[string]interface{}{"exclude": []interface{}{"a"}}}},
		{"bad tag", map[string]interface{}{"message": "x", "filters": map[string]interface{}{"preferred_tags": []interface{}{1.0}}}},
		{"years reversed", map[string]interface{}{"message": "x", "filters": map[string]interface{}{"year_from": 2000.0, "year_to": 1990.0}}},
		{"popularity out of range", map[string]interface{}{"message": "x", "filters": map[string]interface{}{"min_popularity": 101.0}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakeRecommender{resp: &pipeline.Response{}}
			s, _ := newTestServer(t, rec, nil)
			req := mcp.CallToolRequest{}
			req.Params.Arguments = tt.args

			_, err := s.handleRecommendSong(context.Background(), req)
			requireMCPError(t, err, ErrorCodeInvalidParams)
		})
	}
}

func TestRecommendSong_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"internal", pipeline.ErrInternal, ErrorCodeInternalError},
		{"cancelled", context.Canceled, ErrorCodeRequestCancelled},
		{"deadline", context.DeadlineExceeded, ErrorCodeRequestCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, tracker := newTestServer(t, &fakeRecommender{err: tt.err}, nil)
			_, err := s.handleRecommendSong(context.Background(), call("recommend_song", map[string]interface{}{
				"message":    "x",
				"session_id": "room",
			}))
			requireMCPError(t, err, tt.code)

			recent, _ := tracker.Recent(context.Background(), "room")
			assert.Empty(t, recent)
		})
	}
}

func TestGetStatus(t *testing.T) {
	s, _ := newTestServer(t, &fakeRecommender{}, fakeIngester{})

	res, err := s.handleGetStatus(context.Background(), call("get_status", nil))
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &body))
	cat, ok := body["catalog"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 3.0, cat["total_songs"])
	assert.Equal(t, 2.0, cat["eligible_songs"])
	assert.Equal(t, false, body["ingest_running"])
	assert.NotContains(t, body, "search")
}

func TestIngestCatalog_Errors(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(good, []byte("songs: []\n"), 0644))

	tests := []struct {
		name string
		path interface{}
		ing  fakeIngester
		code int
	}{
		{"missing path", nil, fakeIngester{}, ErrorCodeInvalidParams},
		{"relative path", "catalog.yaml", fakeIngester{}, ErrorCodeInvalidParams},
		{"not yaml", filepath.Join(dir, "catalog.json"), fakeIngester{}, ErrorCodeInvalidParams},
		{"directory", filepath.Join(dir, "sub.yaml"), fakeIngester{}, ErrorCodeInvalidParams},
		{"not found", filepath.Join(dir, "missing.yaml"), fakeIngester{}, ErrorCodeCatalogNotFound},
		{"in progress", good, fakeIngester{err: ingest.ErrInProgress}, ErrorCodeIngestInProgress},
		{"invalid catalog", good, fakeIngester{err: ingest.ErrInvalidCatalog}, ErrorCodeInvalidCatalog},
		{"store failure", good, fakeIngester{err: errors.New("disk full")}, ErrorCodeInternalError},
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.yaml"), 0755))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, &fakeRecommender{}, tt.ing)
			args := map[string]interface{}{}
			if tt.path != nil {
				args["path"] = tt.path
			}
			_, err := s.handleIngestCatalog(context.Background(), call("ingest_catalog", args))
			requireMCPError(t, err, tt.code)
		})
	}
}

func TestIngestCatalog_TruncatesErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yml")
	require.NoError(t, os.WriteFile(path, []byte("songs: []\n"), 0644))

	stats := &ingest.Statistics{SongsIndexed: 4, SongsFailed: 7, Duration: 15 * time.Millisecond,
		ErrorMessages: []string{"a", "b", "c", "d", "e", "f", "g"}}
	s, _ := newTestServer(t, &fakeRecommender{}, fakeIngester{stats: stats})

	res, err := s.handleIngestCatalog(context.Background(), call("ingest_catalog", map[string]interface{}{"path": path}))
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &body))
	assert.Equal(t, 4.0, body["songs_indexed"])
	assert.Equal(t, 15.0, body["duration_ms"])
	assert.Len(t, body["errors"], 5)
	assert.Equal(t, 7.0, body["error_count"])
}

const testCatalog = `
songs:
  - id: 1
    title: Happy
    artist: Pharrell Williams
    tags: [happy, pop, upbeat]
    popularity: 90
    phrases: [upbeat, clap along]
  - id: 2
    title: Someone Like You
    artist: Adele
    tags: [sad]
    popularity: 85
    phrases: [heartbreak]
  - id: 3
    title: Walking on Sunshine
    artist: Katrina and the Waves
    tags: [happy, summer]
    popularity: 80
`

// TestServer_EndToEnd ingests a catalog file and recommends from it through
// the real pipeline
func TestServer_EndToEnd(t *testing.T) {
	ctx := context.Background()

	store, err := catalog.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	emb, err := embedder.NewLocalProvider(embedder.LocalDimension, nil)
	require.NoError(t, err)

	search, err := searcher.New(store, emb, searcher.DefaultConfig(), logging.Nop())
	require.NoError(t, err)

	p, err := pipeline.New(pipeline.Stages{
		Keyword:  keyword.NewMatcher(store, keyword.NewIdiomPrior(), keyword.DefaultConfig(), logging.Nop()),
		Semantic: search,
		Mood:     mood.NewClassifier(logging.Nop()),
		Entity:   entity.NewExtractor(logging.Nop()),
		Songs:    store,
	}, pipeline.DefaultConfig(), logging.Nop())
	require.NoError(t, err)

	tracker := history.NewMemoryTracker(history.DefaultConfig())
	s, err := NewServer(Deps{
		Recommender: p,
		History:     tracker,
		Stats:       store,
		Health:      search,
		Ingester:    ingest.New(store, emb, ingest.DefaultConfig(), nil, logging.Nop()),
	}, logging.Nop())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testCatalog), 0644))

	_, err = s.handleIngestCatalog(ctx, call("ingest_catalog", map[string]interface{}{"path": path}))
	require.NoError(t, err)

	recommend := func() pipeline.Response {
		res, err := s.handleRecommendSong(ctx, call("recommend_song", map[string]interface{}{
			"message":    "I need something upbeat",
			"session_id": "room",
			"limit":      3.0,
		}))
		require.NoError(t, err)
		var resp pipeline.Response
		require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &resp))
		return resp
	}

	first := recommend()
	require.NotEmpty(t, first.Candidates)
	assert.Equal(t, int64(1), first.Candidates[0].SongID)
	assert.Equal(t, "upbeat", first.Candidates[0].MatchedPhrase)

	recent, err := tracker.Recent(ctx, "room")
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, recent)

	// The repeat request penalizes the song just played
	second := recommend()
	require.NotEmpty(t, second.Candidates)
	for _, c := range second.Candidates {
		if c.SongID == 1 {
			assert.Less(t, c.Scores.Final, first.Candidates[0].Scores.Final)
		}
	}

	res, err := s.handleGetStatus(ctx, call("get_status", nil))
	require.NoError(t, err)
	var status map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &status))
	assert.Equal(t, 3.0, status["catalog"].(map[string]interface{})["eligible_songs"])
	assert.Contains(t, status, "search")
}
