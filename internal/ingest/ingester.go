package ingest

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/songmatch/internal/catalog"
	"github.com/dshills/songmatch/internal/embedder"
	"github.com/dshills/songmatch/internal/metrics"
)

// ErrInProgress is returned when an ingest is already running
var ErrInProgress = errors.New("ingest already in progress")

// Store is the catalog surface ingestion writes through
type Store interface {
	BeginTx(ctx context.Context) (catalog.Tx, error)
}

// Config tunes ingestion
type Config struct {
	// Workers bounds concurrent embedding batches (default: runtime.NumCPU())
	Workers int `koanf:"workers" validate:"min=0"`
	// BatchSize is the number of songs embedded and committed together
	BatchSize int `koanf:"batch_size" validate:"min=0,max=1000"`
}

// DefaultConfig returns the default worker count and batch size
func DefaultConfig() Config {
	return Config{
		Workers:   runtime.NumCPU(),
		BatchSize: 32,
	}
}

// Statistics describes one ingest run
type Statistics struct {
	SongsIndexed     int           `json:"songs_indexed"`
	SongsFailed      int           `json:"songs_failed"`
	Placeholders     int           `json:"placeholders"`
	AboutnessIndexed int           `json:"aboutness_indexed"`
	Batches          int           `json:"batches"`
	Duration         time.Duration `json:"duration_ns"`
	ErrorMessages    []string      `json:"errors,omitempty"`
}

// Ingester embeds catalog records and writes them to the store
type Ingester struct {
	store    Store
	embedder embedder.Embedder
	cfg      Config
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	lock     Lock
}

// New creates an ingester. m may be nil.
func New(store Store, emb embedder.Embedder, cfg Config, m *metrics.Metrics, logger zerolog.Logger) *Ingester {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	return &Ingester{
		store:    store,
		embedder: emb,
		cfg:      cfg,
		metrics:  m,
		logger:   logger,
	}
}

// Running reports whether an ingest is in flight
func (in *Ingester) Running() bool {
	return in.lock.Held()
}

// IngestFile loads a YAML catalog and ingests it
func (in *Ingester) IngestFile(ctx context.Context, path string) (*Statistics, error) {
	file, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return in.Ingest(ctx, file.Songs)
}

// Ingest embeds and upserts records in batches. A failing batch is rolled
// back and reported in the statistics; the other batches still commit.
// Cancellation stops the run and returns the context error.
func (in *Ingester) Ingest(ctx context.Context, records []SongRecord) (*Statistics, error) {
	if !in.lock.TryAcquire() {
		return nil, ErrInProgress
	}
	defer in.lock.Release()

	start := time.Now()
	stats := &Statistics{ErrorMessages: make([]string, 0)}

	var (
		indexed, failed, placeholders, aboutness atomic.Int32
		mu                                       sync.Mutex // guards stats.ErrorMessages
	)

	semaphore := make(chan struct{}, in.cfg.Workers)
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < len(records); i += in.cfg.BatchSize {
		end := min(i+in.cfg.BatchSize, len(records))
		batch := records[i:end]
		stats.Batches++

		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case semaphore <- struct{}{}:
			}
			defer func() { <-semaphore }()

			res, err := in.ingestBatch(gctx, batch)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed.Add(int32(len(batch)))
				mu.Lock()
				stats.ErrorMessages = append(stats.ErrorMessages,
					fmt.Sprintf("songs %d-%d: %v", batch[0].ID, batch[len(batch)-1].ID, err))
				mu.Unlock()
				in.logger.Warn().Err(err).Int64("first_id", batch[0].ID).Int("size", len(batch)).
					Msg("ingest batch failed")
				return nil
			}
			indexed.Add(int32(res.songs))
			placeholders.Add(int32(res.placeholders))
			aboutness.Add(int32(res.aboutness))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats.SongsIndexed = int(indexed.Load())
	stats.SongsFailed = int(failed.Load())
	stats.Placeholders = int(placeholders.Load())
	stats.AboutnessIndexed = int(aboutness.Load())
	stats.Duration = time.Since(start)

	in.metrics.AddIngested("indexed", stats.SongsIndexed)
	in.metrics.AddIngested("failed", stats.SongsFailed)
	in.logger.Info().
		Int("indexed", stats.SongsIndexed).
		Int("failed", stats.SongsFailed).
		Int("aboutness", stats.AboutnessIndexed).
		Dur("duration", stats.Duration).
		Msg("ingest complete")

	return stats, nil
}

type batchResult struct {
	songs, placeholders, aboutness int
}

// ingestBatch embeds a batch and writes it in one transaction. Embedding
// happens before the transaction opens so the write lock is held briefly.
func (in *Ingester) ingestBatch(ctx context.Context, batch []SongRecord) (batchResult, error) {
	var res batchResult

	songs := make([]*catalog.Song, len(batch))
	var metaIdx []int
	var metaTexts []string
	for i, r := range batch {
		songs[i] = r.Song()
		if r.Placeholder {
			res.placeholders++
			continue
		}
		metaIdx = append(metaIdx, i)
		metaTexts = append(metaTexts, r.MetaText())
	}

	vectors, err := in.embed(ctx, metaTexts)
	if err != nil {
		return res, fmt.Errorf("failed to embed metadata: %w", err)
	}
	for j, i := range metaIdx {
		songs[i].MetaEmbedding = vectors[j]
	}

	abouts, err := in.aboutness(ctx, batch)
	if err != nil {
		return res, err
	}

	tx, err := in.store.BeginTx(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, s := range songs {
		if err := tx.UpsertSong(ctx, s); err != nil {
			return res, err
		}
	}
	for _, a := range abouts {
		if err := tx.UpsertAboutness(ctx, a); err != nil {
			return res, err
		}
	}
	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("failed to commit transaction: %w", err)
	}

	res.songs = len(songs)
	res.aboutness = len(abouts)
	return res, nil
}

// aboutness embeds the emotion and moment texts of the batch. The combined
// text also fills the single about vector read by the two-signal strategy.
func (in *Ingester) aboutness(ctx context.Context, batch []SongRecord) ([]*catalog.Aboutness, error) {
	var (
		out   []*catalog.Aboutness
		texts []string
		// slots[i] points at the vector field texts[i] fills
		slots []*[]float32
	)
	for _, r := range batch {
		if !r.hasAboutness() {
			continue
		}
		ab := r.Aboutness
		conf := catalog.Confidence(ab.Confidence)
		if conf == "" {
			conf = catalog.ConfidenceLow
		}
		a := &catalog.Aboutness{
			SongID:      r.ID,
			EmotionText: ab.Emotion,
			MomentText:  ab.Moment,
			Confidence:  conf,
			Version:     catalog.AboutnessV2,
		}
		if ab.Emotion != "" {
			texts, slots = append(texts, ab.Emotion), append(slots, &a.EmotionEmbedding)
		}
		if ab.Moment != "" {
			texts, slots = append(texts, ab.Moment), append(slots, &a.MomentEmbedding)
		}
		combined := ab.Emotion
		if ab.Moment != "" {
			if combined != "" {
				combined += ". "
			}
			combined += ab.Moment
		}
		texts, slots = append(texts, combined), append(slots, &a.AboutEmbedding)
		out = append(out, a)
	}

	vectors, err := in.embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed aboutness: %w", err)
	}
	for i, v := range vectors {
		*slots[i] = v
	}
	return out, nil
}

// embed generates vectors for texts in calls of at most MaxBatchSize texts
// and checks their width against the embedder's declared dimension
func (in *Ingester) embed(ctx context.Context, texts []string) ([][]float32, error) {
	want := in.embedder.Dimension()
	out := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += embedder.MaxBatchSize {
		chunk := texts[i:min(i+embedder.MaxBatchSize, len(texts))]
		resp, err := in.embedder.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: chunk})
		if err != nil {
			return nil, err
		}
		if len(resp.Embeddings) != len(chunk) {
			return nil, fmt.Errorf("got %d embeddings for %d texts", len(resp.Embeddings), len(chunk))
		}
		for _, e := range resp.Embeddings {
			if len(e.Vector) != want {
				return nil, fmt.Errorf("embedding is %d wide, expected %d", len(e.Vector), want)
			}
			out = append(out, e.Vector)
		}
	}
	return out, nil
}
