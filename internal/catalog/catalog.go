package catalog

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested song doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidSong is returned when a song fails validation on write
	ErrInvalidSong = errors.New("invalid song")
	// ErrUnknownColumn is returned for a vector column the store does not know
	ErrUnknownColumn = errors.New("unknown vector column")
	// ErrQueryClosed is returned when a prepared query is used after Close
	ErrQueryClosed = errors.New("prepared query closed")
)

// Store is the read/write surface of the song catalog. The recommendation
// path only reads; writes come from ingestion.
type Store interface {
	Reader
	Writer
	NearestNeighborSearch

	// BeginTx starts a write transaction
	BeginTx(ctx context.Context) (Tx, error)

	// Close releases the underlying database handle
	Close() error
}

// Reader covers the non-vector read operations
type Reader interface {
	GetSong(ctx context.Context, id int64) (*Song, error)
	GetSongs(ctx context.Context, ids []int64) (map[int64]*Song, error)
	ListSongs(ctx context.Context, limit, offset int) ([]*Song, error)
	GetAboutness(ctx context.Context, songID int64) (*Aboutness, error)

	// FindPhrase returns songs whose curated phrase list contains phrase.
	// Phrases compare on their normalized, stop-word free key; PhraseLemma
	// compares the lemmatized keys.
	FindPhrase(ctx context.Context, phrase string, mode PhraseMode) ([]PhraseHit, error)

	// TopPopular returns eligible songs by popularity, skipping exclude
	TopPopular(ctx context.Context, limit int, exclude []int64) ([]*Song, error)

	Stats(ctx context.Context) (*Stats, error)
}

// Writer covers catalog mutations
type Writer interface {
	UpsertSong(ctx context.Context, song *Song) error
	UpsertAboutness(ctx context.Context, about *Aboutness) error
}

// Tx represents a database transaction
type Tx interface {
	Writer
	Commit() error
	Rollback() error
}

// NearestNeighborSearch is the approximate nearest-neighbor primitive. The
// query vector is prepared once per request; every leg of that request then
// runs against the prepared query.
type NearestNeighborSearch interface {
	PrepareQuery(ctx context.Context, vector []float32) (PreparedQuery, error)
}

// PreparedQuery is a query vector bound to one database session. It is not
// safe for concurrent use; legs of one request run sequentially on it.
type PreparedQuery interface {
	// Nearest returns eligible songs ordered by ascending cosine distance
	// between column and the prepared vector.
	Nearest(ctx context.Context, column Column, opts NeighborOptions) ([]Neighbor, error)

	// Distances computes the cosine distance for the given songs only.
	// Songs with a null column are absent from the result.
	Distances(ctx context.Context, column Column, songIDs []int64) (map[int64]float64, error)

	Close() error
}

// Column names a stored vector
type Column string

const (
	ColumnMeta    Column = "meta"    // songs.meta_embedding
	ColumnAbout   Column = "about"   // song_aboutness.about_embedding (v1)
	ColumnEmotion Column = "emotion" // song_aboutness.emotion_embedding (v2)
	ColumnMoment  Column = "moment"  // song_aboutness.moment_embedding (v2)
)

// columnSQL maps a column to its qualified SQL name
func columnSQL(c Column) (string, error) {
	switch c {
	case ColumnMeta:
		return "s.meta_embedding", nil
	case ColumnAbout:
		return "a.about_embedding", nil
	case ColumnEmotion:
		return "a.emotion_embedding", nil
	case ColumnMoment:
		return "a.moment_embedding", nil
	default:
		return "", ErrUnknownColumn
	}
}

// PhraseMode selects how FindPhrase compares phrases
type PhraseMode int

const (
	PhraseExact PhraseMode = iota
	PhraseLemma
)

func (m PhraseMode) String() string {
	if m == PhraseLemma {
		return "lemma"
	}
	return "exact"
}

// Confidence is the enrichment pipeline's confidence label
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// AboutnessVersion tags the aboutness generation
type AboutnessVersion string

const (
	AboutnessV1 AboutnessVersion = "v1" // single about vector
	AboutnessV2 AboutnessVersion = "v2" // emotion + moment vectors
)

// Song is a catalog entry
type Song struct {
	ID            int64
	Title         string
	Artist        string
	Tags          []string
	Year          *int // Nullable
	Popularity    int  // 0-100
	Explicit      bool
	IsPlaceholder bool
	MetaEmbedding []float32 // Nullable until backfilled
	Phrases       []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Eligible reports whether the song may be returned by vector search
func (s *Song) Eligible() bool {
	return !s.IsPlaceholder && len(s.MetaEmbedding) > 0
}

// Validate checks the fields the schema constrains
func (s *Song) Validate() error {
	if s.ID <= 0 {
		return errors.Join(ErrInvalidSong, errors.New("id must be positive"))
	}
	if s.Title == "" {
		return errors.Join(ErrInvalidSong, errors.New("title is required"))
	}
	if s.Popularity < 0 || s.Popularity > 100 {
		return errors.Join(ErrInvalidSong, errors.New("popularity must be between 0 and 100"))
	}
	return nil
}

// Aboutness is the optional experiential descriptor of a song
type Aboutness struct {
	SongID           int64
	EmotionText      string
	MomentText       string
	AboutEmbedding   []float32 // v1
	EmotionEmbedding []float32 // v2
	MomentEmbedding  []float32 // v2
	Confidence       Confidence
	Version          AboutnessVersion
	UpdatedAt        time.Time
}

// PhraseHit is a song whose phrase list matched a lookup
type PhraseHit struct {
	SongID     int64
	Phrase     string // the stored phrase that matched
	Popularity int
}

// Filters narrows a nearest-neighbor query beyond the eligibility rule
type Filters struct {
	ExcludeIDs    []int64
	MinPopularity int
	YearFrom      int // 0 = unbounded
	YearTo        int // 0 = unbounded
}

// Restrictive reports whether the filters can legitimately empty a result
func (f *Filters) Restrictive() bool {
	if f == nil {
		return false
	}
	return len(f.ExcludeIDs) > 0 || f.MinPopularity > 0 || f.YearFrom > 0 || f.YearTo > 0
}

// NeighborOptions controls a single nearest-neighbor leg
type NeighborOptions struct {
	Limit   int
	Breadth int // index exploration factor (hnsw.ef_search)
	Filters *Filters
}

// Neighbor is one nearest-neighbor row
type Neighbor struct {
	SongID   int64
	Distance float64 // cosine distance, 0 = identical
}

// Stats describes catalog coverage
type Stats struct {
	TotalSongs    int
	EligibleSongs int // non-placeholder with a metadata vector
	AboutVectors  int
	EmotionVecs   int
	MomentVecs    int
	Phrases       int
	VectorWidth   int // 0 when no vectors are stored
	SchemaVersion string
}
