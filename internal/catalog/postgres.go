package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/dshills/songmatch/internal/textnorm"
)

// PostgresStore implements Store on PostgreSQL with the pgvector extension
type PostgresStore struct {
	db        *sql.DB
	dimension int
}

// NewPostgresStore connects to dsn and applies migrations for the given
// vector width
func NewPostgresStore(ctx context.Context, dsn string, dimension int) (*PostgresStore, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid vector dimension %d", dimension)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	if err := ApplyMigrations(ctx, db, PostgresDialect, PostgresMigrations(dimension)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &PostgresStore{db: db, dimension: dimension}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &postgresTx{tx: tx}, nil
}

type postgresTx struct {
	tx *sql.Tx
}

func (t *postgresTx) Commit() error {
	return t.tx.Commit()
}

func (t *postgresTx) Rollback() error {
	return t.tx.Rollback()
}

func (t *postgresTx) UpsertSong(ctx context.Context, song *Song) error {
	return upsertSongPostgres(ctx, t.tx, song)
}

func (t *postgresTx) UpsertAboutness(ctx context.Context, about *Aboutness) error {
	return upsertAboutnessPostgres(ctx, t.tx, about)
}

// nullVector renders a vector for a ::vector parameter, NULL when empty
func nullVector(v []float32) sql.NullString {
	if len(v) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: formatVectorLiteral(v), Valid: true}
}

func (s *PostgresStore) UpsertSong(ctx context.Context, song *Song) error {
	return upsertSongPostgres(ctx, s.db, song)
}

func upsertSongPostgres(ctx context.Context, q querier, song *Song) error {
	if err := song.Validate(); err != nil {
		return err
	}

	var year sql.NullInt64
	if song.Year != nil {
		year = sql.NullInt64{Int64: int64(*song.Year), Valid: true}
	}

	query := `
		INSERT INTO songs (id, title, artist, tags, year, popularity, explicit, is_placeholder,
		                   meta_embedding, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::vector, $10, $10)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			artist = EXCLUDED.artist,
			tags = EXCLUDED.tags,
			year = EXCLUDED.year,
			popularity = EXCLUDED.popularity,
			explicit = EXCLUDED.explicit,
			is_placeholder = EXCLUDED.is_placeholder,
			meta_embedding = EXCLUDED.meta_embedding,
			updated_at = EXCLUDED.updated_at
	`
	now := time.Now()
	_, err := q.ExecContext(ctx, query,
		song.ID, song.Title, song.Artist, pq.Array(nonNilTags(song.Tags)), year, song.Popularity,
		song.Explicit, song.IsPlaceholder, nullVector(song.MetaEmbedding), now)
	if err != nil {
		return fmt.Errorf("failed to upsert song %d: %w", song.ID, err)
	}
	song.UpdatedAt = now

	if song.Phrases == nil {
		return nil
	}

	if _, err := q.ExecContext(ctx, "DELETE FROM song_phrases WHERE song_id = $1", song.ID); err != nil {
		return fmt.Errorf("failed to clear phrases for song %d: %w", song.ID, err)
	}
	for _, p := range song.Phrases {
		phrase := textnorm.Normalize(p)
		if phrase == "" {
			continue
		}
		key := textnorm.PhraseKey(phrase)
		_, err := q.ExecContext(ctx,
			"INSERT INTO song_phrases (song_id, phrase, phrase_key, lemma) VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING",
			song.ID, phrase, key, textnorm.LemmatizePhrase(key))
		if err != nil {
			return fmt.Errorf("failed to store phrase for song %d: %w", song.ID, err)
		}
	}
	return nil
}

const pgSongColumns = `s.id, s.title, s.artist, s.tags, s.year, s.popularity, s.explicit,
		       s.is_placeholder, s.meta_embedding::text, s.created_at, s.updated_at`

func scanPostgresSong(scan func(dest ...interface{}) error) (*Song, error) {
	var (
		song Song
		tags []string
		year sql.NullInt64
		meta sql.NullString
	)
	err := scan(&song.ID, &song.Title, &song.Artist, pq.Array(&tags), &year, &song.Popularity,
		&song.Explicit, &song.IsPlaceholder, &meta, &song.CreatedAt, &song.UpdatedAt)
	if err != nil {
		return nil, err
	}
	song.Tags = tags
	if year.Valid {
		y := int(year.Int64)
		song.Year = &y
	}
	if meta.Valid {
		v, err := parseVectorLiteral(meta.String)
		if err != nil {
			return nil, fmt.Errorf("song %d meta embedding: %w", song.ID, err)
		}
		song.MetaEmbedding = v
	}
	return &song, nil
}

func (s *PostgresStore) GetSong(ctx context.Context, id int64) (*Song, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+pgSongColumns+" FROM songs s WHERE s.id = $1", id)
	song, err := scanPostgresSong(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT phrase FROM song_phrases WHERE song_id = $1 ORDER BY phrase", id)
	if err != nil {
		return nil, fmt.Errorf("failed to list phrases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	song.Phrases = make([]string, 0)
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		song.Phrases = append(song.Phrases, p)
	}
	return song, rows.Err()
}

func (s *PostgresStore) GetSongs(ctx context.Context, ids []int64) (map[int64]*Song, error) {
	out := make(map[int64]*Song, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+pgSongColumns+" FROM songs s WHERE s.id = ANY($1)", pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to load songs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		song, err := scanPostgresSong(rows.Scan)
		if err != nil {
			return nil, err
		}
		out[song.ID] = song
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListSongs(ctx context.Context, limit, offset int) ([]*Song, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+pgSongColumns+" FROM songs s ORDER BY s.id LIMIT $1 OFFSET $2", limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list songs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	songs := make([]*Song, 0, limit)
	for rows.Next() {
		song, err := scanPostgresSong(rows.Scan)
		if err != nil {
			return nil, err
		}
		songs = append(songs, song)
	}
	return songs, rows.Err()
}

func (s *PostgresStore) TopPopular(ctx context.Context, limit int, exclude []int64) ([]*Song, error) {
	if limit <= 0 {
		return []*Song{}, nil
	}
	if exclude == nil {
		exclude = []int64{}
	}

	query := "SELECT " + pgSongColumns + ` FROM songs s
		WHERE s.is_placeholder = FALSE AND NOT (s.id = ANY($1))
		ORDER BY s.popularity DESC, s.id ASC LIMIT $2`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(exclude), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query popular songs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	songs := make([]*Song, 0, limit)
	for rows.Next() {
		song, err := scanPostgresSong(rows.Scan)
		if err != nil {
			return nil, err
		}
		songs = append(songs, song)
	}
	return songs, rows.Err()
}

func (s *PostgresStore) FindPhrase(ctx context.Context, phrase string, mode PhraseMode) ([]PhraseHit, error) {
	key, col := phraseKey(phrase, mode)
	if key == "" {
		return []PhraseHit{}, nil
	}

	query := `
		SELECT p.song_id, p.phrase, s.popularity
		FROM song_phrases p
		INNER JOIN songs s ON s.id = p.song_id
		WHERE p.` + col + ` = $1 AND s.is_placeholder = FALSE
		ORDER BY p.song_id, p.phrase
	`
	rows, err := s.db.QueryContext(ctx, query, key)
	if err != nil {
		return nil, fmt.Errorf("failed to look up phrase: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectPhraseHits(rows)
}

func (s *PostgresStore) UpsertAboutness(ctx context.Context, about *Aboutness) error {
	return upsertAboutnessPostgres(ctx, s.db, about)
}

func upsertAboutnessPostgres(ctx context.Context, q querier, about *Aboutness) error {
	if about.SongID <= 0 {
		return fmt.Errorf("%w: aboutness requires a song id", ErrInvalidSong)
	}
	about.normalize()

	query := `
		INSERT INTO song_aboutness (song_id, emotion_text, moment_text, about_embedding,
		                            emotion_embedding, moment_embedding, confidence, version, updated_at)
		VALUES ($1, $2, $3, $4::vector, $5::vector, $6::vector, $7, $8, $9)
		ON CONFLICT (song_id) DO UPDATE SET
			emotion_text = EXCLUDED.emotion_text,
			moment_text = EXCLUDED.moment_text,
			about_embedding = EXCLUDED.about_embedding,
			emotion_embedding = EXCLUDED.emotion_embedding,
			moment_embedding = EXCLUDED.moment_embedding,
			confidence = EXCLUDED.confidence,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at
	`
	now := time.Now()
	_, err := q.ExecContext(ctx, query,
		about.SongID, about.EmotionText, about.MomentText,
		nullVector(about.AboutEmbedding), nullVector(about.EmotionEmbedding), nullVector(about.MomentEmbedding),
		string(about.Confidence), string(about.Version), now)
	if err != nil {
		return fmt.Errorf("failed to upsert aboutness for song %d: %w", about.SongID, err)
	}
	about.UpdatedAt = now
	return nil
}

func (s *PostgresStore) GetAboutness(ctx context.Context, songID int64) (*Aboutness, error) {
	query := `
		SELECT song_id, emotion_text, moment_text, about_embedding::text, emotion_embedding::text,
		       moment_embedding::text, confidence, version, updated_at
		FROM song_aboutness WHERE song_id = $1
	`
	var (
		a                       Aboutness
		about, emotion, moment  sql.NullString
		confidence, versionText string
	)
	err := s.db.QueryRowContext(ctx, query, songID).Scan(&a.SongID, &a.EmotionText, &a.MomentText,
		&about, &emotion, &moment, &confidence, &versionText, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	for _, f := range []struct {
		src sql.NullString
		dst *[]float32
	}{{about, &a.AboutEmbedding}, {emotion, &a.EmotionEmbedding}, {moment, &a.MomentEmbedding}} {
		if !f.src.Valid {
			continue
		}
		v, err := parseVectorLiteral(f.src.String)
		if err != nil {
			return nil, fmt.Errorf("aboutness %d: %w", songID, err)
		}
		*f.dst = v
	}
	a.Confidence = Confidence(confidence)
	a.Version = AboutnessVersion(versionText)
	return &a, nil
}

func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM songs),
			(SELECT COUNT(*) FROM songs WHERE is_placeholder = FALSE AND meta_embedding IS NOT NULL),
			(SELECT COUNT(*) FROM song_aboutness WHERE about_embedding IS NOT NULL),
			(SELECT COUNT(*) FROM song_aboutness WHERE emotion_embedding IS NOT NULL),
			(SELECT COUNT(*) FROM song_aboutness WHERE moment_embedding IS NOT NULL),
			(SELECT COUNT(*) FROM song_phrases),
			COALESCE((SELECT vector_dims(meta_embedding) FROM songs WHERE meta_embedding IS NOT NULL LIMIT 1), 0)
	`
	var st Stats
	err := s.db.QueryRowContext(ctx, query).Scan(&st.TotalSongs, &st.EligibleSongs,
		&st.AboutVectors, &st.EmotionVecs, &st.MomentVecs, &st.Phrases, &st.VectorWidth)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog stats: %w", err)
	}

	version, err := currentVersion(ctx, s.db, PostgresDialect)
	if err != nil {
		return nil, err
	}
	st.SchemaVersion = version.String()
	return &st, nil
}
