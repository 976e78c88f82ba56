package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/dshills/songmatch/internal/textnorm"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// A single connection keeps ":memory:" databases and temp tables stable
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStore opens (or creates) a SQLite catalog and applies migrations
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db, SQLiteDialect, SQLiteMigrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStore) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx}, nil
}

// querier is an interface that *sql.DB, *sql.Tx and *sql.Conn implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

func (t *sqliteTx) UpsertSong(ctx context.Context, song *Song) error {
	return upsertSongSQLite(ctx, t.tx, song)
}

func (t *sqliteTx) UpsertAboutness(ctx context.Context, about *Aboutness) error {
	return upsertAboutnessSQLite(ctx, t.tx, about)
}

// Song operations

func (s *SQLiteStore) UpsertSong(ctx context.Context, song *Song) error {
	return upsertSongSQLite(ctx, s.db, song)
}

// upsertSongSQLite writes the song row and, when Phrases is non-nil,
// replaces its phrase list
func upsertSongSQLite(ctx context.Context, q querier, song *Song) error {
	if err := song.Validate(); err != nil {
		return err
	}

	tags, err := json.Marshal(nonNilTags(song.Tags))
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	var year sql.NullInt64
	if song.Year != nil {
		year = sql.NullInt64{Int64: int64(*song.Year), Valid: true}
	}

	query := `
		INSERT INTO songs (id, title, artist, tags, year, popularity, explicit, is_placeholder,
		                   meta_embedding, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			artist = excluded.artist,
			tags = excluded.tags,
			year = excluded.year,
			popularity = excluded.popularity,
			explicit = excluded.explicit,
			is_placeholder = excluded.is_placeholder,
			meta_embedding = excluded.meta_embedding,
			updated_at = excluded.updated_at
	`
	now := time.Now()
	_, err = q.ExecContext(ctx, query,
		song.ID, song.Title, song.Artist, string(tags), year, song.Popularity,
		song.Explicit, song.IsPlaceholder, serializeVector(song.MetaEmbedding), now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert song %d: %w", song.ID, err)
	}
	song.UpdatedAt = now

	if song.Phrases == nil {
		return nil
	}

	if _, err := q.ExecContext(ctx, "DELETE FROM song_phrases WHERE song_id = ?", song.ID); err != nil {
		return fmt.Errorf("failed to clear phrases for song %d: %w", song.ID, err)
	}
	for _, p := range song.Phrases {
		phrase := textnorm.Normalize(p)
		if phrase == "" {
			continue
		}
		key := textnorm.PhraseKey(phrase)
		_, err := q.ExecContext(ctx,
			"INSERT OR IGNORE INTO song_phrases (song_id, phrase, phrase_key, lemma) VALUES (?, ?, ?, ?)",
			song.ID, phrase, key, textnorm.LemmatizePhrase(key))
		if err != nil {
			return fmt.Errorf("failed to store phrase for song %d: %w", song.ID, err)
		}
	}
	return nil
}

const songColumns = `s.id, s.title, s.artist, s.tags, s.year, s.popularity, s.explicit,
		       s.is_placeholder, s.meta_embedding, s.created_at, s.updated_at`

// scanSQLiteSong scans one row selected with songColumns
func scanSQLiteSong(scan func(dest ...interface{}) error) (*Song, error) {
	var (
		song Song
		tags string
		year sql.NullInt64
		meta []byte
	)
	err := scan(&song.ID, &song.Title, &song.Artist, &tags, &year, &song.Popularity,
		&song.Explicit, &song.IsPlaceholder, &meta, &song.CreatedAt, &song.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &song.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags for song %d: %w", song.ID, err)
	}
	if year.Valid {
		y := int(year.Int64)
		song.Year = &y
	}
	song.MetaEmbedding = deserializeVector(meta)
	return &song, nil
}

func (s *SQLiteStore) GetSong(ctx context.Context, id int64) (*Song, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+songColumns+" FROM songs s WHERE s.id = ?", id)
	song, err := scanSQLiteSong(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	phrases, err := s.listPhrases(ctx, id)
	if err != nil {
		return nil, err
	}
	song.Phrases = phrases
	return song, nil
}

func (s *SQLiteStore) listPhrases(ctx context.Context, songID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT phrase FROM song_phrases WHERE song_id = ? ORDER BY phrase", songID)
	if err != nil {
		return nil, fmt.Errorf("failed to list phrases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	phrases := make([]string, 0)
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		phrases = append(phrases, p)
	}
	return phrases, rows.Err()
}

// GetSongs loads songs by id without their phrase lists. Missing ids are
// absent from the map.
func (s *SQLiteStore) GetSongs(ctx context.Context, ids []int64) (map[int64]*Song, error) {
	out := make(map[int64]*Song, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	in, args := inClause(ids, nil, sqlitePlaceholder)
	rows, err := s.db.QueryContext(ctx, "SELECT "+songColumns+" FROM songs s WHERE s.id IN "+in, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load songs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		song, err := scanSQLiteSong(rows.Scan)
		if err != nil {
			return nil, err
		}
		out[song.ID] = song
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListSongs(ctx context.Context, limit, offset int) ([]*Song, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+songColumns+" FROM songs s ORDER BY s.id LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list songs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	songs := make([]*Song, 0, limit)
	for rows.Next() {
		song, err := scanSQLiteSong(rows.Scan)
		if err != nil {
			return nil, err
		}
		songs = append(songs, song)
	}
	return songs, rows.Err()
}

func (s *SQLiteStore) TopPopular(ctx context.Context, limit int, exclude []int64) ([]*Song, error) {
	if limit <= 0 {
		return []*Song{}, nil
	}

	query := "SELECT " + songColumns + " FROM songs s WHERE s.is_placeholder = FALSE"
	var args []interface{}
	if len(exclude) > 0 {
		var in string
		in, args = inClause(exclude, args, sqlitePlaceholder)
		query += " AND s.id NOT IN " + in
	}
	query += " ORDER BY s.popularity DESC, s.id ASC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query popular songs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	songs := make([]*Song, 0, limit)
	for rows.Next() {
		song, err := scanSQLiteSong(rows.Scan)
		if err != nil {
			return nil, err
		}
		songs = append(songs, song)
	}
	return songs, rows.Err()
}

// Phrase operations

func (s *SQLiteStore) FindPhrase(ctx context.Context, phrase string, mode PhraseMode) ([]PhraseHit, error) {
	key, col := phraseKey(phrase, mode)
	if key == "" {
		return []PhraseHit{}, nil
	}

	query := `
		SELECT p.song_id, p.phrase, s.popularity
		FROM song_phrases p
		INNER JOIN songs s ON s.id = p.song_id
		WHERE p.` + col + ` = ? AND s.is_placeholder = FALSE
		ORDER BY p.song_id, p.phrase
	`
	rows, err := s.db.QueryContext(ctx, query, key)
	if err != nil {
		return nil, fmt.Errorf("failed to look up phrase: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectPhraseHits(rows)
}

// phraseKey reduces a lookup phrase to its stored key and picks the column
// to compare
func phraseKey(phrase string, mode PhraseMode) (string, string) {
	key := textnorm.PhraseKey(phrase)
	if mode == PhraseLemma {
		return textnorm.LemmatizePhrase(key), "lemma"
	}
	return key, "phrase_key"
}

// collectPhraseHits keeps the first stored phrase per song
func collectPhraseHits(rows *sql.Rows) ([]PhraseHit, error) {
	hits := make([]PhraseHit, 0)
	var last int64 = -1
	for rows.Next() {
		var h PhraseHit
		if err := rows.Scan(&h.SongID, &h.Phrase, &h.Popularity); err != nil {
			return nil, err
		}
		if h.SongID == last {
			continue
		}
		last = h.SongID
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// Aboutness operations

func (s *SQLiteStore) UpsertAboutness(ctx context.Context, about *Aboutness) error {
	return upsertAboutnessSQLite(ctx, s.db, about)
}

func upsertAboutnessSQLite(ctx context.Context, q querier, about *Aboutness) error {
	if about.SongID <= 0 {
		return fmt.Errorf("%w: aboutness requires a song id", ErrInvalidSong)
	}
	about.normalize()

	query := `
		INSERT INTO song_aboutness (song_id, emotion_text, moment_text, about_embedding,
		                            emotion_embedding, moment_embedding, confidence, version, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(song_id) DO UPDATE SET
			emotion_text = excluded.emotion_text,
			moment_text = excluded.moment_text,
			about_embedding = excluded.about_embedding,
			emotion_embedding = excluded.emotion_embedding,
			moment_embedding = excluded.moment_embedding,
			confidence = excluded.confidence,
			version = excluded.version,
			updated_at = excluded.updated_at
	`
	now := time.Now()
	_, err := q.ExecContext(ctx, query,
		about.SongID, about.EmotionText, about.MomentText,
		serializeVector(about.AboutEmbedding), serializeVector(about.EmotionEmbedding),
		serializeVector(about.MomentEmbedding), string(about.Confidence), string(about.Version), now)
	if err != nil {
		return fmt.Errorf("failed to upsert aboutness for song %d: %w", about.SongID, err)
	}
	about.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) GetAboutness(ctx context.Context, songID int64) (*Aboutness, error) {
	query := `
		SELECT song_id, emotion_text, moment_text, about_embedding, emotion_embedding,
		       moment_embedding, confidence, version, updated_at
		FROM song_aboutness WHERE song_id = ?
	`
	var (
		a                       Aboutness
		about, emotion, moment  []byte
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
	a.AboutEmbedding = deserializeVector(about)
	a.EmotionEmbedding = deserializeVector(emotion)
	a.MomentEmbedding = deserializeVector(moment)
	a.Confidence = Confidence(confidence)
	a.Version = AboutnessVersion(versionText)
	return &a, nil
}

// Status operations

func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM songs),
			(SELECT COUNT(*) FROM songs WHERE is_placeholder = FALSE AND meta_embedding IS NOT NULL),
			(SELECT COUNT(*) FROM song_aboutness WHERE about_embedding IS NOT NULL),
			(SELECT COUNT(*) FROM song_aboutness WHERE emotion_embedding IS NOT NULL),
			(SELECT COUNT(*) FROM song_aboutness WHERE moment_embedding IS NOT NULL),
			(SELECT COUNT(*) FROM song_phrases),
			COALESCE((SELECT length(meta_embedding) / 4 FROM songs WHERE meta_embedding IS NOT NULL LIMIT 1), 0)
	`
	var st Stats
	err := s.db.QueryRowContext(ctx, query).Scan(&st.TotalSongs, &st.EligibleSongs,
		&st.AboutVectors, &st.EmotionVecs, &st.MomentVecs, &st.Phrases, &st.VectorWidth)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog stats: %w", err)
	}

	version, err := currentVersion(ctx, s.db, SQLiteDialect)
	if err != nil {
		return nil, err
	}
	st.SchemaVersion = version.String()
	return &st, nil
}

// normalize fills defaults for optional labels
func (a *Aboutness) normalize() {
	if a.Confidence == "" {
		a.Confidence = ConfidenceMedium
	}
	if a.Version == "" {
		if len(a.EmotionEmbedding) > 0 || len(a.MomentEmbedding) > 0 {
			a.Version = AboutnessV2
		} else {
			a.Version = AboutnessV1
		}
	}
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
