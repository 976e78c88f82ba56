package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

const (
	// CurrentSchemaVersion tracks the database schema version
	CurrentSchemaVersion = "1.1.0"
)

// Migration represents a database schema migration
type Migration struct {
	Version string
	Up      string
	Down    string
}

// Dialect captures the per-backend differences the migration runner needs
type Dialect struct {
	Name string
	// VersionTableQuery returns one row when schema_version exists
	VersionTableQuery string
	placeholder       placeholderFunc
}

var (
	SQLiteDialect = Dialect{
		Name:              "sqlite",
		VersionTableQuery: "SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'",
		placeholder:       sqlitePlaceholder,
	}
	PostgresDialect = Dialect{
		Name:              "postgres",
		VersionTableQuery: "SELECT table_name FROM information_schema.tables WHERE table_name = 'schema_version' AND table_schema = current_schema()",
		placeholder:       postgresPlaceholder,
	}
)

// SQLiteMigrations contains the SQLite migrations in order
var SQLiteMigrations = []Migration{
	{Version: "1.0.0", Up: sqliteV1Up, Down: sqliteV1Down},
	{Version: "1.1.0", Up: sqliteV11Up, Down: sqliteV11Down},
}

const sqliteV1Up = `
CREATE TABLE IF NOT EXISTS schema_version (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS songs (
    id INTEGER PRIMARY KEY,
    title TEXT NOT NULL,
    artist TEXT NOT NULL DEFAULT '',
    tags TEXT NOT NULL DEFAULT '[]',
    year INTEGER,
    popularity INTEGER NOT NULL DEFAULT 0 CHECK (popularity BETWEEN 0 AND 100),
    explicit BOOLEAN NOT NULL DEFAULT 0,
    is_placeholder BOOLEAN NOT NULL DEFAULT 0,
    meta_embedding BLOB,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_songs_popularity ON songs(popularity DESC, id);
CREATE INDEX IF NOT EXISTS idx_songs_placeholder ON songs(is_placeholder);

CREATE TABLE IF NOT EXISTS song_aboutness (
    song_id INTEGER PRIMARY KEY,
    emotion_text TEXT NOT NULL DEFAULT '',
    moment_text TEXT NOT NULL DEFAULT '',
    about_embedding BLOB,
    confidence TEXT NOT NULL DEFAULT 'medium',
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (song_id) REFERENCES songs(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS song_phrases (
    song_id INTEGER NOT NULL,
    phrase TEXT NOT NULL,
    phrase_key TEXT NOT NULL,
    lemma TEXT NOT NULL,
    PRIMARY KEY (song_id, phrase),
    FOREIGN KEY (song_id) REFERENCES songs(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_song_phrases_key ON song_phrases(phrase_key);
CREATE INDEX IF NOT EXISTS idx_song_phrases_lemma ON song_phrases(lemma);
`

const sqliteV1Down = `
DROP TABLE IF EXISTS song_phrases;
DROP TABLE IF EXISTS song_aboutness;
DROP TABLE IF EXISTS songs;
DROP TABLE IF EXISTS schema_version;
`

// v1.1.0 adds the dual-vector aboutness generation
const sqliteV11Up = `
ALTER TABLE song_aboutness ADD COLUMN emotion_embedding BLOB;
ALTER TABLE song_aboutness ADD COLUMN moment_embedding BLOB;
ALTER TABLE song_aboutness ADD COLUMN version TEXT NOT NULL DEFAULT 'v1';
`

const sqliteV11Down = `
ALTER TABLE song_aboutness DROP COLUMN version;
ALTER TABLE song_aboutness DROP COLUMN moment_embedding;
ALTER TABLE song_aboutness DROP COLUMN emotion_embedding;
`

// PostgresMigrations returns the pgvector migrations for a vector width.
// The moment column deliberately has no ANN index: it is only compared
// against a small, already known candidate set.
func PostgresMigrations(dimension int) []Migration {
	return []Migration{
		{
			Version: "1.0.0",
			Up:      fmt.Sprintf(postgresV1Up, dimension, dimension),
			Down:    postgresV1Down,
		},
		{
			Version: "1.1.0",
			Up:      fmt.Sprintf(postgresV11Up, dimension, dimension),
			Down:    postgresV11Down,
		},
	}
}

const postgresV1Up = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS schema_version (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMPTZ DEFAULT now()
);

CREATE TABLE IF NOT EXISTS songs (
    id BIGINT PRIMARY KEY,
    title TEXT NOT NULL,
    artist TEXT NOT NULL DEFAULT '',
    tags TEXT[] NOT NULL DEFAULT '{}',
    year INTEGER,
    popularity INTEGER NOT NULL DEFAULT 0 CHECK (popularity BETWEEN 0 AND 100),
    explicit BOOLEAN NOT NULL DEFAULT FALSE,
    is_placeholder BOOLEAN NOT NULL DEFAULT FALSE,
    meta_embedding vector(%d),
    created_at TIMESTAMPTZ DEFAULT now(),
    updated_at TIMESTAMPTZ DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_songs_popularity ON songs(popularity DESC, id);
CREATE INDEX IF NOT EXISTS idx_songs_meta_hnsw ON songs USING hnsw (meta_embedding vector_cosine_ops);

CREATE TABLE IF NOT EXISTS song_aboutness (
    song_id BIGINT PRIMARY KEY REFERENCES songs(id) ON DELETE CASCADE,
    emotion_text TEXT NOT NULL DEFAULT '',
    moment_text TEXT NOT NULL DEFAULT '',
    about_embedding vector(%d),
    confidence TEXT NOT NULL DEFAULT 'medium',
    updated_at TIMESTAMPTZ DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_aboutness_about_hnsw ON song_aboutness USING hnsw (about_embedding vector_cosine_ops);

CREATE TABLE IF NOT EXISTS song_phrases (
    song_id BIGINT NOT NULL REFERENCES songs(id) ON DELETE CASCADE,
    phrase TEXT NOT NULL,
    phrase_key TEXT NOT NULL,
    lemma TEXT NOT NULL,
    PRIMARY KEY (song_id, phrase)
);

CREATE INDEX IF NOT EXISTS idx_song_phrases_key ON song_phrases(phrase_key);
CREATE INDEX IF NOT EXISTS idx_song_phrases_lemma ON song_phrases(lemma);
`

const postgresV1Down = `
DROP TABLE IF EXISTS song_phrases;
DROP TABLE IF EXISTS song_aboutness;
DROP TABLE IF EXISTS songs;
DROP TABLE IF EXISTS schema_version;
`

const postgresV11Up = `
ALTER TABLE song_aboutness ADD COLUMN IF NOT EXISTS emotion_embedding vector(%d);
ALTER TABLE song_aboutness ADD COLUMN IF NOT EXISTS moment_embedding vector(%d);
ALTER TABLE song_aboutness ADD COLUMN IF NOT EXISTS version TEXT NOT NULL DEFAULT 'v1';
CREATE INDEX IF NOT EXISTS idx_aboutness_emotion_hnsw ON song_aboutness USING hnsw (emotion_embedding vector_cosine_ops);
`

const postgresV11Down = `
DROP INDEX IF EXISTS idx_aboutness_emotion_hnsw;
ALTER TABLE song_aboutness DROP COLUMN IF EXISTS version;
ALTER TABLE song_aboutness DROP COLUMN IF EXISTS moment_embedding;
ALTER TABLE song_aboutness DROP COLUMN IF EXISTS emotion_embedding;
`

// currentVersion returns the highest applied version, or 0.0.0
func currentVersion(ctx context.Context, db *sql.DB, d Dialect) (*semver.Version, error) {
	var tableName string
	err := db.QueryRowContext(ctx, d.VersionTableQuery).Scan(&tableName)
	if err == sql.ErrNoRows {
		return semver.MustParse("0.0.0"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check schema_version table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_version")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_version: %w", err)
	}
	defer func() { _ = rows.Close() }()

	current := semver.MustParse("0.0.0")
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		v, err := semver.NewVersion(s)
		if err != nil {
			return nil, fmt.Errorf("invalid schema version %s: %w", s, err)
		}
		if v.GreaterThan(current) {
			current = v
		}
	}
	return current, rows.Err()
}

// ApplyMigrations runs all pending migrations
func ApplyMigrations(ctx context.Context, db *sql.DB, d Dialect, migrations []Migration) error {
	current, err := currentVersion(ctx, db, d)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		migrationVersion, err := semver.NewVersion(migration.Version)
		if err != nil {
			return fmt.Errorf("invalid migration version %s: %w", migration.Version, err)
		}

		if !current.LessThan(migrationVersion) {
			continue // Already applied
		}

		if _, err := db.ExecContext(ctx, migration.Up); err != nil {
			return fmt.Errorf("failed to apply %s migration %s: %w", d.Name, migration.Version, err)
		}

		record := "INSERT INTO schema_version (version) VALUES (" + d.placeholder(1) + ")"
		if _, err := db.ExecContext(ctx, record, migration.Version); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", migration.Version, err)
		}

		current = migrationVersion
	}

	return nil
}

// RollbackMigration rolls back the most recent migration
func RollbackMigration(ctx context.Context, db *sql.DB, d Dialect, migrations []Migration) error {
	current, err := currentVersion(ctx, db, d)
	if err != nil {
		return err
	}
	if current.Equal(semver.MustParse("0.0.0")) {
		return fmt.Errorf("no migrations to rollback")
	}

	var migration *Migration
	for i := range migrations {
		v, err := semver.NewVersion(migrations[i].Version)
		if err == nil && v.Equal(current) {
			migration = &migrations[i]
			break
		}
	}
	if migration == nil {
		return fmt.Errorf("migration %s not found", current)
	}

	if _, err := db.ExecContext(ctx, migration.Down); err != nil {
		return fmt.Errorf("failed to rollback migration %s: %w", migration.Version, err)
	}

	// The v1 down script drops schema_version itself
	if strings.Contains(migration.Down, "DROP TABLE IF EXISTS schema_version") {
		return nil
	}

	remove := "DELETE FROM schema_version WHERE version = " + d.placeholder(1)
	if _, err := db.ExecContext(ctx, remove, migration.Version); err != nil {
		return fmt.Errorf("failed to remove migration record %s: %w", migration.Version, err)
	}

	return nil
}
