// Package catalog persists the song catalog and answers the read queries
// the recommendation path needs.
//
// The catalog holds:
//   - Songs (title, artist, tags, year, popularity, explicit flag)
//   - Metadata vectors (one per song, nullable until backfilled)
//   - Aboutness descriptors (legacy single vector or emotion + moment pair)
//   - Curated phrase lists with their lemmatized forms
//
// # Backends
//
// SQLiteStore is the embedded backend. It supports two build configurations:
//
// CGO Build (sqlite_vec tag):
//
//   - Uses github.com/mattn/go-sqlite3 driver
//
//   - Distances computed in SQL with vec_distance_cosine
//
//     CGO_ENABLED=1 go build -tags "sqlite_vec"
//
// Pure Go Build (default):
//
//   - Uses modernc.org/sqlite driver
//
//   - Distances computed in Go over the joined rows
//
//     CGO_ENABLED=0 go build
//
// PostgresStore runs on PostgreSQL with pgvector and HNSW indexes on the
// metadata, about and emotion columns. The moment column is not indexed.
//
// # Nearest Neighbor Queries
//
// A query vector is prepared once per request. The backend writes it to a
// session-scoped temp table and every leg joins against that table:
//
//	pq, err := store.PrepareQuery(ctx, vector)
//	if err != nil {
//	    return err
//	}
//	defer pq.Close()
//
//	meta, err := pq.Nearest(ctx, catalog.ColumnMeta, catalog.NeighborOptions{
//	    Limit:   20,
//	    Breadth: 100,
//	})
//
//	// Targeted comparison for an unindexed column
//	moment, err := pq.Distances(ctx, catalog.ColumnMoment, ids)
//
// The SQLite backend pins a single connection while a prepared query is
// open. Callers must not issue other store reads until Close returns.
//
// Only eligible songs are returned: not a placeholder and with a
// metadata vector. Aboutness columns additionally require the column to
// be non-null.
package catalog
