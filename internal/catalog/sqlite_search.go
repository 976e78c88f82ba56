package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

// The query vector is written to a session-scoped temp table and joined,
// never inlined into the ordering statement. A prepared query pins one
// connection so the temp table stays visible for every leg.

const (
	createQueryVectorTable = `CREATE TEMP TABLE IF NOT EXISTS query_vector (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		vector BLOB NOT NULL
	)`
	storeQueryVector = `INSERT OR REPLACE INTO temp.query_vector (id, vector) VALUES (1, ?)`
	clearQueryVector = `DELETE FROM temp.query_vector`

	neighborFrom = `
		FROM songs s
		LEFT JOIN song_aboutness a ON a.song_id = s.id
		INNER JOIN temp.query_vector q ON q.id = 1`
)

// sqlitePreparedQuery is a query vector materialized on a pinned connection
type sqlitePreparedQuery struct {
	conn   *sql.Conn
	closed bool
}

// PrepareQuery materializes vector in the session's temp table
func (s *SQLiteStore) PrepareQuery(ctx context.Context, vector []float32) (PreparedQuery, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("prepare query: empty vector")
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare query: acquire connection: %w", err)
	}

	if _, err := conn.ExecContext(ctx, createQueryVectorTable); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("prepare query: create temp table: %w", err)
	}
	if _, err := conn.ExecContext(ctx, storeQueryVector, serializeVector(vector)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("prepare query: store vector: %w", err)
	}

	return &sqlitePreparedQuery{conn: conn}, nil
}

func (p *sqlitePreparedQuery) Nearest(ctx context.Context, column Column, opts NeighborOptions) ([]Neighbor, error) {
	if p.closed {
		return nil, ErrQueryClosed
	}
	if opts.Limit <= 0 {
		return []Neighbor{}, nil
	}
	col, err := columnSQL(column)
	if err != nil {
		return nil, err
	}

	if VectorExtensionAvailable {
		return p.nearestInSQL(ctx, col, opts)
	}
	return p.nearestInGo(ctx, col, opts)
}

// nearestInSQL lets sqlite-vec compute, sort and limit
func (p *sqlitePreparedQuery) nearestInSQL(ctx context.Context, col string, opts NeighborOptions) ([]Neighbor, error) {
	query := "SELECT s.id, vec_distance_cosine(" + col + ", q.vector) AS distance" + neighborFrom + eligibilityClause(col)
	query, args := applyNeighborFilters(query, nil, opts.Filters, sqlitePlaceholder)
	query += " ORDER BY distance ASC, s.id ASC LIMIT ?"
	args = append(args, opts.Limit)

	rows, err := p.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]Neighbor, 0, opts.Limit)
	for rows.Next() {
		var n Neighbor
		if err := rows.Scan(&n.SongID, &n.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, n)
	}
	return results, rows.Err()
}

// nearestInGo reads the joined vectors and ranks them in Go
func (p *sqlitePreparedQuery) nearestInGo(ctx context.Context, col string, opts NeighborOptions) ([]Neighbor, error) {
	query := "SELECT s.id, " + col + ", q.vector" + neighborFrom + eligibilityClause(col)
	query, args := applyNeighborFilters(query, nil, opts.Filters, sqlitePlaceholder)

	rows, err := p.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results, err := scanDistances(rows)
	if err != nil {
		return nil, err
	}

	sortNeighbors(results)
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// scanDistances computes cosine distance for (id, vector, query vector) rows
func scanDistances(rows *sql.Rows) ([]Neighbor, error) {
	var queryVec []float32
	results := make([]Neighbor, 0, 256)

	for rows.Next() {
		var (
			id        int64
			blob, qvb []byte
		)
		if err := rows.Scan(&id, &blob, &qvb); err != nil {
			return nil, err
		}
		if queryVec == nil {
			queryVec = deserializeVector(qvb)
		}

		vector := deserializeVector(blob)
		if len(vector) != len(queryVec) {
			continue // Width mismatch, skip
		}
		results = append(results, Neighbor{SongID: id, Distance: cosineDistance(queryVec, vector)})
	}
	return results, rows.Err()
}

func (p *sqlitePreparedQuery) Distances(ctx context.Context, column Column, songIDs []int64) (map[int64]float64, error) {
	if p.closed {
		return nil, ErrQueryClosed
	}
	out := make(map[int64]float64, len(songIDs))
	if len(songIDs) == 0 {
		return out, nil
	}
	col, err := columnSQL(column)
	if err != nil {
		return nil, err
	}

	in, args := inClause(songIDs, nil, sqlitePlaceholder)
	where := eligibilityClause(col) + " AND s.id IN " + in

	if VectorExtensionAvailable {
		query := "SELECT s.id, vec_distance_cosine(" + col + ", q.vector)" + neighborFrom + where
		rows, err := p.conn.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to compute distances: %w", err)
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var (
				id int64
				d  float64
			)
			if err := rows.Scan(&id, &d); err != nil {
				return nil, err
			}
			out[id] = d
		}
		return out, rows.Err()
	}

	query := "SELECT s.id, " + col + ", q.vector" + neighborFrom + where
	rows, err := p.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate vectors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	neighbors, err := scanDistances(rows)
	if err != nil {
		return nil, err
	}
	for _, n := range neighbors {
		out[n.SongID] = n.Distance
	}
	return out, nil
}

// Close clears the temp table and returns the connection to the pool
func (p *sqlitePreparedQuery) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	_, clearErr := p.conn.ExecContext(context.Background(), clearQueryVector)
	if err := p.conn.Close(); err != nil {
		return err
	}
	return clearErr
}
