package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// pgvector caps hnsw.ef_search at 1000
const maxEfSearch = 1000

// postgresPreparedQuery holds the query vector in a transaction-scoped temp
// table. Rolling the transaction back on Close drops it.
type postgresPreparedQuery struct {
	tx     *sql.Tx
	closed bool
}

func (s *PostgresStore) PrepareQuery(ctx context.Context, vector []float32) (PreparedQuery, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("prepare query: empty vector")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("prepare query: begin: %w", err)
	}

	create := fmt.Sprintf("CREATE TEMP TABLE query_vec (v vector(%d)) ON COMMIT DROP", len(vector))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("prepare query: create temp table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO query_vec (v) VALUES ($1::vector)", formatVectorLiteral(vector)); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("prepare query: store vector: %w", err)
	}

	return &postgresPreparedQuery{tx: tx}, nil
}

const pgNeighborFrom = `
		FROM songs s
		LEFT JOIN song_aboutness a ON a.song_id = s.id`

func (p *postgresPreparedQuery) Nearest(ctx context.Context, column Column, opts NeighborOptions) ([]Neighbor, error) {
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

	if opts.Breadth > 0 {
		ef := opts.Breadth
		if ef > maxEfSearch {
			ef = maxEfSearch
		}
		if _, err := p.tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", ef)); err != nil {
			return nil, fmt.Errorf("failed to set search breadth: %w", err)
		}
	}

	query := "SELECT s.id, " + col + " <=> (SELECT v FROM query_vec) AS distance" + pgNeighborFrom + eligibilityClause(col)
	query, args := applyNeighborFilters(query, nil, opts.Filters, postgresPlaceholder)
	args = append(args, opts.Limit)
	query += fmt.Sprintf(" ORDER BY distance ASC, s.id ASC LIMIT $%d", len(args))

	rows, err := p.tx.QueryContext(ctx, query, args...)
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

func (p *postgresPreparedQuery) Distances(ctx context.Context, column Column, songIDs []int64) (map[int64]float64, error) {
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

	query := "SELECT s.id, " + col + " <=> (SELECT v FROM query_vec)" + pgNeighborFrom +
		eligibilityClause(col) + " AND s.id = ANY($1)"
	rows, err := p.tx.QueryContext(ctx, query, pq.Array(songIDs))
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

func (p *postgresPreparedQuery) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	if err := p.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return err
	}
	return nil
}
