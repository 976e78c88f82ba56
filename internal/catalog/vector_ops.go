package catalog

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	if vector == nil {
		return nil
	}
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	if len(blob) == 0 {
		return nil
	}
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// cosineDistance matches pgvector's <=> and sqlite-vec's vec_distance_cosine
func cosineDistance(a, b []float32) float64 {
	return 1 - cosineSimilarity(a, b)
}

// formatVectorLiteral renders a pgvector text literal: [0.1,0.2,...]
func formatVectorLiteral(vector []float32) string {
	var b strings.Builder
	b.Grow(len(vector) * 10)
	b.WriteByte('[')
	for i, v := range vector {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// parseVectorLiteral parses a pgvector text literal
func parseVectorLiteral(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, fmt.Errorf("malformed vector literal %q", truncate(s, 32))
	}
	body := strings.TrimSpace(s[1 : len(s)-1])
	if body == "" {
		return []float32{}, nil
	}
	parts := strings.Split(body, ",")
	vector := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("vector element %d: %w", i, err)
		}
		vector[i] = float32(f)
	}
	return vector, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// sortNeighbors orders by ascending distance, then song id for determinism
func sortNeighbors(ns []Neighbor) {
	sort.Slice(ns, func(i, j int) bool {
		if ns[i].Distance != ns[j].Distance {
			return ns[i].Distance < ns[j].Distance
		}
		return ns[i].SongID < ns[j].SongID
	})
}

// placeholderFunc renders the n-th (1-based) bind parameter for a dialect
type placeholderFunc func(n int) string

func sqlitePlaceholder(int) string { return "?" }

func postgresPlaceholder(n int) string { return "$" + strconv.Itoa(n) }

// eligibilityClause restricts rows to non-placeholder songs with a metadata
// vector and a non-null target column
func eligibilityClause(col string) string {
	clause := " WHERE s.is_placeholder = FALSE AND s.meta_embedding IS NOT NULL"
	if col != "s.meta_embedding" {
		clause += " AND " + col + " IS NOT NULL"
	}
	return clause
}

// applyNeighborFilters adds WHERE clause filters for a nearest-neighbor leg
func applyNeighborFilters(query string, args []interface{}, filters *Filters, ph placeholderFunc) (string, []interface{}) {
	if filters == nil {
		return query, args
	}

	if len(filters.ExcludeIDs) > 0 {
		query += " AND s.id NOT IN ("
		for i, id := range filters.ExcludeIDs {
			if i > 0 {
				query += ","
			}
			args = append(args, id)
			query += ph(len(args))
		}
		query += ")"
	}

	if filters.MinPopularity > 0 {
		args = append(args, filters.MinPopularity)
		query += " AND s.popularity >= " + ph(len(args))
	}

	if filters.YearFrom > 0 {
		args = append(args, filters.YearFrom)
		query += " AND s.year IS NOT NULL AND s.year >= " + ph(len(args))
	}

	if filters.YearTo > 0 {
		args = append(args, filters.YearTo)
		query += " AND s.year IS NOT NULL AND s.year <= " + ph(len(args))
	}

	return query, args
}

// inClause renders "(?,?,?)" for ids, appending them to args
func inClause(ids []int64, args []interface{}, ph placeholderFunc) (string, []interface{}) {
	var b strings.Builder
	b.WriteByte('(')
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		args = append(args, id)
		b.WriteString(ph(len(args)))
	}
	b.WriteByte(')')
	return b.String(), args
}

// SerializeVector is an exported helper for testing
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector is an exported helper for testing
func DeserializeVector(blob []byte) []float32 {
	return deserializeVector(blob)
}

// CosineSimilarity is an exported helper for testing
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}
