//go:build purego || !sqlite_vec
// +build purego !sqlite_vec

package catalog

// Compiled without CGO or with the purego tag. The query vector is still
// materialized in a temp table and joined, but cosine distance is computed in
// Go over the joined rows. The scan is exhaustive, so breadth has no effect.
//
// Build command:
//   CGO_ENABLED=0 go build -tags "purego" ./...
//
// Driver used: modernc.org/sqlite

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// VectorExtensionAvailable indicates if vector extension is available
	VectorExtensionAvailable = false

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)
