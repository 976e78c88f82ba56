//go:build sqlite_vec && !purego
// +build sqlite_vec,!purego

package catalog

// Compiled with CGO and the sqlite_vec tag. Distances are computed in SQL by
// the sqlite-vec extension (vec_distance_cosine) so nearest-neighbor legs
// sort and limit inside the database.
//
// Build command:
//   CGO_ENABLED=1 go build -tags "sqlite_vec" ./...
//
// Driver used: github.com/mattn/go-sqlite3

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite3"

	// VectorExtensionAvailable indicates if vector extension is available
	VectorExtensionAvailable = true

	// BuildMode describes the current build configuration
	BuildMode = "cgo"
)
