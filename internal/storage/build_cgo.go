//go:build sqlite_vec && !purego

package storage

// Compiled with CGO and the sqlite_vec tag: mattn/go-sqlite3 with the
// sqlite-vec extension registered for every connection, so vector search
// runs in SQL through vec_distance_cosine.
//
//	CGO_ENABLED=1 go build -tags sqlite_vec ./...

import (
	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
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

func init() {
	sqlite_vec.Auto()
}
