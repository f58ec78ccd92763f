//go:build !sqlite_vec || purego

package storage

// Default build: pure Go SQLite from modernc.org, no C toolchain needed.
// Vector similarity is computed in Go.

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
