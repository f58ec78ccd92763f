package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/dshills/code-connoisseur/pkg/types"
)

var (
	// ErrNotFound is returned when an index or chunk does not exist
	ErrNotFound = errors.New("not found")
	// ErrDuplicateID is returned when a persisted id already exists in the index
	ErrDuplicateID = errors.New("duplicate chunk id")
	// ErrDimensionMismatch is returned when vectors disagree on length
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrUnsupportedFormat is returned for on-disk data written by a newer format
	ErrUnsupportedFormat = errors.New("unsupported index format")
	// ErrCorrupt is returned when index files cannot be decoded
	ErrCorrupt = errors.New("corrupt index")
	// ErrInvalidIndexName is returned for names that are not safe directory names
	ErrInvalidIndexName = errors.New("invalid index name")
	// ErrInvalidText is returned for chunk text that is not valid UTF-8
	ErrInvalidText = errors.New("chunk text is not valid UTF-8")
)

// Location is a resolved index: where it lives and its descriptor
type Location struct {
	Index    string
	Root     string // storage root holding the index directory, or the database file
	Dir      string // directory with the index files; equal to Root for SQLite
	Source   string // name of the candidate that found it
	Metadata types.IndexMetadata
}

// VectorStore persists embedded chunks under named indexes
type VectorStore interface {
	// Persist appends chunks to index, creating it on first use
	Persist(ctx context.Context, index string, chunks []types.EmbeddedChunk, opts ...PersistOption) (*types.IndexMetadata, error)

	// Resolve locates an index; ErrNotFound when no candidate holds it
	Resolve(ctx context.Context, index string) (*Location, error)

	// Scan streams every chunk of a resolved index in storage order
	Scan(ctx context.Context, loc *Location, fn func(types.EmbeddedChunk) error) error

	// Get reads one chunk back by id
	Get(ctx context.Context, index, id string) (*types.EmbeddedChunk, error)

	// List returns the metadata of every resolvable index
	List(ctx context.Context) ([]types.IndexMetadata, error)

	// Drop deletes an index; dropping a missing index is not an error
	Drop(ctx context.Context, index string) error

	Close() error
}

// NativeSearcher is implemented by stores that rank vectors themselves.
// Results hold scores strictly above threshold, best first, at most limit.
type NativeSearcher interface {
	SearchNative(ctx context.Context, loc *Location, vector []float32, threshold float64, limit int) ([]types.SearchResult, error)
}

// PersistOption annotates a persist call
type PersistOption func(*persistConfig)

type persistConfig struct {
	provider string
	model    string
}

// WithProvenance records which provider and model produced the vectors
func WithProvenance(provider, model string) PersistOption {
	return func(c *persistConfig) {
		c.provider = provider
		c.model = model
	}
}

func newPersistConfig(opts []PersistOption) persistConfig {
	var c persistConfig
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

var indexNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateIndexName accepts names usable as a single directory component
func ValidateIndexName(name string) error {
	if len(name) > 128 || !indexNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidIndexName, name)
	}
	return nil
}

// validText reports whether every text field would round-trip through JSON
func validText(m types.ChunkMetadata) bool {
	return utf8.ValidString(m.Path) && utf8.ValidString(m.Name) && utf8.ValidString(m.Code)
}

// checkChunks verifies a persist input is self-consistent and returns its dimension
func checkChunks(chunks []types.EmbeddedChunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	dim := len(chunks[0].Vector)
	if dim == 0 {
		return 0, fmt.Errorf("%w: chunk %s has an empty vector", ErrDimensionMismatch, chunks[0].ID)
	}

	seen := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		if c.ID == "" {
			return 0, types.ErrInvalidChunkID
		}
		if len(c.Vector) != dim {
			return 0, fmt.Errorf("%w: chunk %s has %d values, expected %d", ErrDimensionMismatch, c.ID, len(c.Vector), dim)
		}
		if !validText(c.Metadata) {
			return 0, fmt.Errorf("%w: chunk %s", ErrInvalidText, c.ID)
		}
		if _, ok := seen[c.ID]; ok {
			return 0, fmt.Errorf("%w: %s", ErrDuplicateID, c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	return dim, nil
}
