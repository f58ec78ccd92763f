package parser

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/dshills/code-connoisseur/pkg/types"
)

var (
	// ErrNoChunks is returned by a strategy that ran cleanly but found nothing to extract
	ErrNoChunks = errors.New("no chunks extracted")

	// ErrSyntax is returned by strict strategies when the source does not parse cleanly
	ErrSyntax = errors.New("syntax error")
)

// Strategy is one rung of the extraction ladder.
// A strategy either returns at least one chunk or an error; the caller moves
// on to the next strategy on any error.
type Strategy interface {
	Name() string
	TryExtract(ctx context.Context, content []byte, path string) ([]types.CodeChunk, error)
}

// validRange reports whether [start,end) is a non-empty range inside content
func validRange(start, end, size int) bool {
	return start >= 0 && end > start && end <= size
}

// nameOrAnonymous returns name, or the sentinel when name is blank
func nameOrAnonymous(name string) string {
	if name == "" {
		return types.AnonymousName
	}
	return name
}

// WholeFile is the terminal strategy: one File chunk holding the head of the file.
type WholeFile struct {
	MaxChars int
}

func (w WholeFile) Name() string {
	return "whole-file"
}

// TryExtract never fails
func (w WholeFile) TryExtract(_ context.Context, content []byte, path string) ([]types.CodeChunk, error) {
	return []types.CodeChunk{w.Chunk(content, path)}, nil
}

// Chunk builds the whole-file chunk directly
func (w WholeFile) Chunk(content []byte, path string) types.CodeChunk {
	limit := w.MaxChars
	if limit <= 0 {
		limit = types.MaxChunkChars
	}
	name := filepath.Base(path)
	if path == "" || name == "." || name == string(filepath.Separator) {
		name = types.AnonymousName
	}
	return types.CodeChunk{
		Kind:       types.KindFile,
		Name:       name,
		Code:       types.TruncateChars(string(content), limit),
		SourcePath: path,
	}
}
