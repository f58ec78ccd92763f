package types

import "errors"

// Domain errors for type validation
var (
	// Chunk errors
	ErrInvalidKind   = errors.New("invalid chunk kind")
	ErrChunkTooLarge = errors.New("chunk code exceeds character limit")

	// Search result errors
	ErrInvalidChunkID        = errors.New("invalid chunk ID")
	ErrInvalidRelevanceScore = errors.New("relevance score must be between 0 and 1")
	ErrMissingFileInfo       = errors.New("file info is required")
)
