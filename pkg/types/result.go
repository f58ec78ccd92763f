package types

// SearchResult represents a single similarity match
type SearchResult struct {
	ID       string
	Metadata ChunkMetadata

	// Score is the cosine similarity, reported in [0,1]
	Score float64
}

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if sr.ID == "" {
		return ErrInvalidChunkID
	}

	if sr.Score < 0 || sr.Score > 1 {
		return ErrInvalidRelevanceScore
	}

	if sr.Metadata.Path == "" {
		return ErrMissingFileInfo
	}

	return nil
}
