package storage

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/dshills/code-connoisseur/pkg/types"
)

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity is dot(a,b) / (|a| |b|), or 0 when either norm is zero
// or the lengths differ
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dotProduct += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	// rounding can push identical vectors a hair past the bounds
	return math.Max(-1, math.Min(1, sim))
}

// Ranker keeps the best results above a threshold while a scan runs
type Ranker struct {
	threshold float64
	results   []types.SearchResult
}

// NewRanker creates a ranker that drops scores at or below threshold.
// Scores at or below 0 are always dropped, so kept scores lie in (0, 1].
func NewRanker(threshold float64) *Ranker {
	return &Ranker{threshold: math.Max(threshold, 0)}
}

// Offer scores a chunk against the query and keeps it if it clears the threshold
func (r *Ranker) Offer(query []float32, c types.EmbeddedChunk) {
	r.Add(c.ID, c.Metadata, cosineSimilarity(query, c.Vector))
}

// Add records an already computed score
func (r *Ranker) Add(id string, meta types.ChunkMetadata, score float64) {
	if score <= r.threshold || math.IsNaN(score) {
		return
	}
	r.results = append(r.results, types.SearchResult{
		ID:       id,
		Metadata: meta,
		Score:    math.Min(score, 1),
	})
}

// Top sorts descending by score, ties by id, and truncates to limit.
// The result is never nil.
func (r *Ranker) Top(limit int) []types.SearchResult {
	if r.results == nil {
		return []types.SearchResult{}
	}
	sortResults(r.results)
	if limit >= 0 && len(r.results) > limit {
		r.results = r.results[:limit]
	}
	return r.results
}

func sortResults(results []types.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
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
