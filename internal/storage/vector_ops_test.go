package storage

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dshills/code-connoisseur/pkg/types"
)

func TestSerializeVectorRoundTrip(t *testing.T) {
	vec := []float32{0, 1, -1, 0.5, math.MaxFloat32, math.SmallestNonzeroFloat32}
	blob := SerializeVector(vec)
	assert.Len(t, blob, len(vec)*4)
	assert.Equal(t, vec, DeserializeVector(blob))
	assert.Empty(t, DeserializeVector(nil))
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"scaled", []float32{1, 2, 3}, []float32{2, 4, 6}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero norm", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.LessOrEqual(t, got, 1.0)
			assert.GreaterOrEqual(t, got, -1.0)
		})
	}
}

func TestRanker(t *testing.T) {
	r := NewRanker(0.5)
	meta := types.ChunkMetadata{Path: "x.ts", Kind: types.KindFunction, Name: "x"}

	r.Add("b", meta, 0.9)
	r.Add("a", meta, 0.9)
	r.Add("c", meta, 0.7)
	r.Add("at-threshold", meta, 0.5)
	r.Add("below", meta, 0.1)
	r.Add("nan", meta, math.NaN())
	r.Add("over", meta, 1.0000001)

	top := r.Top(10)
	ids := make([]string, len(top))
	for i, res := range top {
		ids[i] = res.ID
	}
	assert.Equal(t, []string{"over", "a", "b", "c"}, ids)
	assert.Equal(t, 1.0, top[0].Score)

	assert.Len(t, r.Top(2), 2)
}

func TestRankerOffer(t *testing.T) {
	r := NewRanker(0)
	query := []float32{1, 0}
	r.Offer(query, types.EmbeddedChunk{ID: "hit", Vector: []float32{1, 1}})
	r.Offer(query, types.EmbeddedChunk{ID: "miss", Vector: []float32{0, 1}})
	r.Offer(query, types.EmbeddedChunk{ID: "short", Vector: []float32{1}})

	top := r.Top(5)
	if assert.Len(t, top, 1) {
		assert.Equal(t, "hit", top[0].ID)
		assert.InDelta(t, math.Sqrt2/2, top[0].Score, 1e-6)
	}
}

func TestRankerNegativeThreshold(t *testing.T) {
	r := NewRanker(-0.5)
	query := []float32{1, 0}
	meta := types.ChunkMetadata{Path: "src/a.ts", Kind: types.KindFunction, Name: "a"}
	r.Offer(query, types.EmbeddedChunk{ID: "related", Vector: []float32{1, 1}, Metadata: meta})
	r.Offer(query, types.EmbeddedChunk{ID: "orthogonal", Vector: []float32{0, 1}, Metadata: meta})
	r.Offer(query, types.EmbeddedChunk{ID: "opposed", Vector: []float32{-0.2, 1}, Metadata: meta})

	top := r.Top(10)
	if assert.Len(t, top, 1) {
		assert.Equal(t, "related", top[0].ID)
	}
	for _, res := range top {
		assert.NoError(t, res.Validate())
		assert.Greater(t, res.Score, 0.0)
	}
}

func TestRankerTopNeverNil(t *testing.T) {
	r := NewRanker(0.9)
	r.Add("low", types.ChunkMetadata{Path: "x.ts", Name: "x"}, 0.2)

	top := r.Top(5)
	assert.NotNil(t, top)
	assert.Empty(t, top)
	assert.NotNil(t, NewRanker(0.5).Top(5))
}
