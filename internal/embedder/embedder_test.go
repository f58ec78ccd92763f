package embedder

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeHash(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", ComputeHash(""))
	assert.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", ComputeHash("hello world"))
	assert.Equal(t, ComputeHash("test"), ComputeHash("test"))
}

func TestValidateRequest(t *testing.T) {
	assert.NoError(t, ValidateRequest(EmbeddingRequest{Text: "x"}))
	assert.ErrorIs(t, ValidateRequest(EmbeddingRequest{}), ErrEmptyText)
}

func TestValidateBatchRequest(t *testing.T) {
	tests := []struct {
		name    string
		texts   []string
		wantErr bool
	}{
		{"valid batch", []string{"a", "b"}, false},
		{"empty batch", nil, true},
		{"contains empty text", []string{"a", "", "c"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBatchRequest(BatchEmbeddingRequest{Texts: tt.texts})
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCache(t *testing.T) {
	t.Run("set and get", func(t *testing.T) {
		cache := NewCache(3)
		_, ok := cache.Get("missing")
		assert.False(t, ok)

		cache.Set("k", &Embedding{Vector: []float32{1, 2, 3}, Dimension: 3, Hash: "k"})
		got, ok := cache.Get("k")
		require.True(t, ok)
		assert.Equal(t, []float32{1, 2, 3}, got.Vector)
		assert.Equal(t, 1, cache.Size())
	})

	t.Run("returned vectors are copies", func(t *testing.T) {
		cache := NewCache(3)
		original := &Embedding{Vector: []float32{1, 2}}
		cache.Set("k", original)
		original.Vector[0] = 99

		got, _ := cache.Get("k")
		got.Vector[1] = 42

		again, _ := cache.Get("k")
		assert.Equal(t, []float32{1, 2}, again.Vector)
	})

	t.Run("lru eviction", func(t *testing.T) {
		cache := NewCache(2)
		cache.Set("a", &Embedding{})
		cache.Set("b", &Embedding{})
		cache.Get("a")
		cache.Set("c", &Embedding{})

		_, okA := cache.Get("a")
		_, okB := cache.Get("b")
		assert.True(t, okA)
		assert.False(t, okB)
		assert.Equal(t, 2, cache.Size())
	})

	t.Run("clear", func(t *testing.T) {
		cache := NewCache(10)
		cache.Set("a", &Embedding{})
		cache.Clear()
		assert.Equal(t, 0, cache.Size())
	})

	t.Run("concurrent access", func(t *testing.T) {
		cache := NewCache(100)
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					key := cacheKey("m", string(rune('a'+id))+string(rune('a'+j%26)))
					cache.Set(key, &Embedding{Vector: []float32{float32(id)}})
					cache.Get(key)
				}
			}(i)
		}
		wg.Wait()
		assert.NotZero(t, cache.Size())
	})
}

func TestCacheKeyScopesByModel(t *testing.T) {
	assert.NotEqual(t, cacheKey("a", "text"), cacheKey("b", "text"))
	assert.Equal(t, cacheKey("a", "text"), cacheKey("a", "text"))
}

func TestNormalizeVector(t *testing.T) {
	v := NormalizeVector([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := []float32{0, 0}
	assert.Equal(t, zero, NormalizeVector(zero))
}
