package embedder

import (
	"context"
	"fmt"
	"testing"

	"github.com/dshills/code-connoisseur/pkg/types"
)

func BenchmarkLocalProvider(b *testing.B) {
	provider, err := NewLocalProvider(0, nil)
	if err != nil {
		b.Fatalf("NewLocalProvider() error = %v", err)
	}
	defer provider.Close()

	ctx := context.Background()
	req := EmbeddingRequest{
		Text: "export function processData(input: Buffer): string { return input.toString() }",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := provider.GenerateEmbedding(ctx, req); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkPipeline(b *testing.B) {
	provider, err := NewLocalProvider(0, nil)
	if err != nil {
		b.Fatal(err)
	}
	p := NewPipeline(provider)

	for _, n := range []int{10, 100, 500} {
		chunks := make([]types.CodeChunk, n)
		for i := range chunks {
			chunks[i] = types.CodeChunk{
				Kind:       types.KindFunction,
				Name:       fmt.Sprintf("handler%d", i),
				Code:       fmt.Sprintf("function handler%d(req, res) { res.send(%d) }", i, i),
				SourcePath: "src/routes.js",
			}
		}
		b.Run(fmt.Sprintf("chunks=%d", n), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := p.Embed(context.Background(), chunks); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkNormalizeVector(b *testing.B) {
	for _, size := range []int{384, 1024, 1536} {
		b.Run(fmt.Sprintf("dim=%d", size), func(b *testing.B) {
			vec := make([]float32, size)
			for i := range vec {
				vec[i] = float32(i) / float32(size)
			}
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = NormalizeVector(vec)
			}
		})
	}
}
