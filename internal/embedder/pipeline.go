package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/dshills/code-connoisseur/pkg/types"
)

// Pipeline turns chunks into embedded chunks in fixed-size provider calls
type Pipeline struct {
	embedder  Embedder
	batchSize int
	logger    *zap.Logger
}

// PipelineOption configures a Pipeline
type PipelineOption func(*Pipeline)

// WithBatchSize sets how many chunks go into one provider call
func WithBatchSize(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithLogger sets the pipeline logger
func WithLogger(logger *zap.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPipeline wraps an embedder
func NewPipeline(e Embedder, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		embedder:  e,
		batchSize: DefaultBatchSize,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.batchSize > MaxBatchSize {
		p.batchSize = MaxBatchSize
	}
	return p
}

// Embedder returns the underlying provider
func (p *Pipeline) Embedder() Embedder {
	return p.embedder
}

// BatchSize returns the effective provider batch size
func (p *Pipeline) BatchSize() int {
	return p.batchSize
}

// Embed embeds chunks, numbering them from zero
func (p *Pipeline) Embed(ctx context.Context, chunks []types.CodeChunk) ([]types.EmbeddedChunk, error) {
	return p.EmbedFrom(ctx, chunks, 0)
}

// EmbedFrom embeds chunks whose ordinals start at start. Callers that feed
// one run through several calls pass the running offset so ids stay unique.
// Output order always matches input order; any provider failure aborts the
// whole call and nothing is returned.
func (p *Pipeline) EmbedFrom(ctx context.Context, chunks []types.CodeChunk, start int) ([]types.EmbeddedChunk, error) {
	out := make([]types.EmbeddedChunk, 0, len(chunks))
	dim := p.embedder.Dimension()

	for lo := 0; lo < len(chunks); lo += p.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hi := min(lo+p.batchSize, len(chunks))
		batch := chunks[lo:hi]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = embeddingText(c)
		}

		resp, err := p.embedder.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: texts})
		if err != nil {
			return nil, fmt.Errorf("embed chunks %d-%d: %w", start+lo, start+hi-1, err)
		}
		if len(resp.Embeddings) != len(batch) {
			return nil, fmt.Errorf("embed chunks %d-%d: %w: got %d vectors for %d texts",
				start+lo, start+hi-1, ErrProviderFailed, len(resp.Embeddings), len(batch))
		}

		for i, emb := range resp.Embeddings {
			if emb == nil || len(emb.Vector) != dim {
				return nil, fmt.Errorf("embed chunk %d: %w: vector dimension does not match %d",
					start+lo+i, ErrProviderFailed, dim)
			}
			c := batch[i]
			out = append(out, types.EmbeddedChunk{
				ID:       ChunkID(c.SourcePath, c.Name, start+lo+i),
				Vector:   emb.Vector,
				Metadata: types.MetadataOf(c),
			})
		}

		p.logger.Debug("embedded batch",
			zap.Int("from", start+lo),
			zap.Int("to", start+hi-1),
			zap.String("provider", p.embedder.Provider()))
	}

	return out, nil
}

// EmbedQuery embeds a search query
func (p *Pipeline) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	emb, err := p.embedder.GenerateEmbedding(ctx, EmbeddingRequest{Text: query})
	if err != nil {
		return nil, err
	}
	if len(emb.Vector) != p.embedder.Dimension() {
		return nil, fmt.Errorf("%w: query vector dimension %d, expected %d",
			ErrProviderFailed, len(emb.Vector), p.embedder.Dimension())
	}
	return emb.Vector, nil
}

// ChunkID derives a chunk id from a short hash of (path, name) and the
// chunk's ordinal in the run
func ChunkID(path, name string, ordinal int) string {
	h := sha256.Sum256([]byte(path + "\x00" + name))
	return hex.EncodeToString(h[:])[:12] + "-" + strconv.Itoa(ordinal)
}

// embeddingText never returns an empty string
func embeddingText(c types.CodeChunk) string {
	if c.Code != "" {
		return c.Code
	}
	return c.Name + " " + c.SourcePath
}
