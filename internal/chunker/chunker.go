package chunker

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/dshills/code-connoisseur/internal/parser"
	"github.com/dshills/code-connoisseur/pkg/types"
)

const (
	// DefaultMaxFileBytes is the size above which a file skips parsing entirely
	DefaultMaxFileBytes = 500 * 1024

	// binarySampleSize is how much of a file is inspected for binary content
	binarySampleSize = 8 * 1024

	// binaryControlRatio is the share of control bytes that marks a sample as binary
	binaryControlRatio = 0.10
)

// Result is the outcome of one extraction, including which strategy won
type Result struct {
	Chunks   []types.CodeChunk
	Strategy string
	Reason   string
}

// Chunker runs the extraction ladder for a file's language family
type Chunker struct {
	registry      *parser.Registry
	maxFileBytes  int
	maxChunkChars int
	logger        *zap.Logger
}

// Option configures a Chunker
type Option func(*Chunker)

// WithLogger sets the logger used for fallback diagnostics
func WithLogger(logger *zap.Logger) Option {
	return func(c *Chunker) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRegistry replaces the default language registry
func WithRegistry(r *parser.Registry) Option {
	return func(c *Chunker) {
		if r != nil {
			c.registry = r
		}
	}
}

// WithMaxFileBytes sets the oversized-file ceiling
func WithMaxFileBytes(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.maxFileBytes = n
		}
	}
}

// WithMaxChunkChars sets the per-chunk character cap
func WithMaxChunkChars(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.maxChunkChars = n
		}
	}
}

// New creates a new chunker
func New(opts ...Option) *Chunker {
	c := &Chunker{
		registry:      parser.DefaultRegistry(),
		maxFileBytes:  DefaultMaxFileBytes,
		maxChunkChars: types.MaxChunkChars,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Registry returns the language registry in use
func (c *Chunker) Registry() *parser.Registry {
	return c.registry
}

// Extract splits content into chunks. It never fails: when every strategy
// is exhausted the whole file becomes a single File chunk.
func (c *Chunker) Extract(ctx context.Context, content []byte, path string) []types.CodeChunk {
	return c.ExtractResult(ctx, content, path).Chunks
}

// ExtractResult is Extract plus the name of the strategy that produced the chunks
func (c *Chunker) ExtractResult(ctx context.Context, content []byte, path string) Result {
	whole := parser.WholeFile{MaxChars: c.maxChunkChars}

	reason := c.gate(content)
	content = validUTF8(content)
	path = strings.ToValidUTF8(path, string(utf8.RuneError))

	if reason != "" {
		c.logger.Info("skipping structural extraction",
			zap.String("path", path),
			zap.String("reason", reason),
			zap.Int("bytes", len(content)))
		return Result{
			Chunks:   []types.CodeChunk{whole.Chunk(content, path)},
			Strategy: whole.Name(),
			Reason:   reason,
		}
	}

	family := c.registry.Lookup(path)
	for _, s := range family.Strategies {
		if ctx.Err() != nil {
			break
		}
		chunks, err := c.try(ctx, s, content, path)
		if err != nil {
			c.logger.Debug("extraction strategy failed",
				zap.String("path", path),
				zap.String("family", family.Name),
				zap.String("strategy", s.Name()),
				zap.Error(err))
			continue
		}
		return Result{
			Chunks:   c.bound(chunks),
			Strategy: s.Name(),
		}
	}

	c.logger.Debug("falling back to whole-file chunk",
		zap.String("path", path),
		zap.String("family", family.Name))
	return Result{
		Chunks:   []types.CodeChunk{whole.Chunk(content, path)},
		Strategy: whole.Name(),
		Reason:   "no structure found",
	}
}

// try runs one strategy, turning a panic inside a grammar into an error
func (c *Chunker) try(ctx context.Context, s parser.Strategy, content []byte, path string) (chunks []types.CodeChunk, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy %s panicked: %v", s.Name(), r)
		}
	}()

	chunks, err = s.TryExtract(ctx, content, path)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, parser.ErrNoChunks
	}
	return chunks, nil
}

// gate returns a non-empty reason when content must skip parsing
func (c *Chunker) gate(content []byte) string {
	switch {
	case len(content) > c.maxFileBytes:
		return "oversized"
	case len(bytes.TrimSpace(content)) == 0:
		return "empty"
	case IsBinary(content):
		return "binary"
	default:
		return ""
	}
}

func (c *Chunker) bound(chunks []types.CodeChunk) []types.CodeChunk {
	out := make([]types.CodeChunk, 0, len(chunks))
	for _, ch := range chunks {
		ch.Code = types.TruncateChars(ch.Code, c.maxChunkChars)
		if ch.Name == "" {
			ch.Name = types.AnonymousName
		}
		out = append(out, ch)
	}
	return out
}

// validUTF8 replaces invalid byte sequences with U+FFFD so chunk text
// survives JSON storage unchanged. Valid content is returned as is.
func validUTF8(content []byte) []byte {
	if utf8.Valid(content) {
		return content
	}
	return bytes.ToValidUTF8(content, []byte(string(utf8.RuneError)))
}

// IsBinary reports whether the head of content looks like binary data:
// any NUL byte, or more than 10% control bytes other than common whitespace.
func IsBinary(content []byte) bool {
	sample := content
	if len(sample) > binarySampleSize {
		sample = sample[:binarySampleSize]
	}
	if len(sample) == 0 {
		return false
	}

	control := 0
	for _, b := range sample {
		switch {
		case b == 0:
			return true
		case b == '\t' || b == '\n' || b == '\r' || b == '\f':
		case b < 0x20 || b == 0x7f:
			control++
		}
	}
	return float64(control)/float64(len(sample)) > binaryControlRatio
}
