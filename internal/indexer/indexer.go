package indexer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/code-connoisseur/internal/chunker"
	"github.com/dshills/code-connoisseur/internal/embedder"
	"github.com/dshills/code-connoisseur/internal/loader"
	"github.com/dshills/code-connoisseur/internal/storage"
	"github.com/dshills/code-connoisseur/pkg/types"
)

// ErrIndexInProgress is returned when another run holds the index lock
var ErrIndexInProgress = errors.New("indexing already in progress")

// Indexer coordinates the indexing pipeline: extract -> embed -> persist
type Indexer struct {
	chunker  *chunker.Chunker
	pipeline *embedder.Pipeline
	store    storage.VectorStore
	logger   *zap.Logger
	lock     IndexLock

	mu      sync.Mutex
	lastRun map[string]*Statistics

	// Worker pool configuration
	workers   int
	batchSize int
}

// Option configures an Indexer
type Option func(*Indexer)

// WithWorkers sets the number of concurrent extraction workers
func WithWorkers(n int) Option {
	return func(idx *Indexer) {
		if n > 0 {
			idx.workers = n
		}
	}
}

// WithBatchSize sets how many chunks are embedded and persisted together
func WithBatchSize(n int) Option {
	return func(idx *Indexer) {
		if n > 0 {
			idx.batchSize = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(idx *Indexer) {
		if logger != nil {
			idx.logger = logger
		}
	}
}

// Statistics contains statistics about the indexing operation
type Statistics struct {
	Index          string
	FilesIndexed   int
	FilesFallback  int // files that ended in a whole-file chunk
	ChunksCreated  int
	BatchesWritten int
	Strategies     map[string]int // files per winning strategy
	Reasons        map[string]int // whole-file fallbacks per reason
	Duration       time.Duration
	Metadata       *types.IndexMetadata
}

// New creates a new Indexer instance
func New(ch *chunker.Chunker, pipeline *embedder.Pipeline, store storage.VectorStore, opts ...Option) *Indexer {
	idx := &Indexer{
		chunker:   ch,
		pipeline:  pipeline,
		store:     store,
		logger:    zap.NewNop(),
		workers:   runtime.NumCPU(),
		batchSize: storage.DefaultBatchSize,
		lastRun:   make(map[string]*Statistics),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// InProgress reports whether a run is active
func (idx *Indexer) InProgress() bool {
	return idx.lock.Held()
}

// IndexDirectory loads every source file under root and indexes it
func (idx *Indexer) IndexDirectory(ctx context.Context, index, root string, opts ...loader.Option) (*Statistics, error) {
	l, err := loader.New(root, append([]loader.Option{loader.WithLogger(idx.logger)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to open project: %w", err)
	}
	files, err := l.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}
	idx.logger.Info("discovered source files",
		zap.String("root", l.Root()),
		zap.Int("files", len(files)))
	return idx.IndexFiles(ctx, index, files)
}

// IndexFiles replaces index with the chunks extracted from files.
//
// Extraction runs concurrently; chunk order still follows file order so ids
// are reproducible. The previous index is dropped first and chunks are then
// embedded and persisted one storage batch at a time, so a failure leaves the
// batches already written in place and reports which batch failed.
func (idx *Indexer) IndexFiles(ctx context.Context, index string, files []types.SourceFile) (*Statistics, error) {
	if err := storage.ValidateIndexName(index); err != nil {
		return nil, err
	}
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexInProgress
	}
	defer idx.lock.Release()

	startTime := time.Now()
	stats := &Statistics{
		Index:      index,
		Strategies: make(map[string]int),
		Reasons:    make(map[string]int),
	}

	results, err := idx.extract(ctx, files)
	if err != nil {
		return nil, fmt.Errorf("failed to extract chunks: %w", err)
	}

	var chunks []types.CodeChunk
	var owners []string // source path of each chunk, for error reports
	for _, r := range results {
		stats.FilesIndexed++
		stats.Strategies[r.Strategy]++
		if r.Reason != "" {
			stats.FilesFallback++
			stats.Reasons[r.Reason]++
		}
		for _, c := range r.Chunks {
			chunks = append(chunks, c)
			owners = append(owners, c.SourcePath)
		}
	}
	stats.ChunksCreated = len(chunks)

	if err := idx.store.Drop(ctx, index); err != nil {
		return nil, fmt.Errorf("failed to clear index %s: %w", index, err)
	}

	provenance := storage.WithProvenance(idx.pipeline.Embedder().Provider(), idx.pipeline.Embedder().Model())

	if len(chunks) == 0 {
		meta, err := idx.store.Persist(ctx, index, nil, provenance)
		if err != nil {
			return stats, fmt.Errorf("failed to create index %s: %w", index, err)
		}
		stats.Metadata = meta
		stats.Duration = time.Since(startTime)
		idx.recordRun(stats)
		return stats, nil
	}

	for lo := 0; lo < len(chunks); lo += idx.batchSize {
		hi := min(lo+idx.batchSize, len(chunks))
		batch := lo / idx.batchSize

		embedded, err := idx.pipeline.EmbedFrom(ctx, chunks[lo:hi], lo)
		if err != nil {
			stats.Duration = time.Since(startTime)
			return stats, fmt.Errorf("batch %d (%s ... %s): %w", batch, owners[lo], owners[hi-1], err)
		}

		meta, err := idx.store.Persist(ctx, index, embedded, provenance)
		if err != nil {
			stats.Duration = time.Since(startTime)
			return stats, fmt.Errorf("batch %d (%s ... %s): %w", batch, owners[lo], owners[hi-1], err)
		}
		stats.Metadata = meta
		stats.BatchesWritten++

		idx.logger.Debug("persisted batch",
			zap.String("index", index),
			zap.Int("batch", batch),
			zap.Int("chunks", hi-lo))
	}

	stats.Duration = time.Since(startTime)
	idx.logger.Info("indexing complete",
		zap.String("index", index),
		zap.Int("files", stats.FilesIndexed),
		zap.Int("chunks", stats.ChunksCreated),
		zap.Int("batches", stats.BatchesWritten),
		zap.Duration("duration", stats.Duration))

	idx.recordRun(stats)
	return stats, nil
}

// extract runs the chunker over files with a bounded worker pool, keeping
// results in input order
func (idx *Indexer) extract(ctx context.Context, files []types.SourceFile) ([]chunker.Result, error) {
	results := make([]chunker.Result, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.workers)

	for i := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = idx.chunker.ExtractResult(gctx, files[i].Content, files[i].Path)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	// a cancellation after the last worker started still aborts the run
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// StrategyNames returns the strategies of stats in a stable order
func (s *Statistics) StrategyNames() []string {
	names := make([]string, 0, len(s.Strategies))
	for name := range s.Strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LastRun returns the statistics of the last successful run for index
func (idx *Indexer) LastRun(index string) (*Statistics, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	stats, ok := idx.lastRun[index]
	return stats, ok
}

func (idx *Indexer) recordRun(stats *Statistics) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.lastRun[stats.Index] = stats
}
