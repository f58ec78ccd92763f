// Package workspace wires a project's configuration into the store, the
// embedding pipeline, the indexer and the searcher.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/dshills/code-connoisseur/internal/chunker"
	"github.com/dshills/code-connoisseur/internal/config"
	"github.com/dshills/code-connoisseur/internal/embedder"
	"github.com/dshills/code-connoisseur/internal/indexer"
	"github.com/dshills/code-connoisseur/internal/loader"
	"github.com/dshills/code-connoisseur/internal/searcher"
	"github.com/dshills/code-connoisseur/internal/storage"
)

// Workspace holds the components serving one project root.
// The indexer and the searcher share a single pipeline, so query embeddings
// come from the same provider and cache as the indexed chunks.
type Workspace struct {
	Root     string
	Config   *config.Config
	Store    storage.VectorStore
	Pipeline *embedder.Pipeline
	Indexer  *indexer.Indexer
	Searcher *searcher.Searcher

	logger *zap.Logger
}

// Status describes one index of the workspace
type Status struct {
	Index      string
	Indexed    bool
	InProgress bool
	Location   *storage.Location
	LastRun    *indexer.Statistics // nil until this process indexed it
}

// Open loads the configuration of the project at root and builds a workspace.
// configPath may be empty to use the project's default config file.
func Open(root, configPath string, logger *zap.Logger) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}
	cfg, err := config.LoadProject(abs, configPath)
	if err != nil {
		return nil, err
	}
	return New(abs, cfg, logger)
}

// New builds a workspace from an already loaded configuration.
func New(root string, cfg *config.Config, logger *zap.Logger) (*Workspace, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	sc := cfg.StoreConfig(root)
	sc.Logger = logger
	store, err := storage.Open(sc)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	emb, err := embedder.New(cfg.EmbeddingProvider())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	pipeline := embedder.NewPipeline(emb,
		embedder.WithBatchSize(cfg.Embedding.BatchSize),
		embedder.WithLogger(logger),
	)
	ch := chunker.New(
		chunker.WithMaxFileBytes(cfg.Extractor.MaxFileBytes),
		chunker.WithMaxChunkChars(cfg.Extractor.MaxChunkChars),
		chunker.WithLogger(logger),
	)

	w := &Workspace{
		Root:     root,
		Config:   cfg,
		Store:    store,
		Pipeline: pipeline,
		Indexer: indexer.New(ch, pipeline, store,
			indexer.WithWorkers(cfg.Extractor.Workers),
			indexer.WithBatchSize(cfg.Storage.BatchSize),
			indexer.WithLogger(logger),
		),
		Searcher: searcher.New(store, pipeline,
			searcher.WithThreshold(cfg.Search.ThresholdOrDefault()),
			searcher.WithDefaultTopK(cfg.Search.DefaultTopK),
			searcher.WithMaxTopK(cfg.Search.MaxTopK),
			searcher.WithCacheSize(cfg.Search.CacheSize),
			searcher.WithCacheTTL(cfg.Search.CacheTTL),
			searcher.WithLogger(logger),
		),
		logger: logger,
	}

	logger.Debug("workspace ready",
		zap.String("root", root),
		zap.String("backend", cfg.Storage.Backend),
		zap.String("provider", emb.Provider()),
		zap.String("model", emb.Model()),
		zap.Int("dimension", emb.Dimension()))

	return w, nil
}

// IndexName returns name, or the configured default index when name is empty
func (w *Workspace) IndexName(name string) string {
	if name == "" {
		return w.Config.Index
	}
	return name
}

// Index rebuilds the named index from the files under the project root.
func (w *Workspace) Index(ctx context.Context, index string) (*indexer.Statistics, error) {
	stats, err := w.Indexer.IndexDirectory(ctx, w.IndexName(index), w.Root,
		loader.WithExtensions(w.Config.Extractor.Extensions...),
		loader.WithIgnores(w.Config.Extractor.Ignore...),
		loader.WithLogger(w.logger),
	)
	if err != nil {
		return nil, err
	}
	w.Searcher.InvalidateCache()
	return stats, nil
}

// Search runs a similarity search against the named index.
func (w *Workspace) Search(ctx context.Context, query, index string, limit int) (*searcher.SearchResponse, error) {
	return w.Searcher.Search(ctx, searcher.SearchRequest{
		Query:    query,
		Index:    w.IndexName(index),
		TopK:     limit,
		UseCache: true,
	})
}

// Status reports whether the named index exists and what the last run produced.
func (w *Workspace) Status(ctx context.Context, index string) (*Status, error) {
	name := w.IndexName(index)
	if err := storage.ValidateIndexName(name); err != nil {
		return nil, err
	}

	st := &Status{Index: name, InProgress: w.Indexer.InProgress()}
	if run, ok := w.Indexer.LastRun(name); ok {
		st.LastRun = run
	}

	loc, err := w.Store.Resolve(ctx, name)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return st, nil
	case err != nil:
		return nil, err
	}
	st.Indexed = true
	st.Location = loc
	return st, nil
}

// Close releases the embedder and the store
func (w *Workspace) Close() error {
	return errors.Join(w.Pipeline.Embedder().Close(), w.Store.Close())
}
