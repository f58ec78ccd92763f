// Package indexer coordinates the end-to-end indexing pipeline.
//
// The indexer loads source files, runs the chunker over them on a worker
// pool, embeds the chunks and persists them to a vector store under a named
// index.
//
// # Basic Usage
//
//	idx := indexer.New(chunker.New(), embedder.NewPipeline(e), store)
//
//	stats, err := idx.IndexDirectory(ctx, "main", "/path/to/project")
//	if err != nil {
//	    return err
//	}
//	fmt.Printf("Indexed %d files into %d chunks in %v\n",
//	    stats.FilesIndexed, stats.ChunksCreated, stats.Duration)
//
// # Indexing Pipeline
//
//  1. Discovery: walk the project, skipping dependency and build directories
//  2. Extract: run the chunker per file (parallel, results kept in file order)
//  3. Drop: remove the previous copy of the index, so a rerun replaces it
//  4. Embed and persist: one storage batch at a time
//
// Each batch is persisted as soon as it is embedded. When a provider call or
// a write fails the run stops, the error names the batch and the files it
// covered, and the batches already written stay on disk.
//
// # Concurrent Processing
//
// Extraction uses an errgroup limited to WithWorkers goroutines (default
// runtime.NumCPU()). Embedding and persistence are sequential so chunk ids,
// which include the chunk's position in the run, are reproducible.
//
// Only one run per Indexer is allowed at a time. A second call while one is
// active returns ErrIndexInProgress instead of waiting.
package indexer
