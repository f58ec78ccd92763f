// Package embedder turns code chunks into fixed-dimension vectors.
//
// Two provider variants sit behind the Embedder interface: a remote
// provider that calls an OpenAI-compatible embeddings endpoint (OpenAI, or
// Jina via its base URL), and a local deterministic provider that works
// offline. The provider is chosen from an explicit ProviderConfig:
//
//	e, err := embedder.New(embedder.ProviderConfig{Kind: embedder.KindLocal})
//	if err != nil {
//	    return err
//	}
//	defer e.Close()
//
// A Pipeline feeds chunks to the provider in fixed-size batches and keeps
// output order identical to input order:
//
//	p := embedder.NewPipeline(e, embedder.WithBatchSize(100))
//	embedded, err := p.Embed(ctx, chunks)
//
// Remote calls are retried with exponential backoff, except for client
// errors other than rate limiting. Embeddings are cached by model and
// content hash in an LRU cache.
package embedder
