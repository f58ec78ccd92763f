package config

import (
	"github.com/dshills/code-connoisseur/internal/chunker"
	"github.com/dshills/code-connoisseur/internal/embedder"
	"github.com/dshills/code-connoisseur/internal/loader"
	"github.com/dshills/code-connoisseur/internal/searcher"
	"github.com/dshills/code-connoisseur/internal/storage"
	"github.com/dshills/code-connoisseur/pkg/types"
)

// DefaultIndex is the index name used when none is configured
const DefaultIndex = "main"

// DefaultThreshold is the similarity cutoff used when none is configured
const DefaultThreshold = searcher.DefaultThreshold

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Index == "" {
		cfg.Index = DefaultIndex
	}
	if cfg.Extractor.MaxFileBytes == 0 {
		cfg.Extractor.MaxFileBytes = chunker.DefaultMaxFileBytes
	}
	if cfg.Extractor.MaxChunkChars == 0 {
		cfg.Extractor.MaxChunkChars = types.MaxChunkChars
	}
	if cfg.Extractor.Extensions == nil {
		cfg.Extractor.Extensions = append([]string(nil), loader.DefaultExtensions...)
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = embedder.DefaultBatchSize
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = embedder.DefaultCacheSize
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = storage.BackendFile
	}
	if cfg.Storage.BatchSize == 0 {
		cfg.Storage.BatchSize = storage.DefaultBatchSize
	}
	if cfg.Search.DefaultTopK == 0 {
		cfg.Search.DefaultTopK = searcher.DefaultTopK
	}
	if cfg.Search.MaxTopK == 0 {
		cfg.Search.MaxTopK = searcher.MaxTopK
	}
	if cfg.Search.CacheSize == 0 {
		cfg.Search.CacheSize = searcher.DefaultCacheSize
	}
	if cfg.Search.CacheTTL == 0 {
		cfg.Search.CacheTTL = searcher.DefaultCacheTTL
	}
}
