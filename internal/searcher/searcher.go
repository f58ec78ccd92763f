package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/dshills/code-connoisseur/internal/embedder"
	"github.com/dshills/code-connoisseur/internal/storage"
	"github.com/dshills/code-connoisseur/pkg/types"
)

const (
	// DefaultThreshold drops results whose similarity is at or below it
	DefaultThreshold = 0.5

	// DefaultTopK is used when a request does not ask for a result count
	DefaultTopK = 5

	// MaxTopK bounds the results of a single query
	MaxTopK = 100

	// DefaultCacheSize is the number of cached query responses
	DefaultCacheSize = 1000

	// DefaultCacheTTL is how long a cached response stays valid
	DefaultCacheTTL = 5 * time.Minute
)

// ErrEmptyQuery is returned for a blank query
var ErrEmptyQuery = errors.New("query cannot be empty")

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Query    string
	Index    string
	TopK     int
	UseCache bool // Whether to use the query cache
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Results      []types.SearchResult
	TotalResults int
	Index        string
	Duration     time.Duration
	CacheHit     bool
	Native       bool // ranked by the store rather than by a scan
	Scanned      int  // chunks compared during a scan
}

// cacheEntry represents a cached search response with expiration time
type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// Option configures a Searcher
type Option func(*Searcher)

// WithThreshold sets the similarity cutoff
func WithThreshold(threshold float64) Option {
	return func(s *Searcher) {
		s.threshold = threshold
	}
}

// WithDefaultTopK sets the result count used when a request leaves TopK unset
func WithDefaultTopK(n int) Option {
	return func(s *Searcher) {
		if n > 0 {
			s.defaultTopK = min(n, MaxTopK)
		}
	}
}

// WithMaxTopK lowers the result count bound
func WithMaxTopK(n int) Option {
	return func(s *Searcher) {
		if n > 0 && n <= MaxTopK {
			s.maxTopK = n
		}
	}
}

// WithCacheSize sets the number of cached responses
func WithCacheSize(n int) Option {
	return func(s *Searcher) {
		if n > 0 {
			s.cacheSize = n
		}
	}
}

// WithCacheTTL sets how long responses are cached
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Searcher) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Searcher) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Searcher runs similarity queries against a vector store
type Searcher struct {
	store       storage.VectorStore
	pipeline    *embedder.Pipeline
	threshold   float64
	defaultTopK int
	maxTopK     int
	cacheSize   int
	cacheTTL    time.Duration
	logger      *zap.Logger
	cache       *lru.Cache[[32]byte, *cacheEntry]
	cacheMu     sync.RWMutex
}

// New creates a new Searcher instance
func New(store storage.VectorStore, pipeline *embedder.Pipeline, opts ...Option) *Searcher {
	s := &Searcher{
		store:       store,
		pipeline:    pipeline,
		threshold:   DefaultThreshold,
		defaultTopK: DefaultTopK,
		maxTopK:     MaxTopK,
		cacheSize:   DefaultCacheSize,
		cacheTTL:    DefaultCacheTTL,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.defaultTopK = min(s.defaultTopK, s.maxTopK)

	// Create LRU cache with a fixed entry limit
	cache, err := lru.New[[32]byte, *cacheEntry](s.cacheSize)
	if err != nil {
		// This should never happen with valid size parameter
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}
	s.cache = cache
	return s
}

// Search embeds the query and returns the best matches above the threshold.
// An index that does not exist yields an empty response, not an error.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	if s.pipeline == nil {
		return nil, fmt.Errorf("embedder not initialized")
	}
	if err := s.validateRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}

	loc, err := s.store.Resolve(ctx, req.Index)
	if errors.Is(err, storage.ErrNotFound) {
		s.logger.Debug("index not found, returning no results", zap.String("index", req.Index))
		return &SearchResponse{Results: []types.SearchResult{}, Index: req.Index, Duration: time.Since(startTime)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve index %s: %w", req.Index, err)
	}

	hash := s.computeQueryHash(req, loc.Metadata.UpdatedAt)
	if req.UseCache {
		if cached := s.checkCache(hash); cached != nil {
			cached.CacheHit = true
			cached.Duration = time.Since(startTime)
			return cached, nil
		}
	}

	vector, err := s.pipeline.EmbedQuery(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}
	if dim := loc.Metadata.Dimension; dim > 0 && len(vector) != dim {
		return nil, fmt.Errorf("%w: query has %d values, index %s stores %d (built with %s/%s)",
			storage.ErrDimensionMismatch, len(vector), req.Index, dim, loc.Metadata.Provider, loc.Metadata.Model)
	}

	var response *SearchResponse
	if native, ok := s.store.(storage.NativeSearcher); ok {
		response, err = s.nativeSearch(ctx, native, loc, vector, req.TopK)
	} else {
		response, err = s.scanSearch(ctx, loc, vector, req.TopK)
	}
	if err != nil {
		return nil, err
	}

	response.Index = req.Index
	response.TotalResults = len(response.Results)
	response.Duration = time.Since(startTime)

	if req.UseCache {
		s.storeInCache(hash, response)
	}

	s.logger.Debug("search complete",
		zap.String("index", req.Index),
		zap.Int("results", response.TotalResults),
		zap.Int("scanned", response.Scanned),
		zap.Bool("native", response.Native),
		zap.Duration("duration", response.Duration))

	return response, nil
}

// scanSearch compares the query against every stored vector
func (s *Searcher) scanSearch(ctx context.Context, loc *storage.Location, vector []float32, topK int) (*SearchResponse, error) {
	ranker := storage.NewRanker(s.threshold)
	scanned := 0
	err := s.store.Scan(ctx, loc, func(c types.EmbeddedChunk) error {
		scanned++
		ranker.Offer(vector, c)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan index %s: %w", loc.Index, err)
	}
	return &SearchResponse{Results: ranker.Top(topK), Scanned: scanned}, nil
}

func (s *Searcher) nativeSearch(ctx context.Context, native storage.NativeSearcher, loc *storage.Location, vector []float32, topK int) (*SearchResponse, error) {
	results, err := native.SearchNative(ctx, loc, vector, s.threshold, topK)
	if err != nil {
		return nil, fmt.Errorf("search index %s: %w", loc.Index, err)
	}
	if results == nil {
		results = []types.SearchResult{}
	}
	return &SearchResponse{Results: results, Native: true}, nil
}

// validateRequest ensures search request is valid
func (s *Searcher) validateRequest(req *SearchRequest) error {
	if strings.TrimSpace(req.Query) == "" {
		return ErrEmptyQuery
	}
	if err := storage.ValidateIndexName(req.Index); err != nil {
		return err
	}

	if req.TopK <= 0 {
		req.TopK = s.defaultTopK
	}
	if req.TopK > s.maxTopK {
		req.TopK = s.maxTopK
	}
	return nil
}

// checkCache looks up cached search results, nil on a miss
func (s *Searcher) checkCache(hash [32]byte) *SearchResponse {
	now := time.Now()

	s.cacheMu.RLock()
	entry, found := s.cache.Get(hash)
	if !found {
		s.cacheMu.RUnlock()
		return nil
	}

	if now.After(entry.expiresAt) {
		s.cacheMu.RUnlock()

		s.cacheMu.Lock()
		s.cache.Remove(hash)
		s.cacheMu.Unlock()
		return nil
	}

	response := copySearchResponse(entry.response)
	s.cacheMu.RUnlock()
	return response
}

// storeInCache saves a copy of response
func (s *Searcher) storeInCache(hash [32]byte, response *SearchResponse) {
	entry := &cacheEntry{
		response:  copySearchResponse(response),
		expiresAt: time.Now().Add(s.cacheTTL),
	}

	s.cacheMu.Lock()
	s.cache.Add(hash, entry)
	s.cacheMu.Unlock()
}

// copySearchResponse creates a deep copy of a SearchResponse
func copySearchResponse(src *SearchResponse) *SearchResponse {
	if src == nil {
		return nil
	}
	dst := *src
	dst.Results = make([]types.SearchResult, len(src.Results))
	copy(dst.Results, src.Results)
	return &dst
}

// computeQueryHash keys a request by everything that can change its answer,
// including when the index was last written
func (s *Searcher) computeQueryHash(req SearchRequest, updatedAt time.Time) [32]byte {
	var data strings.Builder
	data.WriteString(req.Index)
	data.WriteString("|")
	data.WriteString(req.Query)
	data.WriteString("|")
	data.WriteString(strconv.Itoa(req.TopK))
	data.WriteString("|")
	data.WriteString(strconv.FormatFloat(s.threshold, 'g', -1, 64))
	data.WriteString("|")
	data.WriteString(updatedAt.UTC().Format(time.RFC3339Nano))

	return sha256.Sum256([]byte(data.String()))
}

// InvalidateCache drops every cached response
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// CacheLen reports the number of cached responses
func (s *Searcher) CacheLen() int {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.cache.Len()
}
