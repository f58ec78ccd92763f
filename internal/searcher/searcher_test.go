package searcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dshills/code-connoisseur/internal/embedder"
	"github.com/dshills/code-connoisseur/internal/storage"
	"github.com/dshills/code-connoisseur/pkg/types"
)

// mockEmbedder returns fixed vectors per text for testing
type mockEmbedder struct {
	vectors map[string][]float32
	calls   atomic.Int32
	err     error
}

func (m *mockEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	vector, ok := m.vectors[req.Text]
	if !ok {
		vector = []float32{0, 0, 1}
	}
	return &embedder.Embedding{Vector: vector, Dimension: 3, Model: "mock-model", Provider: "mock"}, nil
}

func (m *mockEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	embeddings := make([]*embedder.Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := m.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: text})
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return &embedder.BatchEmbeddingResponse{Embeddings: embeddings, Provider: "mock", Model: "mock-model"}, nil
}

func (m *mockEmbedder) Dimension() int   { return 3 }
func (m *mockEmbedder) Provider() string { return "mock" }
func (m *mockEmbedder) Model() string    { return "mock-model" }
func (m *mockEmbedder) Close() error     { return nil }

// countingStore records how often the index is scanned
type countingStore struct {
	storage.VectorStore
	scans atomic.Int32
}

func (c *countingStore) Scan(ctx context.Context, loc *storage.Location, fn func(types.EmbeddedChunk) error) error {
	c.scans.Add(1)
	return c.VectorStore.Scan(ctx, loc, fn)
}

// nativeStore pretends the backend ranks vectors itself
type nativeStore struct {
	storage.VectorStore
	calls atomic.Int32
}

func (n *nativeStore) SearchNative(ctx context.Context, loc *storage.Location, vector []float32, threshold float64, limit int) ([]types.SearchResult, error) {
	n.calls.Add(1)
	ranker := storage.NewRanker(threshold)
	err := n.VectorStore.Scan(ctx, loc, func(c types.EmbeddedChunk) error {
		ranker.Offer(vector, c)
		return nil
	})
	return ranker.Top(limit), err
}

func newTestStore(t *testing.T) *storage.FileStore {
	t.Helper()
	base := t.TempDir()
	return storage.NewFileStore(storage.Options{
		PrimaryRoot:   filepath.Join(base, "indexes"),
		AlternateRoot: filepath.Join(base, "alternate"),
		PointerDir:    filepath.Join(base, "pointers"),
		LegacyRoot:    filepath.Join(base, "vectors"),
	})
}

// seed writes chunks whose vectors have known similarity to the query [1,0,0]
func seed(t *testing.T, store storage.VectorStore, index string) {
	t.Helper()
	chunks := []types.EmbeddedChunk{
		{ID: "exact", Vector: []float32{1, 0, 0}, Metadata: types.ChunkMetadata{Path: "a.ts", Kind: types.KindFunction, Name: "exact"}},
		{ID: "near-b", Vector: []float32{0.8, 0.2, 0}, Metadata: types.ChunkMetadata{Path: "a.ts", Kind: types.KindFunction, Name: "nearB"}},
		{ID: "near-a", Vector: []float32{0.8, 0.2, 0}, Metadata: types.ChunkMetadata{Path: "b.ts", Kind: types.KindClass, Name: "nearA"}},
		{ID: "mid", Vector: []float32{0.6, 0.4, 0}, Metadata: types.ChunkMetadata{Path: "b.ts", Kind: types.KindClass, Name: "mid"}},
		{ID: "orthogonal", Vector: []float32{0, 1, 0}, Metadata: types.ChunkMetadata{Path: "c.py", Kind: types.KindFunction, Name: "orthogonal"}},
		{ID: "opposite", Vector: []float32{-1, 0, 0}, Metadata: types.ChunkMetadata{Path: "c.py", Kind: types.KindFunction, Name: "opposite"}},
		{ID: "zero", Vector: []float32{0, 0, 0}, Metadata: types.ChunkMetadata{Path: "d.go", Kind: types.KindFile, Name: "d.go"}},
	}
	if _, err := store.Persist(context.Background(), index, chunks); err != nil {
		t.Fatalf("failed to seed index: %v", err)
	}
}

func setupTestSearcher(t *testing.T, opts ...Option) (*Searcher, *countingStore, *mockEmbedder) {
	t.Helper()
	store := &countingStore{VectorStore: newTestStore(t)}
	embed := &mockEmbedder{vectors: map[string][]float32{"find x": {1, 0, 0}}}
	seed(t, store, "main")
	return New(store, embedder.NewPipeline(embed), opts...), store, embed
}

// TestSearchMissingIndex verifies a missing index is an empty result, not an error
func TestSearchMissingIndex(t *testing.T) {
	embed := &mockEmbedder{}
	s := New(newTestStore(t), embedder.NewPipeline(embed))

	resp, err := s.Search(context.Background(), SearchRequest{Query: "anything", Index: "nope", TopK: 5})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if resp.Results == nil || len(resp.Results) != 0 {
		t.Errorf("expected empty non-nil results, got %v", resp.Results)
	}
	if embed.calls.Load() != 0 {
		t.Error("query should not be embedded when the index is missing")
	}
}

// TestSearchDimensionMismatch verifies an index built with another embedder is reported
func TestSearchDimensionMismatch(t *testing.T) {
	store := newTestStore(t)
	chunks := []types.EmbeddedChunk{
		{ID: "wide", Vector: []float32{1, 0, 0, 0}, Metadata: types.ChunkMetadata{Path: "a.ts", Kind: types.KindFunction, Name: "wide"}},
	}
	if _, err := store.Persist(context.Background(), chunks[0].Metadata.Name, chunks); err != nil {
		t.Fatalf("failed to persist: %v", err)
	}

	embed := &mockEmbedder{vectors: map[string][]float32{"find x": {1, 0, 0}}}
	s := New(store, embedder.NewPipeline(embed))

	_, err := s.Search(context.Background(), SearchRequest{Query: "find x", Index: "wide", TopK: 5})
	if !errors.Is(err, storage.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

// TestSearchNoMatches verifies an index with nothing above the threshold yields an empty, non-nil slice
func TestSearchNoMatches(t *testing.T) {
	s, _, embed := setupTestSearcher(t)
	embed.vectors["unrelated"] = []float32{0, 0, 1}

	resp, err := s.Search(context.Background(), SearchRequest{Query: "unrelated", Index: "main", TopK: 5})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if resp.Results == nil || len(resp.Results) != 0 {
		t.Errorf("expected empty non-nil results, got %#v", resp.Results)
	}
}

// TestSearchRanking verifies threshold, ordering and tie breaks
func TestSearchRanking(t *testing.T) {
	s, _, _ := setupTestSearcher(t)

	resp, err := s.Search(context.Background(), SearchRequest{Query: "find x", Index: "main", TopK: 10})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}

	want := []string{"exact", "near-a", "near-b", "mid"}
	if len(resp.Results) != len(want) {
		t.Fatalf("expected %d results, got %d: %+v", len(want), len(resp.Results), resp.Results)
	}
	for i, id := range want {
		if resp.Results[i].ID != id {
			t.Errorf("result %d: expected %s, got %s", i, id, resp.Results[i].ID)
		}
	}

	for i, r := range resp.Results {
		if r.Score <= DefaultThreshold || r.Score > 1 {
			t.Errorf("score %f out of range", r.Score)
		}
		if i > 0 && r.Score > resp.Results[i-1].Score {
			t.Errorf("scores not non-increasing at %d", i)
		}
	}
	if resp.Results[1].Metadata.Path != "b.ts" {
		t.Errorf("metadata not carried through: %+v", resp.Results[1].Metadata)
	}
	if resp.Scanned != 7 {
		t.Errorf("expected 7 chunks scanned, got %d", resp.Scanned)
	}
}

// TestSearchTopK verifies the result count bound
func TestSearchTopK(t *testing.T) {
	s, _, _ := setupTestSearcher(t)
	ctx := context.Background()

	tests := []struct {
		topK int
		want int
	}{
		{1, 1},
		{2, 2},
		{50, 4},
		{0, 4},  // default of 5
		{-3, 4}, // default of 5
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("topK=%d", tt.topK), func(t *testing.T) {
			resp, err := s.Search(ctx, SearchRequest{Query: "find x", Index: "main", TopK: tt.topK})
			if err != nil {
				t.Fatalf("search failed: %v", err)
			}
			if len(resp.Results) != tt.want {
				t.Errorf("expected %d results, got %d", tt.want, len(resp.Results))
			}
		})
	}
}

// TestSearchThresholdOption verifies a custom cutoff
func TestSearchThresholdOption(t *testing.T) {
	s, _, _ := setupTestSearcher(t, WithThreshold(0.9))

	resp, err := s.Search(context.Background(), SearchRequest{Query: "find x", Index: "main"})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(resp.Results) != 3 {
		t.Fatalf("expected 3 results above 0.9, got %d", len(resp.Results))
	}
}

// TestValidateRequest tests request validation
func TestValidateRequest(t *testing.T) {
	s := New(nil, nil)

	tests := []struct {
		name     string
		req      SearchRequest
		wantErr  error
		wantTopK int
	}{
		{name: "EmptyQuery", req: SearchRequest{Query: "", Index: "main"}, wantErr: ErrEmptyQuery},
		{name: "BlankQuery", req: SearchRequest{Query: "  \t", Index: "main"}, wantErr: ErrEmptyQuery},
		{name: "BadIndex", req: SearchRequest{Query: "q", Index: "../x"}, wantErr: storage.ErrInvalidIndexName},
		{name: "ZeroTopK", req: SearchRequest{Query: "q", Index: "main"}, wantTopK: DefaultTopK},
		{name: "ExcessiveTopK", req: SearchRequest{Query: "q", Index: "main", TopK: 500}, wantTopK: MaxTopK},
		{name: "Valid", req: SearchRequest{Query: "q", Index: "main", TopK: 7}, wantTopK: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.validateRequest(&tt.req)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.req.TopK != tt.wantTopK {
				t.Errorf("expected topK %d, got %d", tt.wantTopK, tt.req.TopK)
			}
		})
	}
}

// TestSearchCache verifies cached responses skip the scan and are copies
func TestSearchCache(t *testing.T) {
	s, store, embed := setupTestSearcher(t)
	ctx := context.Background()
	req := SearchRequest{Query: "find x", Index: "main", TopK: 3, UseCache: true}

	first, err := s.Search(ctx, req)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if first.CacheHit {
		t.Error("first search should miss the cache")
	}
	first.Results[0].ID = "mutated"

	second, err := s.Search(ctx, req)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if !second.CacheHit {
		t.Error("second search should hit the cache")
	}
	if second.Results[0].ID != "exact" {
		t.Errorf("cached response was mutated through the caller's copy: %s", second.Results[0].ID)
	}
	if store.scans.Load() != 1 || embed.calls.Load() != 1 {
		t.Errorf("expected one scan and one embedding, got %d and %d", store.scans.Load(), embed.calls.Load())
	}

	// a different topK is a different key
	if _, err := s.Search(ctx, SearchRequest{Query: "find x", Index: "main", TopK: 2, UseCache: true}); err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if s.CacheLen() != 2 {
		t.Errorf("expected 2 cache entries, got %d", s.CacheLen())
	}

	s.InvalidateCache()
	if s.CacheLen() != 0 {
		t.Error("cache should be empty after invalidation")
	}
}

// TestSearchCacheFollowsIndexUpdates verifies a re-persist invalidates cached answers
func TestSearchCacheFollowsIndexUpdates(t *testing.T) {
	s, store, _ := setupTestSearcher(t)
	ctx := context.Background()
	req := SearchRequest{Query: "find x", Index: "main", TopK: 10, UseCache: true}

	if _, err := s.Search(ctx, req); err != nil {
		t.Fatalf("search failed: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	extra := []types.EmbeddedChunk{{ID: "late", Vector: []float32{0.9, 0.1, 0}, Metadata: types.ChunkMetadata{Path: "e.ts", Kind: types.KindFunction, Name: "late"}}}
	if _, err := store.Persist(ctx, "main", extra); err != nil {
		t.Fatalf("persist failed: %v", err)
	}

	resp, err := s.Search(ctx, req)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if resp.CacheHit {
		t.Error("updated index should not be answered from the cache")
	}
	if len(resp.Results) != 5 {
		t.Errorf("expected 5 results after update, got %d", len(resp.Results))
	}
}

// TestSearchCacheExpiry verifies entries expire after the TTL
func TestSearchCacheExpiry(t *testing.T) {
	s, store, _ := setupTestSearcher(t, WithCacheTTL(time.Millisecond))
	ctx := context.Background()
	req := SearchRequest{Query: "find x", Index: "main", UseCache: true}

	if _, err := s.Search(ctx, req); err != nil {
		t.Fatalf("search failed: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	resp, err := s.Search(ctx, req)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if resp.CacheHit {
		t.Error("expired entry should not be served")
	}
	if store.scans.Load() != 2 {
		t.Errorf("expected 2 scans, got %d", store.scans.Load())
	}
}

// TestSearchNativeDelegation verifies stores that rank in place are used directly
func TestSearchNativeDelegation(t *testing.T) {
	store := &nativeStore{VectorStore: newTestStore(t)}
	seed(t, store, "main")
	s := New(store, embedder.NewPipeline(&mockEmbedder{vectors: map[string][]float32{"find x": {1, 0, 0}}}))

	resp, err := s.Search(context.Background(), SearchRequest{Query: "find x", Index: "main", TopK: 2})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if !resp.Native || store.calls.Load() != 1 {
		t.Error("expected the native search path")
	}
	if len(resp.Results) != 2 || resp.Results[0].ID != "exact" {
		t.Errorf("unexpected results: %+v", resp.Results)
	}
}

// TestSearchEmbeddingFailure verifies provider errors surface
func TestSearchEmbeddingFailure(t *testing.T) {
	store := newTestStore(t)
	seed(t, store, "main")
	embed := &mockEmbedder{err: embedder.ErrProviderFailed}
	s := New(store, embedder.NewPipeline(embed))

	_, err := s.Search(context.Background(), SearchRequest{Query: "find x", Index: "main"})
	if !errors.Is(err, embedder.ErrProviderFailed) {
		t.Errorf("expected provider failure, got %v", err)
	}
}

// TestSearchWithLocalProvider runs the real local embedder end to end
func TestSearchWithLocalProvider(t *testing.T) {
	ctx := context.Background()
	local, err := embedder.NewLocalProvider(256, nil)
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	pipeline := embedder.NewPipeline(local)
	store := newTestStore(t)

	chunks := []types.CodeChunk{
		{Kind: types.KindFunction, Name: "parseConfigFile", SourcePath: "config.ts", Code: "function parseConfigFile(path) { return readYaml(path) }"},
		{Kind: types.KindClass, Name: "HttpServer", SourcePath: "server.ts", Code: "class HttpServer { listen(port) { this.socket.bind(port) } }"},
	}
	embedded, err := pipeline.Embed(ctx, chunks)
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	if _, err := store.Persist(ctx, "local", embedded); err != nil {
		t.Fatalf("persist failed: %v", err)
	}

	s := New(store, pipeline, WithThreshold(0))
	resp, err := s.Search(ctx, SearchRequest{Query: "function parseConfigFile(path) { return readYaml(path) }", Index: "local", TopK: 1})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Metadata.Name != "parseConfigFile" {
		t.Fatalf("expected parseConfigFile first, got %+v", resp.Results)
	}
	if resp.Results[0].Score < 0.99 {
		t.Errorf("identical text should score ~1, got %f", resp.Results[0].Score)
	}
}
