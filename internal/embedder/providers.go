package embedder

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"unicode"

	openai "github.com/sashabaranov/go-openai"
)

// Provider configuration
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"

	// Default models
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultLocalModel  = "local-feature-hash"

	// Default endpoints
	DefaultJinaBaseURL = "https://api.jina.ai/v1"

	// Dimensions
	JinaDimension   = 1024
	OpenAIDimension = 1536
	LocalDimension  = 1536

	// Batch limits
	DefaultBatchSize = 100
	MaxBatchSize     = 100

	DefaultCacheSize = 10000

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

// modelDimensions lists the output size of models known to the remote provider
var modelDimensions = map[string]int{
	"text-embedding-3-small":       1536,
	"text-embedding-3-large":       3072,
	"text-embedding-ada-002":       1536,
	"jina-embeddings-v3":           1024,
	"jina-embeddings-v2-base-code": 768,
	"jina-embeddings-v2-base-en":   768,
}

// RemoteProvider calls an OpenAI-compatible embeddings endpoint.
// Jina is served through the same client with a different base URL.
type RemoteProvider struct {
	name      string
	model     string
	dimension int
	client    *openai.Client
	cache     *Cache
	retry     RetryConfig
}

// NewRemoteProvider creates a provider for name (openai or jina).
// An empty model or baseURL selects the provider's default; a zero dimension
// is looked up from the model.
func NewRemoteProvider(name, apiKey, baseURL, model string, dimension int, cache *Cache) (*RemoteProvider, error) {
	if err := ValidateCredential(apiKey); err != nil {
		return nil, fmt.Errorf("%s provider: %w", name, err)
	}

	switch name {
	case ProviderOpenAI:
		if model == "" {
			model = DefaultOpenAIModel
		}
	case ProviderJina:
		if model == "" {
			model = DefaultJinaModel
		}
		if baseURL == "" {
			baseURL = DefaultJinaBaseURL
		}
	default:
		return nil, fmt.Errorf("%w: unknown remote provider %s", ErrUnsupportedModel, name)
	}

	if dimension <= 0 {
		d, ok := modelDimensions[model]
		if !ok {
			return nil, fmt.Errorf("%w: dimension of %s is unknown, set it explicitly", ErrUnsupportedModel, model)
		}
		dimension = d
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}

	return &RemoteProvider{
		name:      name,
		model:     model,
		dimension: dimension,
		client:    openai.NewClientWithConfig(cfg),
		cache:     cache,
		retry:     DefaultRetryConfig(),
	}, nil
}

func (r *RemoteProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	resp, err := r.GenerateBatch(ctx, BatchEmbeddingRequest{
		Texts: []string{req.Text},
		Model: req.Model,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}
	return resp.Embeddings[0], nil
}

func (r *RemoteProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}
	if len(req.Texts) > MaxBatchSize {
		return nil, fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, MaxBatchSize)
	}

	model := req.Model
	if model == "" {
		model = r.model
	}

	embeddings := make([]*Embedding, len(req.Texts))
	var missing []int
	for i, text := range req.Texts {
		if r.cache != nil {
			if emb, ok := r.cache.Get(cacheKey(model, text)); ok {
				embeddings[i] = emb
				continue
			}
		}
		missing = append(missing, i)
	}

	if len(missing) > 0 {
		texts := make([]string, len(missing))
		for j, i := range missing {
			texts[j] = req.Texts[i]
		}

		fetched, err := retryWithBackoff(ctx, r.retry, func() ([]*Embedding, error) {
			return r.callAPI(ctx, texts, model)
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrProviderFailed, r.name, err)
		}

		for j, i := range missing {
			emb := fetched[j]
			emb.Hash = ComputeHash(req.Texts[i])
			embeddings[i] = emb
			if r.cache != nil {
				r.cache.Set(cacheKey(model, req.Texts[i]), emb)
			}
		}
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   r.name,
		Model:      model,
	}, nil
}

// callAPI issues one embeddings request and returns vectors in input order
func (r *RemoteProvider) callAPI(ctx context.Context, texts []string, model string) ([]*Embedding, error) {
	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(model),
	}
	if d, ok := modelDimensions[model]; !ok || d != r.dimension {
		req.Dimensions = r.dimension
	}

	resp, err := r.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	embeddings := make([]*Embedding, len(data))
	for i, d := range data {
		if d.Index != i {
			return nil, fmt.Errorf("response index %d does not match position %d", d.Index, i)
		}
		embeddings[i] = &Embedding{
			Vector:    d.Embedding,
			Dimension: len(d.Embedding),
			Provider:  r.name,
			Model:     model,
		}
	}
	return embeddings, nil
}

func (r *RemoteProvider) Dimension() int {
	return r.dimension
}

func (r *RemoteProvider) Provider() string {
	return r.name
}

func (r *RemoteProvider) Model() string {
	return r.model
}

func (r *RemoteProvider) Close() error {
	return nil
}

// LocalProvider is the offline stand-in. It hashes word tokens and
// character trigrams into a fixed number of buckets, so identical texts map
// to identical vectors and texts sharing vocabulary land close together.
type LocalProvider struct {
	dimension int
	cache     *Cache
}

// NewLocalProvider creates a local embedder; a non-positive dimension selects LocalDimension
func NewLocalProvider(dimension int, cache *Cache) (*LocalProvider, error) {
	if dimension <= 0 {
		dimension = LocalDimension
	}
	return &LocalProvider{
		dimension: dimension,
		cache:     cache,
	}, nil
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := cacheKey(DefaultLocalModel, req.Text)
	if l.cache != nil {
		if emb, ok := l.cache.Get(key); ok {
			return emb, nil
		}
	}

	emb := &Embedding{
		Vector:    l.vectorize(req.Text),
		Dimension: l.dimension,
		Provider:  ProviderLocal,
		Model:     DefaultLocalModel,
		Hash:      ComputeHash(req.Text),
	}

	if l.cache != nil {
		l.cache.Set(key, emb)
	}
	return emb, nil
}

func (l *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	embeddings := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := l.GenerateEmbedding(ctx, EmbeddingRequest{Text: text})
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		embeddings[i] = emb
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderLocal,
		Model:      DefaultLocalModel,
	}, nil
}

func (l *LocalProvider) vectorize(text string) []float32 {
	vec := make([]float32, l.dimension)

	for _, tok := range tokenize(text) {
		l.add(vec, "w:"+tok, 1)
		padded := "^" + tok + "$"
		runes := []rune(padded)
		for i := 0; i+3 <= len(runes); i++ {
			l.add(vec, "g:"+string(runes[i:i+3]), 0.5)
		}
	}

	// text without any word characters still gets a stable, non-zero vector
	if isZero(vec) {
		l.add(vec, "raw:"+text, 1)
	}
	return NormalizeVector(vec)
}

func (l *LocalProvider) add(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	vec[h.Sum64()%uint64(len(vec))] += weight
}

func (l *LocalProvider) Dimension() int {
	return l.dimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return DefaultLocalModel
}

func (l *LocalProvider) Close() error {
	return nil
}

// tokenize lowercases identifier-like runs and also emits camelCase and
// snake_case parts, so getUserName shares features with "user name"
func tokenize(text string) []string {
	var tokens []string
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	for _, w := range words {
		lower := strings.ToLower(w)
		tokens = append(tokens, lower)
		parts := splitIdentifier(w)
		if len(parts) > 1 {
			tokens = append(tokens, parts...)
		}
	}
	return tokens
}

func splitIdentifier(w string) []string {
	var parts []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			parts = append(parts, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	runes := []rune(w)
	for i, r := range runes {
		switch {
		case r == '_':
			flush()
			continue
		case unicode.IsUpper(r) && i > 0 && (unicode.IsLower(runes[i-1]) ||
			(i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))):
			flush()
		}
		cur = append(cur, r)
	}
	flush()
	return parts
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// NormalizeVector scales a vector to unit length; a zero vector is returned unchanged
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}

	if sum == 0 {
		return v
	}

	norm := math.Sqrt(sum)
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = float32(float64(val) / norm)
	}

	return result
}
