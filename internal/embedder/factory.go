package embedder

import (
	"fmt"
	"strings"
	"unicode"
)

// Kind selects between the two provider variants
type Kind string

const (
	KindRemote Kind = "remote"
	KindLocal  Kind = "local"
)

// MinCredentialLength is the shortest API key accepted by ValidateCredential
const MinCredentialLength = 20

// ProviderConfig is the explicit provider selection passed to New
type ProviderConfig struct {
	Kind      Kind
	Provider  string // openai or jina, remote only
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int
	CacheSize int
}

// New creates an embedder with explicit configuration
func New(cfg ProviderConfig) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	switch cfg.Kind {
	case KindLocal, "":
		return NewLocalProvider(cfg.Dimension, cache)
	case KindRemote:
		provider := strings.ToLower(cfg.Provider)
		if provider == "" {
			provider = ProviderOpenAI
		}
		return NewRemoteProvider(provider, cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Dimension, cache)
	default:
		return nil, fmt.Errorf("%w: unknown provider kind %s", ErrUnsupportedModel, cfg.Kind)
	}
}

// ValidateCredential rejects keys that are empty, contain whitespace or are too short
func ValidateCredential(key string) error {
	if key == "" {
		return fmt.Errorf("%w: missing API key", ErrNoProviderEnabled)
	}
	if strings.IndexFunc(key, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: API key contains whitespace", ErrInvalidCredential)
	}
	if len(key) < MinCredentialLength {
		return fmt.Errorf("%w: API key shorter than %d characters", ErrInvalidCredential, MinCredentialLength)
	}
	return nil
}
