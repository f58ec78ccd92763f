// Package config loads the YAML configuration of a project, fills defaults
// and overlays environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dshills/code-connoisseur/internal/embedder"
	"github.com/dshills/code-connoisseur/internal/storage"
)

// DefaultPath is the config file location relative to the project root
const DefaultPath = ".code-connoisseur/config.yaml"

// Environment variables read by ApplyEnv
const (
	EnvProvider       = "CONNOISSEUR_EMBEDDING_PROVIDER"
	EnvOpenAIKey      = "OPENAI_API_KEY"
	EnvJinaKey        = "JINA_API_KEY"
	EnvModel          = "CONNOISSEUR_EMBEDDING_MODEL"
	EnvBaseURL        = "CONNOISSEUR_EMBEDDING_BASE_URL"
	EnvStorageRoot    = "CONNOISSEUR_STORAGE_ROOT"
	EnvStorageBackend = "CONNOISSEUR_STORAGE_BACKEND"
	EnvDebug          = "CONNOISSEUR_DEBUG"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Index     string          `yaml:"index"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Storage   StorageConfig   `yaml:"storage"`
	Search    SearchConfig    `yaml:"search"`
}

// ExtractorConfig holds file discovery and chunking settings.
type ExtractorConfig struct {
	MaxFileBytes  int      `yaml:"max_file_bytes"`
	MaxChunkChars int      `yaml:"max_chunk_chars"`
	Workers       int      `yaml:"workers"`
	Extensions    []string `yaml:"extensions"`
	Ignore        []string `yaml:"ignore"`
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"` // local, openai, jina; empty picks openai when a key is set
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
	BatchSize int    `yaml:"batch_size"`
	CacheSize int    `yaml:"cache_size"`
}

// StorageConfig holds the vector store settings.
type StorageConfig struct {
	Backend    string `yaml:"backend"` // file or sqlite
	Root       string `yaml:"root"`
	SQLitePath string `yaml:"sqlite_path"`
	BatchSize  int    `yaml:"batch_size"`
}

// SearchConfig holds similarity search settings.
type SearchConfig struct {
	Threshold   *float64      `yaml:"threshold"`
	DefaultTopK int           `yaml:"default_top_k"`
	MaxTopK     int           `yaml:"max_top_k"`
	CacheSize   int           `yaml:"cache_size"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

// ThresholdOrDefault returns the similarity cutoff; 0.5 when unset.
func (s *SearchConfig) ThresholdOrDefault() float64 {
	if s.Threshold != nil {
		return *s.Threshold
	}
	return DefaultThreshold
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// Load reads and parses the config file at path and applies defaults.
// A missing file is not an error: the defaults are returned.
// Relative storage paths are resolved against projectRoot.
func Load(path, projectRoot string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	ApplyDefaults(&cfg)

	cfg.Storage.Root = expandPath(cfg.Storage.Root, projectRoot)
	cfg.Storage.SQLitePath = expandPath(cfg.Storage.SQLitePath, projectRoot)

	return &cfg, nil
}

// LoadProject loads <projectRoot>/.code-connoisseur/config.yaml, or path
// when it is not empty, then overlays the process environment.
func LoadProject(projectRoot, path string) (*Config, error) {
	if path == "" {
		path = filepath.Join(projectRoot, DefaultPath)
	}
	cfg, err := Load(path, projectRoot)
	if err != nil {
		return nil, err
	}
	ApplyEnv(cfg, os.LookupEnv)
	cfg.Storage.Root = expandPath(cfg.Storage.Root, projectRoot)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to path. The API key is never written.
func Save(path string, cfg *Config) error {
	out := *cfg
	out.Embedding.APIKey = ""

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ApplyEnv overlays environment variables through lookup.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvProvider); ok {
		cfg.Embedding.Provider = strings.ToLower(v)
	}
	if cfg.Embedding.APIKey == "" {
		switch cfg.Embedding.Provider {
		case embedder.ProviderJina:
			cfg.Embedding.APIKey, _ = get(EnvJinaKey)
		case embedder.ProviderOpenAI, "":
			if v, ok := get(EnvOpenAIKey); ok {
				cfg.Embedding.APIKey = v
			} else if v, ok := get(EnvJinaKey); ok && cfg.Embedding.Provider == "" {
				cfg.Embedding.Provider = embedder.ProviderJina
				cfg.Embedding.APIKey = v
			}
		}
	}
	if v, ok := get(EnvModel); ok {
		cfg.Embedding.Model = v
	}
	if v, ok := get(EnvBaseURL); ok {
		cfg.Embedding.BaseURL = v
	}
	if v, ok := get(EnvStorageRoot); ok {
		cfg.Storage.Root = v
	}
	if v, ok := get(EnvStorageBackend); ok {
		cfg.Storage.Backend = strings.ToLower(v)
	}
	if v, ok := get(EnvDebug); ok {
		if debug, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = debug
		}
	}
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case storage.BackendFile, storage.BackendSQLite:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	switch c.Embedding.Provider {
	case "", embedder.ProviderLocal, embedder.ProviderOpenAI, embedder.ProviderJina:
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	if t := c.Search.ThresholdOrDefault(); t < -1 || t >= 1 {
		return fmt.Errorf("search threshold %v outside [-1, 1)", t)
	}
	if err := storage.ValidateIndexName(c.Index); err != nil {
		return err
	}
	return nil
}

// EmbeddingProvider builds the explicit provider selection for embedder.New.
// A remote provider is only chosen when a credential is present; without one
// the deterministic local provider keeps indexing and search working offline.
func (c *Config) EmbeddingProvider() embedder.ProviderConfig {
	e := c.Embedding
	pc := embedder.ProviderConfig{
		Provider:  e.Provider,
		APIKey:    e.APIKey,
		BaseURL:   e.BaseURL,
		Model:     e.Model,
		Dimension: e.Dimension,
		CacheSize: e.CacheSize,
	}

	switch {
	case e.Provider == embedder.ProviderLocal, e.APIKey == "":
		pc.Kind = embedder.KindLocal
		pc.Provider = embedder.ProviderLocal
		pc.APIKey = ""
	default:
		pc.Kind = embedder.KindRemote
		if pc.Provider == "" {
			pc.Provider = embedder.ProviderOpenAI
		}
	}
	return pc
}

// StoreConfig converts the storage section for storage.Open.
func (c *Config) StoreConfig(projectRoot string) storage.Config {
	return storage.Config{
		Backend:     c.Storage.Backend,
		ProjectRoot: projectRoot,
		Root:        c.Storage.Root,
		SQLitePath:  c.Storage.SQLitePath,
		BatchSize:   c.Storage.BatchSize,
	}
}

// expandPath converts a path to absolute. Paths starting with "~/" are
// relative to the home directory; other relative paths are relative to base.
func expandPath(path, base string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return filepath.Join(base, path)
}
