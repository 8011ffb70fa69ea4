// Package config loads the YAML configuration for the shiori server and CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the vector index file and the document catalog.
type StorageConfig struct {
	IndexPath   string `yaml:"index_path"`
	CatalogPath string `yaml:"catalog_path"`
}

// EmbeddingConfig selects the embedding backend and how it is called.
type EmbeddingConfig struct {
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	APIKeyEnv         string        `yaml:"api_key_env"`
	Dimensions        int           `yaml:"dimensions"`
	MaxTokens         int           `yaml:"max_tokens"`
	ModelPath         string        `yaml:"model_path"`
	CacheSize         int           `yaml:"cache_size"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        *int          `yaml:"max_retries"`
	InitialBackoff    time.Duration `yaml:"initial_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	BatchSize         int           `yaml:"batch_size"`
}

// RetrievalConfig holds chunking and query settings.
type RetrievalConfig struct {
	ChunkSize      int     `yaml:"chunk_size"`
	ChunkOverlap   *int    `yaml:"chunk_overlap"`
	DefaultTopK    int     `yaml:"default_top_k"`
	MaxTopK        int     `yaml:"max_top_k"`
	KeywordEnabled *bool   `yaml:"keyword_enabled"`
	KeywordWeight  float64 `yaml:"keyword_weight"`
	SemanticWeight float64 `yaml:"semantic_weight"`
	// SourceBoost above 1 also matches keyword terms against the source
	// name, weighted by this factor.
	SourceBoost float64 `yaml:"source_boost"`
	Fuzzy       bool    `yaml:"fuzzy"`
	Fuzziness   int     `yaml:"fuzziness"` // max edits per term when fuzzy
}

// KeywordEnabledOrDefault reports whether hybrid retrieval is on; true when unset.
func (r *RetrievalConfig) KeywordEnabledOrDefault() bool {
	if r.KeywordEnabled != nil {
		return *r.KeywordEnabled
	}
	return true
}

// Overlap returns the chunk overlap; 0 when unset (ApplyDefaults sets it).
func (r *RetrievalConfig) Overlap() int {
	if r.ChunkOverlap != nil {
		return *r.ChunkOverlap
	}
	return 0
}

// WatchConfig holds drop-folder watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads and parses the config file at path, applies defaults, and
// expands paths.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Storage.IndexPath = expandPath(cfg.Storage.IndexPath, configDir)
	cfg.Storage.CatalogPath = expandPath(cfg.Storage.CatalogPath, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Validate rejects settings that cannot work.
func Validate(cfg *Config) error {
	r := cfg.Retrieval
	if r.ChunkSize <= 0 || r.Overlap() < 0 || r.Overlap() >= r.ChunkSize {
		return fmt.Errorf("invalid retrieval config: chunk_size %d, chunk_overlap %d", r.ChunkSize, r.Overlap())
	}
	if r.KeywordWeight < 0 || r.SemanticWeight < 0 {
		return fmt.Errorf("invalid retrieval config: weights must be non-negative")
	}
	if r.SourceBoost < 0 {
		return fmt.Errorf("invalid retrieval config: source_boost %g", r.SourceBoost)
	}
	if r.Fuzziness < 0 || r.Fuzziness > 2 {
		return fmt.Errorf("invalid retrieval config: fuzziness must be 0..2, got %d", r.Fuzziness)
	}
	if cfg.Embedding.Dimensions <= 0 {
		return fmt.Errorf("invalid embedding config: dimensions %d", cfg.Embedding.Dimensions)
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
