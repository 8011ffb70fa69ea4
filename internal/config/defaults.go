package config

import (
	"strings"
	"time"
)

// DefaultExtensions are the file types the ingester can extract.
var DefaultExtensions = []string{".txt", ".md", ".rst", ".pdf", ".docx", ".xlsx", ".pptx", ".odp", ".ods", ".odt", ".rtf"}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.IndexPath == "" {
		cfg.Storage.IndexPath = "/usr/local/var/shiori/data/index.bin"
	}
	if cfg.Storage.CatalogPath == "" {
		cfg.Storage.CatalogPath = "/usr/local/var/shiori/data/catalog.db"
	}

	e := &cfg.Embedding
	if e.Provider == "" {
		e.Provider = "hash"
	}
	if e.Dimensions == 0 {
		e.Dimensions = defaultDimensions(e.Provider, e.Model)
	}
	if e.MaxTokens == 0 {
		e.MaxTokens = 256
	}
	if e.Timeout == 0 {
		e.Timeout = 30 * time.Second
	}
	if e.MaxRetries == nil {
		n := 3
		e.MaxRetries = &n
	}
	if e.InitialBackoff == 0 {
		e.InitialBackoff = 200 * time.Millisecond
	}
	if e.MaxBackoff == 0 {
		e.MaxBackoff = 5 * time.Second
	}
	if e.BatchSize == 0 {
		e.BatchSize = 64
	}

	r := &cfg.Retrieval
	if r.ChunkSize == 0 {
		r.ChunkSize = 500
	}
	if r.ChunkOverlap == nil {
		n := 50
		if n >= r.ChunkSize {
			n = r.ChunkSize / 10
		}
		r.ChunkOverlap = &n
	}
	if r.DefaultTopK == 0 {
		r.DefaultTopK = 3
	}
	if r.MaxTopK == 0 {
		r.MaxTopK = 100
	}
	if r.KeywordWeight == 0 && r.SemanticWeight == 0 {
		r.KeywordWeight = 0.3
		r.SemanticWeight = 0.7
	}
	if r.Fuzzy && r.Fuzziness == 0 {
		r.Fuzziness = 1
	}

	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = append([]string(nil), DefaultExtensions...)
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}

// defaultDimensions returns the output size of each provider's default model.
func defaultDimensions(provider, model string) int {
	switch strings.ToLower(provider) {
	case "ollama":
		return 768
	case "openai":
		if model == "text-embedding-3-large" {
			return 3072
		}
		return 1536
	default:
		return 384
	}
}
