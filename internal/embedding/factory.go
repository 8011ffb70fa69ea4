package embedding

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Provider names accepted by New.
const (
	ProviderHash   = "hash"
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderONNX   = "onnx"
)

// Config selects and configures an embedding backend.
type Config struct {
	Provider   string
	Model      string
	BaseURL    string
	APIKeyEnv  string // environment variable holding the API key
	Dimensions int
	MaxTokens  int
	ModelPath  string
	CacheSize  int // 0 disables caching
	Timeout    time.Duration
}

// New builds the configured backend, wrapped in a CachedEmbedder when
// CacheSize is positive.
func New(cfg Config) (Embedder, error) {
	var (
		e   Embedder
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderHash:
		e = NewHashEmbedder(cfg.Dimensions)
	case ProviderOllama:
		e = NewOllamaEmbedder(OllamaConfig{
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
		})
	case ProviderOpenAI:
		keyEnv := cfg.APIKeyEnv
		if keyEnv == "" {
			keyEnv = "OPENAI_API_KEY"
		}
		e, err = NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     os.Getenv(keyEnv),
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
	case ProviderONNX:
		if cfg.ModelPath == "" {
			return nil, fmt.Errorf("onnx provider requires model_path")
		}
		e, err = NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	if cfg.CacheSize > 0 {
		return NewCachedEmbedder(e, cfg.CacheSize), nil
	}
	return e, nil
}
