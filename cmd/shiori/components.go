package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/hyperjump/shiori/internal/catalog"
	"github.com/hyperjump/shiori/internal/config"
	"github.com/hyperjump/shiori/internal/embedding"
	"github.com/hyperjump/shiori/internal/ingest"
	"github.com/hyperjump/shiori/internal/rag"
	"github.com/hyperjump/shiori/internal/vector"
)

// Components holds initialized services.
type Components struct {
	Embedder embedding.Embedder
	Index    *vector.MemoryIndex
	Pipeline *rag.Pipeline
	Catalog  *catalog.Catalog
	Ingester *ingest.Ingester
}

// Close releases everything in reverse order of construction.
func (c *Components) Close() {
	if c.Pipeline != nil {
		_ = c.Pipeline.Close()
	}
	if c.Catalog != nil {
		_ = c.Catalog.Close()
	}
	if c.Index != nil {
		_ = c.Index.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

func embeddingConfig(cfg *config.Config) embedding.Config {
	e := cfg.Embedding
	return embedding.Config{
		Provider:   e.Provider,
		Model:      e.Model,
		BaseURL:    e.BaseURL,
		APIKeyEnv:  e.APIKeyEnv,
		Dimensions: e.Dimensions,
		MaxTokens:  e.MaxTokens,
		ModelPath:  e.ModelPath,
		CacheSize:  e.CacheSize,
		Timeout:    e.Timeout,
	}
}

func retryPolicy(cfg *config.Config) *rag.RetryPolicy {
	e := cfg.Embedding
	p := &rag.RetryPolicy{
		Timeout:        e.Timeout,
		InitialBackoff: e.InitialBackoff,
		MaxBackoff:     e.MaxBackoff,
	}
	if e.MaxRetries != nil {
		p.MaxRetries = *e.MaxRetries
	}
	return p.WithRateLimit(e.RequestsPerSecond)
}

func pipelineConfig(cfg *config.Config) rag.Config {
	r := cfg.Retrieval
	return rag.Config{
		ChunkSize:      r.ChunkSize,
		ChunkOverlap:   r.Overlap(),
		BatchSize:      cfg.Embedding.BatchSize,
		KeywordEnabled: r.KeywordEnabledOrDefault(),
		KeywordWeight:  r.KeywordWeight,
		SemanticWeight: r.SemanticWeight,
		SourceBoost:    r.SourceBoost,
		Fuzzy:          r.Fuzzy,
		Fuzziness:      r.Fuzziness,
	}
}

// initializeComponents builds the embedder, loads the saved index when one
// exists, and wires the pipeline, catalog and ingester around them.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	embedder, err := embedding.New(embeddingConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c.Embedder = embedder

	c.Index, err = vector.NewMemoryIndex(embedder.Dimensions())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}

	c.Pipeline, err = rag.New(embedder, c.Index, pipelineConfig(cfg),
		rag.WithLogger(logger),
		rag.WithRetryPolicy(retryPolicy(cfg)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	if err := c.Pipeline.Load(ctx, cfg.Storage.IndexPath); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load index %s: %w", cfg.Storage.IndexPath, err)
		}
		logger.Info("no saved index, starting empty", zap.String("path", cfg.Storage.IndexPath))
	}

	c.Catalog, err = catalog.Open(cfg.Storage.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize catalog: %w", err)
	}

	c.Ingester = ingest.New(c.Pipeline,
		ingest.WithCatalog(c.Catalog),
		ingest.WithExtensions(cfg.Watch.Extensions),
		ingest.WithLogger(logger),
	)

	logger.Info("components initialized",
		zap.String("provider", cfg.Embedding.Provider),
		zap.Int("dimensions", embedder.Dimensions()),
		zap.Int("entries", c.Index.Size()),
	)
	ok = true
	return c, nil
}
