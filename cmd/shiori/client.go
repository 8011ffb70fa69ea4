package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/shiori/internal/catalog"
	"github.com/hyperjump/shiori/internal/models"
	"github.com/hyperjump/shiori/internal/rag"
	"github.com/hyperjump/shiori/internal/vector"
)

// statusConfigResponse holds configuration info returned by status.
type statusConfigResponse struct {
	EmbeddingProvider string `json:"embedding_provider"`
	EmbeddingModel    string `json:"embedding_model,omitempty"`
	ChunkSize         int    `json:"chunk_size"`
	ChunkOverlap      int    `json:"chunk_overlap"`
	DefaultTopK       int    `json:"default_top_k"`
	IndexPath         string `json:"index_path"`
	CatalogPath       string `json:"catalog_path"`
}

// statusResponse is the shape of GET /api/v1/status response.
type statusResponse struct {
	Index          rag.Stats `json:"index"`
	Documents      int64     `json:"documents"`
	Chunks         int64     `json:"chunks"`
	DiskUsageBytes *int64    `json:"disk_usage_bytes,omitempty"`
	// Reachable is nil in direct mode, which does not contact the backend.
	Reachable      *bool                 `json:"embedding_reachable,omitempty"`
	EmbeddingError string                `json:"embedding_error,omitempty"`
	Config         *statusConfigResponse `json:"config,omitempty"`
}

func queryViaHTTP(serverURL string, query *models.QueryRequest) (*models.QueryResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(strings.TrimRight(serverURL, "/")+"/api/v1/query", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var response models.QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(strings.TrimRight(serverURL, "/") + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

// statusDirect reads the saved index file and the catalog without building
// an embedder. A missing index file reports an empty index.
func statusDirect(configPath string) (*statusResponse, error) {
	cfg, logger, _ := setup(configPath, false)
	defer logger.Sync()

	st := cfg.Storage
	stats := rag.Stats{Dimension: cfg.Embedding.Dimensions, Metric: vector.MetricCosine.String()}
	idx, err := vector.LoadFile(st.IndexPath)
	switch {
	case err == nil:
		defer idx.Close()
		stats = rag.Stats{Entries: idx.Size(), Dimension: idx.Dimension(), Metric: idx.Metric().String()}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read index %s: %w", st.IndexPath, err)
	}
	if cfg.Retrieval.KeywordEnabledOrDefault() {
		// The keyword index is rebuilt from every entry on load.
		stats.Keyword = true
		stats.KeywordDocs = uint64(stats.Entries)
	}

	ctx := context.Background()
	cat, err := catalog.Open(st.CatalogPath)
	if err != nil {
		return nil, err
	}
	defer cat.Close()
	docs, chunks, err := cat.Count(ctx)
	if err != nil {
		return nil, err
	}

	s := &statusResponse{
		Index:     stats,
		Documents: docs,
		Chunks:    chunks,
		Config: &statusConfigResponse{
			EmbeddingProvider: cfg.Embedding.Provider,
			EmbeddingModel:    cfg.Embedding.Model,
			ChunkSize:         cfg.Retrieval.ChunkSize,
			ChunkOverlap:      cfg.Retrieval.Overlap(),
			DefaultTopK:       cfg.Retrieval.DefaultTopK,
			IndexPath:         st.IndexPath,
			CatalogPath:       st.CatalogPath,
		},
	}
	if stats.Entries > 0 && stats.Dimension != cfg.Embedding.Dimensions {
		logger.Warn("saved index dimension differs from configured embedder",
			zap.Int("index", stats.Dimension), zap.Int("configured", cfg.Embedding.Dimensions))
	}
	if n, err := catalog.DiskUsage(st.IndexPath, st.CatalogPath, st.CatalogPath+"-wal"); err == nil {
		s.DiskUsageBytes = &n
	}
	return s, nil
}

func writeStatus(w io.Writer, s *statusResponse, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	fmt.Fprintf(w, "Documents: %d\n", s.Documents)
	fmt.Fprintf(w, "Chunks:    %d\n", s.Chunks)
	fmt.Fprintf(w, "Entries:   %d (dimension %d, %s)\n", s.Index.Entries, s.Index.Dimension, s.Index.Metric)
	if s.Index.Keyword {
		fmt.Fprintf(w, "Keyword:   %d docs\n", s.Index.KeywordDocs)
	} else {
		fmt.Fprintf(w, "Keyword:   disabled\n")
	}
	if s.DiskUsageBytes != nil {
		fmt.Fprintf(w, "Disk:      %s\n", formatBytes(*s.DiskUsageBytes))
	}
	if s.Reachable != nil {
		if *s.Reachable {
			fmt.Fprintf(w, "Backend:   reachable\n")
		} else {
			fmt.Fprintf(w, "Backend:   unreachable (%s)\n", s.EmbeddingError)
		}
	}
	if c := s.Config; c != nil {
		fmt.Fprintf(w, "\nEmbedding: %s %s\n", c.EmbeddingProvider, c.EmbeddingModel)
		fmt.Fprintf(w, "Chunking:  size %d, overlap %d\n", c.ChunkSize, c.ChunkOverlap)
		fmt.Fprintf(w, "Index:     %s\n", c.IndexPath)
		fmt.Fprintf(w, "Catalog:   %s\n", c.CatalogPath)
	}
	return nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
