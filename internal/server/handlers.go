package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/shiori/internal/catalog"
	"github.com/hyperjump/shiori/internal/embedding"
	"github.com/hyperjump/shiori/internal/models"
	"github.com/hyperjump/shiori/internal/rag"
	"github.com/hyperjump/shiori/internal/vector"
)

const (
	defaultListLimit = 50
	pingTimeout      = 3 * time.Second
)

func (s *Server) handleAddDocument(w http.ResponseWriter, r *http.Request) {
	var input models.DocumentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := input.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	size, overlap := s.pipeline.ChunkDefaults()
	if input.ChunkSize != 0 {
		size = input.ChunkSize
	}
	if input.ChunkOverlap != nil {
		overlap = *input.ChunkOverlap
	}
	s.logger.Debug("add document request", zap.String("id", input.ID), zap.String("source", input.Source))

	if s.catalog != nil && input.ID != "" {
		_, err := s.catalog.Get(r.Context(), input.ID)
		switch {
		case err == nil:
			s.respondError(w, http.StatusConflict, "document "+input.ID+" already exists")
			return
		case !errors.Is(err, catalog.ErrNotFound):
			s.logger.Error("catalog lookup failed", zap.String("id", input.ID), zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	res, err := s.pipeline.AddDocument(r.Context(), input.Document(), size, overlap)
	if err != nil {
		s.logger.Error("add document failed", zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	if s.catalog != nil {
		digest, _ := s.pipeline.EntriesDigest(res.EntryIDs)
		rec := &models.CatalogDocument{
			ID:            res.DocumentID,
			Source:        res.Source,
			EntriesDigest: digest,
			Pages:         len(input.Pages),
			Chunks:        res.Chunks,
			EntryIDs:      res.EntryIDs,
		}
		if err := s.catalog.Record(context.WithoutCancel(r.Context()), rec); err != nil {
			s.logger.Warn("catalog record failed", zap.String("id", res.DocumentID), zap.Error(err))
		}
	}
	s.respondJSON(w, http.StatusCreated, res)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		s.respondError(w, http.StatusNotImplemented, "catalog not enabled")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	docs, err := s.catalog.List(r.Context(), offset, limit)
	if err != nil {
		s.logger.Error("list documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"documents": docs})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(s.config.Retrieval.DefaultTopK, s.config.Retrieval.MaxTopK); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("query request", zap.String("query", req.Query), zap.Int("top_k", *req.TopK), zap.String("mode", string(req.Mode)))

	start := time.Now()
	var (
		results []*models.AttributedResult
		err     error
	)
	if req.Mode == models.QueryModeHybrid {
		results, err = s.pipeline.HybridQuery(r.Context(), req.Query, *req.TopK)
	} else {
		results, err = s.pipeline.Query(r.Context(), req.Query, *req.TopK)
	}
	if err != nil {
		s.logger.Error("query failed", zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	resp := &models.QueryResponse{
		Query:     req.Query,
		Mode:      req.Mode,
		Results:   results,
		QueryTime: time.Since(start).Milliseconds(),
	}
	if req.IncludeContext {
		resp.Context = rag.FormatContext(results)
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSaveIndex(w http.ResponseWriter, r *http.Request) {
	path := s.config.Storage.IndexPath
	if err := s.pipeline.Save(path); err != nil {
		s.logger.Error("save index failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"path":    path,
		"entries": s.pipeline.Stats().Entries,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"index": s.pipeline.Stats(),
	}
	if s.catalog != nil {
		docs, chunks, err := s.catalog.Count(r.Context())
		if err != nil {
			s.logger.Error("status: count documents failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp["documents"] = docs
		resp["chunks"] = chunks
	}

	pingCtx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()
	if err := s.pipeline.Ping(pingCtx); err != nil {
		s.logger.Warn("status: embedding backend unreachable", zap.Error(err))
		resp["embedding_reachable"] = false
		resp["embedding_error"] = err.Error()
	} else {
		resp["embedding_reachable"] = true
	}

	st := s.config.Storage
	if n, err := catalog.DiskUsage(st.IndexPath, st.CatalogPath, st.CatalogPath+"-wal"); err == nil {
		resp["disk_usage_bytes"] = n
	}
	resp["config"] = map[string]interface{}{
		"embedding_provider": s.config.Embedding.Provider,
		"embedding_model":    s.config.Embedding.Model,
		"chunk_size":         s.config.Retrieval.ChunkSize,
		"chunk_overlap":      s.config.Retrieval.Overlap(),
		"default_top_k":      s.config.Retrieval.DefaultTopK,
		"index_path":         st.IndexPath,
		"catalog_path":       st.CatalogPath,
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, rag.ErrConfig),
		errors.Is(err, vector.ErrInvalidTopK):
		return http.StatusBadRequest
	case errors.Is(err, embedding.ErrProviderUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return n, nil
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
