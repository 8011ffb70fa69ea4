// Package server provides the HTTP API for shiori.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/shiori/internal/catalog"
	"github.com/hyperjump/shiori/internal/config"
	"github.com/hyperjump/shiori/internal/rag"
	"github.com/hyperjump/shiori/pkg/utils"
)

// Server is the HTTP server for the shiori API.
type Server struct {
	pipeline *rag.Pipeline
	catalog  *catalog.Catalog
	config   *config.Config
	logger   *zap.Logger

	mu     sync.Mutex
	server *http.Server
}

// NewServer creates a server. cat may be nil, in which case documents are
// not recorded and the document listing is unavailable.
func NewServer(pipeline *rag.Pipeline, cat *catalog.Catalog, cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		pipeline: pipeline,
		catalog:  cat,
		config:   cfg,
		logger:   utils.OrNop(logger),
	}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/documents", s.handleAddDocument)
		r.Get("/documents", s.handleListDocuments)
		r.Post("/query", s.handleQuery)
		r.Post("/index/save", s.handleSaveIndex)
		r.Get("/status", s.handleStatus)
		r.Get("/health", s.handleHealth)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()
	s.logger.Info("Starting server", zap.String("addr", addr))
	return srv.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}
