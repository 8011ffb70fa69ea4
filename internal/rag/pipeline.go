// Package rag implements the retrieval pipeline: documents are chunked,
// embedded and appended to a vector index; questions are embedded and
// answered with attributed chunks.
package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/shiori/internal/embedding"
	"github.com/hyperjump/shiori/internal/indexer"
	"github.com/hyperjump/shiori/internal/keyword"
	"github.com/hyperjump/shiori/internal/models"
	"github.com/hyperjump/shiori/internal/vector"
	"github.com/hyperjump/shiori/pkg/utils"
)

// ErrConfig reports invalid chunking or query parameters.
var ErrConfig = indexer.ErrInvalidChunkConfig

// Config holds pipeline defaults.
type Config struct {
	ChunkSize      int
	ChunkOverlap   int
	BatchSize      int // chunk texts per embedding call
	KeywordEnabled bool
	KeywordWeight  float64
	SemanticWeight float64
	// Keyword leg tuning; zero values keep a plain match query on chunk text.
	SourceBoost float64
	Fuzzy       bool
	Fuzziness   int
}

// DefaultConfig returns 500/50 chunking, batches of 64 and a 0.7/0.3
// semantic/keyword split with the keyword index enabled.
func DefaultConfig() Config {
	return Config{
		ChunkSize:      500,
		ChunkOverlap:   50,
		BatchSize:      64,
		KeywordEnabled: true,
		KeywordWeight:  0.3,
		SemanticWeight: 0.7,
	}
}

// Pipeline owns a vector index and orchestrates ingestion and retrieval.
type Pipeline struct {
	embedder embedding.Embedder
	index    vector.Index
	keyword  *keyword.BleveIndex
	retry    *RetryPolicy
	cfg      Config
	logger   *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithRetryPolicy sets how embedding calls are retried.
func WithRetryPolicy(r *RetryPolicy) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.retry = r
		}
	}
}

// New creates a pipeline. The embedder and index must agree on dimension.
func New(embedder embedding.Embedder, index vector.Index, cfg Config, opts ...Option) (*Pipeline, error) {
	if err := indexer.ValidateChunkConfig(cfg.ChunkSize, cfg.ChunkOverlap); err != nil {
		return nil, err
	}
	if embedder.Dimensions() != index.Dimension() {
		return nil, fmt.Errorf("%w: embedder produces %d, index stores %d",
			vector.ErrDimensionMismatch, embedder.Dimensions(), index.Dimension())
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	p := &Pipeline{
		embedder: embedder,
		index:    index,
		retry:    DefaultRetryPolicy(),
		cfg:      cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = utils.OrNop(p.logger)
	if cfg.KeywordEnabled {
		kw, err := keyword.NewBleveIndex()
		if err != nil {
			return nil, err
		}
		p.keyword = kw
		if index.Size() > 0 {
			p.rebuildKeyword(context.Background())
		}
	}
	return p, nil
}

// ChunkDefaults returns the configured chunk size and overlap.
func (p *Pipeline) ChunkDefaults() (size, overlap int) {
	return p.cfg.ChunkSize, p.cfg.ChunkOverlap
}

// AddDocument chunks doc, embeds the chunks in batches and appends them to
// the index in a single Add. Nothing becomes visible unless every batch
// succeeds; cancellation between batches discards the work done so far.
func (p *Pipeline) AddDocument(ctx context.Context, doc *models.Document, chunkSize, overlap int) (*models.IngestResult, error) {
	chunker, err := indexer.NewChunker(chunkSize, overlap)
	if err != nil {
		return nil, err
	}
	d := *doc
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Source == "" {
		d.Source = d.ID
	}
	doc = &d
	result := &models.IngestResult{DocumentID: doc.ID, Source: doc.Source}

	chunks := chunker.ChunkDocument(doc)
	if len(chunks) == 0 {
		return result, nil
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("ingest %s cancelled: %w", doc.Source, err)
		}
		end := start + p.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		var batch [][]float32
		err := p.withRetry(ctx, "embed batch", func(ctx context.Context) error {
			var err error
			batch, err = p.embedder.EmbedBatch(ctx, texts[start:end])
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("embed %s chunks %d-%d: %w", doc.Source, start, end-1, err)
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("embed %s: backend returned %d vectors for %d texts", doc.Source, len(batch), end-start)
		}
		vectors = append(vectors, batch...)
	}

	entries := make([]vector.Entry, len(chunks))
	for i, ch := range chunks {
		entries[i] = vector.Entry{Vector: vectors[i], Metadata: ch.Metadata()}
	}
	ids, err := p.index.Add(ctx, entries)
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", doc.Source, err)
	}
	p.indexKeywords(ctx, ids, entries)

	result.Chunks = len(ids)
	result.EntryIDs = ids
	p.logger.Debug("document added",
		zap.String("id", doc.ID),
		zap.String("source", doc.Source),
		zap.Int("chunks", len(ids)))
	return result, nil
}

// AddDocuments adds each document with the default chunking, stopping at the
// first failure. Documents added before the failure stay indexed.
func (p *Pipeline) AddDocuments(ctx context.Context, docs []*models.Document) ([]*models.IngestResult, error) {
	results := make([]*models.IngestResult, 0, len(docs))
	for _, doc := range docs {
		res, err := p.AddDocument(ctx, doc, p.cfg.ChunkSize, p.cfg.ChunkOverlap)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// Query embeds text once and returns the topK most similar chunks with
// their attribution, in index order.
func (p *Pipeline) Query(ctx context.Context, text string, topK int) ([]*models.AttributedResult, error) {
	if topK < 0 {
		return nil, fmt.Errorf("%w: top_k must be non-negative, got %d", ErrConfig, topK)
	}
	if topK == 0 {
		return []*models.AttributedResult{}, nil
	}
	qv, err := p.embedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	hits, err := p.index.Search(ctx, qv, topK)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	out := make([]*models.AttributedResult, len(hits))
	for i, h := range hits {
		r := attributed(h.ID, h.Metadata, h.Score, i+1)
		r.SemanticScore = h.Score
		out[i] = r
	}
	return out, nil
}

func (p *Pipeline) embedQuery(ctx context.Context, text string) ([]float32, error) {
	var qv []float32
	err := p.withRetry(ctx, "embed query", func(ctx context.Context) error {
		var err error
		qv, err = p.embedder.Embed(ctx, text)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return qv, nil
}

// Save persists the vector index. Concurrent adds are not blocked.
func (p *Pipeline) Save(path string) error {
	start := time.Now()
	if err := p.index.Save(path); err != nil {
		return err
	}
	p.logger.Info("index saved",
		zap.String("path", path),
		zap.Int("entries", p.index.Size()),
		zap.Duration("took", time.Since(start)))
	return nil
}

// Load replaces the vector index contents from path and rebuilds the keyword
// index. On error the current contents are kept.
func (p *Pipeline) Load(ctx context.Context, path string) error {
	if err := p.index.Load(path); err != nil {
		return err
	}
	p.rebuildKeyword(ctx)
	p.logger.Info("index loaded", zap.String("path", path), zap.Int("entries", p.index.Size()))
	return nil
}

// Stats describes the pipeline's index.
type Stats struct {
	Entries     int    `json:"entries"`
	Dimension   int    `json:"dimension"`
	Metric      string `json:"metric"`
	KeywordDocs uint64 `json:"keyword_docs"`
	Keyword     bool   `json:"keyword_enabled"`
}

// Ping checks that the embedding backend is reachable.
func (p *Pipeline) Ping(ctx context.Context) error {
	return embedding.Ping(ctx, p.embedder)
}

// Stats returns current index statistics.
func (p *Pipeline) Stats() Stats {
	s := Stats{
		Entries:   p.index.Size(),
		Dimension: p.index.Dimension(),
		Metric:    p.index.Metric().String(),
		Keyword:   p.keyword != nil,
	}
	if p.keyword != nil {
		if n, err := p.keyword.DocCount(); err == nil {
			s.KeywordDocs = n
		}
	}
	return s
}

// EntriesDigest fingerprints the source, page and text of the entries ids
// point at. ok is false when any id is missing from the index. Comparing a
// recorded digest with the current one detects ids that were reused by
// other documents after an older index was loaded.
func (p *Pipeline) EntriesDigest(ids []uint64) (digest string, ok bool) {
	h := sha256.New()
	for _, id := range ids {
		md, found := p.index.Lookup(id)
		if !found {
			return "", false
		}
		fmt.Fprintf(h, "%d\x00%s\x00%d\x00%s\x00", id, md.Source, md.Page, md.Text)
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), true
}

// Close releases the keyword index. The embedder and vector index belong to
// the caller.
func (p *Pipeline) Close() error {
	if p.keyword != nil {
		return p.keyword.Close()
	}
	return nil
}

// withRetry runs op under the retry policy. Only ErrProviderUnavailable and
// attempt timeouts are retried; anything else fails immediately.
func (p *Pipeline) withRetry(ctx context.Context, what string, op func(context.Context) error) error {
	for attempt := 0; ; attempt++ {
		if err := p.retry.acquire(ctx); err != nil {
			return err
		}
		actx, cancel := p.retry.attemptContext(ctx)
		err := op(actx)
		cancel()
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, context.DeadlineExceeded) && !embedding.IsUnavailable(err) {
			err = fmt.Errorf("%w: attempt timed out after %s: %w", embedding.ErrProviderUnavailable, p.retry.Timeout, err)
		}
		if !embedding.IsUnavailable(err) {
			return err
		}
		if attempt >= p.retry.MaxRetries {
			return fmt.Errorf("giving up after %d attempts: %w", attempt+1, err)
		}
		wait := p.retry.Backoff(attempt)
		p.logger.Warn("embedding backend unavailable, retrying",
			zap.String("op", what),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(err))
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func attributed(id uint64, md models.ChunkMetadata, score float64, rank int) *models.AttributedResult {
	return &models.AttributedResult{
		ID:        id,
		Text:      md.Text,
		Source:    md.Source,
		Page:      md.Page,
		CharStart: md.CharStart,
		CharEnd:   md.CharEnd,
		Score:     score,
		Rank:      rank,
	}
}
