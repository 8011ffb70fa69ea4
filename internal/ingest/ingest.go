// Package ingest feeds files from disk into the retrieval pipeline and
// records them in the catalog.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/shiori/internal/catalog"
	"github.com/hyperjump/shiori/internal/extract"
	"github.com/hyperjump/shiori/internal/indexer"
	"github.com/hyperjump/shiori/internal/models"
	"github.com/hyperjump/shiori/pkg/utils"
)

// ErrExtensionNotAllowed is returned for files outside the allowed extensions.
var ErrExtensionNotAllowed = errors.New("extension not allowed")

// Pipeline is the part of the retrieval pipeline the ingester drives.
type Pipeline interface {
	AddDocument(ctx context.Context, doc *models.Document, chunkSize, overlap int) (*models.IngestResult, error)
	ChunkDefaults() (size, overlap int)
	EntriesDigest(ids []uint64) (string, bool)
}

// Catalog records ingested files.
type Catalog interface {
	Record(ctx context.Context, doc *models.CatalogDocument) error
	LatestByPath(ctx context.Context, path string) (*models.CatalogDocument, error)
}

// FileResult reports what happened to one file.
type FileResult struct {
	Path       string `json:"path"`
	DocumentID string `json:"document_id,omitempty"`
	Pages      int    `json:"pages"`
	Chunks     int    `json:"chunks"`
	Skipped    bool   `json:"skipped"`
}

// Summary totals a directory ingestion.
type Summary struct {
	Files   int `json:"files"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
	Chunks  int `json:"chunks"`
}

// Ingester extracts files and appends them to the pipeline.
type Ingester struct {
	pipeline   Pipeline
	catalog    Catalog
	extractor  *extract.Extractor
	extensions []string
	logger     *zap.Logger
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithLogger sets a logger for per-file events.
func WithLogger(l *zap.Logger) Option {
	return func(in *Ingester) { in.logger = l }
}

// WithCatalog records ingested files and skips files whose content is
// unchanged since their last ingestion.
func WithCatalog(c Catalog) Option {
	return func(in *Ingester) { in.catalog = c }
}

// WithExtensions restricts ingestion to the given extensions. Without it
// every extension known to the extractor is accepted.
func WithExtensions(exts []string) Option {
	return func(in *Ingester) { in.extensions = exts }
}

// New creates an Ingester over pipeline.
func New(pipeline Pipeline, opts ...Option) *Ingester {
	in := &Ingester{
		pipeline:  pipeline,
		extractor: extract.NewExtractor(),
	}
	for _, opt := range opts {
		opt(in)
	}
	in.logger = utils.OrNop(in.logger)
	return in
}

// Allowed reports whether path has an extension the ingester accepts.
func (in *Ingester) Allowed(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if len(in.extensions) == 0 {
		return extract.Supported(ext)
	}
	return extensionAllowed(ext, in.extensions)
}

// IngestFile extracts the file at path and adds it as one document whose
// source is the file's base name. A file already in the catalog with the
// same content hash, whose recorded entries are still in the index unchanged,
// is skipped.
func (in *Ingester) IngestFile(ctx context.Context, path string) (*FileResult, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	if !in.Allowed(absPath) {
		return nil, fmt.Errorf("%w: %q", ErrExtensionNotAllowed, filepath.Ext(absPath))
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", absPath)
	}
	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	hash := ContentHash(content)

	if prev := in.unchanged(ctx, absPath, hash); prev != nil {
		in.logger.Debug("ingest skipping unchanged file", zap.String("path", absPath))
		return &FileResult{Path: absPath, DocumentID: prev.ID, Pages: prev.Pages, Chunks: prev.Chunks, Skipped: true}, nil
	}

	pages, err := in.extractor.ExtractBytes(content, filepath.Ext(absPath))
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", absPath, err)
	}
	for i := range pages {
		pages[i].Text = indexer.Preprocess(pages[i].Text)
	}

	doc := &models.Document{
		ID:       uuid.New().String(),
		Source:   filepath.Base(absPath),
		Pages:    pages,
		Metadata: map[string]interface{}{"path": absPath},
	}
	size, overlap := in.pipeline.ChunkDefaults()
	res, err := in.pipeline.AddDocument(ctx, doc, size, overlap)
	if err != nil {
		return nil, fmt.Errorf("add %s: %w", absPath, err)
	}

	if in.catalog != nil {
		digest, _ := in.pipeline.EntriesDigest(res.EntryIDs)
		rec := &models.CatalogDocument{
			ID:            res.DocumentID,
			Source:        res.Source,
			Path:          absPath,
			ContentHash:   hash,
			EntriesDigest: digest,
			Pages:         len(pages),
			Chunks:        res.Chunks,
			EntryIDs:      res.EntryIDs,
		}
		if err := in.catalog.Record(ctx, rec); err != nil {
			return nil, fmt.Errorf("record %s: %w", absPath, err)
		}
	}

	in.logger.Debug("ingest file added",
		zap.String("path", absPath),
		zap.String("document_id", res.DocumentID),
		zap.Int("pages", len(pages)),
		zap.Int("chunks", res.Chunks),
	)
	return &FileResult{Path: absPath, DocumentID: res.DocumentID, Pages: len(pages), Chunks: res.Chunks}, nil
}

// unchanged returns the catalog record for path when its content hash
// matches and the index still holds the exact entries it recorded.
func (in *Ingester) unchanged(ctx context.Context, absPath, hash string) *models.CatalogDocument {
	if in.catalog == nil {
		return nil
	}
	prev, err := in.catalog.LatestByPath(ctx, absPath)
	if err != nil {
		if !errors.Is(err, catalog.ErrNotFound) {
			in.logger.Warn("ingest catalog lookup failed", zap.String("path", absPath), zap.Error(err))
		}
		return nil
	}
	if prev.ContentHash != hash {
		return nil
	}
	if digest, ok := in.pipeline.EntriesDigest(prev.EntryIDs); !ok || digest != prev.EntriesDigest {
		return nil
	}
	return prev
}

// IngestDirectory ingests every allowed regular file under dir. Subdirectories
// are descended only when recursive is set. A file that fails is logged and
// counted; cancellation stops the walk and is returned.
func (in *Ingester) IngestDirectory(ctx context.Context, dir string, recursive bool) (Summary, error) {
	var sum Summary
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return sum, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return sum, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return sum, fmt.Errorf("not a directory: %s", absDir)
	}

	err = filepath.WalkDir(absDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != absDir && (!recursive || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !in.Allowed(path) {
			return nil
		}
		// Resolve symlinks so only regular files are ingested.
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		res, ingestErr := in.IngestFile(ctx, path)
		if ingestErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			sum.Failed++
			in.logger.Warn("ingest file failed", zap.String("path", path), zap.Error(ingestErr))
			return nil
		}
		sum.Files++
		if res.Skipped {
			sum.Skipped++
		} else {
			sum.Chunks += res.Chunks
		}
		return nil
	})
	return sum, err
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
