package rag

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/shiori/internal/keyword"
	"github.com/hyperjump/shiori/internal/models"
	"github.com/hyperjump/shiori/internal/vector"
)

const minCandidates = 50

// HybridQuery ranks entries by a weighted sum of cosine similarity and
// max-normalized keyword relevance. Without a keyword index it is Query.
func (p *Pipeline) HybridQuery(ctx context.Context, text string, topK int) ([]*models.AttributedResult, error) {
	if p.keyword == nil {
		return p.Query(ctx, text, topK)
	}
	if topK < 0 {
		return nil, fmt.Errorf("%w: top_k must be non-negative, got %d", ErrConfig, topK)
	}
	if topK == 0 {
		return []*models.AttributedResult{}, nil
	}
	candidates := topK * 4
	if candidates < minCandidates {
		candidates = minCandidates
	}

	var (
		keywordResults  []keyword.Result
		semanticResults []vector.Result
		errChan         = make(chan error, 2)
		wg              sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		results, err := p.keyword.Search(ctx, text, candidates, p.keywordOptions())
		if err != nil {
			errChan <- fmt.Errorf("keyword search failed: %w", err)
			return
		}
		keywordResults = results
	}()
	go func() {
		defer wg.Done()
		qv, err := p.embedQuery(ctx, text)
		if err != nil {
			errChan <- err
			return
		}
		results, err := p.index.Search(ctx, qv, candidates)
		if err != nil {
			errChan <- fmt.Errorf("vector search failed: %w", err)
			return
		}
		semanticResults = results
	}()
	wg.Wait()
	close(errChan)
	for err := range errChan {
		if err != nil {
			return nil, err
		}
	}

	semanticScores := make(map[uint64]float64, len(semanticResults))
	meta := make(map[uint64]models.ChunkMetadata, len(semanticResults))
	for _, r := range semanticResults {
		s := r.Score
		if s < 0 {
			s = 0
		}
		semanticScores[r.ID] = s
		meta[r.ID] = r.Metadata
	}
	fused := keyword.Fuse(keyword.NormalizeScores(keywordResults), semanticScores,
		p.cfg.KeywordWeight, p.cfg.SemanticWeight)

	out := make([]*models.AttributedResult, 0, topK)
	for _, f := range fused {
		if len(out) == topK {
			break
		}
		md, ok := meta[f.ID]
		if !ok {
			if md, ok = p.index.Lookup(f.ID); !ok {
				continue
			}
		}
		r := attributed(f.ID, md, f.Score, len(out)+1)
		r.KeywordScore = f.KeywordScore
		r.SemanticScore = f.SemanticScore
		out = append(out, r)
	}
	return out, nil
}

// indexKeywords mirrors freshly committed entries into the keyword index.
// The vector index is authoritative, so failures are logged and not returned.
func (p *Pipeline) indexKeywords(ctx context.Context, ids []uint64, entries []vector.Entry) {
	if p.keyword == nil {
		return
	}
	docs := make([]keyword.Doc, len(ids))
	for i, id := range ids {
		docs[i] = keyword.Doc{ID: id, Source: entries[i].Metadata.Source, Text: entries[i].Metadata.Text}
	}
	if err := p.keyword.Index(context.WithoutCancel(ctx), docs); err != nil {
		p.logger.Warn("keyword index update failed", zap.Int("entries", len(docs)), zap.Error(err))
	}
}

// rebuildKeyword recreates the keyword index from the vector index.
func (p *Pipeline) rebuildKeyword(ctx context.Context) {
	if p.keyword == nil {
		return
	}
	docs := make([]keyword.Doc, 0, p.index.Size())
	p.index.Scan(func(id uint64, md models.ChunkMetadata) bool {
		docs = append(docs, keyword.Doc{ID: id, Source: md.Source, Text: md.Text})
		return true
	})
	if err := p.keyword.Rebuild(context.WithoutCancel(ctx), docs); err != nil {
		p.logger.Warn("keyword index rebuild failed", zap.Int("entries", len(docs)), zap.Error(err))
	}
}

func (p *Pipeline) keywordOptions() *keyword.SearchOptions {
	if p.cfg.SourceBoost <= 1 && !p.cfg.Fuzzy {
		return nil
	}
	return &keyword.SearchOptions{
		SourceBoost:  p.cfg.SourceBoost,
		FuzzyEnabled: p.cfg.Fuzzy,
		Fuzziness:    p.cfg.Fuzziness,
	}
}
