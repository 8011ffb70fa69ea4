package keyword

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
)

// bleveDoc is the stored document shape; field names follow the json tags.
type bleveDoc struct {
	Source string `json:"source"`
	Text   string `json:"text"`
}

// BleveIndex is an in-memory Bleve index. It is derived data: the vector
// index is the source of truth and Rebuild can recreate it at any time.
type BleveIndex struct {
	mu    sync.RWMutex
	index bleve.Index
}

// NewBleveIndex creates an empty in-memory index.
func NewBleveIndex() (*BleveIndex, error) {
	idx, err := newMemIndex()
	if err != nil {
		return nil, err
	}
	return &BleveIndex{index: idx}, nil
}

func indexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	// Standard analyzer lowercases and tokenizes without stemming, so
	// "Python" matches "python" but "bayes" does not collapse to "bay".
	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("text", textField)
	sourceField := bleve.NewTextFieldMapping()
	sourceField.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("source", sourceField)
	im.DefaultMapping = docMapping
	return im
}

func newMemIndex() (bleve.Index, error) {
	idx, err := bleve.NewMemOnly(indexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return idx, nil
}

// Index adds docs in one Bleve batch.
func (b *BleveIndex) Index(ctx context.Context, docs []Doc) error {
	if len(docs) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return indexBatch(b.index, docs)
}

func indexBatch(idx bleve.Index, docs []Doc) error {
	batch := idx.NewBatch()
	for _, d := range docs {
		if err := batch.Index(docKey(d.ID), bleveDoc{Source: d.Source, Text: d.Text}); err != nil {
			return fmt.Errorf("batch index %d: %w", d.ID, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		return fmt.Errorf("Bleve batch failed: %w", err)
	}
	return nil
}

// Rebuild replaces the contents with docs. Searches keep using the old index
// until the new one is complete.
func (b *BleveIndex) Rebuild(ctx context.Context, docs []Doc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fresh, err := newMemIndex()
	if err != nil {
		return err
	}
	const chunk = 1000
	for start := 0; start < len(docs); start += chunk {
		end := start + chunk
		if end > len(docs) {
			end = len(docs)
		}
		if err := indexBatch(fresh, docs[start:end]); err != nil {
			_ = fresh.Close()
			return err
		}
		if err := ctx.Err(); err != nil {
			_ = fresh.Close()
			return err
		}
	}
	b.mu.Lock()
	old := b.index
	b.index = fresh
	b.mu.Unlock()
	return old.Close()
}

// Search runs a match (or fuzzy) query over chunk text, optionally boosting
// matches in the source name, and returns up to limit hits.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]Result, error) {
	if limit <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var o SearchOptions
	if opts != nil {
		o = *opts
	}
	if o.Fuzziness <= 0 {
		o.Fuzziness = 1
	}

	clauses := []blevequery.Query{fieldQuery(query, "text", o)}
	if o.SourceBoost > 1 {
		sq := fieldQuery(query, "source", o)
		if bq, ok := sq.(blevequery.BoostableQuery); ok {
			bq.SetBoost(o.SourceBoost)
		}
		clauses = append(clauses, sq)
	}
	var q blevequery.Query = clauses[0]
	if len(clauses) > 1 {
		q = bleve.NewDisjunctionQuery(clauses...)
	}

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	b.mu.RLock()
	res, err := b.index.SearchInContext(ctx, req)
	b.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		id, err := strconv.ParseUint(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, Result{ID: id, Score: hit.Score})
	}
	return out, nil
}

// fieldQuery builds a match query, or an OR of per-term fuzzy queries.
func fieldQuery(query, field string, o SearchOptions) blevequery.Query {
	if o.FuzzyEnabled {
		terms := strings.Fields(strings.ToLower(query))
		if len(terms) > 0 {
			queries := make([]blevequery.Query, 0, len(terms))
			for _, term := range terms {
				fq := bleve.NewFuzzyQuery(strings.Trim(term, ".,;:!?\"'()"))
				fq.SetFuzziness(o.Fuzziness)
				fq.SetField(field)
				queries = append(queries, fq)
			}
			return bleve.NewDisjunctionQuery(queries...)
		}
	}
	mq := bleve.NewMatchQuery(query)
	mq.SetField(field)
	return mq
}

// DocCount returns the number of indexed chunks.
func (b *BleveIndex) DocCount() (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.index.DocCount()
}

// Close releases the index.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.index.Close()
}

func docKey(id uint64) string {
	return strconv.FormatUint(id, 10)
}
