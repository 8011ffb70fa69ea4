// Package vector stores unit-normalized embeddings alongside chunk metadata
// and answers exact cosine top-k queries.
package vector

import (
	"context"
	"errors"

	"github.com/hyperjump/shiori/internal/models"
)

var (
	// ErrDimensionMismatch is returned when a vector's length differs from the
	// index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrIndexCorrupt is returned when a persisted index fails validation.
	ErrIndexCorrupt = errors.New("index corrupt")
	// ErrInvalidVector is returned for vectors containing NaN or Inf.
	ErrInvalidVector = errors.New("vector contains NaN or Inf")
	// ErrInvalidTopK is returned for a negative top_k.
	ErrInvalidTopK = errors.New("top_k must be non-negative")
)

// Metric identifies the similarity function an index was built for.
type Metric uint8

// MetricCosine is the dot product of unit-normalized vectors.
const MetricCosine Metric = 1

func (m Metric) String() string {
	if m == MetricCosine {
		return "cosine"
	}
	return "unknown"
}

// Entry is a vector to add together with the chunk it was computed from.
type Entry struct {
	Vector   []float32
	Metadata models.ChunkMetadata
}

// Result is a single search hit.
type Result struct {
	ID       uint64
	Score    float64
	Metadata models.ChunkMetadata
}

// Index is an append-only vector store. Implementations must allow concurrent
// Search calls while an Add is in flight; readers observe either the state
// before or after a whole Add, never part of it.
type Index interface {
	// Add appends entries and returns their ids in order. It fails without
	// adding anything if any vector has the wrong dimension.
	Add(ctx context.Context, entries []Entry) ([]uint64, error)
	// Search returns up to topK hits ordered by descending score, ties broken
	// by ascending id.
	Search(ctx context.Context, query []float32, topK int) ([]Result, error)
	// Lookup returns the metadata stored for id.
	Lookup(id uint64) (models.ChunkMetadata, bool)
	// Scan calls fn for every entry in id order until fn returns false.
	Scan(fn func(id uint64, md models.ChunkMetadata) bool)
	Save(path string) error
	Load(path string) error
	Size() int
	Dimension() int
	Metric() Metric
	Close() error
}
