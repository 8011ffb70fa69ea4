package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/hyperjump/shiori/internal/models"
	"github.com/hyperjump/shiori/pkg/utils"
)

// snapshot is an immutable view of the index contents. Vectors are stored
// row-major in one slice. Readers only look at the first len(ids) rows, so a
// writer may append into spare capacity without disturbing them.
type snapshot struct {
	ids     []uint64
	vectors []float32
	meta    []models.ChunkMetadata
	nextID  uint64
}

func (s *snapshot) row(i, dim int) []float32 {
	return s.vectors[i*dim : (i+1)*dim]
}

// MemoryIndex is an in-memory index using a full scan per query. Writers are
// serialized by a mutex and publish a new snapshot atomically; readers never
// block.
type MemoryIndex struct {
	dimension int
	snap      atomic.Pointer[snapshot]
	mu        sync.Mutex
}

var _ Index = (*MemoryIndex)(nil)

// NewMemoryIndex creates an empty index for vectors of the given dimension.
func NewMemoryIndex(dimension int) (*MemoryIndex, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dimension)
	}
	m := &MemoryIndex{dimension: dimension}
	m.snap.Store(&snapshot{})
	return m, nil
}

// Add normalizes copies of the entry vectors and appends them in one step.
func (m *MemoryIndex) Add(ctx context.Context, entries []Entry) ([]uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	rows := make([]float32, 0, len(entries)*m.dimension)
	for i, e := range entries {
		if len(e.Vector) != m.dimension {
			return nil, fmt.Errorf("%w: entry %d has %d components, index has %d",
				ErrDimensionMismatch, i, len(e.Vector), m.dimension)
		}
		if !finite(e.Vector) {
			return nil, fmt.Errorf("entry %d: %w", i, ErrInvalidVector)
		}
		start := len(rows)
		rows = append(rows, e.Vector...)
		utils.NormalizeL2(rows[start:])
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.snap.Load()
	next := &snapshot{
		ids:     cur.ids,
		vectors: append(cur.vectors, rows...),
		meta:    cur.meta,
		nextID:  cur.nextID,
	}
	assigned := make([]uint64, len(entries))
	for i, e := range entries {
		assigned[i] = next.nextID
		next.ids = append(next.ids, next.nextID)
		next.meta = append(next.meta, e.Metadata)
		next.nextID++
	}
	m.snap.Store(next)
	return assigned, nil
}

// Search scores every entry against the normalized query and keeps the best topK.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, topK int) ([]Result, error) {
	if topK < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTopK, topK)
	}
	if len(query) != m.dimension {
		return nil, fmt.Errorf("%w: query has %d components, index has %d",
			ErrDimensionMismatch, len(query), m.dimension)
	}
	if !finite(query) {
		return nil, fmt.Errorf("query: %w", ErrInvalidVector)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := m.snap.Load()
	if topK == 0 || len(s.ids) == 0 {
		return []Result{}, nil
	}

	q := append([]float32(nil), query...)
	utils.NormalizeL2(q)

	top := newTopK(topK)
	for i, id := range s.ids {
		top.offer(id, i, cosine(q, s.row(i, m.dimension)))
	}
	hits := top.sorted()
	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{ID: h.id, Score: h.score, Metadata: s.meta[h.pos]}
	}
	return results, nil
}

// Lookup returns the metadata of entry id.
func (m *MemoryIndex) Lookup(id uint64) (models.ChunkMetadata, bool) {
	s := m.snap.Load()
	i := sort.Search(len(s.ids), func(i int) bool { return s.ids[i] >= id })
	if i < len(s.ids) && s.ids[i] == id {
		return s.meta[i], true
	}
	return models.ChunkMetadata{}, false
}

// Scan visits entries of the current snapshot in id order.
func (m *MemoryIndex) Scan(fn func(id uint64, md models.ChunkMetadata) bool) {
	s := m.snap.Load()
	for i, id := range s.ids {
		if !fn(id, s.meta[i]) {
			return
		}
	}
}

// Size returns the number of entries.
func (m *MemoryIndex) Size() int {
	return len(m.snap.Load().ids)
}

// Dimension returns the vector dimension.
func (m *MemoryIndex) Dimension() int {
	return m.dimension
}

// Metric returns MetricCosine.
func (m *MemoryIndex) Metric() Metric {
	return MetricCosine
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}

func finite(v []float32) bool {
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
