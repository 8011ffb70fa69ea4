package embedding

import (
	"context"

	"github.com/hyperjump/shiori/pkg/utils"
)

// DefaultHashDimensions is used when a HashEmbedder is built with no size.
const DefaultHashDimensions = 384

// HashEmbedder is a deterministic, offline embedder using signed feature
// hashing over lowercase terms. Texts that share terms score higher, which is
// enough for lexical retrieval and for tests that need stable vectors.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder returns a hashing embedder of the given dimension.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = DefaultHashDimensions
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed returns the unit-length term-frequency vector of text. Text without
// terms maps to the zero vector.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	emb := make([]float32, e.dimensions)
	for _, term := range Terms(text) {
		h := hashTerm(term)
		sign := float32(1)
		if h>>31 == 1 {
			sign = -1
		}
		emb[h%uint32(e.dimensions)] += sign
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch embeds each text in order.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = emb
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *HashEmbedder) Close() error {
	return nil
}
