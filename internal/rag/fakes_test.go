package rag

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperjump/shiori/internal/embedding"
	"github.com/hyperjump/shiori/internal/vector"
)

const testDims = 384

// scriptedEmbedder wraps the hash embedder and lets a test decide the outcome
// of each EmbedBatch / Embed call (1-based).
type scriptedEmbedder struct {
	*embedding.HashEmbedder
	calls  atomic.Int32
	script func(call int, ctx context.Context) error
}

func newScripted(script func(call int, ctx context.Context) error) *scriptedEmbedder {
	return &scriptedEmbedder{HashEmbedder: embedding.NewHashEmbedder(testDims), script: script}
}

func (e *scriptedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	n := int(e.calls.Add(1))
	if e.script != nil {
		if err := e.script(n, ctx); err != nil {
			return nil, err
		}
	}
	return e.HashEmbedder.EmbedBatch(ctx, texts)
}

func (e *scriptedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	n := int(e.calls.Add(1))
	if e.script != nil {
		if err := e.script(n, ctx); err != nil {
			return nil, err
		}
	}
	return e.HashEmbedder.Embed(ctx, text)
}

var errUnavailable = errors.Join(embedding.ErrProviderUnavailable, errors.New("connection refused"))

func fastRetry(maxRetries int) *RetryPolicy {
	return &RetryPolicy{
		Timeout:        time.Second,
		MaxRetries:     maxRetries,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
	}
}

func newTestPipeline(t *testing.T, e embedding.Embedder, cfg Config, opts ...Option) (*Pipeline, *vector.MemoryIndex) {
	t.Helper()
	idx, err := vector.NewMemoryIndex(e.Dimensions())
	if err != nil {
		t.Fatal(err)
	}
	p, err := New(e, idx, cfg, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p, idx
}
