package embedding

import (
	"context"
	"testing"
)

func TestEmbeddingCache_GetSet(t *testing.T) {
	c := NewEmbeddingCache(2)
	if v, ok := c.Get("a"); ok || v != nil {
		t.Fatal("expected miss")
	}
	c.Set("a", []float32{1, 2, 3})
	v, ok := c.Get("a")
	if !ok || len(v) != 3 || v[0] != 1 {
		t.Errorf("Get: got %v, %v", v, ok)
	}
	c.Set("b", []float32{4, 5})
	c.Get("a")               // a becomes most recent
	c.Set("c", []float32{6}) // evicts b
	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("expected a to remain")
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d", c.Len())
	}
}

func TestEmbeddingCache_ReturnsCopies(t *testing.T) {
	c := NewEmbeddingCache(1)
	src := []float32{1}
	c.Set("k", src)
	src[0] = 9
	v, _ := c.Get("k")
	v[0] = 7
	again, _ := c.Get("k")
	if again[0] != 1 {
		t.Errorf("cached value mutated: %v", again)
	}
}

type countingEmbedder struct {
	*HashEmbedder
	batches int
	texts   int
}

func (e *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.batches++
	e.texts += len(texts)
	return e.HashEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedder_OnlyForwardsMisses(t *testing.T) {
	inner := &countingEmbedder{HashEmbedder: NewHashEmbedder(16)}
	e := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	if _, err := e.EmbedBatch(ctx, []string{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	out, err := e.EmbedBatch(ctx, []string{"a", "c", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if inner.batches != 2 || inner.texts != 3 {
		t.Errorf("batches=%d texts=%d, want 2 and 3", inner.batches, inner.texts)
	}
	want, _ := inner.Embed(ctx, "c")
	for i := range want {
		if out[1][i] != want[i] {
			t.Fatal("batch results out of order")
		}
	}
	if _, err := e.EmbedBatch(ctx, []string{"a"}); err != nil || inner.batches != 2 {
		t.Errorf("fully cached batch should not reach backend (batches=%d)", inner.batches)
	}
	if e.Dimensions() != 16 {
		t.Errorf("Dimensions = %d", e.Dimensions())
	}
}

type extraVectorEmbedder struct {
	*HashEmbedder
}

func (e *extraVectorEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out, err := e.HashEmbedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	return append(out, make([]float32, e.Dimensions())), nil
}

func TestCachedEmbedder_RejectsMismatchedBatch(t *testing.T) {
	e := NewCachedEmbedder(&extraVectorEmbedder{HashEmbedder: NewHashEmbedder(8)}, 10)
	out, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	if err == nil {
		t.Fatalf("expected error for extra vectors, got %d results", len(out))
	}
	if _, ok := e.cache.Get("a"); ok {
		t.Error("nothing should be cached from a rejected batch")
	}
}

type pingEmbedder struct {
	*HashEmbedder
	err error
}

func (e *pingEmbedder) Ping(context.Context) error { return e.err }

func TestCachedEmbedder_PingForwards(t *testing.T) {
	ctx := context.Background()
	if err := Ping(ctx, NewCachedEmbedder(NewHashEmbedder(8), 4)); err != nil {
		t.Errorf("hash backend ping: %v", err)
	}
	down := &pingEmbedder{HashEmbedder: NewHashEmbedder(8), err: ErrProviderUnavailable}
	if err := Ping(ctx, NewCachedEmbedder(down, 4)); !IsUnavailable(err) {
		t.Errorf("Ping = %v, want ErrProviderUnavailable", err)
	}
}
