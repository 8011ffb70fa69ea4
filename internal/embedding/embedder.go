// Package embedding maps text to fixed-dimension vectors through pluggable
// backends: a local lexical hasher, Ollama, OpenAI-compatible APIs and ONNX.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrProviderUnavailable is returned when the embedding backend cannot be
// reached or is temporarily refusing work. Callers may retry it.
var ErrProviderUnavailable = errors.New("embedding provider unavailable")

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// Pinger is implemented by backends that can check they are reachable
// without embedding anything.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks e when it is a Pinger. Local backends always succeed.
func Ping(ctx context.Context, e Embedder) error {
	if p, ok := e.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// IsUnavailable reports whether err marks a transient backend failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable)
}

func unavailable(backend string, err error) error {
	return fmt.Errorf("%s: %w: %w", backend, ErrProviderUnavailable, err)
}

// transportError marks a failed round trip as unavailable unless the caller
// cancelled it.
func transportError(backend string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", backend, err)
	}
	return unavailable(backend, err)
}

// statusError classifies a non-2xx HTTP response. Rate limiting and server
// errors are transient; other client errors are permanent.
func statusError(backend string, status int, body string) error {
	err := fmt.Errorf("status %d: %s", status, body)
	if status == http.StatusTooManyRequests || status >= 500 {
		return unavailable(backend, err)
	}
	return fmt.Errorf("%s: %w", backend, err)
}
