// Package indexer splits document text into overlapping character windows.
package indexer

import (
	"errors"
	"fmt"

	"github.com/hyperjump/shiori/internal/models"
)

// ErrInvalidChunkConfig is returned when chunk size or overlap cannot produce
// an advancing window.
var ErrInvalidChunkConfig = errors.New("invalid chunk configuration")

// ValidateChunkConfig checks that chunkSize > 0 and 0 <= overlap < chunkSize.
func ValidateChunkConfig(chunkSize, overlap int) error {
	if chunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidChunkConfig, chunkSize)
	}
	if overlap < 0 {
		return fmt.Errorf("%w: overlap must be non-negative, got %d", ErrInvalidChunkConfig, overlap)
	}
	if overlap >= chunkSize {
		return fmt.Errorf("%w: overlap %d must be smaller than chunk size %d", ErrInvalidChunkConfig, overlap, chunkSize)
	}
	return nil
}

// Split cuts text into windows of chunkSize runes that start every
// chunkSize-overlap runes. The last window ends at the end of text and may be
// shorter. Empty text yields no chunks. Offsets are rune offsets into text.
func Split(text string, chunkSize, overlap, page int) ([]*models.Chunk, error) {
	if err := ValidateChunkConfig(chunkSize, overlap); err != nil {
		return nil, err
	}
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil, nil
	}
	step := chunkSize - overlap
	chunks := make([]*models.Chunk, 0, n/step+1)
	for start := 0; ; start += step {
		end := start + chunkSize
		if end > n {
			end = n
		}
		chunks = append(chunks, &models.Chunk{
			Text:  string(runes[start:end]),
			Start: start,
			End:   end,
			Page:  page,
		})
		if end == n {
			break
		}
	}
	return chunks, nil
}

// Chunker splits documents into overlapping character windows.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker with the given size and overlap (in characters).
func NewChunker(chunkSize, chunkOverlap int) (*Chunker, error) {
	if err := ValidateChunkConfig(chunkSize, chunkOverlap); err != nil {
		return nil, err
	}
	return &Chunker{chunkSize: chunkSize, chunkOverlap: chunkOverlap}, nil
}

// ChunkDocument chunks every page of doc (or its Text as page 0 when unpaged)
// and stamps document id, source and a running chunk index on each chunk.
func (c *Chunker) ChunkDocument(doc *models.Document) []*models.Chunk {
	pages := doc.Pages
	if !doc.Paged() {
		pages = []models.Page{{Number: 0, Text: doc.Text}}
	}
	var out []*models.Chunk
	for _, p := range pages {
		// Config was validated in NewChunker.
		chunks, _ := Split(p.Text, c.chunkSize, c.chunkOverlap, p.Number)
		for _, ch := range chunks {
			ch.DocumentID = doc.ID
			ch.Source = doc.Source
			ch.Index = len(out)
			out = append(out, ch)
		}
	}
	return out
}

// Reconstruct joins consecutive chunks of a single page, dropping the part of
// each chunk that overlaps its predecessor.
func Reconstruct(chunks []*models.Chunk) string {
	var out []rune
	prevEnd := 0
	for i, ch := range chunks {
		r := []rune(ch.Text)
		if i > 0 {
			skip := prevEnd - ch.Start
			if skip > len(r) {
				skip = len(r)
			}
			if skip > 0 {
				r = r[skip:]
			}
		}
		out = append(out, r...)
		prevEnd = ch.End
	}
	return string(out)
}
