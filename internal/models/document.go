// Package models defines core data structures for documents, chunks, and retrieval results.
package models

import (
	"fmt"
	"time"
)

// Page is one page of a paged document. Number is 1-based.
type Page struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Document is a caller-supplied document. When Pages is non-empty each page is
// chunked on its own and Text is ignored; otherwise Text is chunked as page 0.
type Document struct {
	ID       string                 `json:"id"`
	Source   string                 `json:"source"`
	Text     string                 `json:"text,omitempty"`
	Pages    []Page                 `json:"pages,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Paged reports whether the document carries per-page text.
func (d *Document) Paged() bool {
	return len(d.Pages) > 0
}

// Chunk is a contiguous window of one page of a document. Start and End are
// rune offsets within the page text; End is exclusive.
type Chunk struct {
	DocumentID string `json:"document_id"`
	Index      int    `json:"index"`
	Text       string `json:"text"`
	Start      int    `json:"char_start"`
	End        int    `json:"char_end"`
	Page       int    `json:"page"`
	Source     string `json:"source"`
}

// Metadata returns the metadata stored alongside the chunk's vector.
func (c *Chunk) Metadata() ChunkMetadata {
	return ChunkMetadata{
		Source:    c.Source,
		Page:      c.Page,
		CharStart: c.Start,
		CharEnd:   c.End,
		Text:      c.Text,
	}
}

// ChunkMetadata is what the vector index keeps for every entry.
type ChunkMetadata struct {
	Source    string `json:"source"`
	Page      int    `json:"page"`
	CharStart int    `json:"char_start"`
	CharEnd   int    `json:"char_end"`
	Text      string `json:"text"`
}

// DocumentInput is the API payload for submitting a document.
type DocumentInput struct {
	ID           string                 `json:"id,omitempty"`
	Source       string                 `json:"source"`
	Text         string                 `json:"text,omitempty"`
	Pages        []Page                 `json:"pages,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	ChunkSize    int                    `json:"chunk_size,omitempty"`
	ChunkOverlap *int                   `json:"chunk_overlap,omitempty"`
}

// Validate checks that the input carries text to index.
func (in *DocumentInput) Validate() error {
	if in.Text == "" && len(in.Pages) == 0 {
		return fmt.Errorf("text or pages is required")
	}
	if in.Text != "" && len(in.Pages) > 0 {
		return fmt.Errorf("text and pages are mutually exclusive")
	}
	for _, p := range in.Pages {
		if p.Number < 0 {
			return fmt.Errorf("page number must be non-negative, got %d", p.Number)
		}
	}
	return nil
}

// Document converts the input into a Document.
func (in *DocumentInput) Document() *Document {
	return &Document{
		ID:       in.ID,
		Source:   in.Source,
		Text:     in.Text,
		Pages:    in.Pages,
		Metadata: in.Metadata,
	}
}

// IngestResult reports what AddDocument appended to the index.
type IngestResult struct {
	DocumentID string   `json:"document_id"`
	Source     string   `json:"source"`
	Chunks     int      `json:"chunks"`
	EntryIDs   []uint64 `json:"entry_ids,omitempty"`
}

// CatalogDocument is a document row recorded by the catalog after ingestion.
type CatalogDocument struct {
	ID          string `json:"id"`
	Source      string `json:"source"`
	Path        string `json:"path,omitempty"`
	ContentHash string `json:"content_hash,omitempty"`
	// EntriesDigest fingerprints the index entries the document produced.
	EntriesDigest string    `json:"entries_digest,omitempty"`
	Pages         int       `json:"pages"`
	Chunks        int       `json:"chunks"`
	EntryIDs      []uint64  `json:"entry_ids,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
