// Package keyword keeps a Bleve full-text index over chunk text for the
// keyword leg of hybrid retrieval, and fuses keyword with semantic scores.
package keyword

// SearchOptions tunes keyword search. Nil means defaults.
type SearchOptions struct {
	// SourceBoost multiplies matches in the source name. Values <= 1 disable
	// the source clause.
	SourceBoost float64
	// FuzzyEnabled matches terms within Fuzziness edits.
	FuzzyEnabled bool
	// Fuzziness is the maximum edit distance (1 or 2). Defaults to 1.
	Fuzziness int
}

// Result is a single keyword hit keyed by vector index entry id.
type Result struct {
	ID    uint64
	Score float64
}

// Doc is the indexed form of one chunk.
type Doc struct {
	ID     uint64
	Source string
	Text   string
}
