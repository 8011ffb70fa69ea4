package models

import "fmt"

// QueryMode selects how the pipeline ranks entries.
type QueryMode string

const (
	// QueryModeSemantic ranks by cosine similarity only.
	QueryModeSemantic QueryMode = "semantic"
	// QueryModeHybrid fuses cosine similarity with keyword relevance.
	QueryModeHybrid QueryMode = "hybrid"
)

// QueryRequest is a retrieval request. TopK nil means "use the default".
type QueryRequest struct {
	Query string    `json:"query"`
	TopK  *int      `json:"top_k,omitempty"`
	Mode  QueryMode `json:"mode,omitempty"`
	// IncludeContext asks for the results rendered as a generation prompt context.
	IncludeContext bool `json:"include_context,omitempty"`
}

// Validate checks the request and fills in defaults. A zero TopK is valid and
// yields an empty result; TopK above maxTopK is capped.
func (q *QueryRequest) Validate(defaultTopK, maxTopK int) error {
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.TopK == nil {
		k := defaultTopK
		q.TopK = &k
	}
	if *q.TopK < 0 {
		return fmt.Errorf("top_k must be non-negative, got %d", *q.TopK)
	}
	if maxTopK > 0 && *q.TopK > maxTopK {
		k := maxTopK
		q.TopK = &k
	}
	switch q.Mode {
	case "":
		q.Mode = QueryModeSemantic
	case QueryModeSemantic, QueryModeHybrid:
	default:
		return fmt.Errorf("unknown query mode %q (supported: semantic, hybrid)", q.Mode)
	}
	return nil
}

// AttributedResult is one retrieved chunk with its source attribution.
type AttributedResult struct {
	ID            uint64  `json:"id"`
	Text          string  `json:"text"`
	Source        string  `json:"source"`
	Page          int     `json:"page"`
	CharStart     int     `json:"char_start"`
	CharEnd       int     `json:"char_end"`
	Score         float64 `json:"score"`
	KeywordScore  float64 `json:"keyword_score,omitempty"`
	SemanticScore float64 `json:"semantic_score,omitempty"`
	Rank          int     `json:"rank"`
}

// QueryResponse is the response for a retrieval request.
type QueryResponse struct {
	Query     string              `json:"query"`
	Mode      QueryMode           `json:"mode"`
	Results   []*AttributedResult `json:"results"`
	Context   string              `json:"context,omitempty"`
	QueryTime int64               `json:"query_time_ms"`
}
