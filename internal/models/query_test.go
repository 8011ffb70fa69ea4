package models

import (
	"testing"
)

func intPtr(v int) *int { return &v }

func TestQueryRequest_Validate(t *testing.T) {
	tests := []struct {
		name     string
		query    *QueryRequest
		wantErr  bool
		wantTopK int
		wantMode QueryMode
	}{
		{"empty query", &QueryRequest{Query: ""}, true, 0, ""},
		{"default top_k", &QueryRequest{Query: "x"}, false, 3, QueryModeSemantic},
		{"zero top_k kept", &QueryRequest{Query: "x", TopK: intPtr(0)}, false, 0, QueryModeSemantic},
		{"negative top_k", &QueryRequest{Query: "x", TopK: intPtr(-1)}, true, 0, ""},
		{"caps top_k", &QueryRequest{Query: "x", TopK: intPtr(500)}, false, 100, QueryModeSemantic},
		{"hybrid mode", &QueryRequest{Query: "x", Mode: QueryModeHybrid}, false, 3, QueryModeHybrid},
		{"unknown mode", &QueryRequest{Query: "x", Mode: "fuzzy"}, true, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate(3, 100)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if *tt.query.TopK != tt.wantTopK {
				t.Errorf("TopK = %d, want %d", *tt.query.TopK, tt.wantTopK)
			}
			if tt.query.Mode != tt.wantMode {
				t.Errorf("Mode = %q, want %q", tt.query.Mode, tt.wantMode)
			}
		})
	}
}

func TestChunk_Metadata(t *testing.T) {
	c := &Chunk{DocumentID: "d", Text: "abc", Start: 4, End: 7, Page: 2, Source: "a.pdf"}
	m := c.Metadata()
	if m.Source != "a.pdf" || m.Page != 2 || m.CharStart != 4 || m.CharEnd != 7 || m.Text != "abc" {
		t.Errorf("unexpected metadata: %+v", m)
	}
}
