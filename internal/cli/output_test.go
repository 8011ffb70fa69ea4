package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperjump/shiori/internal/ingest"
	"github.com/hyperjump/shiori/internal/models"
)

func sampleResponse(mode models.QueryMode) *models.QueryResponse {
	return &models.QueryResponse{
		Query:     "who created python",
		Mode:      mode,
		QueryTime: 3,
		Results: []*models.AttributedResult{
			{ID: 0, Rank: 1, Score: 0.91, KeywordScore: 1, SemanticScore: 0.87, Source: "python.md", Page: 2, CharStart: 0, CharEnd: 46, Text: "Python was created by\nGuido van Rossum."},
			{ID: 1, Rank: 2, Score: 0.2, Source: "js.md", Text: "JavaScript was created by Brendan Eich."},
		},
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"JSON", OutputJSON, false},
		{"compact", OutputCompact, false},
		{"context", OutputContext, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestWriteResults_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteResults(&buf, sampleResponse(models.QueryModeSemantic), OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded models.QueryResponse
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(decoded.Results) != 2 || decoded.Results[0].Source != "python.md" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestWriteResults_text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteResults(&buf, sampleResponse(models.QueryModeHybrid), OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"Found 2 results in 3ms (hybrid)",
		"Keyword: 1.0000, Semantic: 0.8700",
		"Source: python.md, Page 2 [0:46]",
		"Python was created by Guido van Rossum.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteResults_compact(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteResults(&buf, sampleResponse(models.QueryModeSemantic), OutputCompact); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0] != "1\t0.9100\tpython.md\tp.2\tPython was created by Guido van Rossum." {
		t.Errorf("line 0 = %q", lines[0])
	}
}

func TestWriteResults_context(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteResults(&buf, sampleResponse(models.QueryModeSemantic), OutputContext); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "[python.md, Page 2]\nPython was created by\nGuido van Rossum.\n\n[js.md, Page 0]") {
		t.Errorf("context = %q", buf.String())
	}
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	sum := ingest.Summary{Files: 3, Skipped: 1, Failed: 1, Chunks: 12}
	if err := WriteSummary(&buf, "/docs", sum, OutputText); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "Ingested /docs: 3 files (1 unchanged, 1 failed), 12 new chunks\n" {
		t.Errorf("got %q", got)
	}

	buf.Reset()
	if err := WriteSummary(&buf, "/docs", sum, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["directory"] != "/docs" || decoded["chunks"] != float64(12) {
		t.Errorf("decoded = %v", decoded)
	}
}

func TestWriteFileResult(t *testing.T) {
	var buf bytes.Buffer
	_ = WriteFileResult(&buf, &ingest.FileResult{Path: "/a.txt", DocumentID: "d", Skipped: true}, OutputText)
	if !strings.HasPrefix(buf.String(), "Unchanged /a.txt") {
		t.Errorf("got %q", buf.String())
	}
}
