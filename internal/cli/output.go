// Package cli renders query and ingestion results for the shiori command.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/shiori/internal/ingest"
	"github.com/hyperjump/shiori/internal/models"
	"github.com/hyperjump/shiori/internal/rag"
	"github.com/hyperjump/shiori/pkg/utils"
)

// OutputFormat selects how results are written.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact is one line per result.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
	// OutputContext is the prompt context block handed to a generator.
	OutputContext OutputFormat = "context"
)

const previewLen = 200

// ParseOutputFormat validates a user-supplied format name.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case "":
		return OutputText, nil
	case OutputText, OutputCompact, OutputJSON, OutputContext:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (supported: text, compact, json, context)", s)
	}
}

// WriteResults writes a query response to w in the given format.
func WriteResults(w io.Writer, resp *models.QueryResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, resp)
	case OutputCompact:
		for _, r := range resp.Results {
			fmt.Fprintf(w, "%d\t%.4f\t%s\tp.%d\t%s\n", r.Rank, r.Score, r.Source, r.Page, utils.Preview(r.Text, 80))
		}
		return nil
	case OutputContext:
		_, err := fmt.Fprintln(w, rag.FormatContext(resp.Results))
		return err
	default:
		writeResultsText(w, resp)
		return nil
	}
}

func writeResultsText(w io.Writer, resp *models.QueryResponse) {
	fmt.Fprintf(w, "\nFound %d results in %dms (%s)\n\n", len(resp.Results), resp.QueryTime, resp.Mode)
	for _, r := range resp.Results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		if resp.Mode == models.QueryModeHybrid {
			fmt.Fprintf(w, "Rank: %d | Score: %.4f (Keyword: %.4f, Semantic: %.4f)\n",
				r.Rank, r.Score, r.KeywordScore, r.SemanticScore)
		} else {
			fmt.Fprintf(w, "Rank: %d | Score: %.4f\n", r.Rank, r.Score)
		}
		fmt.Fprintf(w, "Source: %s, Page %d [%d:%d]\n", r.Source, r.Page, r.CharStart, r.CharEnd)
		fmt.Fprintf(w, "\n%s\n\n", utils.Preview(r.Text, previewLen))
	}
}

// WriteSummary writes a directory ingestion summary.
func WriteSummary(w io.Writer, dir string, sum ingest.Summary, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, struct {
			Directory string `json:"directory"`
			ingest.Summary
		}{dir, sum})
	}
	fmt.Fprintf(w, "Ingested %s: %d files (%d unchanged, %d failed), %d new chunks\n",
		dir, sum.Files, sum.Skipped, sum.Failed, sum.Chunks)
	return nil
}

// WriteFileResult writes the outcome of a single file ingestion.
func WriteFileResult(w io.Writer, res *ingest.FileResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	if res.Skipped {
		fmt.Fprintf(w, "Unchanged %s (document %s)\n", res.Path, res.DocumentID)
		return nil
	}
	fmt.Fprintf(w, "Ingested %s: %d pages, %d chunks (document %s)\n", res.Path, res.Pages, res.Chunks, res.DocumentID)
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
