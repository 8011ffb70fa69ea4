package rag

import (
	"fmt"
	"strings"

	"github.com/hyperjump/shiori/internal/models"
)

// FormatContext renders results as "[source, Page N]" headed blocks separated
// by blank lines, ready to be placed in a generation prompt.
func FormatContext(results []*models.AttributedResult) string {
	blocks := make([]string, 0, len(results))
	for _, r := range results {
		blocks = append(blocks, fmt.Sprintf("[%s, Page %d]\n%s", r.Source, r.Page, r.Text))
	}
	return strings.Join(blocks, "\n\n")
}
