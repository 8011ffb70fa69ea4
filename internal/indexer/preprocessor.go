package indexer

import (
	"strings"
	"unicode"
)

// Preprocess tidies extracted text before it becomes a document: horizontal
// whitespace runs collapse to one space, trailing spaces are dropped from every
// line, and runs of blank lines collapse to a single blank line.
func Preprocess(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	var b strings.Builder
	blank := 0
	for _, line := range lines {
		line = collapseSpaces(line)
		if line == "" {
			blank++
			continue
		}
		if b.Len() > 0 {
			if blank > 0 {
				b.WriteString("\n\n")
			} else {
				b.WriteByte('\n')
			}
		}
		blank = 0
		b.WriteString(line)
	}
	return b.String()
}

func collapseSpaces(line string) string {
	var b strings.Builder
	wasSpace := false
	for _, r := range line {
		if unicode.IsSpace(r) {
			wasSpace = true
			continue
		}
		if wasSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		wasSpace = false
		b.WriteRune(r)
	}
	return b.String()
}
