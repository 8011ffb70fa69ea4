// Package extract turns document files into page-numbered text.
package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/shiori/internal/models"
)

// errEntryNotFound is returned by readZipEntry when the archive has no such member.
var errEntryNotFound = errors.New("entry not found")

// Extractor extracts text from document files. Paged formats (PDF pages,
// spreadsheet sheets, presentation slides) yield one Page per unit numbered
// from 1; flowing formats yield a single Page numbered 0.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads the file at path and returns its pages.
func (e *Extractor) Extract(path string) ([]models.Page, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	return e.ExtractBytes(content, ext)
}

// ExtractBytes extracts pages from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf"). Unknown extensions are
// treated as plain text.
func (e *Extractor) ExtractBytes(content []byte, ext string) ([]models.Page, error) {
	switch strings.ToLower(ext) {
	case ".pdf":
		return extractPDF(content)
	case ".docx":
		return extractDOCX(content)
	case ".odt", ".rtf":
		return extractWithCat(content)
	case ".xlsx":
		return extractExcel(content)
	case ".pptx":
		return extractPPTX(content)
	case ".odp":
		return extractOpenDocument(content, odpPageTag)
	case ".ods":
		return extractOpenDocument(content, odsPageTag)
	default:
		return extractPlain(content)
	}
}

// Supported reports whether ext has a dedicated extractor or is a known plain
// text extension.
func Supported(ext string) bool {
	switch strings.ToLower(ext) {
	case ".pdf", ".docx", ".odt", ".rtf", ".xlsx", ".pptx", ".odp", ".ods", ".txt", ".md", ".rst":
		return true
	}
	return false
}

func unpaged(text string) []models.Page {
	return []models.Page{{Number: 0, Text: text}}
}

func openZip(content []byte, format string) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("extract %s: not a zip: %w", format, err)
	}
	return zr, nil
}

func readZipEntry(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		return readZipFile(f)
	}
	return nil, fmt.Errorf("%s: %w", name, errEntryNotFound)
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	return data, nil
}

// joinMatches joins the first submatch of every match with single spaces.
func joinMatches(parts [][]string) string {
	var b strings.Builder
	for _, p := range parts {
		s := strings.TrimSpace(p[1])
		if s == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(s)
	}
	return b.String()
}
