package extract

import (
	"archive/zip"
	"fmt"
	"regexp"
	"strings"

	"github.com/hyperjump/shiori/internal/models"
)

const (
	docxDocumentXMLPath = "word/document.xml"
	contentTypesPath    = "[Content_Types].xml"
	docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

// wtTag matches <w:t>text</w:t> with any attributes.
var wtTag = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)

// mainPartRe finds the main document part in [Content_Types].xml in either
// attribute order.
var mainPartRe = []*regexp.Regexp{
	regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"`),
	regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"[^>]+PartName="([^"]+)"`),
}

// docxMainPart returns the main document part name, falling back to
// word/document.xml when the content types do not name one.
func docxMainPart(zr *zip.Reader) string {
	types, err := readZipEntry(zr, contentTypesPath)
	if err != nil {
		return docxDocumentXMLPath
	}
	for _, re := range mainPartRe {
		if m := re.FindSubmatch(types); m != nil {
			return strings.TrimPrefix(string(m[1]), "/")
		}
	}
	return docxDocumentXMLPath
}

// extractDOCX returns the text runs of the main document part as one
// unpaged page. Word documents carry no stable page boundaries.
func extractDOCX(content []byte) ([]models.Page, error) {
	zr, err := openZip(content, "DOCX")
	if err != nil {
		return nil, err
	}
	docXML, err := readZipEntry(zr, docxMainPart(zr))
	if err != nil {
		return nil, fmt.Errorf("extract DOCX: %w", err)
	}
	return unpaged(joinMatches(wtTag.FindAllStringSubmatch(string(docXML), -1))), nil
}
