package extract

import (
	"fmt"
	"regexp"

	"github.com/hyperjump/shiori/internal/models"
)

const openDocumentContentPath = "content.xml"

var (
	// odpPageTag opens one slide of a presentation.
	odpPageTag = regexp.MustCompile(`<draw:page[\s>]`)
	// odsPageTag opens one sheet of a spreadsheet; table:table-row and the
	// like are not matched.
	odsPageTag = regexp.MustCompile(`<table:table[\s>]`)
	// odfText matches paragraph, heading and span text in document order.
	odfText = regexp.MustCompile(`<text:(?:p|h|span)(?:\s[^>]*)?>([^<]*)</text:(?:p|h|span)>`)
)

// extractOpenDocument reads content.xml and returns one page per element
// opened by pageTag, numbered from 1. A document with no such element is
// returned as a single unpaged page.
func extractOpenDocument(content []byte, pageTag *regexp.Regexp) ([]models.Page, error) {
	zr, err := openZip(content, "OpenDocument")
	if err != nil {
		return nil, err
	}
	data, err := readZipEntry(zr, openDocumentContentPath)
	if err != nil {
		return nil, fmt.Errorf("extract OpenDocument: %w", err)
	}
	body := string(data)

	starts := pageTag.FindAllStringIndex(body, -1)
	if len(starts) == 0 {
		return unpaged(joinMatches(odfText.FindAllStringSubmatch(body, -1))), nil
	}
	pages := make([]models.Page, 0, len(starts))
	for i, loc := range starts {
		end := len(body)
		if i+1 < len(starts) {
			end = starts[i+1][0]
		}
		text := joinMatches(odfText.FindAllStringSubmatch(body[loc[0]:end], -1))
		pages = append(pages, models.Page{Number: i + 1, Text: text})
	}
	return pages, nil
}
