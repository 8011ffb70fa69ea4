package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/hyperjump/shiori/internal/models"
)

// slideName matches slide parts such as ppt/slides/slide12.xml.
var slideName = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// atTag matches <a:t>text</a:t> with any attributes.
var atTag = regexp.MustCompile(`<a:t[^>]*>([^<]*)</a:t>`)

// extractPPTX returns one page per slide, numbered by the slide part name.
func extractPPTX(content []byte) ([]models.Page, error) {
	zr, err := openZip(content, "PPTX")
	if err != nil {
		return nil, err
	}
	var pages []models.Page
	for _, f := range zr.File {
		m := slideName.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		data, err := readZipFile(f)
		if err != nil {
			return nil, fmt.Errorf("extract PPTX: %w", err)
		}
		pages = append(pages, models.Page{Number: n, Text: joinMatches(atTag.FindAllStringSubmatch(string(data), -1))})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Number < pages[j].Number })
	return pages, nil
}
