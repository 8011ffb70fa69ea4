package extract

import (
	"fmt"
	"strings"

	"github.com/lu4p/cat"

	"github.com/hyperjump/shiori/internal/models"
)

// extractWithCat handles ODT and RTF documents, which have no page
// structure worth keeping, as one unpaged page.
func extractWithCat(content []byte) ([]models.Page, error) {
	text, err := cat.FromBytes(content)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}
	return unpaged(strings.TrimSpace(text)), nil
}
