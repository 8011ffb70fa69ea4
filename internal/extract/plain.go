package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/shiori/internal/models"
)

// extractPlain returns content as a single unpaged page. Invalid UTF-8
// sequences are replaced with the replacement character.
func extractPlain(content []byte) ([]models.Page, error) {
	text := string(content)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
	}
	return unpaged(text), nil
}
