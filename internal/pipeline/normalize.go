// internal/pipeline/normalize.go
package pipeline

import (
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/valpere/extractstudio/pkg/types"
)

// Normalize builds the normalized form of a record that survived dedup.
// Custom fields are carried over unchanged.
func Normalize(rec *types.ParsedRecord) types.NormalizedRecord {
	blocks := make([]types.StructuredBlock, 0, len(rec.Blocks))
	for _, b := range rec.Blocks {
		b.Content = CleanText(b.Content)
		if b.Content == "" {
			continue
		}
		blocks = append(blocks, b)
	}

	return types.NormalizedRecord{
		ID:             uuid.NewString(),
		ParsedRecordID: rec.ID,
		SourceURL:      rec.SourceURL,
		SourceType:     rec.SourceType,
		SourceName:     rec.SourceName,
		JobLabel:       rec.JobLabel,
		Title:          CleanText(rec.Title),
		CleanedText:    CleanText(rec.MainText),
		CleanedBlocks:  blocks,
		Links:          rec.Links,
		CustomFields:   rec.CustomFields,
		LanguageHint:   languageHint(rec.ParserMetadata["lang"]),
	}
}

// CleanText trims text and removes invisible characters that survive
// extraction.
func CleanText(text string) string {
	// Replace non-breaking spaces with regular spaces
	text = strings.ReplaceAll(text, "\u00A0", " ")

	// Remove zero-width spaces
	text = strings.ReplaceAll(text, "\u200B", "")
	text = strings.ReplaceAll(text, "\u200C", "")
	text = strings.ReplaceAll(text, "\u200D", "")
	text = strings.ReplaceAll(text, "\uFEFF", "")

	return strings.TrimFunc(text, unicode.IsSpace)
}

// languageHint reduces an HTML lang attribute such as "en-GB" to "en".
func languageHint(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	if len(lang) != 2 {
		return ""
	}
	return lang
}
