// internal/output/markdown.go
package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/valpere/extractstudio/internal/extract"
	"github.com/valpere/extractstudio/pkg/types"
)

// MarkdownWriter writes one section per record.
type MarkdownWriter struct {
	filename string
	file     *os.File
	buf      *bufio.Writer
	started  bool
}

// NewMarkdownWriter creates a new Markdown writer
func NewMarkdownWriter(filename string) (*MarkdownWriter, error) {
	file, err := createFile(filename)
	if err != nil {
		return nil, err
	}
	return &MarkdownWriter{filename: filename, file: file, buf: bufio.NewWriter(file)}, nil
}

func (w *MarkdownWriter) Write(records []types.EnrichedRecord) error {
	for i := range records {
		if w.started {
			w.buf.WriteString("\n---\n\n")
		}
		w.started = true
		if err := writeMarkdownSection(w.buf, &records[i]); err != nil {
			return err
		}
	}
	return w.buf.Flush()
}

func (w *MarkdownWriter) Close() error {
	if w.file == nil {
		return nil
	}
	flushErr := w.buf.Flush()
	err := w.file.Close()
	w.file = nil
	if flushErr != nil {
		return flushErr
	}
	return err
}

func writeMarkdownSection(b *bufio.Writer, rec *types.EnrichedRecord) error {
	title := rec.Title
	if title == "" {
		title = rec.SourceURL
	}
	fmt.Fprintf(b, "## %s\n\n", title)
	fmt.Fprintf(b, "- URL: %s\n", rec.SourceURL)
	if rec.SourceName != "" {
		fmt.Fprintf(b, "- Source: %s (%s)\n", rec.SourceName, rec.SourceType)
	} else {
		fmt.Fprintf(b, "- Source type: %s\n", rec.SourceType)
	}
	fmt.Fprintf(b, "- Language: %s\n", rec.Language)
	fmt.Fprintf(b, "- Quality score: %.1f\n", rec.QualityScore)
	if len(rec.Categories) > 0 {
		fmt.Fprintf(b, "- Categories: %s\n", strings.Join(rec.Categories, ", "))
	}
	if len(rec.Tags) > 0 {
		fmt.Fprintf(b, "- Tags: %s\n", strings.Join(rec.Tags, ", "))
	}
	if rec.Degraded {
		b.WriteString("- Enrichment: fallback\n")
	}

	if text := strings.TrimSpace(rec.PrimaryText); text != "" {
		fmt.Fprintf(b, "\n%s\n", text)
	}

	if len(rec.CustomFields) > 0 {
		data, err := json.MarshalIndent(rec.CustomFields, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode custom fields for %s: %w", rec.SourceURL, err)
		}
		fmt.Fprintf(b, "\n### Custom fields\n\n```json\n%s\n```\n", data)
	}

	if len(rec.StructuredElements) > 0 {
		b.WriteString("\n### Structured elements\n")
		for _, block := range rec.StructuredElements {
			heading := block.Type
			if block.Caption != "" {
				heading += ": " + block.Caption
			} else if block.Heading != "" {
				heading += ": " + block.Heading
			}
			fmt.Fprintf(b, "\n#### %s\n\n", heading)
			if lang, fenced := fenceLanguage(block); fenced {
				fmt.Fprintf(b, "```%s\n%s\n```\n", lang, block.Content)
			} else {
				fmt.Fprintf(b, "%s\n", block.Content)
			}
		}
	}
	return nil
}

// fenceLanguage reports whether a block is code-like and the info string of
// its fence.
func fenceLanguage(block types.StructuredBlock) (string, bool) {
	switch block.Type {
	case extract.BlockFormatted:
		if block.Language == "plaintext" {
			return "", true
		}
		return block.Language, true
	case extract.BlockFullJSON:
		return "json", true
	case extract.BlockFullXML:
		return "xml", true
	default:
		return "", false
	}
}
