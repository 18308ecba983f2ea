// internal/output/csv.go
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/valpere/extractstudio/pkg/types"
)

// CSVColumns is the fixed header of CSV exports.
var CSVColumns = []string{
	"id", "source_url", "source_name", "source_type", "job_label", "title", "language",
	"quality_score", "categories", "tags", "structured_elements", "custom_fields",
	"degraded", "enriched_at", "primary_text",
}

// CSVWriter writes data in CSV format
type CSVWriter struct {
	filename string
	file     *os.File
	writer   *csv.Writer
	header   bool
}

// NewCSVWriter creates a new CSV writer
func NewCSVWriter(filename string) (*CSVWriter, error) {
	file, err := createFile(filename)
	if err != nil {
		return nil, err
	}
	return &CSVWriter{
		filename: filename,
		file:     file,
		writer:   csv.NewWriter(file),
	}, nil
}

// Write writes the header once, then one row per record. Custom fields are
// kept as a JSON object in a single column.
func (w *CSVWriter) Write(records []types.EnrichedRecord) error {
	if !w.header {
		if err := w.writer.Write(CSVColumns); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		w.header = true
	}

	for i := range records {
		row, err := csvRow(&records[i])
		if err != nil {
			return err
		}
		if err := w.writer.Write(row); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}

	w.writer.Flush()
	return w.writer.Error()
}

// Close closes the CSV writer
func (w *CSVWriter) Close() error {
	if w.writer != nil {
		w.writer.Flush()
		w.writer = nil
	}
	if w.file != nil {
		err := w.file.Close()
		w.file = nil
		return err
	}
	return nil
}

func csvRow(rec *types.EnrichedRecord) ([]string, error) {
	fields, err := json.Marshal(rec.CustomFields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode custom fields for %s: %w", rec.SourceURL, err)
	}

	return []string{
		rec.ID,
		rec.SourceURL,
		rec.SourceName,
		rec.SourceType,
		rec.JobLabel,
		rec.Title,
		rec.Language,
		strconv.FormatFloat(rec.QualityScore, 'f', 1, 64),
		strings.Join(rec.Categories, ";"),
		strings.Join(rec.Tags, ";"),
		strconv.Itoa(len(rec.StructuredElements)),
		string(fields),
		strconv.FormatBool(rec.Degraded),
		rec.EnrichedAt.UTC().Format(time.RFC3339),
		rec.PrimaryText,
	}, nil
}
