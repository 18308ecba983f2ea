// internal/output/json.go
package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/valpere/extractstudio/pkg/types"
)

// JSONWriter writes records as one indented JSON array.
type JSONWriter struct {
	filename string
	file     *os.File
}

// NewJSONWriter creates a new JSON writer
func NewJSONWriter(filename string) (*JSONWriter, error) {
	file, err := createFile(filename)
	if err != nil {
		return nil, err
	}
	return &JSONWriter{filename: filename, file: file}, nil
}

// Write writes data to JSON file
func (w *JSONWriter) Write(records []types.EnrichedRecord) error {
	if records == nil {
		records = []types.EnrichedRecord{}
	}
	encoder := json.NewEncoder(w.file)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(records)
}

// Close closes the JSON writer
func (w *JSONWriter) Close() error {
	if w.file != nil {
		err := w.file.Close()
		w.file = nil
		return err
	}
	return nil
}

// JSONLWriter writes one compact JSON record per line.
type JSONLWriter struct {
	filename string
	file     *os.File
	buf      *bufio.Writer
}

// NewJSONLWriter creates a new JSON Lines writer
func NewJSONLWriter(filename string) (*JSONLWriter, error) {
	file, err := createFile(filename)
	if err != nil {
		return nil, err
	}
	return &JSONLWriter{filename: filename, file: file, buf: bufio.NewWriter(file)}, nil
}

func (w *JSONLWriter) Write(records []types.EnrichedRecord) error {
	encoder := json.NewEncoder(w.buf)
	encoder.SetEscapeHTML(false)
	for i := range records {
		if err := encoder.Encode(&records[i]); err != nil {
			return fmt.Errorf("failed to encode record %s: %w", records[i].SourceURL, err)
		}
	}
	return w.buf.Flush()
}

func (w *JSONLWriter) Close() error {
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

func createFile(filename string) (*os.File, error) {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	return os.Create(filename)
}
