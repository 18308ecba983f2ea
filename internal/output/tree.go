// internal/output/tree.go
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/valpere/extractstudio/internal/extract"
	"github.com/valpere/extractstudio/internal/utils"
	"github.com/valpere/extractstudio/pkg/types"
)

var (
	unsafeNameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	nameRuns        = regexp.MustCompile(`[\s_]+`)

	codeExtensions = map[string]string{
		"python": ".py", "javascript": ".js", "json": ".json", "xml": ".xml", "html": ".html",
		"css": ".css", "yaml": ".yaml", "markdown": ".md", "sql": ".sql", "java": ".java",
		"csharp": ".cs", "bash": ".sh", "shell": ".sh", "go": ".go",
	}
)

// TreeWriter lays records out as directories: one folder per run holding
// one folder per record with metadata.json, main_content.txt and a file per
// structured element.
type TreeWriter struct {
	root   string
	logger utils.Logger
	now    func() time.Time
	count  int
}

// NewTreeWriter creates the run folder baseDir/<runName>.
func NewTreeWriter(baseDir, runName string, logger utils.Logger) (*TreeWriter, error) {
	root := filepath.Join(baseDir, SanitizeFileName(runName, 50))
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", root, err)
	}
	return &TreeWriter{root: root, logger: utils.OrNop(logger), now: time.Now}, nil
}

// Root returns the run folder.
func (w *TreeWriter) Root() string { return w.root }

// Write saves each record. A record whose folder cannot be created is
// skipped; the first such error is returned after the rest are written.
func (w *TreeWriter) Write(records []types.EnrichedRecord) error {
	var firstErr error
	for i := range records {
		if err := w.writeRecord(&records[i]); err != nil {
			w.logger.Errorf("failed to save %s: %v", records[i].SourceURL, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		w.count++
	}
	w.logger.Infof("saved %d of %d items under %s", w.count, len(records), w.root)
	return firstErr
}

func (w *TreeWriter) Close() error { return nil }

func (w *TreeWriter) writeRecord(rec *types.EnrichedRecord) error {
	name := rec.Title
	if name == "" && len(rec.ID) >= 8 {
		name = "item_" + rec.ID[:8]
	}
	dir := filepath.Join(w.root, fmt.Sprintf("%03d_%s", w.count, SanitizeFileName(name, 60)))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	meta := map[string]any{
		"id":                  rec.ID,
		"source_url":          rec.SourceURL,
		"title":               rec.Title,
		"source_type":         rec.SourceType,
		"job_label":           rec.JobLabel,
		"language":            rec.Language,
		"categories":          rec.Categories,
		"tags":                rec.Tags,
		"custom_fields":       rec.CustomFields,
		"quality_score":       rec.QualityScore,
		"degraded":            rec.Degraded,
		"processed_timestamp": w.now().UTC().Format(time.RFC3339),
	}
	data, err := json.MarshalIndent(meta, "", "    ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), data, 0644); err != nil {
		return err
	}

	if rec.PrimaryText != "" {
		if err := os.WriteFile(filepath.Join(dir, "main_content.txt"), []byte(rec.PrimaryText), 0644); err != nil {
			return err
		}
	}

	for i, block := range rec.StructuredElements {
		if strings.TrimSpace(block.Content) == "" {
			continue
		}
		file := fmt.Sprintf("element_%02d_%s%s", i, SanitizeFileName(block.Type, 30), elementExtension(block))
		if err := os.WriteFile(filepath.Join(dir, file), []byte(block.Content), 0644); err != nil {
			w.logger.Warnf("failed to save element %d of %s: %v", i, rec.SourceURL, err)
		}
	}
	return nil
}

func elementExtension(block types.StructuredBlock) string {
	switch {
	case strings.Contains(block.Type, "table_markdown"), strings.Contains(block.Type, "list"):
		return ".md"
	case block.Type == extract.BlockFullJSON:
		return ".json"
	case block.Type == extract.BlockFullXML:
		return ".xml"
	case block.Type == extract.BlockFormatted:
		if ext, ok := codeExtensions[strings.ToLower(block.Language)]; ok {
			return ext
		}
	}
	return ".txt"
}

// SanitizeFileName makes name safe as a single path component.
func SanitizeFileName(name string, maxLen int) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "untitled"
	}
	name = unsafeNameChars.ReplaceAllString(name, "_")
	name = nameRuns.ReplaceAllString(name, "_")
	return utils.TruncateRunes(name, maxLen)
}
