// internal/output/manager.go
package output

import (
	"fmt"
	"os"
	"time"

	"github.com/valpere/extractstudio/internal/config"
	"github.com/valpere/extractstudio/internal/errors"
	"github.com/valpere/extractstudio/internal/utils"
	"github.com/valpere/extractstudio/pkg/types"
)

// Manager writes enriched records to the export targets of a job.
type Manager struct {
	logger utils.Logger
}

// NewManager creates a new output manager
func NewManager(logger utils.Logger) *Manager {
	return &Manager{logger: utils.OrNop(logger)}
}

// NewWriter returns the writer for the target's format.
func (m *Manager) NewWriter(target config.ExportTarget) (Writer, error) {
	switch target.Format {
	case config.FormatJSONL:
		return NewJSONLWriter(target.OutputPath)
	case config.FormatJSON:
		return NewJSONWriter(target.OutputPath)
	case config.FormatCSV:
		return NewCSVWriter(target.OutputPath)
	case config.FormatMarkdown:
		return NewMarkdownWriter(target.OutputPath)
	default:
		return nil, fmt.Errorf("unsupported output format: %s", target.Format)
	}
}

// Export writes records to a single target.
func (m *Manager) Export(records []types.EnrichedRecord, target config.ExportTarget) (Result, error) {
	start := time.Now()
	result := Result{FilePath: target.OutputPath, Format: string(target.Format), RecordsCount: len(records)}

	fail := func(err error) (Result, error) {
		err = errors.Output("export "+target.OutputPath, err)
		result.Duration = time.Since(start)
		result.Error = err.Error()
		m.logger.Errorf("export failed: %v", err)
		return result, err
	}

	writer, err := m.NewWriter(target)
	if err != nil {
		return fail(err)
	}
	if err := writer.Write(records); err != nil {
		writer.Close()
		return fail(err)
	}
	if err := writer.Close(); err != nil {
		return fail(err)
	}

	if info, err := os.Stat(target.OutputPath); err == nil {
		result.Size = info.Size()
	}
	result.Success = true
	result.Duration = time.Since(start)
	m.logger.Infof("exported %d records to %s (%s)", len(records), target.OutputPath, target.Format)
	return result, nil
}

// ExportJob writes each record to its source's target. Sources sharing an
// output path share one file. Every target is written, even with no
// records. A failing target does not stop the others; their errors are
// joined.
func (m *Manager) ExportJob(job *config.Job, records []types.EnrichedRecord) ([]Result, error) {
	sources := job.Sources()
	if len(sources) == 0 {
		return nil, nil
	}

	var (
		order   []string
		targets = make(map[string]config.ExportTarget)
		grouped = make(map[string][]types.EnrichedRecord)
	)
	for _, src := range sources {
		path := src.Export.OutputPath
		if _, ok := targets[path]; !ok {
			order = append(order, path)
			targets[path] = src.Export
		}
	}

	for _, rec := range records {
		src, ok := job.SourceByName(rec.SourceName)
		if !ok {
			src, ok = job.SourceForURL(rec.SourceURL)
		}
		if !ok {
			src = sources[0]
			m.logger.Warnf("no source named %q; exporting %s to %s", rec.SourceName, rec.SourceURL, src.Export.OutputPath)
		}
		grouped[src.Export.OutputPath] = append(grouped[src.Export.OutputPath], rec)
	}

	results := make([]Result, 0, len(order))
	var errs []error
	for _, path := range order {
		result, err := m.Export(grouped[path], targets[path])
		results = append(results, result)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return results, errors.Join(errs...)
}
