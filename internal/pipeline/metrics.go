// internal/pipeline/metrics.go
package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/valpere/extractstudio/internal/errors"
)

// Metrics are the run-scoped counters of one pipeline run. The orchestrator
// mutates them; callers only read.
type Metrics struct {
	mu sync.Mutex

	StartTime time.Time
	EndTime   time.Time

	TotalURLs          int
	SuccessfulFetches  int
	FailedFetches      int
	ParsedItems        int
	NormalizedItems    int
	EnrichedItems      int
	DegradedItems      int
	DuplicatesFiltered int
	QualityFiltered    int

	errs   []string
	byKind map[errors.Kind]int
	fatal  error
}

// NewMetrics starts a metrics record at now.
func NewMetrics() *Metrics {
	return &Metrics{StartTime: time.Now(), byKind: make(map[errors.Kind]int)}
}

// AddError records a recovered error.
func (m *Metrics) AddError(err error) {
	if err == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, err.Error())
	kind, ok := errors.KindOf(err)
	if !ok {
		kind = errors.KindPipeline
	}
	m.byKind[kind]++
}

// Fail records the error that stopped the run. Only the first one is kept
// as the run outcome; every one is added to the error list.
func (m *Metrics) Fail(err error) {
	m.AddError(err)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fatal == nil {
		m.fatal = err
	}
}

// Err returns the CONFIG_ERROR or PIPELINE_FAILURE that changed the outcome
// of the run, or nil.
func (m *Metrics) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fatal
}

// Errors returns every recorded error message in order.
func (m *Metrics) Errors() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.errs...)
}

// ErrorsByKind counts recorded errors per kind.
func (m *Metrics) ErrorsByKind() map[errors.Kind]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[errors.Kind]int, len(m.byKind))
	for k, v := range m.byKind {
		out[k] = v
	}
	return out
}

// Finish stamps the end time once.
func (m *Metrics) Finish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EndTime.IsZero() {
		m.EndTime = time.Now()
	}
}

// Duration is the run time so far, or the total once finished.
func (m *Metrics) Duration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	end := m.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(m.StartTime)
}

// SuccessRate is the percentage of URLs fetched successfully.
func (m *Metrics) SuccessRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.TotalURLs == 0 {
		return 0
	}
	return float64(m.SuccessfulFetches) / float64(m.TotalURLs) * 100
}

// Summary is the batch-level run summary.
func (m *Metrics) Summary() map[string]any {
	duration := m.Duration().Seconds()
	rate := m.SuccessRate()

	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]any{
		"duration_seconds":    duration,
		"total_urls":          m.TotalURLs,
		"success_rate":        fmt.Sprintf("%.1f%%", rate),
		"successful_fetches":  m.SuccessfulFetches,
		"failed_fetches":      m.FailedFetches,
		"parsed_items":        m.ParsedItems,
		"normalized_items":    m.NormalizedItems,
		"enriched_items":      m.EnrichedItems,
		"duplicates_filtered": m.DuplicatesFiltered,
		"quality_filtered":    m.QualityFiltered,
		"error_count":         len(m.errs),
	}
}
