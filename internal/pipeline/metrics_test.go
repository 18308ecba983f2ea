// internal/pipeline/metrics_test.go
package pipeline

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/valpere/extractstudio/internal/errors"
)

func TestMetrics_Summary(t *testing.T) {
	m := NewMetrics()
	m.StartTime = time.Now().Add(-2 * time.Second)
	m.TotalURLs = 5
	m.SuccessfulFetches = 3
	m.FailedFetches = 2
	m.ParsedItems = 3
	m.NormalizedItems = 2
	m.DuplicatesFiltered = 1
	m.QualityFiltered = 1
	m.EnrichedItems = 1
	m.AddError(errors.Fetch("https://example.com/a", 500, fmt.Errorf("boom")))
	m.AddError(fmt.Errorf("untyped"))
	m.AddError(nil)
	m.Finish()

	summary := m.Summary()
	assert.Equal(t, "60.0%", summary["success_rate"])
	assert.Equal(t, 5, summary["total_urls"])
	assert.Equal(t, 3, summary["successful_fetches"])
	assert.Equal(t, 2, summary["failed_fetches"])
	assert.Equal(t, 3, summary["parsed_items"])
	assert.Equal(t, 2, summary["normalized_items"])
	assert.Equal(t, 1, summary["enriched_items"])
	assert.Equal(t, 1, summary["duplicates_filtered"])
	assert.Equal(t, 1, summary["quality_filtered"])
	assert.Equal(t, 2, summary["error_count"])
	assert.InDelta(t, 2.0, summary["duration_seconds"], 0.5)

	assert.Equal(t, map[errors.Kind]int{errors.KindFetch: 1, errors.KindPipeline: 1}, m.ErrorsByKind())
	assert.NoError(t, m.Err())
}

func TestMetrics_FailKeepsFirst(t *testing.T) {
	m := NewMetrics()
	first := errors.Config("sources", fmt.Errorf("at least one source is required"))
	m.Fail(first)
	m.Fail(errors.Pipeline("run", fmt.Errorf("later")))

	assert.Equal(t, first, m.Err())
	assert.Len(t, m.Errors(), 2)
	assert.Equal(t, 0.0, m.SuccessRate())
}
