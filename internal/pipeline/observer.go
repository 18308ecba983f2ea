// internal/pipeline/observer.go
package pipeline

import "time"

// Stage names reported to observers and progress callbacks.
const (
	StageConfig    = "config"
	StageFetch     = "fetch"
	StageParse     = "parse"
	StageNormalize = "normalize"
	StageQuality   = "quality"
	StageEnrich    = "enrich"
)

// Observer receives run telemetry. ObserveFetch may be called from fetch
// goroutines; implementations must be safe for concurrent use.
type Observer interface {
	ObserveFetch(source string, err error, elapsed time.Duration)
	ObserveStage(stage string, elapsed time.Duration)
	ObserveRun(m *Metrics)
}

type nopObserver struct{}

func (nopObserver) ObserveFetch(string, error, time.Duration) {}
func (nopObserver) ObserveStage(string, time.Duration)        {}
func (nopObserver) ObserveRun(*Metrics)                       {}
