// internal/monitoring/health.go
package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnknown   HealthStatus = "unknown"
)

// HealthCheck is a named probe. A failing critical check makes the whole
// service unhealthy; a failing non-critical one degrades it.
type HealthCheck struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) HealthCheckResult
}

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status   HealthStatus   `json:"status"`
	Message  string         `json:"message,omitempty"`
	Duration time.Duration  `json:"duration"`
	Critical bool           `json:"critical"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// HealthSummary provides a summary of health checks
type HealthSummary struct {
	Total     int `json:"total"`
	Healthy   int `json:"healthy"`
	Unhealthy int `json:"unhealthy"`
	Degraded  int `json:"degraded"`
	Unknown   int `json:"unknown"`
}

// SystemHealth represents overall system health information
type SystemHealth struct {
	Status         HealthStatus                 `json:"status"`
	Timestamp      time.Time                    `json:"timestamp"`
	Version        string                       `json:"version,omitempty"`
	Uptime         string                       `json:"uptime"`
	GoroutineCount int                          `json:"goroutine_count"`
	Checks         map[string]HealthCheckResult `json:"checks,omitempty"`
	Summary        HealthSummary                `json:"summary"`
}

// HealthConfig configuration for health monitoring
type HealthConfig struct {
	Version        string
	DefaultTimeout time.Duration
}

// HealthManager runs the registered checks on demand.
type HealthManager struct {
	mu      sync.RWMutex
	checks  map[string]HealthCheck
	config  HealthConfig
	started time.Time
}

// NewHealthManager creates a new health manager
func NewHealthManager(config HealthConfig) *HealthManager {
	if config.DefaultTimeout == 0 {
		config.DefaultTimeout = 5 * time.Second
	}
	return &HealthManager{
		checks:  make(map[string]HealthCheck),
		config:  config,
		started: time.Now(),
	}
}

// RegisterCheck adds or replaces a check.
func (hm *HealthManager) RegisterCheck(check HealthCheck) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checks[check.Name] = check
}

// GetHealth runs every check and aggregates the results.
func (hm *HealthManager) GetHealth(ctx context.Context) SystemHealth {
	hm.mu.RLock()
	checks := make([]HealthCheck, 0, len(hm.checks))
	for _, check := range hm.checks {
		checks = append(checks, check)
	}
	hm.mu.RUnlock()
	sort.Slice(checks, func(i, j int) bool { return checks[i].Name < checks[j].Name })

	health := SystemHealth{
		Status:         HealthStatusHealthy,
		Timestamp:      time.Now(),
		Version:        hm.config.Version,
		Uptime:         time.Since(hm.started).Round(time.Second).String(),
		GoroutineCount: runtime.NumGoroutine(),
		Checks:         make(map[string]HealthCheckResult, len(checks)),
	}

	for _, check := range checks {
		result := hm.runCheck(ctx, check)
		health.Checks[check.Name] = result
		health.Summary.Total++

		switch result.Status {
		case HealthStatusHealthy:
			health.Summary.Healthy++
		case HealthStatusUnhealthy:
			health.Summary.Unhealthy++
			if check.Critical {
				health.Status = HealthStatusUnhealthy
			} else if health.Status == HealthStatusHealthy {
				health.Status = HealthStatusDegraded
			}
		case HealthStatusDegraded:
			health.Summary.Degraded++
			if health.Status == HealthStatusHealthy {
				health.Status = HealthStatusDegraded
			}
		default:
			health.Summary.Unknown++
			if health.Status == HealthStatusHealthy {
				health.Status = HealthStatusDegraded
			}
		}
	}
	return health
}

func (hm *HealthManager) runCheck(ctx context.Context, check HealthCheck) (result HealthCheckResult) {
	ctx, cancel := context.WithTimeout(ctx, hm.config.DefaultTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = HealthCheckResult{Status: HealthStatusUnhealthy, Message: fmt.Sprintf("check panicked: %v", r)}
		}
		result.Duration = time.Since(start)
		result.Critical = check.Critical
	}()

	if check.Check == nil {
		return HealthCheckResult{Status: HealthStatusUnknown, Message: "no check function"}
	}
	return check.Check(ctx)
}

// HealthHandler serves the aggregated health as JSON. Unhealthy answers 503.
func (hm *HealthManager) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := hm.GetHealth(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if health.Status == HealthStatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(health)
	}
}

// LastRunCheck reports the outcome of the most recent pipeline run seen by
// the collector. A failed run degrades the service.
func LastRunCheck(c *Collector) HealthCheck {
	return HealthCheck{
		Name: "last_run",
		Check: func(context.Context) HealthCheckResult {
			runs, err := c.LastRun()
			switch {
			case runs == 0:
				return HealthCheckResult{Status: HealthStatusHealthy, Message: "no run completed yet"}
			case err != nil:
				return HealthCheckResult{
					Status:   HealthStatusDegraded,
					Message:  err.Error(),
					Metadata: map[string]any{"runs": runs},
				}
			default:
				return HealthCheckResult{Status: HealthStatusHealthy, Metadata: map[string]any{"runs": runs}}
			}
		},
	}
}

// GoroutineHealthCheck degrades when the goroutine count exceeds max.
func GoroutineHealthCheck(max int) HealthCheck {
	return HealthCheck{
		Name: "goroutines",
		Check: func(context.Context) HealthCheckResult {
			count := runtime.NumGoroutine()
			if count > max {
				return HealthCheckResult{
					Status:   HealthStatusDegraded,
					Message:  fmt.Sprintf("high goroutine count: %d > %d", count, max),
					Metadata: map[string]any{"count": count},
				}
			}
			return HealthCheckResult{Status: HealthStatusHealthy, Metadata: map[string]any{"count": count}}
		},
	}
}
