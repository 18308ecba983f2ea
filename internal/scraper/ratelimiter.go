// internal/scraper/ratelimiter.go
package scraper

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SourceLimiters spaces requests per source according to its crawl delay.
// Sources with no delay are not limited.
type SourceLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewSourceLimiters creates an empty registry.
func NewSourceLimiters() *SourceLimiters {
	return &SourceLimiters{limiters: make(map[string]*rate.Limiter)}
}

// Wait blocks until source may issue another request. The first request of
// a source never waits. The delay of the first call for a source wins.
func (s *SourceLimiters) Wait(ctx context.Context, source string, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	return s.limiter(source, delay).Wait(ctx)
}

func (s *SourceLimiters) limiter(source string, delay time.Duration) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.limiters[source]
	if !ok {
		l = rate.NewLimiter(rate.Every(delay), 1)
		s.limiters[source] = l
	}
	return l
}
