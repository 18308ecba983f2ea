// internal/scraper/pool.go
package scraper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/valpere/extractstudio/internal/errors"
	"github.com/valpere/extractstudio/internal/utils"
	"github.com/valpere/extractstudio/pkg/types"
)

// DefaultWorkers is the pool size used when none is given.
const DefaultWorkers = 3

// Task is one URL to fetch.
type Task struct {
	URL        string
	SourceName string
	SourceType string
	JobLabel   string
	// TitleHint is a title known before fetching, e.g. from search results.
	TitleHint     string
	UserAgent     string
	Delay         time.Duration
	RespectRobots bool
	Depth         int
}

// FetchFailure records why a task produced no document.
type FetchFailure struct {
	Task Task
	Err  error
}

// PoolStats counts tasks over the life of a pool.
type PoolStats struct {
	Submitted int
	Succeeded int
	Failed    int
}

// ResultHook observes every finished task. doc is nil on failure.
type ResultHook func(task Task, doc *types.FetchedDocument, err error, elapsed time.Duration)

// FetcherPool runs fetch tasks with bounded concurrency. A failing task
// never affects its siblings: errors are captured per task.
type FetcherPool struct {
	client   *HTTPClient
	robots   *RobotsChecker
	limiters *SourceLimiters
	sem      *semaphore.Weighted
	logger   utils.Logger
	onResult ResultHook

	wg sync.WaitGroup

	mu       sync.Mutex
	docs     []types.FetchedDocument
	failures []FetchFailure
	stats    PoolStats
	closed   bool

	shutdownOnce sync.Once
}

// PoolOption configures a FetcherPool.
type PoolOption func(*FetcherPool)

// WithResultHook registers a hook called after each task.
func WithResultHook(hook ResultHook) PoolOption {
	return func(p *FetcherPool) { p.onResult = hook }
}

// WithRobotsChecker overrides the robots.txt checker.
func WithRobotsChecker(r *RobotsChecker) PoolOption {
	return func(p *FetcherPool) { p.robots = r }
}

// NewFetcherPool creates a pool running at most workers fetches at once.
func NewFetcherPool(client *HTTPClient, workers int, logger utils.Logger, opts ...PoolOption) *FetcherPool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	logger = utils.OrNop(logger)

	p := &FetcherPool{
		client:   client,
		limiters: NewSourceLimiters(),
		sem:      semaphore.NewWeighted(int64(workers)),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.robots == nil {
		p.robots = NewRobotsChecker(client, logger)
	}
	return p
}

// Submit enqueues a task without blocking. It returns false when the pool
// is shut down; the task is then recorded as failed.
func (p *FetcherPool) Submit(ctx context.Context, task Task) bool {
	p.mu.Lock()
	p.stats.Submitted++
	if p.closed {
		p.mu.Unlock()
		p.recordFailure(task, errors.Pipeline("submit", fmt.Errorf("fetcher pool is shut down")), 0)
		return false
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go p.run(ctx, task)
	return true
}

// Drain blocks until every submitted task has finished and returns the
// documents fetched since the previous Drain, in completion order.
func (p *FetcherPool) Drain() []types.FetchedDocument {
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	docs := p.docs
	p.docs = nil
	return docs
}

// Failures returns every failure recorded so far.
func (p *FetcherPool) Failures() []FetchFailure {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]FetchFailure, len(p.failures))
	copy(out, p.failures)
	return out
}

// Stats returns task counters.
func (p *FetcherPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Shutdown refuses new tasks, waits for in-flight ones and releases idle
// connections. Only the first call has an effect.
func (p *FetcherPool) Shutdown() {
	p.shutdownOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		p.wg.Wait()
		p.client.CloseIdleConnections()
		p.logger.Debug("fetcher pool shut down")
	})
}

func (p *FetcherPool) run(ctx context.Context, task Task) {
	defer p.wg.Done()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			p.recordFailure(task, errors.Fetch(task.URL, 0, fmt.Errorf("panic: %v", r)), time.Since(start))
		}
	}()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.recordFailure(task, errors.Fetch(task.URL, 0, err), time.Since(start))
		return
	}
	defer p.sem.Release(1)

	doc, err := p.fetch(ctx, task)
	if err != nil {
		p.recordFailure(task, err, time.Since(start))
		return
	}
	p.recordSuccess(task, doc, time.Since(start))
}

func (p *FetcherPool) fetch(ctx context.Context, task Task) (*types.FetchedDocument, error) {
	if task.RespectRobots && !p.robots.Allowed(ctx, task.URL, task.UserAgent) {
		return nil, errors.Fetch(task.URL, 0, fmt.Errorf("disallowed by robots.txt"))
	}

	if err := p.limiters.Wait(ctx, task.SourceName, task.Delay); err != nil {
		return nil, errors.Fetch(task.URL, 0, err)
	}

	resp, err := p.client.Get(ctx, task.URL, task.UserAgent)
	if err != nil {
		return nil, err
	}

	doc := &types.FetchedDocument{
		ID:          uuid.NewString(),
		SourceURL:   resp.FinalURL,
		ContentType: MediaType(resp.ContentType),
		SourceType:  task.SourceType,
		SourceName:  task.SourceName,
		JobLabel:    task.JobLabel,
		Title:       task.TitleHint,
		StatusCode:  resp.StatusCode,
		Depth:       task.Depth,
		FetchedAt:   time.Now().UTC(),
	}
	if doc.SourceURL == "" {
		doc.SourceURL = task.URL
	}

	decoded := DecodeBody(resp.Body, resp.ContentType)
	if decoded.Binary {
		doc.ContentBytes = resp.Body
	} else {
		doc.Content = decoded.Text
		doc.Encoding = decoded.Encoding
	}
	return doc, nil
}

func (p *FetcherPool) recordSuccess(task Task, doc *types.FetchedDocument, elapsed time.Duration) {
	p.mu.Lock()
	p.docs = append(p.docs, *doc)
	p.stats.Succeeded++
	p.mu.Unlock()

	p.logger.WithFields(map[string]interface{}{
		"url":     task.URL,
		"source":  task.SourceName,
		"status":  doc.StatusCode,
		"elapsed": elapsed.Round(time.Millisecond).String(),
	}).Debug("fetched")

	if p.onResult != nil {
		p.onResult(task, doc, nil, elapsed)
	}
}

func (p *FetcherPool) recordFailure(task Task, err error, elapsed time.Duration) {
	p.mu.Lock()
	p.failures = append(p.failures, FetchFailure{Task: task, Err: err})
	p.stats.Failed++
	p.mu.Unlock()

	p.logger.WithFields(map[string]interface{}{
		"url":    task.URL,
		"source": task.SourceName,
	}).Warnf("fetch failed: %v", err)

	if p.onResult != nil {
		p.onResult(task, nil, err, elapsed)
	}
}
