// internal/pipeline/pipeline.go
package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/valpere/extractstudio/internal/config"
	"github.com/valpere/extractstudio/internal/errors"
	"github.com/valpere/extractstudio/internal/extract"
	"github.com/valpere/extractstudio/internal/nlp"
	"github.com/valpere/extractstudio/internal/scraper"
	"github.com/valpere/extractstudio/internal/search"
	"github.com/valpere/extractstudio/internal/utils"
	"github.com/valpere/extractstudio/pkg/types"
)

// ProgressFunc receives a message and a completion percentage at each stage
// boundary.
type ProgressFunc func(message string, percent int)

const totalSteps = 8

// Options configures a Pipeline. Every field is optional.
type Options struct {
	Logger   utils.Logger
	Progress ProgressFunc
	// Searcher provides seeds for query-mode input. Without one, queries fail.
	Searcher search.Searcher
	NLP      nlp.Backend
	Observer Observer
	// OutputDir holds the export file of query-mode jobs.
	OutputDir string
	// Settings apply to jobs synthesised from a URL or query.
	Settings config.Settings
	// Transport overrides the HTTP transport, mainly for tests.
	Transport          http.RoundTripper
	DisableReadability bool
}

// Pipeline runs jobs: fetch, route, dedup, quality filter and enrich.
type Pipeline struct {
	opts     Options
	logger   utils.Logger
	observer Observer
}

// New creates a pipeline.
func New(opts Options) *Pipeline {
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	if opts.NLP == nil {
		opts.NLP = nlp.Noop{}
	}
	return &Pipeline{opts: opts, logger: utils.OrNop(opts.Logger), observer: observer}
}

// IsConfigPath reports whether input names an existing YAML or JSON file.
func IsConfigPath(input string) bool {
	switch strings.ToLower(filepath.Ext(input)) {
	case ".yaml", ".yml", ".json":
	default:
		return false
	}
	info, err := os.Stat(input)
	return err == nil && !info.IsDir()
}

// Run resolves input to a job and runs it. input is a config file path, a
// single http(s) URL or a search query. It always returns the records
// produced so far and the run metrics; Metrics.Err reports a config error
// or a pipeline failure.
func (p *Pipeline) Run(ctx context.Context, input string) ([]types.EnrichedRecord, *Metrics) {
	metrics := NewMetrics()
	p.progress("Initializing configuration", 1)

	start := time.Now()
	job, err := p.resolveJob(input)
	p.observer.ObserveStage(StageConfig, time.Since(start))
	if err != nil {
		p.logger.Errorf("failed to load job %q: %v", input, err)
		return p.abort(metrics, err)
	}
	return p.run(ctx, job, metrics)
}

// RunJob runs an already loaded job.
func (p *Pipeline) RunJob(ctx context.Context, job *config.Job) ([]types.EnrichedRecord, *Metrics) {
	metrics := NewMetrics()
	p.progress("Initializing configuration", 1)
	if job == nil {
		return p.abort(metrics, errors.Config("job", fmt.Errorf("no job to run")))
	}
	return p.run(ctx, job, metrics)
}

func (p *Pipeline) resolveJob(input string) (*config.Job, error) {
	if IsConfigPath(input) {
		return config.Load(input)
	}
	return config.NewQueryJob(input, p.opts.Settings, p.opts.OutputDir)
}

func (p *Pipeline) abort(metrics *Metrics, err error) ([]types.EnrichedRecord, *Metrics) {
	metrics.Fail(err)
	metrics.Finish()
	p.observer.ObserveRun(metrics)
	return []types.EnrichedRecord{}, metrics
}

func (p *Pipeline) run(ctx context.Context, job *config.Job, metrics *Metrics) (records []types.EnrichedRecord, m *Metrics) {
	records, m = []types.EnrichedRecord{}, metrics
	logger := p.logger.WithField("job", job.Label())
	logger.Infof("pipeline starting for %q", job.Label())

	p.progress("Initializing components", 2)
	settings := job.Settings()
	client := scraper.NewHTTPClient(scraper.ClientConfig{
		Timeout:      settings.RequestTimeout,
		MaxRedirects: settings.MaxRedirects,
		UserAgent:    config.DefaultUserAgent,
		Transport:    p.opts.Transport,
	})
	pool := scraper.NewFetcherPool(client, settings.MaxConcurrentFetchers, logger,
		scraper.WithResultHook(func(task scraper.Task, _ *types.FetchedDocument, err error, elapsed time.Duration) {
			p.observer.ObserveFetch(task.SourceName, err, elapsed)
		}))
	fetched := &fetchTracker{pool: pool, metrics: metrics}

	defer func() {
		if r := recover(); r != nil {
			metrics.Fail(errors.Pipeline("run", fmt.Errorf("panic: %v", r)))
			logger.Errorf("critical pipeline failure: %v", r)
		}
		pool.Shutdown()
		fetched.update()
		metrics.Finish()
		p.logSummary(logger, metrics)
		p.observer.ObserveRun(metrics)
	}()

	var hints map[string]string
	if job.IsQuery() {
		var err error
		job, hints, err = p.discoverSeeds(ctx, job)
		if err != nil {
			metrics.Fail(errors.Pipeline("search", err))
			return records, metrics
		}
	}

	p.progress("Preparing fetch tasks", 3)
	tasks := seedTasks(job, hints)
	if len(tasks) == 0 {
		metrics.Fail(errors.Pipeline("prepare", fmt.Errorf("no URLs prepared for fetching")))
		return records, metrics
	}
	logger.Infof("prepared %d URLs for fetching", len(tasks))

	router := extract.NewRouter(job, logger,
		extract.WithErrorHook(metrics.AddError),
		extract.WithReadability(!p.opts.DisableReadability))

	parsed, err := p.crawl(ctx, job, pool, router, tasks, fetched)
	if err != nil {
		metrics.Fail(err)
		return records, metrics
	}

	p.progress("Normalizing & deduplicating", 6)
	start := time.Now()
	normalized := p.normalize(parsed, metrics)
	p.observer.ObserveStage(StageNormalize, time.Since(start))
	if err := ctx.Err(); err != nil {
		metrics.Fail(errors.Pipeline("normalize", err))
		return records, metrics
	}

	p.progress("Quality filtering", 7)
	start = time.Now()
	kept, filtered := NewQualityFilter(settings.Quality, logger).Filter(normalized)
	metrics.QualityFiltered = filtered
	p.observer.ObserveStage(StageQuality, time.Since(start))

	p.progress("Enriching content", 8)
	start = time.Now()
	enricher := NewEnricher(p.opts.NLP, logger)
	for _, rec := range kept {
		if err := ctx.Err(); err != nil {
			metrics.Fail(errors.Pipeline("enrich", err))
			return records, metrics
		}
		outcome := enricher.enrich(rec)
		if outcome.Recovered {
			metrics.AddError(outcome.Err)
			metrics.DegradedItems++
		}
		records = append(records, outcome.Record)
		metrics.EnrichedItems = len(records)
	}
	p.observer.ObserveStage(StageEnrich, time.Since(start))
	logger.Infof("enriched %d items", len(records))

	return records, metrics
}

// crawl fetches in rounds: the seeds first, then links found at each depth
// until every source's crawl depth or page budget is used up. Each round is
// fully drained before its documents are routed.
func (p *Pipeline) crawl(ctx context.Context, job *config.Job, pool *scraper.FetcherPool, router *extract.Router, seeds []scraper.Task, fetched *fetchTracker) ([]*types.ParsedRecord, error) {
	frontier := newFrontier(job)
	pending := frontier.admitSeeds(seeds)

	var parsed []*types.ParsedRecord
	for round := 0; len(pending) > 0; round++ {
		for _, task := range pending {
			pool.Submit(ctx, task)
		}

		p.progress(fmt.Sprintf("Fetching content (%d URLs)", len(pending)), 4)
		start := time.Now()
		docs := pool.Drain()
		p.observer.ObserveStage(StageFetch, time.Since(start))
		fetched.update()
		p.logger.Infof("fetched %d items (success rate: %.1f%%)", len(docs), fetched.metrics.SuccessRate())

		if err := ctx.Err(); err != nil {
			return parsed, errors.Pipeline("fetch", err)
		}

		p.progress("Parsing content", 5)
		start = time.Now()
		roundParsed := p.parse(docs, router, frontier)
		p.observer.ObserveStage(StageParse, time.Since(start))
		fetched.metrics.ParsedItems += len(roundParsed)
		parsed = append(parsed, roundParsed...)

		pending = frontier.next(router, roundParsed)
		if len(pending) > 0 {
			p.logger.Infof("following %d links at depth %d", len(pending), round+1)
		}
	}

	p.logger.Infof("parsed %d items", len(parsed))
	return parsed, nil
}

func (p *Pipeline) parse(docs []types.FetchedDocument, router *extract.Router, frontier *frontier) []*types.ParsedRecord {
	var out []*types.ParsedRecord
	for _, doc := range docs {
		frontier.markVisited(doc.SourceURL)
		if !doc.HasContent() {
			p.logger.Warnf("no content fetched for %s", doc.SourceURL)
			continue
		}
		if rec, ok := router.Route(doc); ok {
			out = append(out, rec)
		}
	}
	return out
}

func (p *Pipeline) normalize(parsed []*types.ParsedRecord, metrics *Metrics) []types.NormalizedRecord {
	dedup := NewDeduplicator()
	normalized := make([]types.NormalizedRecord, 0, len(parsed))
	for _, rec := range parsed {
		sig := Signature(rec)
		if dedup.IsDuplicate(sig) {
			metrics.DuplicatesFiltered++
			p.logger.Debugf("duplicate content skipped: %s", rec.SourceURL)
			continue
		}
		dedup.Add(sig)
		normalized = append(normalized, Normalize(rec))
	}
	metrics.NormalizedItems = len(normalized)
	p.logger.Infof("normalized %d unique items (filtered %d duplicates)", len(normalized), metrics.DuplicatesFiltered)
	return normalized
}

func (p *Pipeline) discoverSeeds(ctx context.Context, job *config.Job) (*config.Job, map[string]string, error) {
	if p.opts.Searcher == nil {
		return nil, nil, fmt.Errorf("input %q is not a URL and search is not available", job.Query())
	}
	p.logger.Infof("searching for %q", job.Query())

	results, err := p.opts.Searcher.Search(ctx, job.Query(), job.Settings().Search.MaxResults)
	if err != nil {
		return nil, nil, fmt.Errorf("search failed: %w", err)
	}

	hints := make(map[string]string, len(results))
	seeds := make([]string, 0, len(results))
	for _, r := range results {
		if r.URL == "" {
			continue
		}
		seeds = append(seeds, r.URL)
		hints[r.URL] = r.Title
	}
	if len(seeds) == 0 {
		return nil, nil, fmt.Errorf("search for %q returned no results", job.Query())
	}
	return job.WithSeeds(seeds), hints, nil
}

func (p *Pipeline) progress(message string, step int) {
	percent := step * 100 / totalSteps
	if p.opts.Progress != nil {
		p.opts.Progress(fmt.Sprintf("%s (%d/%d)", message, step, totalSteps), percent)
	}
	p.logger.Infof("pipeline progress: %s - %d%%", message, percent)
}

func (p *Pipeline) logSummary(logger utils.Logger, metrics *Metrics) {
	logger.WithFields(metrics.Summary()).Info("pipeline completed")

	errs := metrics.Errors()
	if len(errs) == 0 {
		return
	}
	logger.Warnf("%d errors logged during the run", len(errs))
	for i, msg := range head(errs, 3) {
		logger.Warnf("  %d. %s", i+1, msg)
	}
}

func seedTasks(job *config.Job, hints map[string]string) []scraper.Task {
	var tasks []scraper.Task
	seen := make(map[string]bool)
	for _, src := range job.Sources() {
		for _, seed := range src.Seeds {
			if seen[seed] {
				continue
			}
			seen[seed] = true
			task := taskFor(job, src, seed, 0)
			task.TitleHint = hints[seed]
			tasks = append(tasks, task)
		}
	}
	return tasks
}

func taskFor(job *config.Job, src config.SourceDefinition, rawURL string, depth int) scraper.Task {
	sourceType := src.SourceType
	if sourceType == "" {
		sourceType = src.Name
	}
	return scraper.Task{
		URL:           rawURL,
		SourceName:    src.Name,
		SourceType:    sourceType,
		JobLabel:      job.Label(),
		UserAgent:     job.UserAgentFor(src),
		Delay:         src.Crawl.Delay,
		RespectRobots: src.Crawl.RespectRobotsTxt,
		Depth:         depth,
	}
}

// fetchTracker copies pool counters and new failures into the metrics.
type fetchTracker struct {
	pool     *scraper.FetcherPool
	metrics  *Metrics
	reported int
}

func (f *fetchTracker) update() {
	stats := f.pool.Stats()
	f.metrics.TotalURLs = stats.Submitted
	f.metrics.SuccessfulFetches = stats.Succeeded
	f.metrics.FailedFetches = stats.Failed

	failures := f.pool.Failures()
	for _, failure := range failures[f.reported:] {
		f.metrics.AddError(failure.Err)
	}
	f.reported = len(failures)
}
