// internal/pipeline/frontier.go
package pipeline

import (
	"github.com/valpere/extractstudio/internal/config"
	"github.com/valpere/extractstudio/internal/extract"
	"github.com/valpere/extractstudio/internal/scraper"
	"github.com/valpere/extractstudio/pkg/types"
)

// frontier decides which followed links are fetched in the next round. A
// URL is fetched at most once per run and each source is capped at
// max_pages_per_source pages, seeds included.
type frontier struct {
	job      *config.Job
	maxPages int
	visited  map[string]bool
	pages    map[string]int
}

func newFrontier(job *config.Job) *frontier {
	maxPages := job.Settings().MaxPagesPerSource
	if maxPages <= 0 {
		maxPages = config.DefaultMaxPagesPerSource
	}
	return &frontier{
		job:      job,
		maxPages: maxPages,
		visited:  make(map[string]bool),
		pages:    make(map[string]int),
	}
}

// admitSeeds accepts every seed regardless of the page budget.
func (f *frontier) admitSeeds(seeds []scraper.Task) []scraper.Task {
	out := make([]scraper.Task, 0, len(seeds))
	for _, task := range seeds {
		if f.visited[task.URL] {
			continue
		}
		f.visited[task.URL] = true
		f.pages[task.SourceName]++
		out = append(out, task)
	}
	return out
}

func (f *frontier) markVisited(rawURL string) {
	f.visited[rawURL] = true
}

// next returns the tasks for links found in records that are still within
// their source's crawl depth.
func (f *frontier) next(router *extract.Router, records []*types.ParsedRecord) []scraper.Task {
	var tasks []scraper.Task
	for _, rec := range records {
		src, ok := f.job.SourceByName(rec.SourceName)
		if !ok || rec.Depth >= src.Crawl.Depth {
			continue
		}
		for _, link := range router.FollowLinks(rec) {
			if f.visited[link] {
				continue
			}
			if f.pages[src.Name] >= f.maxPages {
				break
			}
			f.visited[link] = true
			f.pages[src.Name]++
			tasks = append(tasks, taskFor(f.job, src, link, rec.Depth+1))
		}
	}
	return tasks
}
