// internal/config/job.go
package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/valpere/extractstudio/internal/errors"
	"github.com/valpere/extractstudio/internal/utils"
)

// Job is a validated, read-only job description.
type Job struct {
	label           string
	domainInfo      map[string]interface{}
	globalUserAgent string
	sources         []SourceDefinition
	settings        Settings
	storage         *StorageConfig

	// query and directURL are set for jobs synthesised from a bare input.
	query     string
	directURL string
}

// Label names the job for logs and records.
func (j *Job) Label() string { return j.label }

// DomainInfo returns the free-form domain_info block.
func (j *Job) DomainInfo() map[string]interface{} { return j.domainInfo }

// Settings returns the effective settings with defaults applied.
func (j *Job) Settings() Settings { return j.settings }

// Storage returns the database sink configuration, or nil.
func (j *Job) Storage() *StorageConfig { return j.storage }

// Sources returns every source in declaration order.
func (j *Job) Sources() []SourceDefinition {
	out := make([]SourceDefinition, len(j.sources))
	copy(out, j.sources)
	return out
}

// SourceByName looks a source up by its unique name.
func (j *Job) SourceByName(name string) (SourceDefinition, bool) {
	for _, src := range j.sources {
		if src.Name == name {
			return src, true
		}
	}
	return SourceDefinition{}, false
}

// SourceForURL returns the first declared source with a seed on the same
// host as rawURL.
func (j *Job) SourceForURL(rawURL string) (SourceDefinition, bool) {
	host := hostOf(rawURL)
	if host == "" {
		return SourceDefinition{}, false
	}
	for _, src := range j.sources {
		for _, seedHost := range src.seedHosts {
			if seedHost == host {
				return src, true
			}
		}
	}
	return SourceDefinition{}, false
}

// UserAgentFor returns the user agent for a source: its own, else the
// job's global one, else the default.
func (j *Job) UserAgentFor(src SourceDefinition) string {
	switch {
	case src.Crawl.UserAgent != "":
		return src.Crawl.UserAgent
	case j.globalUserAgent != "":
		return j.globalUserAgent
	default:
		return DefaultUserAgent
	}
}

// CrawlFor returns a source's crawl parameters with the user agent resolved.
func (j *Job) CrawlFor(name string) (CrawlParams, bool) {
	src, ok := j.SourceByName(name)
	if !ok {
		return CrawlParams{}, false
	}
	crawl := src.Crawl
	crawl.UserAgent = j.UserAgentFor(src)
	return crawl, true
}

// IsQuery reports whether the job was synthesised from a search query.
func (j *Job) IsQuery() bool { return j.query != "" }

// Query returns the search query of a query-mode job.
func (j *Job) Query() string { return j.query }

// DirectURL returns the URL of a direct-URL job.
func (j *Job) DirectURL() string { return j.directURL }

// QuerySourceName is the source name used by synthesised jobs.
const QuerySourceName = "query"

// NewQueryJob builds a job for the alternative entry mode: input is either a
// single http(s) URL or a search query. The job has one source without seeds
// for queries (seeds come from search) and one export target under outputDir.
func NewQueryJob(input string, settings Settings, outputDir string) (*Job, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, errors.Config("input", fmt.Errorf("a config file, URL or search query is required"))
	}
	if outputDir == "" {
		outputDir = DefaultOutputDir
	}

	src := SourceDefinition{
		Name: QuerySourceName,
		Crawl: CrawlParams{
			Delay:            0,
			RespectRobotsTxt: true,
		},
	}

	job := &Job{
		settings: applyDefaults(settings),
	}

	if utils.IsHTTPURL(input) {
		src.Seeds = []string{input}
		src.seedHosts = []string{hostOf(input)}
		src.SourceType = "direct_url"
		job.directURL = input
		job.label = hostOf(input)
	} else {
		src.SourceType = "web_search"
		job.query = input
		job.label = input
	}

	src.Export = ExportTarget{
		Format:     FormatJSONL,
		OutputPath: filepath.Join(outputDir, utils.Slugify(job.label, 60)+".jsonl"),
	}
	job.sources = []SourceDefinition{src}
	return job, nil
}

// WithSeeds returns a copy of a query job whose source has the given seeds.
func (j *Job) WithSeeds(seeds []string) *Job {
	clone := *j
	clone.sources = j.Sources()
	if len(clone.sources) == 0 {
		return &clone
	}
	src := clone.sources[0]
	src.Seeds = append([]string(nil), seeds...)
	src.seedHosts = make([]string, 0, len(seeds))
	for _, seed := range seeds {
		src.seedHosts = append(src.seedHosts, hostOf(seed))
	}
	clone.sources[0] = src
	return &clone
}

// SeedHosts returns the hosts of a source's seeds.
func (s SourceDefinition) SeedHosts() []string {
	return append([]string(nil), s.seedHosts...)
}

func hostOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
