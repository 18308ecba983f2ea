// internal/config/types.go

// Package config provides the job description for an extraction run: the
// sources to fetch, the selector rules applied to each page, crawl
// politeness and the export target for the resulting records.
package config

import (
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DomainConfig is the raw job document as written by the user.
type DomainConfig struct {
	// DomainInfo is free-form project metadata; "name" labels the job
	DomainInfo map[string]interface{} `yaml:"domain_info,omitempty" json:"domain_info,omitempty"`

	// GlobalUserAgent applies to every source without its own user_agent
	GlobalUserAgent string `yaml:"global_user_agent,omitempty" json:"global_user_agent,omitempty"`

	// Sources lists the data sources of the job
	Sources []SourceConfig `yaml:"sources" json:"sources"`

	// Settings tunes the pipeline; every key is optional
	Settings Settings `yaml:"settings,omitempty" json:"settings,omitempty"`

	// Storage optionally persists final records to a database
	Storage *StorageConfig `yaml:"storage,omitempty" json:"storage,omitempty"`
}

// SourceConfig is one named data source.
type SourceConfig struct {
	Name       string          `yaml:"name" json:"name"`
	Seeds      []string        `yaml:"seeds" json:"seeds"`
	SourceType string          `yaml:"source_type,omitempty" json:"source_type,omitempty"`
	Selectors  SelectorsConfig `yaml:"selectors,omitempty" json:"selectors,omitempty"`
	Crawl      CrawlConfig     `yaml:"crawl,omitempty" json:"crawl,omitempty"`
	Export     *ExportConfig   `yaml:"export" json:"export"`
}

// SelectorsConfig holds page-level selectors and the custom field rules.
type SelectorsConfig struct {
	Title         string              `yaml:"title,omitempty" json:"title,omitempty"`
	MainContent   string              `yaml:"main_content,omitempty" json:"main_content,omitempty"`
	LinksToFollow string              `yaml:"links_to_follow,omitempty" json:"links_to_follow,omitempty"`
	CustomFields  []CustomFieldConfig `yaml:"custom_fields,omitempty" json:"custom_fields,omitempty"`
}

// CustomFieldConfig is the raw, recursive selector rule.
type CustomFieldConfig struct {
	Name          string              `yaml:"name" json:"name"`
	Selector      string              `yaml:"selector" json:"selector"`
	ExtractType   string              `yaml:"extract_type,omitempty" json:"extract_type,omitempty"`
	AttributeName string              `yaml:"attribute_name,omitempty" json:"attribute_name,omitempty"`
	IsList        bool                `yaml:"is_list,omitempty" json:"is_list,omitempty"`
	SubSelectors  []CustomFieldConfig `yaml:"sub_selectors,omitempty" json:"sub_selectors,omitempty"`
}

// CrawlConfig holds per-source politeness parameters.
type CrawlConfig struct {
	// Depth is how many link hops to follow from the seeds; 0 fetches seeds only
	Depth int `yaml:"depth,omitempty" json:"depth,omitempty"`

	// DelaySeconds is the minimum spacing between requests to this source
	DelaySeconds *float64 `yaml:"delay_seconds,omitempty" json:"delay_seconds,omitempty"`

	UserAgent string `yaml:"user_agent,omitempty" json:"user_agent,omitempty"`

	RespectRobotsTxt *bool `yaml:"respect_robots_txt,omitempty" json:"respect_robots_txt,omitempty"`
}

// ExportConfig is where a source's records are written.
type ExportConfig struct {
	Format     string `yaml:"format" json:"format"`
	OutputPath string `yaml:"output_path" json:"output_path"`
}

// Settings are job-wide pipeline knobs.
type Settings struct {
	MaxConcurrentFetchers int             `yaml:"max_concurrent_fetchers,omitempty" json:"max_concurrent_fetchers,omitempty"`
	RequestTimeout        time.Duration   `yaml:"request_timeout,omitempty" json:"request_timeout,omitempty"`
	MaxRedirects          int             `yaml:"max_redirects,omitempty" json:"max_redirects,omitempty"`
	MinMainTextLength     int             `yaml:"min_main_text_length,omitempty" json:"min_main_text_length,omitempty"`
	MaxPagesPerSource     int             `yaml:"max_pages_per_source,omitempty" json:"max_pages_per_source,omitempty"`
	Quality               QualitySettings `yaml:"quality,omitempty" json:"quality,omitempty"`
	Search                SearchSettings  `yaml:"search,omitempty" json:"search,omitempty"`
}

// QualitySettings configures the quality filter.
type QualitySettings struct {
	Enabled             *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	MinScore            *int  `yaml:"min_score,omitempty" json:"min_score,omitempty"`
	MinLength           int   `yaml:"min_length,omitempty" json:"min_length,omitempty"`
	SubstantialLength   int   `yaml:"substantial_length,omitempty" json:"substantial_length,omitempty"`
	ComprehensiveLength int   `yaml:"comprehensive_length,omitempty" json:"comprehensive_length,omitempty"`
}

// IsEnabled reports whether quality filtering runs. Defaults to true.
func (q QualitySettings) IsEnabled() bool {
	return q.Enabled == nil || *q.Enabled
}

// Threshold returns the minimum admitted score. Defaults to 3.
func (q QualitySettings) Threshold() int {
	if q.MinScore == nil {
		return DefaultQualityMinScore
	}
	return *q.MinScore
}

// SearchSettings configures query-mode seed discovery.
type SearchSettings struct {
	MaxResults int `yaml:"max_results,omitempty" json:"max_results,omitempty"`
}

// StorageConfig selects a database sink for final records.
type StorageConfig struct {
	Driver   string `yaml:"driver" json:"driver"`
	DSN      string `yaml:"dsn" json:"dsn"`
	Table    string `yaml:"table,omitempty" json:"table,omitempty"`
	Database string `yaml:"database,omitempty" json:"database,omitempty"`
}

// Defaults applied when a job leaves a setting unset.
const (
	DefaultUserAgent             = "ExtractStudio/1.0 (+https://github.com/valpere/extractstudio)"
	DefaultRequestTimeout        = 30 * time.Second
	DefaultMaxConcurrentFetchers = 3
	DefaultMaxRedirects          = 10
	DefaultDelaySeconds          = 1.0
	DefaultMinMainTextLength     = 150
	DefaultMaxPagesPerSource     = 25
	DefaultQualityMinScore       = 3
	DefaultMinLength             = 100
	DefaultSubstantialLength     = 500
	DefaultComprehensiveLength   = 2000
	DefaultSearchResults         = 5
	DefaultStorageTable          = "enriched_records"
	DefaultOutputDir             = "data_exports"
)

// ExportFormat is a supported export file format.
type ExportFormat string

const (
	FormatJSONL    ExportFormat = "jsonl"
	FormatMarkdown ExportFormat = "markdown"
	FormatCSV      ExportFormat = "csv"
	FormatJSON     ExportFormat = "json"
)

// SupportedFormats lists every valid export format.
var SupportedFormats = []ExportFormat{FormatJSONL, FormatMarkdown, FormatCSV, FormatJSON}

// ExtractType names how a selector rule turns matches into values.
type ExtractType string

const (
	ExtractText           ExtractType = "text"
	ExtractAttribute      ExtractType = "attribute"
	ExtractHTML           ExtractType = "html"
	ExtractStructuredList ExtractType = "structured_list"
)

// Extraction is the closed set of extraction modes: TextExtraction,
// AttributeExtraction, HTMLExtraction and StructuredListExtraction.
type Extraction interface {
	Type() ExtractType
}

// TextExtraction yields an element's visible, whitespace-collapsed text.
type TextExtraction struct{}

// AttributeExtraction yields the named attribute of an element.
type AttributeExtraction struct {
	Name string
}

// HTMLExtraction yields an element's serialized markup.
type HTMLExtraction struct{}

// StructuredListExtraction treats each match as a record container that is
// re-scanned with Rules.
type StructuredListExtraction struct {
	Rules []SelectorRule
}

func (TextExtraction) Type() ExtractType           { return ExtractText }
func (AttributeExtraction) Type() ExtractType      { return ExtractAttribute }
func (HTMLExtraction) Type() ExtractType           { return ExtractHTML }
func (StructuredListExtraction) Type() ExtractType { return ExtractStructuredList }

// SelectorRule is a validated custom field rule.
type SelectorRule struct {
	Name     string
	Selector string
	IsList   bool
	Extract  Extraction

	matcher goquery.Matcher
}

// Matcher returns the compiled selector, compiling it on demand for rules
// that were built in code rather than loaded.
func (r SelectorRule) Matcher() (goquery.Matcher, error) {
	if r.matcher != nil {
		return r.matcher, nil
	}
	return compileSelector(r.Selector)
}

// YieldsList reports whether the rule always produces a List.
func (r SelectorRule) YieldsList() bool {
	if _, ok := r.Extract.(StructuredListExtraction); ok {
		return true
	}
	return r.IsList
}

// SelectorSet is a source's page-level selectors plus its field rules.
type SelectorSet struct {
	Title         string
	MainContent   string
	LinksToFollow string
	Rules         []SelectorRule
}

// CrawlParams are the effective crawl parameters of a source.
type CrawlParams struct {
	Depth            int
	Delay            time.Duration
	UserAgent        string
	RespectRobotsTxt bool
}

// ExportTarget is a validated export destination.
type ExportTarget struct {
	Format     ExportFormat
	OutputPath string
}

// SourceDefinition is a validated source.
type SourceDefinition struct {
	Name       string
	Seeds      []string
	SourceType string
	Selectors  SelectorSet
	Crawl      CrawlParams
	Export     ExportTarget

	seedHosts []string
}
