// internal/config/template.go
package config

import (
	"strings"
)

// TemplateTypes lists the names accepted by GenerateTemplate.
var TemplateTypes = []string{"basic", "article", "table"}

// GenerateTemplate generates a starter job for the specified type.
// Unknown types fall back to basic.
func GenerateTemplate(templateType string) DomainConfig {
	switch strings.ToLower(templateType) {
	case "article":
		return generateArticleTemplate()
	case "table":
		return generateTableTemplate()
	default:
		return generateBasicTemplate()
	}
}

func float64Ptr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool          { return &v }

func generateBasicTemplate() DomainConfig {
	return DomainConfig{
		DomainInfo:      map[string]interface{}{"name": "example_domain"},
		GlobalUserAgent: DefaultUserAgent,
		Sources: []SourceConfig{
			{
				Name:       "example_site",
				Seeds:      []string{"https://example.com"},
				SourceType: "website",
				Selectors: SelectorsConfig{
					Title: "h1",
					CustomFields: []CustomFieldConfig{
						{Name: "heading", Selector: "h1", ExtractType: string(ExtractText)},
						{Name: "links", Selector: "a", ExtractType: string(ExtractAttribute), AttributeName: "href", IsList: true},
					},
				},
				Crawl: CrawlConfig{
					DelaySeconds:     float64Ptr(DefaultDelaySeconds),
					RespectRobotsTxt: boolPtr(true),
				},
				Export: &ExportConfig{Format: string(FormatJSONL), OutputPath: "data_exports/example_site.jsonl"},
			},
		},
	}
}

func generateArticleTemplate() DomainConfig {
	return DomainConfig{
		DomainInfo: map[string]interface{}{"name": "news_articles"},
		Sources: []SourceConfig{
			{
				Name:       "news_site",
				Seeds:      []string{"https://news.example.com/latest"},
				SourceType: "news",
				Selectors: SelectorsConfig{
					Title:         "article h1",
					MainContent:   "article .body",
					LinksToFollow: "article a",
					CustomFields: []CustomFieldConfig{
						{Name: "author", Selector: ".byline .author", ExtractType: string(ExtractText)},
						{Name: "published", Selector: "time", ExtractType: string(ExtractAttribute), AttributeName: "datetime"},
						{Name: "tags", Selector: ".tags a", ExtractType: string(ExtractText), IsList: true},
					},
				},
				Crawl: CrawlConfig{
					Depth:            1,
					DelaySeconds:     float64Ptr(2),
					RespectRobotsTxt: boolPtr(true),
				},
				Export: &ExportConfig{Format: string(FormatMarkdown), OutputPath: "data_exports/news_site.md"},
			},
		},
	}
}

func generateTableTemplate() DomainConfig {
	return DomainConfig{
		DomainInfo: map[string]interface{}{"name": "rankings"},
		Sources: []SourceConfig{
			{
				Name:       "ranking_table",
				Seeds:      []string{"https://example.com/rankings"},
				SourceType: "dataset",
				Selectors: SelectorsConfig{
					CustomFields: []CustomFieldConfig{
						{
							Name:        "rows",
							Selector:    "table tbody tr",
							ExtractType: string(ExtractStructuredList),
							SubSelectors: []CustomFieldConfig{
								{Name: "rank", Selector: "td:nth-child(1)"},
								{Name: "name", Selector: "td:nth-child(2)"},
								{Name: "link", Selector: "td a", ExtractType: string(ExtractAttribute), AttributeName: "href"},
							},
						},
					},
				},
				Export: &ExportConfig{Format: string(FormatCSV), OutputPath: "data_exports/rankings.csv"},
			},
		},
	}
}
