// internal/config/validation.go - Fail-closed job validation with field paths
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// ValidationError is one problem found in a job document.
type ValidationError struct {
	Path    string `json:"path"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Value != "" {
		return fmt.Sprintf("%s: %s (value: %s)", ve.Path, ve.Message, ve.Value)
	}
	return fmt.Sprintf("%s: %s", ve.Path, ve.Message)
}

// ValidationErrors collects every problem of a job. A job with any
// ValidationErrors is rejected as a whole.
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	var b strings.Builder
	b.WriteString("configuration validation failed:")
	for i, err := range ve {
		fmt.Fprintf(&b, "\n  %d. %s", i+1, err.Error())
	}
	return b.String()
}

// HasPath reports whether any error was recorded at path.
func (ve ValidationErrors) HasPath(path string) bool {
	for _, err := range ve {
		if err.Path == path {
			return true
		}
	}
	return false
}

type validator struct {
	errs ValidationErrors
}

func (v *validator) add(path, value, format string, args ...interface{}) {
	v.errs = append(v.errs, ValidationError{
		Path:    path,
		Value:   value,
		Message: fmt.Sprintf(format, args...),
	})
}

// Validate checks the raw document and returns every problem found.
func (dc *DomainConfig) Validate() ValidationErrors {
	v := &validator{}

	if len(dc.Sources) == 0 {
		v.add("sources", "", "at least one source is required")
	}

	names := make(map[string]int, len(dc.Sources))
	for i, src := range dc.Sources {
		prefix := fmt.Sprintf("sources[%d]", i)
		v.validateSource(prefix, src)

		if src.Name == "" {
			continue
		}
		if first, dup := names[src.Name]; dup {
			v.add(prefix+".name", src.Name, "duplicate source name, first declared at sources[%d]", first)
		} else {
			names[src.Name] = i
		}
	}

	v.validateSettings(dc.Settings)
	if dc.Storage != nil {
		v.validateStorage(*dc.Storage)
	}
	return v.errs
}

func (v *validator) validateSource(prefix string, src SourceConfig) {
	if strings.TrimSpace(src.Name) == "" {
		v.add(prefix+".name", "", "source name is required")
	}

	if len(src.Seeds) == 0 {
		v.add(prefix+".seeds", "", "at least one seed URL is required")
	}
	for j, seed := range src.Seeds {
		if err := validateSeed(seed); err != nil {
			v.add(fmt.Sprintf("%s.seeds[%d]", prefix, j), seed, "%v", err)
		}
	}

	sel := src.Selectors
	for _, page := range []struct{ key, value string }{
		{"title", sel.Title},
		{"main_content", sel.MainContent},
		{"links_to_follow", sel.LinksToFollow},
	} {
		if page.value == "" {
			continue
		}
		if _, err := compileSelector(page.value); err != nil {
			v.add(prefix+".selectors."+page.key, page.value, "invalid CSS selector: %v", err)
		}
	}
	v.validateRules(prefix+".selectors.custom_fields", sel.CustomFields)

	if src.Crawl.Depth < 0 {
		v.add(prefix+".crawl.depth", fmt.Sprint(src.Crawl.Depth), "depth cannot be negative")
	}
	if d := src.Crawl.DelaySeconds; d != nil && *d < 0 {
		v.add(prefix+".crawl.delay_seconds", fmt.Sprint(*d), "delay cannot be negative")
	}

	v.validateExport(prefix+".export", src.Export)
}

// validateRules walks a rule list recursively. Names must be unique among
// siblings only; nested scopes may reuse a parent's names.
func (v *validator) validateRules(prefix string, rules []CustomFieldConfig) {
	seen := make(map[string]bool, len(rules))
	for i, rule := range rules {
		path := fmt.Sprintf("%s[%d]", prefix, i)

		name := strings.TrimSpace(rule.Name)
		switch {
		case name == "":
			v.add(path+".name", "", "field name is required")
		case seen[name]:
			v.add(path+".name", name, "duplicate field name in the same scope")
		default:
			seen[name] = true
		}

		if strings.TrimSpace(rule.Selector) == "" {
			v.add(path+".selector", "", "selector is required")
		} else if _, err := compileSelector(rule.Selector); err != nil {
			v.add(path+".selector", rule.Selector, "invalid CSS selector: %v", err)
		}

		extractType := normalizeExtractType(rule.ExtractType)
		switch extractType {
		case ExtractText, ExtractHTML:
		case ExtractAttribute:
			if strings.TrimSpace(rule.AttributeName) == "" {
				v.add(path+".attribute_name", "", "attribute_name is required when extract_type is attribute")
			}
		case ExtractStructuredList:
			if len(rule.SubSelectors) == 0 {
				v.add(path+".sub_selectors", "", "sub_selectors must be non-empty when extract_type is structured_list")
			}
		default:
			v.add(path+".extract_type", rule.ExtractType, "extract_type must be one of text, attribute, html, structured_list")
		}

		if extractType != ExtractStructuredList && len(rule.SubSelectors) > 0 {
			v.add(path+".sub_selectors", "", "sub_selectors are only allowed when extract_type is structured_list")
		}
		if extractType != ExtractAttribute && rule.AttributeName != "" {
			v.add(path+".attribute_name", rule.AttributeName, "attribute_name is only allowed when extract_type is attribute")
		}

		if len(rule.SubSelectors) > 0 {
			v.validateRules(path+".sub_selectors", rule.SubSelectors)
		}
	}
}

func (v *validator) validateExport(path string, export *ExportConfig) {
	if export == nil {
		v.add(path, "", "export target is required")
		return
	}
	if _, ok := parseExportFormat(export.Format); !ok {
		v.add(path+".format", export.Format, "unsupported export format, must be one of jsonl, markdown, csv, json")
	}
	if strings.TrimSpace(export.OutputPath) == "" {
		v.add(path+".output_path", "", "output_path is required")
	}
}

func (v *validator) validateSettings(s Settings) {
	if s.MaxConcurrentFetchers < 0 {
		v.add("settings.max_concurrent_fetchers", fmt.Sprint(s.MaxConcurrentFetchers), "cannot be negative")
	}
	if s.RequestTimeout < 0 {
		v.add("settings.request_timeout", s.RequestTimeout.String(), "cannot be negative")
	}
	if s.MaxRedirects < 0 {
		v.add("settings.max_redirects", fmt.Sprint(s.MaxRedirects), "cannot be negative")
	}
	if s.MinMainTextLength < 0 {
		v.add("settings.min_main_text_length", fmt.Sprint(s.MinMainTextLength), "cannot be negative")
	}
	if s.MaxPagesPerSource < 0 {
		v.add("settings.max_pages_per_source", fmt.Sprint(s.MaxPagesPerSource), "cannot be negative")
	}
	if s.Search.MaxResults < 0 {
		v.add("settings.search.max_results", fmt.Sprint(s.Search.MaxResults), "cannot be negative")
	}

	q := s.Quality
	if q.MinLength < 0 || q.SubstantialLength < 0 || q.ComprehensiveLength < 0 {
		v.add("settings.quality", "", "length thresholds cannot be negative")
	}
	if q.MinLength > 0 && q.SubstantialLength > 0 && q.MinLength > q.SubstantialLength {
		v.add("settings.quality.substantial_length", fmt.Sprint(q.SubstantialLength), "must not be lower than min_length")
	}
	if q.SubstantialLength > 0 && q.ComprehensiveLength > 0 && q.SubstantialLength > q.ComprehensiveLength {
		v.add("settings.quality.comprehensive_length", fmt.Sprint(q.ComprehensiveLength), "must not be lower than substantial_length")
	}
}

func (v *validator) validateStorage(s StorageConfig) {
	switch strings.ToLower(s.Driver) {
	case "sqlite", "sqlite3", "postgres", "postgresql", "mysql":
	case "mongodb", "mongo":
		if s.Database == "" {
			v.add("storage.database", "", "database is required for the mongodb driver")
		}
	default:
		v.add("storage.driver", s.Driver, "driver must be one of sqlite, postgres, mysql, mongodb")
	}
	if strings.TrimSpace(s.DSN) == "" {
		v.add("storage.dsn", "", "dsn is required")
	}
	if s.Table != "" && !isIdentifier(s.Table) {
		v.add("storage.table", s.Table, "table must contain only letters, digits and underscores")
	}
}

func validateSeed(seed string) error {
	u, err := url.Parse(strings.TrimSpace(seed))
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("seed must be an absolute http(s) URL")
	}
	if u.Host == "" {
		return fmt.Errorf("seed URL has no host")
	}
	return nil
}

func compileSelector(selector string) (goquery.Matcher, error) {
	sel, err := cascadia.Compile(strings.TrimSpace(selector))
	if err != nil {
		return nil, err
	}
	return sel, nil
}

func normalizeExtractType(s string) ExtractType {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ExtractText
	}
	return ExtractType(s)
}

func parseExportFormat(s string) (ExportFormat, bool) {
	f := ExportFormat(strings.ToLower(strings.TrimSpace(s)))
	for _, supported := range SupportedFormats {
		if f == supported {
			return f, true
		}
	}
	return "", false
}

func isIdentifier(s string) bool {
	for _, r := range s {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return s != ""
}
