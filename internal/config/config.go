// internal/config/config.go
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/valpere/extractstudio/internal/errors"
)

// Load reads, validates and compiles a job file. YAML and JSON are both
// accepted. Any problem rejects the whole job with a CONFIG_ERROR.
func Load(filename string) (*Job, error) {
	if filename == "" {
		return nil, errors.Config("", fmt.Errorf("configuration filename cannot be empty"))
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Config("", fmt.Errorf("configuration file not found: %s", filename))
		}
		return nil, errors.Config("", fmt.Errorf("failed to read configuration file: %w", err))
	}

	return LoadFromBytes(data, filename)
}

// LoadFromReader loads a job from r. name labels the job when domain_info
// has no name.
func LoadFromReader(r io.Reader, name string) (*Job, error) {
	if r == nil {
		return nil, errors.Config("", fmt.Errorf("reader cannot be nil"))
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Config("", fmt.Errorf("failed to read from reader: %w", err))
	}
	return LoadFromBytes(data, name)
}

// LoadFromBytes parses, validates and compiles a job document.
func LoadFromBytes(data []byte, name string) (*Job, error) {
	raw, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return Compile(raw, name)
}

// Parse decodes a job document without validating it. Unknown keys are
// rejected.
func Parse(data []byte) (*DomainConfig, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.Config("", fmt.Errorf("configuration data cannot be empty"))
	}

	expanded := timeoutInSeconds(expandEnvironmentVariables(string(data)))

	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)

	var raw DomainConfig
	if err := decoder.Decode(&raw); err != nil {
		return nil, errors.Config("", fmt.Errorf("failed to parse YAML configuration: %w", err))
	}
	return &raw, nil
}

// Compile validates raw and builds the job. raw is not modified.
func Compile(raw *DomainConfig, name string) (*Job, error) {
	if raw == nil {
		return nil, errors.Config("", fmt.Errorf("configuration cannot be nil"))
	}
	if verrs := raw.Validate(); len(verrs) > 0 {
		return nil, errors.Config(verrs[0].Path, verrs)
	}

	settings := applyDefaults(raw.Settings)

	sources := make([]SourceDefinition, 0, len(raw.Sources))
	for _, src := range raw.Sources {
		sources = append(sources, compileSource(src))
	}

	job := &Job{
		label:           jobLabel(raw.DomainInfo, name),
		domainInfo:      raw.DomainInfo,
		globalUserAgent: strings.TrimSpace(raw.GlobalUserAgent),
		sources:         sources,
		settings:        settings,
	}
	if raw.Storage != nil {
		storage := *raw.Storage
		storage.Driver = strings.ToLower(storage.Driver)
		if storage.Table == "" {
			storage.Table = DefaultStorageTable
		}
		job.storage = &storage
	}
	return job, nil
}

// envVarRegex matches ${VAR} and ${VAR:-default}.
var envVarRegex = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// expandEnvironmentVariables substitutes environment variables in the configuration
func expandEnvironmentVariables(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		parts := envVarRegex.FindStringSubmatch(match)
		if value, ok := os.LookupEnv(parts[1]); ok && value != "" {
			return value
		}
		return parts[2]
	})
}

// timeoutInSeconds rewrites a bare number given as settings.request_timeout
// into a duration string, so 30 reads as 30s. Documents that do not parse
// are returned unchanged for the strict decoder to report.
func timeoutInSeconds(doc string) string {
	var root yaml.Node
	if err := yaml.Unmarshal([]byte(doc), &root); err != nil || len(root.Content) == 0 {
		return doc
	}

	value := mappingValue(mappingValue(root.Content[0], "settings"), "request_timeout")
	if value == nil || value.Kind != yaml.ScalarNode {
		return doc
	}
	if tag := value.ShortTag(); tag != "!!int" && tag != "!!float" {
		return doc
	}
	seconds, err := strconv.ParseFloat(value.Value, 64)
	if err != nil {
		return doc
	}

	value.SetString(strconv.FormatFloat(seconds, 'f', -1, 64) + "s")
	out, err := yaml.Marshal(&root)
	if err != nil {
		return doc
	}
	return string(out)
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

// applyDefaults fills unset settings
func applyDefaults(s Settings) Settings {
	if s.MaxConcurrentFetchers == 0 {
		s.MaxConcurrentFetchers = DefaultMaxConcurrentFetchers
	}
	if s.RequestTimeout == 0 {
		s.RequestTimeout = DefaultRequestTimeout
	}
	if s.MaxRedirects == 0 {
		s.MaxRedirects = DefaultMaxRedirects
	}
	if s.MinMainTextLength == 0 {
		s.MinMainTextLength = DefaultMinMainTextLength
	}
	if s.MaxPagesPerSource == 0 {
		s.MaxPagesPerSource = DefaultMaxPagesPerSource
	}
	if s.Quality.MinLength == 0 {
		s.Quality.MinLength = DefaultMinLength
	}
	if s.Quality.SubstantialLength == 0 {
		s.Quality.SubstantialLength = DefaultSubstantialLength
	}
	if s.Quality.ComprehensiveLength == 0 {
		s.Quality.ComprehensiveLength = DefaultComprehensiveLength
	}
	if s.Search.MaxResults == 0 {
		s.Search.MaxResults = DefaultSearchResults
	}
	return s
}

// DefaultSettings returns the settings used when a job sets none.
func DefaultSettings() Settings {
	return applyDefaults(Settings{})
}

func compileSource(src SourceConfig) SourceDefinition {
	seeds := make([]string, 0, len(src.Seeds))
	hosts := make([]string, 0, len(src.Seeds))
	for _, seed := range src.Seeds {
		seed = strings.TrimSpace(seed)
		seeds = append(seeds, seed)
		hosts = append(hosts, hostOf(seed))
	}

	delay := DefaultDelaySeconds
	if src.Crawl.DelaySeconds != nil {
		delay = *src.Crawl.DelaySeconds
	}
	respectRobots := true
	if src.Crawl.RespectRobotsTxt != nil {
		respectRobots = *src.Crawl.RespectRobotsTxt
	}

	format, _ := parseExportFormat(src.Export.Format)

	return SourceDefinition{
		Name:       strings.TrimSpace(src.Name),
		Seeds:      seeds,
		SourceType: strings.TrimSpace(src.SourceType),
		Selectors: SelectorSet{
			Title:         strings.TrimSpace(src.Selectors.Title),
			MainContent:   strings.TrimSpace(src.Selectors.MainContent),
			LinksToFollow: strings.TrimSpace(src.Selectors.LinksToFollow),
			Rules:         compileRules(src.Selectors.CustomFields),
		},
		Crawl: CrawlParams{
			Depth:            src.Crawl.Depth,
			Delay:            time.Duration(delay * float64(time.Second)),
			UserAgent:        strings.TrimSpace(src.Crawl.UserAgent),
			RespectRobotsTxt: respectRobots,
		},
		Export: ExportTarget{
			Format:     format,
			OutputPath: filepath.Clean(src.Export.OutputPath),
		},
		seedHosts: hosts,
	}
}

// compileRules turns validated raw rules into typed rules. Selectors were
// already checked, so compile errors cannot occur here.
func compileRules(raw []CustomFieldConfig) []SelectorRule {
	rules := make([]SelectorRule, 0, len(raw))
	for _, r := range raw {
		rule := SelectorRule{
			Name:     strings.TrimSpace(r.Name),
			Selector: strings.TrimSpace(r.Selector),
			IsList:   r.IsList,
		}
		rule.matcher, _ = compileSelector(rule.Selector)

		switch normalizeExtractType(r.ExtractType) {
		case ExtractAttribute:
			rule.Extract = AttributeExtraction{Name: strings.TrimSpace(r.AttributeName)}
		case ExtractHTML:
			rule.Extract = HTMLExtraction{}
		case ExtractStructuredList:
			rule.Extract = StructuredListExtraction{Rules: compileRules(r.SubSelectors)}
		default:
			rule.Extract = TextExtraction{}
		}
		rules = append(rules, rule)
	}
	return rules
}

func jobLabel(info map[string]interface{}, name string) string {
	if v, ok := info["name"]; ok {
		if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
			return s
		}
	}
	if name == "" {
		return "job"
	}
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
