// internal/pipeline/enrich.go
package pipeline

import (
	"fmt"
	"math"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/valpere/extractstudio/internal/errors"
	"github.com/valpere/extractstudio/internal/extract"
	"github.com/valpere/extractstudio/internal/nlp"
	"github.com/valpere/extractstudio/internal/utils"
	"github.com/valpere/extractstudio/pkg/types"
)

const (
	// FallbackQualityScore is the score of a record whose enrichment failed.
	FallbackQualityScore = 2.0
	// FallbackLanguage is used when detection fails on non-empty text.
	FallbackLanguage = "en"
	// UnknownLanguage is used when there is no text to detect from.
	UnknownLanguage = "unknown"

	languageSampleRunes = 1500
	tagSampleRunes      = 5000
	maxTags             = 15
	maxCategories       = 10
)

var categoryStopWords = map[string]bool{
	"www": true, "com": true, "org": true, "net": true,
	"html": true, "php": true, "index": true, "en": true,
}

// Enricher attaches categories, tags, language and a quality score. It never
// fails: a record that cannot be enriched gets a deterministic fallback.
type Enricher struct {
	nlp    nlp.Backend
	logger utils.Logger
	now    func() time.Time
}

// NewEnricher creates an enricher. A nil backend means no NLP.
func NewEnricher(backend nlp.Backend, logger utils.Logger) *Enricher {
	if backend == nil {
		backend = nlp.Noop{}
	}
	return &Enricher{nlp: backend, logger: utils.OrNop(logger), now: time.Now}
}

// Outcome is the result of enriching one record. Recovered marks a
// fallback record; Err holds the ENRICHMENT_ERROR behind it.
type Outcome struct {
	Record    types.EnrichedRecord
	Recovered bool
	Err       error
}

// Enrich returns the enriched form of rec, or its fallback.
func (e *Enricher) Enrich(rec types.NormalizedRecord) types.EnrichedRecord {
	return e.enrich(rec).Record
}

func (e *Enricher) enrich(rec types.NormalizedRecord) (out Outcome) {
	defer func() {
		if p := recover(); p != nil {
			out = e.fallback(rec, fmt.Errorf("panic: %v", p))
		}
	}()

	enriched, err := e.build(rec)
	if err != nil {
		return e.fallback(rec, err)
	}
	return Outcome{Record: enriched}
}

func (e *Enricher) build(rec types.NormalizedRecord) (types.EnrichedRecord, error) {
	if rec.CleanedText == "" && rec.Title == "" && len(rec.CleanedBlocks) == 0 && len(rec.CustomFields) == 0 {
		return types.EnrichedRecord{}, fmt.Errorf("record has no content to enrich")
	}

	now := e.now().UTC()
	categories := e.categories(rec)
	language := e.language(rec)
	tags := e.tags(rec)
	score := e.qualityScore(rec, tags)

	elements := make([]types.StructuredBlock, 0, len(rec.CleanedBlocks))
	for _, b := range rec.CleanedBlocks {
		stamp := now
		b.EnrichedAt = &stamp
		if b.Language == "" {
			b.Language = language
		}
		elements = append(elements, b)
	}

	title := rec.Title
	if title == "" {
		title = extract.DefaultTitle
	}

	return types.EnrichedRecord{
		ID:                 uuid.NewString(),
		NormalizedRecordID: rec.ID,
		SourceURL:          rec.SourceURL,
		SourceType:         rec.SourceType,
		SourceName:         rec.SourceName,
		JobLabel:           rec.JobLabel,
		Title:              title,
		PrimaryText:        rec.CleanedText,
		StructuredElements: elements,
		Links:              rec.Links,
		CustomFields:       rec.CustomFields,
		Categories:         categories,
		Tags:               tags,
		Language:           language,
		QualityScore:       score,
		MetadataSummary: map[string]any{
			"url":                       rec.SourceURL,
			"title":                     orNA(rec.Title),
			"source_type":               rec.SourceType,
			"language":                  language,
			"categories":                head(categories, 3),
			"top_tags":                  head(tags, 3),
			"structured_elements_count": len(elements),
			"custom_fields_count":       len(rec.CustomFields),
			"quality_score":             score,
			"retrieved_at":              now.Format(time.RFC3339),
		},
		EnrichedAt: now,
	}, nil
}

// categories combines the source type, host and leading path tokens, and a
// length bucket.
func (e *Enricher) categories(rec types.NormalizedRecord) []string {
	set := make(map[string]bool)
	if rec.SourceType != "" {
		set[rec.SourceType] = true
	}

	var parts []string
	if u, err := url.Parse(strings.ToLower(rec.SourceURL)); err == nil {
		parts = append(parts, strings.Split(u.Hostname(), ".")...)
		segments := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(segments) > 3 {
			segments = segments[:3]
		}
		parts = append(parts, segments...)
	}
	for _, part := range parts {
		if len(part) > 2 && !categoryStopWords[part] {
			set[strings.ReplaceAll(part, "-", "_")] = true
		}
	}

	length := utf8.RuneCountInString(rec.CleanedText)
	switch {
	case length > 2000:
		set["long_form"] = true
	case length > 500:
		set["standard_length"] = true
	default:
		set["short_form"] = true
	}

	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return head(out, maxCategories)
}

func (e *Enricher) language(rec types.NormalizedRecord) string {
	sample := rec.CleanedText
	if strings.TrimSpace(sample) == "" {
		sample = rec.Title
	}
	if strings.TrimSpace(sample) == "" {
		return UnknownLanguage
	}

	lang, err := e.nlp.DetectLanguage(utils.TruncateRunes(sample, languageSampleRunes))
	if err != nil || lang == "" {
		if rec.LanguageHint != "" {
			return rec.LanguageHint
		}
		e.logger.Debugf("language detection failed for %s, defaulting to %q: %v", rec.SourceURL, FallbackLanguage, err)
		return FallbackLanguage
	}
	return lang
}

// tags are skipped, not failed, when no NLP backend is available.
func (e *Enricher) tags(rec types.NormalizedRecord) []string {
	if !e.nlp.Available() || rec.CleanedText == "" {
		return []string{}
	}
	tags, err := e.nlp.Tags(utils.TruncateRunes(rec.CleanedText, tagSampleRunes))
	if err != nil {
		e.logger.Debugf("tagging failed for %s: %v", rec.SourceURL, err)
		return []string{}
	}
	return head(tags, maxTags)
}

func (e *Enricher) qualityScore(rec types.NormalizedRecord, tags []string) float64 {
	score := 5.0
	length := utf8.RuneCountInString(rec.CleanedText)
	switch {
	case length > 2000:
		score += 2
	case length > 1000:
		score++
	case length < 100 && len(rec.CustomFields) == 0:
		score -= 2
	}

	score += math.Min(float64(len(rec.CleanedBlocks))*0.4, 1.5)
	score += math.Min(float64(rec.CustomFields.PopulatedCount())*0.8, 2.5)
	score += math.Min(float64(len(tags))*0.05, 0.5)

	score = math.Min(math.Max(score, 0.5), 10)
	return math.Round(score*10) / 10
}

// fallback builds the degraded record: text, blocks and fields preserved.
func (e *Enricher) fallback(rec types.NormalizedRecord, cause error) Outcome {
	err := errors.Enrichment(rec.SourceURL, cause)
	e.logger.Errorf("%v", err)

	title := rec.Title
	if title == "" {
		title = "Untitled"
	}
	var categories []string
	if rec.SourceType != "" {
		categories = append(categories, rec.SourceType)
	}
	categories = append(categories, "fallback_enrichment")

	return Outcome{
		Record: types.EnrichedRecord{
			ID:                 uuid.NewString(),
			NormalizedRecordID: rec.ID,
			SourceURL:          rec.SourceURL,
			SourceType:         rec.SourceType,
			SourceName:         rec.SourceName,
			JobLabel:           rec.JobLabel,
			Title:              title,
			PrimaryText:        rec.CleanedText,
			StructuredElements: rec.CleanedBlocks,
			Links:              rec.Links,
			CustomFields:       rec.CustomFields,
			Categories:         categories,
			Tags:               []string{"enrichment_failed"},
			Language:           UnknownLanguage,
			QualityScore:       FallbackQualityScore,
			MetadataSummary: map[string]any{
				"url":    rec.SourceURL,
				"title":  orNA(rec.Title),
				"status": "enrichment_fallback",
			},
			Degraded:   true,
			EnrichedAt: e.now().UTC(),
		},
		Recovered: true,
		Err:       err,
	}
}

func head(s []string, n int) []string {
	if len(s) > n {
		return append([]string(nil), s[:n]...)
	}
	return s
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
