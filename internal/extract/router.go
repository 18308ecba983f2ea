// internal/extract/router.go
package extract

import (
	"fmt"
	"html"
	"net/url"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"github.com/valpere/extractstudio/internal/config"
	"github.com/valpere/extractstudio/internal/errors"
	"github.com/valpere/extractstudio/internal/utils"
	"github.com/valpere/extractstudio/pkg/types"
)

// DefaultTitle is used when a document offers no title at all.
const DefaultTitle = "Untitled Content"

// Parsing strategies recorded in ParserMetadata["parsed_as"].
const (
	ParsedAsPDF      = "pdf"
	ParsedAsHTML     = "html"
	ParsedAsText     = "text_or_markdown"
	ParsedAsData     = "json_or_xml"
	ParsedAsFallback = "unknown_fallback_as_text"
)

var (
	fallbackMarkupHints = []string{"<html", "<body", "<xml", "<rss", "<feed"}
	// elements dropped before fallback markup is reduced to text
	fallbackBoilerplate = "nav, footer, aside, form, head, script, style"
)

// Router turns fetched documents into parsed records, choosing a parsing
// strategy from the content type, the URL extension and the content.
type Router struct {
	job          *config.Job
	logger       utils.Logger
	minMainText  int
	onError      func(err error)
	stripPolicy  *bluemonday.Policy
	feedParser   *gofeed.Parser
	useReadable  bool
	maxFeedItems int
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithErrorHook receives PARSE_ERROR and FIELD_EXTRACTION_ERROR values as
// they are recovered.
func WithErrorHook(hook func(err error)) RouterOption {
	return func(r *Router) { r.onError = hook }
}

// WithReadability toggles the readability main-text extractor.
func WithReadability(enabled bool) RouterOption {
	return func(r *Router) { r.useReadable = enabled }
}

// NewRouter creates a router for job. job may be nil, in which case no
// custom fields are extracted.
func NewRouter(job *config.Job, logger utils.Logger, opts ...RouterOption) *Router {
	minMainText := config.DefaultMinMainTextLength
	if job != nil && job.Settings().MinMainTextLength > 0 {
		minMainText = job.Settings().MinMainTextLength
	}

	r := &Router{
		job:          job,
		logger:       utils.OrNop(logger),
		minMainText:  minMainText,
		stripPolicy:  bluemonday.StrictPolicy(),
		feedParser:   gofeed.NewParser(),
		useReadable:  true,
		maxFeedItems: 50,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route parses doc. It returns false when nothing useful was found or the
// document could not be parsed; such documents are logged and dropped.
func (r *Router) Route(doc types.FetchedDocument) (rec *types.ParsedRecord, ok bool) {
	logger := r.logger.WithFields(map[string]interface{}{
		"url":          doc.SourceURL,
		"content_type": doc.ContentType,
	})

	defer func() {
		if p := recover(); p != nil {
			r.report(errors.Parse(doc.SourceURL, fmt.Errorf("panic: %v", p)))
			rec, ok = nil, false
		}
	}()

	rec = &types.ParsedRecord{
		ID:                 uuid.NewString(),
		OriginalDocumentID: doc.ID,
		SourceURL:          doc.SourceURL,
		SourceType:         doc.SourceType,
		SourceName:         doc.SourceName,
		JobLabel:           doc.JobLabel,
		Title:              strings.TrimSpace(doc.Title),
		CustomFields:       types.Fields{},
		ParserMetadata:     map[string]string{},
		Depth:              doc.Depth,
	}

	contentType := strings.ToLower(doc.ContentType)
	urlPath := strings.ToLower(urlPathOf(doc.SourceURL))
	ext := path.Ext(urlPath)

	switch {
	case strings.Contains(contentType, "application/pdf") || ext == ".pdf":
		r.routePDF(doc, rec)
	case strings.Contains(contentType, "html") || ext == ".html" || ext == ".htm" ||
		(contentType == "" && strings.HasPrefix(strings.TrimSpace(doc.Content), "<")):
		r.routeHTML(doc, rec)
	case strings.Contains(contentType, "text/plain") || strings.Contains(contentType, "text/markdown") ||
		ext == ".txt" || ext == ".md" || ext == ".markdown":
		r.routeText(doc, rec)
	case strings.Contains(contentType, "json") || strings.Contains(contentType, "xml"):
		r.routeData(doc, rec, strings.Contains(contentType, "json"))
	default:
		r.routeFallback(doc, rec)
	}

	rec.MainText = strings.TrimSpace(rec.MainText)
	if rec.Title == "" {
		rec.Title = DefaultTitle
	}

	if rec.IsEmpty() {
		logger.Warn("no parsable content, structured blocks or custom fields; skipping document")
		return nil, false
	}

	logger.WithFields(map[string]interface{}{
		"parsed_as":     rec.ParserMetadata["parsed_as"],
		"blocks":        len(rec.Blocks),
		"custom_fields": len(rec.CustomFields),
		"text_length":   utf8.RuneCountInString(rec.MainText),
	}).Debug("document routed")
	return rec, true
}

func (r *Router) routePDF(doc types.FetchedDocument, rec *types.ParsedRecord) {
	rec.ParserMetadata["parsed_as"] = ParsedAsPDF
	if rec.Title == "" {
		rec.Title = titleFromFileName(doc.SourceURL, cutSuffix(".pdf"))
	}
	if len(doc.ContentBytes) == 0 {
		r.logger.Warnf("PDF identified but no content bytes for %s", doc.SourceURL)
		return
	}

	text, err := ExtractPDFText(doc.ContentBytes)
	if err != nil {
		r.report(errors.Parse(doc.SourceURL, err))
		return
	}
	rec.MainText = text
}

func (r *Router) routeText(doc types.FetchedDocument, rec *types.ParsedRecord) {
	rec.ParserMetadata["parsed_as"] = ParsedAsText
	rec.MainText = doc.Content
	if rec.Title == "" {
		rec.Title = titleFromFileName(doc.SourceURL, cutAtFirstDot)
	}
}

// routeData keeps JSON and XML payloads whole as one block. XML that parses
// as an RSS or Atom feed also yields a feed_entries block.
func (r *Router) routeData(doc types.FetchedDocument, rec *types.ParsedRecord, isJSON bool) {
	rec.ParserMetadata["parsed_as"] = ParsedAsData
	if rec.Title == "" {
		rec.Title = titleFromFileName(doc.SourceURL, cutAtFirstDot)
	}
	if doc.Content == "" {
		return
	}

	block := types.StructuredBlock{Type: BlockFullXML, Language: "xml", Content: doc.Content, SourceURL: doc.SourceURL}
	if isJSON {
		block.Type, block.Language = BlockFullJSON, "json"
	}
	rec.Blocks = append(rec.Blocks, block)

	if isJSON {
		return
	}
	feed, err := r.feedParser.ParseString(doc.Content)
	if err != nil || len(feed.Items) == 0 {
		return
	}
	rec.Blocks = append(rec.Blocks, types.StructuredBlock{
		Type:      BlockFeedEntries,
		Content:   feedEntries(feed, r.maxFeedItems),
		Heading:   strings.TrimSpace(feed.Title),
		SourceURL: doc.SourceURL,
	})
	rec.ParserMetadata["feed_type"] = feed.FeedType
	if feed.Title != "" && rec.Title == titleFromFileName(doc.SourceURL, cutAtFirstDot) {
		rec.Title = strings.TrimSpace(feed.Title)
	}
}

func feedEntries(feed *gofeed.Feed, max int) string {
	var lines []string
	for i, item := range feed.Items {
		if i >= max {
			break
		}
		line := "* " + utils.NormalizeWhitespace(item.Title)
		if item.Link != "" {
			line += " (" + item.Link + ")"
		}
		if item.PublishedParsed != nil {
			line += " " + item.PublishedParsed.UTC().Format("2006-01-02")
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// routeFallback treats unknown content as text, stripping tags first when
// it looks like a markup document.
func (r *Router) routeFallback(doc types.FetchedDocument, rec *types.ParsedRecord) {
	rec.ParserMetadata["parsed_as"] = ParsedAsFallback
	r.logger.Warnf("unhandled content type %q for %s; treating as text", doc.ContentType, doc.SourceURL)

	raw := doc.Content
	if raw == "" && len(doc.ContentBytes) > 0 {
		raw = strings.ToValidUTF8(string(doc.ContentBytes), "\uFFFD")
	}
	defer func() {
		if rec.Title == "" {
			rec.Title = utils.FileNameFromURL(doc.SourceURL)
		}
	}()
	if raw == "" {
		return
	}

	trimmed := strings.TrimSpace(raw)
	lower := strings.ToLower(trimmed)
	if !(strings.HasPrefix(trimmed, "<") && strings.HasSuffix(trimmed, ">") && containsAny(lower, fallbackMarkupHints)) {
		rec.MainText = raw
		return
	}

	page, err := goquery.NewDocumentFromReader(strings.NewReader(addSpacesAroundBlocks(trimmed)))
	if err != nil {
		rec.MainText = raw
		return
	}
	if rec.Title == "" {
		rec.Title = utils.NormalizeWhitespace(page.Find("title").First().Text())
	}
	page.Find(fallbackBoilerplate).Remove()

	markup, err := page.Html()
	if err != nil {
		rec.MainText = raw
		return
	}
	rec.MainText = utils.NormalizeWhitespace(html.UnescapeString(r.stripPolicy.Sanitize(markup)))
}

// FollowLinks returns the distinct URLs a crawl should visit next from rec:
// the links_to_follow matches when the source configures them, else every
// same-host link.
func (r *Router) FollowLinks(rec *types.ParsedRecord) []string {
	candidates := rec.FollowURLs
	if candidates == nil {
		for _, l := range rec.Links {
			candidates = append(candidates, l.URL)
		}
	}

	seen := make(map[string]bool, len(candidates))
	var out []string
	for _, c := range candidates {
		u, err := url.Parse(c)
		if err != nil {
			continue
		}
		u.Fragment = ""
		key := u.String()
		if seen[key] || key == rec.SourceURL {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	return out
}

func (r *Router) sourceFor(doc types.FetchedDocument) (config.SourceDefinition, bool) {
	if r.job == nil {
		return config.SourceDefinition{}, false
	}
	if src, ok := r.job.SourceForURL(doc.SourceURL); ok {
		return src, true
	}
	if doc.SourceName != "" {
		return r.job.SourceByName(doc.SourceName)
	}
	return config.SourceDefinition{}, false
}

func (r *Router) report(err error) {
	r.logger.Errorf("%v", err)
	if r.onError != nil {
		r.onError(err)
	}
}

func urlPathOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Path
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
