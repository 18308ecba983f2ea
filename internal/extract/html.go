// internal/extract/html.go
package extract

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/valpere/extractstudio/internal/config"
	"github.com/valpere/extractstudio/internal/errors"
	"github.com/valpere/extractstudio/internal/utils"
	"github.com/valpere/extractstudio/pkg/types"
)

// boilerplateSelector lists the elements removed from <body> before it is
// used as main text.
const boilerplateSelector = "script, style, nav, footer, header, aside, form, noscript, template"

// routeHTML runs the HTML pipeline: custom fields, title, main text and the
// generic blocks. A failure part way keeps what was already extracted but
// discards main text that still looks like markup.
func (r *Router) routeHTML(doc types.FetchedDocument, rec *types.ParsedRecord) {
	rec.ParserMetadata["parsed_as"] = ParsedAsHTML

	if strings.TrimSpace(doc.Content) == "" {
		r.logger.Warnf("HTML identified but no text content for %s", doc.SourceURL)
		return
	}

	defer func() {
		if p := recover(); p != nil {
			r.report(errors.Parse(doc.SourceURL, fmt.Errorf("panic while parsing HTML: %v", p)))
			if looksLikeMarkup(rec.MainText) {
				r.logger.Warnf("main text for %s still contains markup after error; clearing", doc.SourceURL)
				rec.MainText = ""
			}
		}
	}()

	dom, err := goquery.NewDocumentFromReader(strings.NewReader(doc.Content))
	if err != nil {
		r.report(errors.Parse(doc.SourceURL, fmt.Errorf("failed to parse HTML: %w", err)))
		return
	}

	if lang := strings.TrimSpace(dom.Find("html").First().AttrOr("lang", "")); lang != "" {
		rec.ParserMetadata["lang"] = lang
	}

	source, hasSource := r.sourceFor(doc)
	if hasSource {
		rec.ParserMetadata["source_definition"] = source.Name
		if rec.SourceName == "" {
			rec.SourceName = source.Name
		}
		if rec.SourceType == "" {
			rec.SourceType = source.SourceType
		}

		// Custom fields first: they are the primary payload.
		if len(source.Selectors.Rules) > 0 {
			fe := &FieldExtractor{Logger: r.logger, URL: doc.SourceURL, OnFieldError: r.onError}
			rec.CustomFields = fe.Extract(dom.Selection, source.Selectors.Rules)
			r.logger.Debugf("extracted %d custom fields for %s", len(rec.CustomFields), doc.SourceURL)
		}

		if source.Selectors.LinksToFollow != "" {
			if m, err := (config.SelectorRule{Selector: source.Selectors.LinksToFollow}).Matcher(); err == nil {
				rec.FollowURLs = followCandidates(dom, m, doc.SourceURL)
				if rec.FollowURLs == nil {
					rec.FollowURLs = []string{}
				}
			}
		}
	}

	if rec.Title == "" {
		rec.Title = r.htmlTitle(dom, source.Selectors.Title)
	}

	rec.MainText = r.mainText(dom, doc, source.Selectors.MainContent)

	rec.Links = extractLinks(dom, doc.SourceURL)
	rec.Blocks = append(rec.Blocks, extractSemanticBlocks(dom, doc.SourceURL)...)
	rec.Blocks = append(rec.Blocks, extractTables(dom, doc.SourceURL)...)
	rec.Blocks = append(rec.Blocks, extractLists(dom, doc.SourceURL)...)
	rec.Blocks = append(rec.Blocks, extractFormattedBlocks(dom, doc.SourceURL)...)
}

// htmlTitle prefers the configured selector, then <title>, then the first
// <h1>.
func (r *Router) htmlTitle(dom *goquery.Document, selector string) string {
	if selector != "" {
		if m, err := (config.SelectorRule{Selector: selector}).Matcher(); err == nil {
			if title := spacedText(dom.FindMatcher(m).First()); title != "" {
				return title
			}
		}
	}
	if title := utils.NormalizeWhitespace(dom.Find("title").First().Text()); title != "" {
		return title
	}
	return spacedText(dom.Find("h1").First())
}

// mainText tries the configured main_content selector, then readability,
// then the cleaned <body> when the result is shorter than the minimum.
func (r *Router) mainText(dom *goquery.Document, doc types.FetchedDocument, selector string) string {
	var text string

	if selector != "" {
		if m, err := (config.SelectorRule{Selector: selector}).Matcher(); err == nil {
			var parts []string
			dom.FindMatcher(m).Each(func(_ int, s *goquery.Selection) {
				if t := spacedText(s); t != "" {
					parts = append(parts, t)
				}
			})
			text = strings.Join(parts, " ")
		}
	}

	if text == "" && r.useReadable {
		text = r.readableText(doc)
	}

	if utf8.RuneCountInString(text) < r.minMainText {
		body := dom.Find("body").First().Clone()
		body.Find(boilerplateSelector).Remove()
		if bodyText := spacedText(body); bodyText != "" {
			text = bodyText
		}
	}
	return text
}

func (r *Router) readableText(doc types.FetchedDocument) string {
	pageURL, err := url.Parse(doc.SourceURL)
	if err != nil {
		return ""
	}

	article, err := readability.FromReader(strings.NewReader(doc.Content), pageURL)
	if err != nil {
		r.logger.Debugf("readability failed for %s: %v", doc.SourceURL, err)
		return ""
	}

	content, err := goquery.NewDocumentFromReader(strings.NewReader(addSpacesAroundBlocks(article.Content)))
	if err != nil {
		return ""
	}
	return utils.NormalizeWhitespace(content.Text())
}
