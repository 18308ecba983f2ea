// internal/extract/blocks.go
package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/valpere/extractstudio/internal/utils"
	"github.com/valpere/extractstudio/pkg/types"
)

// Block types produced by the generic extractors.
const (
	BlockTable          = "html_table_markdown"
	BlockFormatted      = "formatted_text_block"
	BlockFullJSON       = "full_content_json"
	BlockFullXML        = "full_content_xml"
	BlockFeedEntries    = "feed_entries"
	blockListTypeFormat = "html_%s_list"
)

var semanticBlockTypes = map[string]string{
	"article": "semantic_article",
	"section": "semantic_section",
	"aside":   "semantic_aside",
	"nav":     "semantic_navigation",
	"header":  "semantic_header",
	"footer":  "semantic_footer",
	"figure":  "semantic_figure_with_caption",
}

const semanticSelector = "article, section, aside, nav, header, footer, figure"

var knownCodeLanguages = map[string]bool{
	"python": true, "javascript": true, "java": true, "csharp": true, "sql": true,
	"html": true, "css": true, "xml": true, "json": true, "yaml": true,
	"markdown": true, "bash": true, "shell": true, "go": true,
}

var (
	jsonObjectRe = regexp.MustCompile(`(?s)^\s*\{.*\}\s*$`)
	jsonArrayRe  = regexp.MustCompile(`(?s)^\s*\[.*\]\s*$`)
	xmlOpenRe    = regexp.MustCompile(`(?s)^\s*<.+>`)
	xmlCloseRe   = regexp.MustCompile(`(?s)</.+>\s*$`)
)

// extractLinks returns same-host http(s) links with their anchor text and
// rel attribute, in document order.
func extractLinks(doc *goquery.Document, baseURL string) []types.Link {
	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return nil
	}

	var links []types.Link
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if skipHref(href) {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if (abs.Scheme != "http" && abs.Scheme != "https") || abs.Host == "" {
			return
		}
		if !strings.EqualFold(abs.Host, base.Host) {
			return
		}
		links = append(links, types.Link{
			URL:  abs.String(),
			Text: spacedText(a),
			Rel:  strings.Join(strings.Fields(a.AttrOr("rel", "")), " "),
		})
	})
	return links
}

func skipHref(href string) bool {
	if href == "" || strings.HasPrefix(href, "#") {
		return true
	}
	lower := strings.ToLower(href)
	for _, prefix := range []string{"mailto:", "tel:", "javascript:", "data:"} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// extractSemanticBlocks returns the outermost semantic elements only, so a
// <section> inside an <article> is not counted twice.
func extractSemanticBlocks(doc *goquery.Document, sourceURL string) []types.StructuredBlock {
	var blocks []types.StructuredBlock

	topLevel := doc.Find(semanticSelector).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.ParentsFiltered(semanticSelector).Length() == 0
	})

	topLevel.Each(func(idx int, s *goquery.Selection) {
		tag := goquery.NodeName(s)
		block := types.StructuredBlock{
			Type:         semanticBlockTypes[tag],
			TagName:      tag,
			ElementIndex: idx,
			SourceURL:    sourceURL,
		}

		if tag == "figure" {
			block.Content = spacedText(s.Contents().Not("figcaption"))
			block.Caption = spacedText(s.Find("figcaption").First())
			if block.Content == "" && block.Caption == "" {
				return
			}
		} else {
			block.Content = spacedText(s)
			if block.Content == "" {
				return
			}
		}
		blocks = append(blocks, block)
	})
	return blocks
}

// extractTables renders every table as a Markdown table. The header row
// comes from <thead> th cells, else the first row's th cells, else the
// first non-blank row. Body rows are padded or truncated to the header
// width.
func extractTables(doc *goquery.Document, sourceURL string) []types.StructuredBlock {
	var blocks []types.StructuredBlock

	doc.Find("table").Each(func(idx int, table *goquery.Selection) {
		markdown, ok := tableToMarkdown(table)
		if !ok {
			return
		}
		blocks = append(blocks, types.StructuredBlock{
			Type:         BlockTable,
			Content:      markdown,
			Caption:      spacedText(table.ChildrenFiltered("caption").First()),
			ElementIndex: idx,
			SourceURL:    sourceURL,
		})
	})
	return blocks
}

func tableToMarkdown(table *goquery.Selection) (string, bool) {
	headers := markdownCells(table.ChildrenFiltered("thead").Find("th"))
	if len(headers) == 0 {
		headers = markdownCells(table.Find("tr").First().ChildrenFiltered("th"))
	}

	rows := table.ChildrenFiltered("tbody").ChildrenFiltered("tr")
	if rows.Length() == 0 {
		rows = table.Find("tr")
	}

	var body []string
	rows.Each(func(_ int, row *goquery.Selection) {
		cells := row.ChildrenFiltered("td, th")
		if cells.Length() == 0 {
			return
		}
		data := markdownCells(cells)

		// Skip the row the th header was taken from.
		if len(headers) > 0 && cells.Length() == cells.Filter("th").Length() && equalStrings(data, headers) {
			return
		}

		if len(headers) == 0 {
			if !allBlank(data) {
				headers = data
			}
			return
		}

		switch {
		case len(data) < len(headers):
			for len(data) < len(headers) {
				data = append(data, " ")
			}
		case len(data) > len(headers):
			data = data[:len(headers)]
		}
		body = append(body, markdownRow(data))
	})

	if len(headers) == 0 || len(body) == 0 {
		return "", false
	}

	separator := make([]string, len(headers))
	for i := range separator {
		separator[i] = "---"
	}

	lines := make([]string, 0, len(body)+2)
	lines = append(lines, markdownRow(headers), markdownRow(separator))
	lines = append(lines, body...)
	return strings.Join(lines, "\n"), true
}

func markdownCells(cells *goquery.Selection) []string {
	var out []string
	cells.Each(func(_ int, cell *goquery.Selection) {
		text := strings.ReplaceAll(spacedText(cell), "|", `\|`)
		if text == "" {
			text = " "
		}
		out = append(out, text)
	})
	return out
}

func markdownRow(cells []string) string {
	return "| " + strings.Join(cells, " | ") + " |"
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func allBlank(cells []string) bool {
	for _, c := range cells {
		if !isBlankRunes(c) {
			return false
		}
	}
	return true
}

// extractLists renders top-level <ul>/<ol> elements as indented text.
// Nested lists are rendered inside their parent item.
func extractLists(doc *goquery.Document, sourceURL string) []types.StructuredBlock {
	var blocks []types.StructuredBlock

	topLevel := doc.Find("ul, ol").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.ParentsFiltered("ul > li, ol > li").Length() == 0
	})

	topLevel.Each(func(idx int, list *goquery.Selection) {
		content := renderList(list, 0)
		if strings.TrimSpace(content) == "" {
			return
		}
		blocks = append(blocks, types.StructuredBlock{
			Type:         fmt.Sprintf(blockListTypeFormat, goquery.NodeName(list)),
			Content:      content,
			Heading:      listHeading(list),
			ElementIndex: idx,
			SourceURL:    sourceURL,
		})
	})
	return blocks
}

func renderList(list *goquery.Selection, depth int) string {
	ordered := goquery.NodeName(list) == "ol"
	indent := strings.Repeat("  ", depth)

	var lines []string
	emitted := 0
	list.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
		item := li.Clone()
		item.Find("ul, ol").Remove()
		text := spacedText(item)

		var nested []string
		li.Find("ul, ol").FilterFunction(func(_ int, sub *goquery.Selection) bool {
			return sub.Parent().Closest("li").IsSelection(li)
		}).Each(func(_ int, sub *goquery.Selection) {
			if rendered := renderList(sub, depth+1); rendered != "" {
				nested = append(nested, rendered)
			}
		})

		if text == "" && len(nested) == 0 {
			return
		}
		emitted++
		marker := "*"
		if ordered {
			marker = fmt.Sprintf("%d.", emitted)
		}
		lines = append(lines, strings.TrimRight(indent+marker+" "+text, " "))
		lines = append(lines, nested...)
	})
	return strings.Join(lines, "\n")
}

// listHeading returns the text of a heading, or of a short label ending
// in a colon, placed right before the list.
func listHeading(list *goquery.Selection) string {
	prev := list.Prev()
	if prev.Length() == 0 {
		return ""
	}
	name := goquery.NodeName(prev)
	text := spacedText(prev)
	switch name {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		return text
	case "p", "div":
		if len(text) < 100 && strings.HasSuffix(text, ":") {
			return text
		}
	}
	return ""
}

// extractFormattedBlocks returns <pre> contents with a language guess.
func extractFormattedBlocks(doc *goquery.Document, sourceURL string) []types.StructuredBlock {
	var blocks []types.StructuredBlock

	doc.Find("pre").Each(func(idx int, pre *goquery.Selection) {
		clean := pre.Clone()
		clean.Find("button, span").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return strings.Contains(strings.ToLower(s.AttrOr("class", "")), "copy")
		}).Remove()

		text := collectText(clean, "\n")
		if text == "" {
			return
		}
		blocks = append(blocks, types.StructuredBlock{
			Type:         BlockFormatted,
			Content:      text,
			Language:     guessLanguage(pre, text),
			ElementIndex: idx,
			SourceURL:    sourceURL,
		})
	})
	return blocks
}

// guessLanguage reads a class hint on the <pre> or its <code> child, then
// falls back to sniffing the content.
func guessLanguage(pre *goquery.Selection, text string) string {
	classes := strings.Fields(pre.AttrOr("class", "") + " " + pre.ChildrenFiltered("code").First().AttrOr("class", ""))
	for _, cls := range classes {
		cls = strings.ToLower(cls)
		switch {
		case strings.HasPrefix(cls, "language-"):
			return strings.TrimPrefix(cls, "language-")
		case strings.HasPrefix(cls, "lang-"):
			return strings.TrimPrefix(cls, "lang-")
		case knownCodeLanguages[cls]:
			return cls
		}
	}

	switch {
	case jsonObjectRe.MatchString(text) || jsonArrayRe.MatchString(text):
		return "json"
	case xmlOpenRe.MatchString(text) && xmlCloseRe.MatchString(text):
		return "xml"
	case strings.Contains(text, "def ") || strings.Contains(text, "import ") || strings.Contains(text, "class "):
		return "python"
	case strings.Contains(text, "function(") || strings.Contains(text, "const ") ||
		strings.Contains(text, "let ") || strings.Contains(text, "var "):
		return "javascript"
	}
	return "plaintext"
}

// followCandidates returns absolute same-host URLs found in or under the
// elements matched by selector.
func followCandidates(doc *goquery.Document, selector goquery.Matcher, baseURL string) []string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	var out []string
	matches := doc.FindMatcher(selector)
	anchors := matches.Filter("a[href]").AddSelection(matches.Find("a[href]"))
	anchors.Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if skipHref(href) {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if utils.IsHTTPURL(abs.String()) && strings.EqualFold(abs.Host, base.Host) {
			out = append(out, abs.String())
		}
	})
	return out
}
