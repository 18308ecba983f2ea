// internal/extract/text.go
package extract

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/valpere/extractstudio/internal/utils"
)

var (
	blockTagRegexes = buildBlockTagRegexes("div", "p", "br", "li", "td", "tr", "h1", "h2", "h3", "h4", "h5", "h6")
	titleCaser      = cases.Title(language.Und)
)

type tagRegex struct {
	tag   string
	open  *regexp.Regexp
	close *regexp.Regexp
}

func buildBlockTagRegexes(tags ...string) []tagRegex {
	out := make([]tagRegex, 0, len(tags))
	for _, tag := range tags {
		out = append(out, tagRegex{
			tag:   tag,
			open:  regexp.MustCompile(`<` + tag + `(\s[^>]*)?/?>`),
			close: regexp.MustCompile(`</` + tag + `>`),
		})
	}
	return out
}

// addSpacesAroundBlocks pads block-level tags so their texts do not run
// together once the markup is flattened.
func addSpacesAroundBlocks(markup string) string {
	for _, t := range blockTagRegexes {
		markup = t.open.ReplaceAllString(markup, " $0")
		markup = t.close.ReplaceAllString(markup, "$0 ")
	}
	return markup
}

// collectText joins the trimmed text nodes under sel with sep. Script and
// style contents are skipped.
func collectText(sel *goquery.Selection, sep string) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		case html.ElementNode:
			if n.DataAtom == atom.Script || n.DataAtom == atom.Style || n.DataAtom == atom.Template {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(parts, sep)
}

// spacedText is the visible text of sel, whitespace-collapsed.
func spacedText(sel *goquery.Selection) string {
	return utils.NormalizeWhitespace(collectText(sel, " "))
}

// looksLikeMarkup reports whether s still carries tags.
func looksLikeMarkup(s string) bool {
	return strings.Contains(s, "<") && strings.Contains(s, ">")
}

// titleFromFileName derives a readable title from the last URL segment:
// everything after the first dot is dropped and underscores become spaces.
func titleFromFileName(rawURL string, cutExtension func(string) string) string {
	name := strings.ToLower(utils.FileNameFromURL(rawURL))
	if name == "" {
		return ""
	}
	name = cutExtension(name)
	name = strings.TrimSpace(strings.NewReplacer("_", " ", "-", " ").Replace(name))
	if name == "" {
		return ""
	}
	return titleCaser.String(name)
}

func cutAtFirstDot(name string) string {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return name
}

func cutSuffix(suffix string) func(string) string {
	return func(name string) string {
		return strings.TrimSuffix(name, suffix)
	}
}

func isBlankRunes(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return !unicode.IsSpace(r) }) < 0
}
