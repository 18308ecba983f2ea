// internal/extract/router_test.go
package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/extractstudio/internal/config"
	"github.com/valpere/extractstudio/internal/errors"
	"github.com/valpere/extractstudio/pkg/types"
)

const leagueJobYAML = `
domain_info:
  name: league
sources:
  - name: league
    seeds: ["https://league.example.com/table"]
    source_type: sports
    selectors:
      title: "h1.page-title"
      main_content: "#intro"
      links_to_follow: "nav.pager"
      custom_fields:
        - name: rows
          selector: "tbody tr"
          extract_type: structured_list
          sub_selectors:
            - name: rank
              selector: "td:nth-child(1)"
            - name: name
              selector: "td:nth-child(2)"
    export:
      format: jsonl
      output_path: out/league.jsonl
`

const leagueHTML = `<!DOCTYPE html>
<html>
<head><title>League Table</title></head>
<body>
  <h1 class="page-title">Standings 2024</h1>
  <div id="intro">The current standings of the league after the final round of matches.</div>
  <table>
    <thead><tr><th>Rank</th><th>Name</th></tr></thead>
    <tbody>
      <tr><td>1</td><td>Alice</td></tr>
      <tr><td>2</td><td>Bob</td></tr>
    </tbody>
  </table>
  <nav class="pager"><a href="/table?page=2">next</a><a href="https://other.example.org/x">away</a></nav>
  <a href="mailto:team@example.com">mail</a>
  <a href="/about#team" rel="author">About us</a>
</body>
</html>`

func loadJob(t *testing.T, yamlText string) *config.Job {
	t.Helper()
	job, err := config.LoadFromBytes([]byte(yamlText), "job.yaml")
	require.NoError(t, err)
	return job
}

func htmlDoc(url, body string) types.FetchedDocument {
	return types.FetchedDocument{
		ID:          "doc-1",
		SourceURL:   url,
		Content:     body,
		ContentType: "text/html",
		SourceType:  "sports",
	}
}

func TestRouter_HTMLWithSource(t *testing.T) {
	router := NewRouter(loadJob(t, leagueJobYAML), nil, WithReadability(false))

	rec, ok := router.Route(htmlDoc("https://league.example.com/table", leagueHTML))
	require.True(t, ok)

	assert.Equal(t, "doc-1", rec.OriginalDocumentID)
	assert.Equal(t, "league", rec.SourceName)
	assert.Equal(t, ParsedAsHTML, rec.ParserMetadata["parsed_as"])
	assert.Equal(t, "Standings 2024", rec.Title)

	assert.Equal(t, types.List{
		types.Record{"rank": types.String("1"), "name": types.String("Alice")},
		types.Record{"rank": types.String("2"), "name": types.String("Bob")},
	}, rec.CustomFields["rows"])

	var tables []types.StructuredBlock
	for _, b := range rec.Blocks {
		if b.Type == BlockTable {
			tables = append(tables, b)
		}
	}
	require.Len(t, tables, 1)
	assert.Equal(t, "| Rank | Name |\n| --- | --- |\n| 1 | Alice |\n| 2 | Bob |", tables[0].Content)

	assert.Equal(t, []string{"https://league.example.com/table?page=2"}, rec.FollowURLs)

	var linkURLs []string
	for _, l := range rec.Links {
		linkURLs = append(linkURLs, l.URL)
	}
	assert.Equal(t, []string{
		"https://league.example.com/table?page=2",
		"https://league.example.com/about#team",
	}, linkURLs)
	assert.Equal(t, "author", rec.Links[1].Rel)
	assert.Equal(t, "About us", rec.Links[1].Text)
}

func TestRouter_MainTextFallsBackToCleanBody(t *testing.T) {
	router := NewRouter(nil, nil, WithReadability(false))

	page := `<html><head><title>T</title><style>.x{}</style></head><body>
		<header>Site header</header><nav>Menu</nav>
		<p>Body paragraph one.</p><script>var tracking = 1;</script>
		<p>Body paragraph two.</p><footer>Copyright</footer></body></html>`

	rec, ok := router.Route(htmlDoc("https://example.com/page", page))
	require.True(t, ok)
	assert.Equal(t, "Body paragraph one. Body paragraph two.", rec.MainText)
	assert.Equal(t, "T", rec.Title)
}

func TestRouter_MainTextFromSelector(t *testing.T) {
	job := loadJob(t, strings.Replace(leagueJobYAML, `main_content: "#intro"`, `main_content: "p.lead"`, 1))
	router := NewRouter(job, nil, WithReadability(false))

	long := strings.Repeat("Lorem ipsum dolor sit amet. ", 8)
	page := `<html><body><p class="lead">` + long + `</p><p class="lead">Second.</p><p>Other</p></body></html>`

	rec, ok := router.Route(htmlDoc("https://league.example.com/x", page))
	require.True(t, ok)
	assert.Equal(t, strings.TrimSpace(long)+" Second.", rec.MainText)
}

func TestRouter_ReadabilityMainText(t *testing.T) {
	router := NewRouter(nil, nil)

	paragraph := "<p>" + strings.Repeat("Readable article sentences keep flowing here. ", 12) + "</p>"
	page := `<html><head><title>Story</title></head><body>
		<div class="sidebar"><a href="/">Home</a></div>
		<article><h2>Story</h2>` + paragraph + paragraph + `</article></body></html>`

	rec, ok := router.Route(htmlDoc("https://news.example.com/story", page))
	require.True(t, ok)
	assert.Contains(t, rec.MainText, "Readable article sentences keep flowing here.")
	assert.False(t, looksLikeMarkup(rec.MainText))
}

func TestRouter_TitlePrecedence(t *testing.T) {
	router := NewRouter(nil, nil, WithReadability(false))

	tests := []struct {
		name string
		doc  types.FetchedDocument
		want string
	}{
		{"title tag", htmlDoc("https://e.com/a", `<html><head><title> Head Title </title></head><body><h1>H</h1></body></html>`), "Head Title"},
		{"first h1", htmlDoc("https://e.com/a", `<html><body><h1>First <i>Heading</i></h1><h1>Second</h1></body></html>`), "First Heading"},
		{"hint wins", func() types.FetchedDocument {
			d := htmlDoc("https://e.com/a", `<html><head><title>Ignored</title></head><body>x</body></html>`)
			d.Title = "From Search"
			return d
		}(), "From Search"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, ok := router.Route(tt.doc)
			require.True(t, ok)
			assert.Equal(t, tt.want, rec.Title)
		})
	}
}

func TestRouter_SemanticBlocksNotDoubleCounted(t *testing.T) {
	router := NewRouter(nil, nil, WithReadability(false))

	page := `<html><body>
		<article>Intro <section>Inner section</section></article>
		<figure><img src="a.png"> Chart of sales <figcaption>Figure 1</figcaption></figure>
		<aside></aside>
	</body></html>`

	rec, ok := router.Route(htmlDoc("https://e.com/a", page))
	require.True(t, ok)

	var semantic []types.StructuredBlock
	for _, b := range rec.Blocks {
		if strings.HasPrefix(b.Type, "semantic_") {
			semantic = append(semantic, b)
		}
	}
	require.Len(t, semantic, 2)
	assert.Equal(t, "semantic_article", semantic[0].Type)
	assert.Equal(t, "Intro Inner section", semantic[0].Content)
	assert.Equal(t, "semantic_figure_with_caption", semantic[1].Type)
	assert.Equal(t, "Chart of sales", semantic[1].Content)
	assert.Equal(t, "Figure 1", semantic[1].Caption)
}

func TestRouter_ListsAndPreBlocks(t *testing.T) {
	router := NewRouter(nil, nil, WithReadability(false))

	page := `<html><body>
		<h3>Steps</h3>
		<ol><li>First<ul><li>Sub a</li><li>Sub b</li></ul></li><li>Second</li></ol>
		<p>Plain paragraph</p>
		<ul><li>alpha</li><li></li><li>beta</li></ul>
		<pre class="language-go">fmt.Println("hi")</pre>
		<pre><span class="copy-btn">Copy</span>{"a": 1}</pre>
		<pre>def main():
    pass</pre>
	</body></html>`

	rec, ok := router.Route(htmlDoc("https://e.com/a", page))
	require.True(t, ok)

	byType := map[string][]types.StructuredBlock{}
	for _, b := range rec.Blocks {
		byType[b.Type] = append(byType[b.Type], b)
	}

	require.Len(t, byType["html_ol_list"], 1)
	ol := byType["html_ol_list"][0]
	assert.Equal(t, "1. First\n  * Sub a\n  * Sub b\n2. Second", ol.Content)
	assert.Equal(t, "Steps", ol.Heading)

	require.Len(t, byType["html_ul_list"], 1)
	assert.Equal(t, "* alpha\n* beta", byType["html_ul_list"][0].Content)
	assert.Empty(t, byType["html_ul_list"][0].Heading)

	pres := byType[BlockFormatted]
	require.Len(t, pres, 3)
	assert.Equal(t, "go", pres[0].Language)
	assert.Equal(t, "json", pres[1].Language)
	assert.Equal(t, `{"a": 1}`, pres[1].Content)
	assert.Equal(t, "python", pres[2].Language)
}

func TestRouter_ListNumberingAndWrappedSublists(t *testing.T) {
	router := NewRouter(nil, nil, WithReadability(false))

	page := `<html><body><ol>
		<li>Warm up<div><ul><li>Jog</li><li>Stretch</li></ul></div></li>
		<li>  </li>
		<li>Drills</li>
	</ol></body></html>`

	rec, ok := router.Route(htmlDoc("https://e.com/training", page))
	require.True(t, ok)

	var lists []types.StructuredBlock
	for _, b := range rec.Blocks {
		if strings.HasSuffix(b.Type, "_list") {
			lists = append(lists, b)
		}
	}
	require.Len(t, lists, 1)
	assert.Equal(t, "html_ol_list", lists[0].Type)
	assert.Equal(t, "1. Warm up\n  * Jog\n  * Stretch\n2. Drills", lists[0].Content)
}

func TestRouter_TableWithoutThead(t *testing.T) {
	router := NewRouter(nil, nil, WithReadability(false))

	page := `<html><body><table><caption>Scores</caption>
		<tr><th>Team</th><th>Pts</th></tr>
		<tr><td>Red | Blue</td><td>3</td><td>extra</td></tr>
		<tr><td>Green</td></tr>
	</table></body></html>`

	rec, ok := router.Route(htmlDoc("https://e.com/a", page))
	require.True(t, ok)

	var table *types.StructuredBlock
	for i := range rec.Blocks {
		if rec.Blocks[i].Type == BlockTable {
			table = &rec.Blocks[i]
		}
	}
	require.NotNil(t, table)
	assert.Equal(t, "| Team | Pts |\n| --- | --- |\n| Red \\| Blue | 3 |\n| Green |   |", table.Content)
	assert.Equal(t, "Scores", table.Caption)
}

func TestRouter_NonHTMLBranches(t *testing.T) {
	router := NewRouter(nil, nil)

	t.Run("plain text", func(t *testing.T) {
		rec, ok := router.Route(types.FetchedDocument{
			SourceURL:   "https://e.com/docs/read_me.txt",
			ContentType: "text/plain",
			Content:     "  hello world  ",
		})
		require.True(t, ok)
		assert.Equal(t, ParsedAsText, rec.ParserMetadata["parsed_as"])
		assert.Equal(t, "hello world", rec.MainText)
		assert.Equal(t, "Read Me", rec.Title)
	})

	t.Run("markdown by extension", func(t *testing.T) {
		rec, ok := router.Route(types.FetchedDocument{
			SourceURL: "https://e.com/notes.md",
			Content:   "# Notes",
		})
		require.True(t, ok)
		assert.Equal(t, ParsedAsText, rec.ParserMetadata["parsed_as"])
	})

	t.Run("json", func(t *testing.T) {
		rec, ok := router.Route(types.FetchedDocument{
			SourceURL:   "https://api.e.com/v1/items.json",
			ContentType: "application/json",
			Content:     `{"items": [1, 2]}`,
		})
		require.True(t, ok)
		assert.Empty(t, rec.MainText)
		require.Len(t, rec.Blocks, 1)
		assert.Equal(t, BlockFullJSON, rec.Blocks[0].Type)
		assert.Equal(t, "json", rec.Blocks[0].Language)
		assert.Equal(t, "Items", rec.Title)
	})

	t.Run("rss feed", func(t *testing.T) {
		feed := `<?xml version="1.0"?><rss version="2.0"><channel><title>Club News</title>
			<item><title>Match won</title><link>https://e.com/n/1</link></item>
			<item><title>New signing</title><link>https://e.com/n/2</link></item>
			</channel></rss>`
		rec, ok := router.Route(types.FetchedDocument{
			SourceURL:   "https://e.com/feed.xml",
			ContentType: "application/xml",
			Content:     feed,
		})
		require.True(t, ok)
		require.Len(t, rec.Blocks, 2)
		assert.Equal(t, BlockFullXML, rec.Blocks[0].Type)
		assert.Equal(t, BlockFeedEntries, rec.Blocks[1].Type)
		assert.Equal(t, "* Match won (https://e.com/n/1)\n* New signing (https://e.com/n/2)", rec.Blocks[1].Content)
		assert.Equal(t, "Club News", rec.Title)
		assert.Equal(t, "rss", rec.ParserMetadata["feed_type"])
	})

	t.Run("fallback strips markup", func(t *testing.T) {
		rec, ok := router.Route(types.FetchedDocument{
			SourceURL:   "https://e.com/blob",
			ContentType: "application/x-unknown",
			Content:     `<html><head><title>Odd</title></head><body><p>Fish &amp; chips</p><script>x()</script></body></html>`,
		})
		require.True(t, ok)
		assert.Equal(t, ParsedAsFallback, rec.ParserMetadata["parsed_as"])
		assert.Equal(t, "Fish & chips", rec.MainText)
		assert.Equal(t, "Odd", rec.Title)
	})

	t.Run("fallback drops page chrome", func(t *testing.T) {
		rec, ok := router.Route(types.FetchedDocument{
			SourceURL:   "https://e.com/blob",
			ContentType: "application/octet-stream",
			Content: `<html><head><title>Odd</title><style>p{}</style></head><body>
				<nav>Home | Fixtures</nav><aside>Sponsored</aside>
				<div><p>Kick-off</p><p>at noon</p></div>
				<form><label>Search</label></form><footer>Copyright</footer></body></html>`,
		})
		require.True(t, ok)
		assert.Equal(t, "Kick-off at noon", rec.MainText)
		assert.Equal(t, "Odd", rec.Title)
	})

	t.Run("fallback opaque text", func(t *testing.T) {
		rec, ok := router.Route(types.FetchedDocument{
			SourceURL:   "https://e.com/data.bin",
			ContentType: "application/x-thing",
			Content:     "a < b > c",
		})
		require.True(t, ok)
		assert.Equal(t, "a < b > c", rec.MainText)
		assert.Equal(t, "data.bin", rec.Title)
	})
}

func TestRouter_DropsEmptyDocuments(t *testing.T) {
	router := NewRouter(nil, nil)

	for _, doc := range []types.FetchedDocument{
		{SourceURL: "https://e.com/empty.txt", ContentType: "text/plain"},
		{SourceURL: "https://e.com/", ContentType: "text/html", Content: "   "},
		{SourceURL: "https://e.com/x.json", ContentType: "application/json"},
	} {
		rec, ok := router.Route(doc)
		assert.False(t, ok, doc.SourceURL)
		assert.Nil(t, rec)
	}
}

func TestRouter_BrokenPDFReportsParseError(t *testing.T) {
	var reported []error
	router := NewRouter(nil, nil, WithErrorHook(func(err error) { reported = append(reported, err) }))

	rec, ok := router.Route(types.FetchedDocument{
		SourceURL:    "https://e.com/files/annual_report.pdf",
		ContentType:  "application/pdf",
		ContentBytes: []byte("%PDF-1.4 this is not really a pdf"),
	})
	assert.False(t, ok)
	assert.Nil(t, rec)
	require.Len(t, reported, 1)
	assert.True(t, errors.Is(reported[0], errors.ErrParse))
}

func TestRouter_FieldErrorsReachHook(t *testing.T) {
	var reported []error
	job := loadJob(t, leagueJobYAML)
	router := NewRouter(job, nil, WithReadability(false), WithErrorHook(func(err error) { reported = append(reported, err) }))

	rec, ok := router.Route(htmlDoc("https://league.example.com/table", leagueHTML))
	require.True(t, ok)
	assert.Empty(t, reported)
	assert.Len(t, rec.CustomFields, 1)
}

func TestRouter_FollowLinks(t *testing.T) {
	router := NewRouter(nil, nil)

	rec := &types.ParsedRecord{
		SourceURL: "https://e.com/",
		Links: []types.Link{
			{URL: "https://e.com/a#top"},
			{URL: "https://e.com/a"},
			{URL: "https://e.com/"},
			{URL: "https://e.com/b"},
		},
	}
	assert.Equal(t, []string{"https://e.com/a", "https://e.com/b"}, router.FollowLinks(rec))

	rec.FollowURLs = []string{"https://e.com/c"}
	assert.Equal(t, []string{"https://e.com/c"}, router.FollowLinks(rec))

	rec.FollowURLs = []string{}
	assert.Empty(t, router.FollowLinks(rec))
}

func TestTextFromContentStream(t *testing.T) {
	stream := []byte("BT\n/F1 12 Tf\n72 712 Td\n(Hello) Tj\n0 -14 Td\n[(Wor) -20 (ld)] TJ\nT*\n(a\\050b\\tc) Tj\nET\n")
	assert.Equal(t, "Hello World a(b c", textFromContentStream(stream))

	assert.Equal(t, "x\ny", decodePDFString([]byte(`x\ny`)))
	assert.Equal(t, "A", decodePDFString([]byte(`\101`)))
}

func TestLiteralStrings(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []string
	}{
		{"plain", `(Hello) Tj`, []string{"Hello"}},
		{"escaped close", `(a\) b) Tj`, []string{`a\) b`}},
		{"nested", `(f(x) = 1) Tj`, []string{"f(x) = 1"}},
		{"array", `[(Wor) -20 (ld\\)] TJ`, []string{"Wor", `ld\\`}},
		{"unterminated", `(open Tj`, []string{"open Tj"}},
		{"none", `72 712 Td`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, raw := range literalStrings([]byte(tt.line)) {
				got = append(got, string(raw))
			}
			assert.Equal(t, tt.want, got)
		})
	}

	stream := []byte("BT\n(Score \\(final\\): 2\\)1) Tj\n0 -14 Td\n(Goal (late)) Tj\nET\n")
	assert.Equal(t, "Score (final): 2)1 Goal (late)", textFromContentStream(stream))
}
