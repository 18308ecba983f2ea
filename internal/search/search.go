// internal/search/search.go

// Package search finds seed URLs for query-mode jobs.
package search

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/valpere/extractstudio/internal/errors"
	"github.com/valpere/extractstudio/internal/scraper"
	"github.com/valpere/extractstudio/internal/utils"
)

// DefaultEndpoint is the JavaScript-free DuckDuckGo results page.
const DefaultEndpoint = "https://html.duckduckgo.com/html/"

// Result is a single search result.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Searcher turns a query into result URLs.
type Searcher interface {
	Search(ctx context.Context, query string, max int) ([]Result, error)
}

// Selectors locate results on an HTML results page.
type Selectors struct {
	ResultItem string
	Link       string
	Snippet    string
}

var duckDuckGoSelectors = Selectors{
	ResultItem: ".result:not(.result--ad)",
	Link:       ".result__a",
	Snippet:    ".result__snippet",
}

// DuckDuckGo scrapes the DuckDuckGo HTML endpoint.
type DuckDuckGo struct {
	Endpoint  string
	Client    *scraper.HTTPClient
	UserAgent string
	Logger    utils.Logger
}

// NewDuckDuckGo creates a searcher using client for requests.
func NewDuckDuckGo(client *scraper.HTTPClient, logger utils.Logger) *DuckDuckGo {
	return &DuckDuckGo{Endpoint: DefaultEndpoint, Client: client, Logger: utils.OrNop(logger)}
}

// Search returns at most max distinct http(s) results in page order.
func (d *DuckDuckGo) Search(ctx context.Context, query string, max int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.Fetch("", 0, fmt.Errorf("empty search query"))
	}
	if max <= 0 {
		max = 5
	}

	endpoint := d.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	target, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.Fetch(endpoint, 0, fmt.Errorf("invalid search endpoint: %w", err))
	}
	params := target.Query()
	params.Set("q", query)
	target.RawQuery = params.Encode()

	resp, err := d.Client.Get(ctx, target.String(), d.UserAgent)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(resp.Body)))
	if err != nil {
		return nil, errors.Parse(target.String(), fmt.Errorf("failed to parse search results: %w", err))
	}

	results := parseResults(doc, duckDuckGoSelectors, max)
	utils.OrNop(d.Logger).Infof("search for %q returned %d results", query, len(results))
	return results, nil
}

func parseResults(doc *goquery.Document, sel Selectors, max int) []Result {
	var results []Result
	seen := make(map[string]bool)

	doc.Find(sel.ResultItem).EachWithBreak(func(_ int, item *goquery.Selection) bool {
		link := item.Find(sel.Link).First()
		href := unwrapRedirect(strings.TrimSpace(link.AttrOr("href", "")))
		if !utils.IsHTTPURL(href) || seen[href] {
			return true
		}
		seen[href] = true
		results = append(results, Result{
			Title:   utils.NormalizeWhitespace(link.Text()),
			URL:     href,
			Snippet: utils.NormalizeWhitespace(item.Find(sel.Snippet).First().Text()),
		})
		return len(results) < max
	})
	return results
}

// unwrapRedirect resolves DuckDuckGo's /l/?uddg= redirect links to their
// target.
func unwrapRedirect(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" && strings.HasPrefix(u.Path, "/l/") {
		return target
	}
	return href
}
