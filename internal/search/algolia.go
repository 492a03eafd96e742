package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/f4ah6o/youlog-go/internal/keyword"
)

const (
	// HighlightPreTag and HighlightPostTag wrap matched words in snippets.
	HighlightPreTag  = `<em class="hit-keyword">`
	HighlightPostTag = `</em>`
)

// Searcher returns one page of hits for a query.
type Searcher interface {
	Search(ctx context.Context, query string, offset, length int) (Page, error)
}

// Client queries an Algolia index over its REST API.
type Client struct {
	opts Options
	http *http.Client
}

// NewClient creates a Client. The host defaults to the application's DSN
// host.
func NewClient(opts Options) (*Client, error) {
	if opts.AppID == "" || opts.APIKey == "" || opts.Index == "" {
		return nil, fmt.Errorf("search requires an app id, an api key and an index")
	}
	if opts.Host == "" {
		opts.Host = "https://" + strings.ToLower(opts.AppID) + "-dsn.algolia.net"
	}
	opts.Host = strings.TrimRight(opts.Host, "/")
	if opts.PageSize <= 0 {
		opts.PageSize = PageSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Client{opts: opts, http: &http.Client{Timeout: opts.Timeout}}, nil
}

// PageSize returns the configured page size.
func (c *Client) PageSize() int {
	return c.opts.PageSize
}

// Params encodes the query parameters of one search.
func Params(query, site string, offset, length int) string {
	v := url.Values{}
	v.Set("query", query)
	v.Set("attributesToRetrieve", `["title","link"]`)
	v.Set("attributesToHighlight", `[]`)
	if site != "" {
		v.Set("filters", "site:"+site)
	}
	v.Set("offset", strconv.Itoa(offset))
	v.Set("length", strconv.Itoa(length))
	v.Set("distinct", "true")
	v.Set("highlightPreTag", HighlightPreTag)
	v.Set("highlightPostTag", HighlightPostTag)
	v.Set("attributesToSnippet", `["title:200","content:30"]`)
	return v.Encode()
}

// Search runs query against the index.
func (c *Client) Search(ctx context.Context, query string, offset, length int) (Page, error) {
	if length <= 0 {
		length = c.opts.PageSize
	}
	body, err := json.Marshal(QueriesRequest{Requests: []IndexQuery{{
		IndexName: c.opts.Index,
		Params:    Params(query, c.opts.Site, offset, length),
	}}})
	if err != nil {
		return Page{}, err
	}

	endpoint := c.opts.Host + "/1/indexes/*/queries"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Page{}, fmt.Errorf("invalid search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Algolia-Application-Id", c.opts.AppID)
	req.Header.Set("X-Algolia-API-Key", c.opts.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Page{}, fmt.Errorf("search failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out QueriesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Page{}, fmt.Errorf("failed to decode search response: %w", err)
	}
	if len(out.Results) == 0 {
		return Page{}, fmt.Errorf("search response has no results")
	}
	return ToPage(out.Results[0]), nil
}

// ToPage maps a raw result to hits.
func ToPage(r QueryResult) Page {
	p := Page{Query: r.Query, Total: r.NbHits}
	for _, h := range r.Hits {
		p.Hits = append(p.Hits, MapHit(h))
	}
	return p
}

// MapHit turns a raw hit into a Hit. The title and summary prefer the
// snippets, and the words highlighted in them are carried on the link.
func MapHit(in AlgoliaHit) Hit {
	h := Hit{ID: in.ObjectID, Title: in.Title, Link: in.Link}
	if s, ok := in.SnippetResult["title"]; ok && s.Value != "" {
		h.Title = s.Value
	}
	if s, ok := in.SnippetResult["content"]; ok {
		h.Summary = s.Value
	}
	h.Highlights = ExtractHighlights(in.SnippetResult)
	h.Link = keyword.WithKeywords(h.Link, h.Highlights)
	return h
}

// ExtractHighlights collects the distinct words wrapped in em.hit-keyword
// in every snippet that matched. Attribute names are visited in sorted
// order.
func ExtractHighlights(snippets map[string]SnippetResult) []string {
	keys := make([]string, 0, len(snippets))
	for k := range snippets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	seen := make(map[string]bool)
	var words []string
	for _, k := range keys {
		s := snippets[k]
		if s.MatchLevel == "none" || s.Value == "" {
			continue
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(s.Value))
		if err != nil {
			continue
		}
		doc.Find("em.hit-keyword").Each(func(_ int, em *goquery.Selection) {
			if text := em.Text(); text != "" && !seen[text] {
				seen[text] = true
				words = append(words, text)
			}
		})
	}
	return words
}
