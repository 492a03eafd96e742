package search

import "time"

// PageSize is the number of hits requested per page.
const PageSize = 10

// Hit is one search result as shown to the reader.
type Hit struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Summary    string   `json:"summary"`
	Link       string   `json:"link"`
	Highlights []string `json:"highlights,omitempty"`
}

// Page is one page of results for a query.
type Page struct {
	Query string `json:"query"`
	Hits  []Hit  `json:"hits"`
	Total int    `json:"total"`
}

// Options configures the Algolia client.
type Options struct {
	AppID    string
	APIKey   string
	Index    string
	Site     string
	Host     string
	PageSize int
	Timeout  time.Duration
}

// SnippetResult is a highlighted excerpt of one attribute.
type SnippetResult struct {
	Value      string `json:"value"`
	MatchLevel string `json:"matchLevel"`
}

// AlgoliaHit is a raw hit of the search backend.
type AlgoliaHit struct {
	ObjectID      string                   `json:"objectID"`
	Title         string                   `json:"title"`
	Content       string                   `json:"content,omitempty"`
	Link          string                   `json:"link"`
	SnippetResult map[string]SnippetResult `json:"_snippetResult,omitempty"`
}

// QueryResult is the result of one query of a multi-query request.
type QueryResult struct {
	Hits   []AlgoliaHit `json:"hits"`
	Query  string       `json:"query"`
	NbHits int          `json:"nbHits"`
	Offset int          `json:"offset"`
	Length int          `json:"length"`
}

// IndexQuery is one query of a multi-query request.
type IndexQuery struct {
	IndexName string `json:"indexName"`
	Params    string `json:"params"`
}

// QueriesRequest is the body of POST /1/indexes/*/queries.
type QueriesRequest struct {
	Requests []IndexQuery `json:"requests"`
}

// QueriesResponse is the reply to a QueriesRequest.
type QueriesResponse struct {
	Results []QueryResult `json:"results"`
}

// Frontmatter represents YAML frontmatter of a Markdown page.
type Frontmatter struct {
	Title     string `yaml:"title"`
	SourceURL string `yaml:"source_url"`
	Site      string `yaml:"site"`
}
