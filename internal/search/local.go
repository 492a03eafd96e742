package search

import (
	"context"
	"fmt"
	"html"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const snippetWords = 30

var frontmatterRe = regexp.MustCompile(`(?s)^---\s*\n(.*?)\n---\s*\n(.*)`)

// SplitFrontmatter splits YAML frontmatter from Markdown content.
func SplitFrontmatter(content string) (Frontmatter, string) {
	var fm Frontmatter
	matches := frontmatterRe.FindStringSubmatch(content)
	if len(matches) < 3 {
		return fm, content
	}
	if err := yaml.Unmarshal([]byte(matches[1]), &fm); err != nil {
		log.Printf("Warning: invalid frontmatter: %v", err)
		return Frontmatter{}, matches[2]
	}
	return fm, matches[2]
}

type document struct {
	id    string
	title string
	body  string
	link  string
	site  string
}

// Index is an in-memory index over a directory of Markdown pages.
type Index struct {
	docs []document
}

// LoadIndex reads every .md file under dir. link maps a slash-separated path
// relative to dir to the page's URL.
func LoadIndex(dir string, link func(rel string) string) (*Index, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	if _, statErr := os.Stat(absDir); os.IsNotExist(statErr) {
		return nil, fmt.Errorf("docs directory not found: %s", absDir)
	}

	ix := &Index{}
	walkErr := filepath.Walk(absDir, func(path string, info os.FileInfo, walkFuncErr error) error {
		if walkFuncErr != nil {
			return walkFuncErr
		}
		if info.IsDir() || filepath.Ext(path) != ".md" {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			log.Printf("Warning: error reading %s: %v", path, err)
			return nil
		}
		rel, _ := filepath.Rel(absDir, path)
		rel = filepath.ToSlash(rel)

		fm, body := SplitFrontmatter(string(content))
		ix.docs = append(ix.docs, document{
			id:    rel,
			title: PageTitle(fm, body, rel),
			body:  body,
			link:  link(rel),
			site:  fm.Site,
		})
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return ix, nil
}

// PageTitle returns the frontmatter title, then the first "# " heading,
// then the file name.
func PageTitle(fm Frontmatter, body, rel string) string {
	if fm.Title != "" {
		return fm.Title
	}
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
	}
	return strings.TrimSuffix(filepath.Base(rel), ".md")
}

// Len returns the number of indexed pages.
func (ix *Index) Len() int {
	return len(ix.docs)
}

// Query answers a query in the backend's wire shape. Pages are ranked by
// keyword occurrences, then by path.
func (ix *Index) Query(query, site string, offset, length int) QueryResult {
	if length <= 0 {
		length = PageSize
	}
	res := QueryResult{Query: query, Offset: offset, Length: length, Hits: []AlgoliaHit{}}
	keywords := strings.Fields(strings.ToLower(query))
	if len(keywords) == 0 {
		return res
	}

	type scored struct {
		doc     document
		matches int
	}
	var found []scored
	for _, d := range ix.docs {
		if site != "" && d.site != site {
			continue
		}
		text := strings.ToLower(d.title + "\n" + d.body)
		n := 0
		for _, kw := range keywords {
			n += strings.Count(text, kw)
		}
		if n > 0 {
			found = append(found, scored{d, n})
		}
	}
	sort.SliceStable(found, func(i, j int) bool {
		if found[i].matches != found[j].matches {
			return found[i].matches > found[j].matches
		}
		return found[i].doc.id < found[j].doc.id
	})

	res.NbHits = len(found)
	if offset >= len(found) {
		return res
	}
	end := min(len(found), offset+length)
	for _, s := range found[offset:end] {
		res.Hits = append(res.Hits, AlgoliaHit{
			ObjectID: s.doc.id,
			Title:    s.doc.title,
			Link:     s.doc.link,
			SnippetResult: map[string]SnippetResult{
				"title":   highlight(s.doc.title, keywords),
				"content": highlight(snippet(s.doc.body, keywords), keywords),
			},
		})
	}
	return res
}

// Search implements Searcher.
func (ix *Index) Search(_ context.Context, query string, offset, length int) (Page, error) {
	return ToPage(ix.Query(query, "", offset, length)), nil
}

// snippet returns up to snippetWords words of body around the first keyword.
func snippet(body string, keywords []string) string {
	words := strings.Fields(body)
	first := 0
	for i, w := range words {
		lw := strings.ToLower(w)
		if containsAny(lw, keywords) {
			first = i
			break
		}
	}
	start := max(0, first-snippetWords/2)
	end := min(len(words), start+snippetWords)
	return strings.Join(words[start:end], " ")
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// highlight escapes text and wraps every keyword occurrence in the
// highlight tags.
func highlight(text string, keywords []string) SnippetResult {
	escaped := html.EscapeString(text)
	var terms []string
	for _, kw := range keywords {
		terms = append(terms, regexp.QuoteMeta(html.EscapeString(kw)))
	}
	sort.SliceStable(terms, func(i, j int) bool { return len(terms[i]) > len(terms[j]) })
	re := regexp.MustCompile("(?i)" + strings.Join(terms, "|"))

	level := "none"
	out := re.ReplaceAllStringFunc(escaped, func(m string) string {
		level = "full"
		return HighlightPreTag + m + HighlightPostTag
	})
	return SnippetResult{Value: out, MatchLevel: level}
}

// ParseParams decodes the parameters built by Params.
func ParseParams(params string) (query, site string, offset, length int, err error) {
	v, err := url.ParseQuery(params)
	if err != nil {
		return "", "", 0, 0, fmt.Errorf("invalid search params: %w", err)
	}
	query = v.Get("query")
	site = strings.TrimPrefix(v.Get("filters"), "site:")
	if s := v.Get("offset"); s != "" {
		if offset, err = strconv.Atoi(s); err != nil {
			return "", "", 0, 0, fmt.Errorf("invalid offset %q", s)
		}
	}
	if s := v.Get("length"); s != "" {
		if length, err = strconv.Atoi(s); err != nil {
			return "", "", 0, 0, fmt.Errorf("invalid length %q", s)
		}
	}
	return query, site, offset, length, nil
}
