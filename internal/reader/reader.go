// Package reader renders the article of a page as Markdown with YAML
// frontmatter, for reading in a terminal or saving to disk.
package reader

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"gopkg.in/yaml.v3"
)

// Frontmatter is the metadata written above the Markdown body.
type Frontmatter struct {
	Title     string `yaml:"title"`
	SourceURL string `yaml:"source_url"`
	FetchedAt string `yaml:"fetched_at"`
}

// Page is a converted article.
type Page struct {
	Frontmatter
	Markdown string
}

// String returns the page as a Markdown document with frontmatter.
func (p Page) String() string {
	fm, err := yaml.Marshal(p.Frontmatter)
	if err != nil {
		return p.Markdown
	}
	return "---\n" + string(fm) + "---\n\n" + p.Markdown
}

// contentSelectors are tried in order after the configured article.
var contentSelectors = []string{"main", "article", "div.content", "body"}

// unwantedSelectors never reach the Markdown.
var unwantedSelectors = []string{
	"script", "style", "meta", "link", "noscript", "iframe", "svg",
	".sidebar", "header", "footer", ".nav", ".menu", "#sidebar",
	".navigation", ".toc", "#toc", ".footer", "#footer",
}

// Reader converts documents to Markdown.
type Reader struct {
	article string
	md      *md.Converter
	now     func() time.Time
}

// New creates a Reader that converts the element matched by article, or
// the first of main, article, div.content and body when it is absent.
func New(article string) *Reader {
	return &Reader{
		article: article,
		md:      md.NewConverter("", true, nil),
		now:     time.Now,
	}
}

// Convert renders doc, fetched from sourceURL. doc is not modified.
func (r *Reader) Convert(doc *goquery.Document, sourceURL string) (Page, error) {
	page := Page{Frontmatter: Frontmatter{
		Title:     Title(doc),
		SourceURL: sourceURL,
		FetchedAt: r.now().UTC().Format(time.RFC3339),
	}}

	content := r.content(doc)
	if content == nil {
		return page, fmt.Errorf("no content found in %s", sourceURL)
	}
	content = content.Clone()
	unwrapMarks(content)
	for _, sel := range unwantedSelectors {
		content.Find(sel).Remove()
	}

	body, err := goquery.OuterHtml(content)
	if err != nil {
		return page, fmt.Errorf("failed to get HTML: %w", err)
	}
	markdown, err := r.md.ConvertString(body)
	if err != nil {
		return page, fmt.Errorf("failed to convert to markdown: %w", err)
	}
	page.Markdown = ResolveLinks(postProcess(markdown), sourceURL)
	return page, nil
}

func (r *Reader) content(doc *goquery.Document) *goquery.Selection {
	selectors := contentSelectors
	if r.article != "" {
		selectors = append([]string{r.article}, contentSelectors...)
	}
	for _, s := range selectors {
		if sel := doc.Find(s).First(); sel.Length() > 0 {
			return sel
		}
	}
	return nil
}

// unwrapMarks replaces keyword marks with their text so highlighting does
// not leak into the Markdown.
func unwrapMarks(sel *goquery.Selection) {
	sel.Find("mark[data-markjs]").Each(func(_ int, m *goquery.Selection) {
		m.ReplaceWithNodes(&html.Node{Type: html.TextNode, Data: m.Text()})
	})
}

// Title returns the article title, then the document title, then the first
// h1, or "Untitled".
func Title(doc *goquery.Document) string {
	for _, s := range []string{"h1[data-article-title]", "title", "h1"} {
		if t := strings.TrimSpace(doc.Find(s).First().Text()); t != "" {
			return t
		}
	}
	return "Untitled"
}

var blankLines = regexp.MustCompile(`\n{3,}`)

func postProcess(markdown string) string {
	markdown = blankLines.ReplaceAllString(markdown, "\n\n")
	lines := strings.Split(markdown, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n")) + "\n"
}

var mdLink = regexp.MustCompile(`(!?)\[([^\]]*)\]\(([^)\s]+)\)`)

// ResolveLinks makes every relative link and image of markdown absolute
// against sourceURL. Fragment-only and mailto links are left alone.
func ResolveLinks(markdown, sourceURL string) string {
	base, err := url.Parse(sourceURL)
	if err != nil || !base.IsAbs() {
		return markdown
	}
	return mdLink.ReplaceAllStringFunc(markdown, func(match string) string {
		m := mdLink.FindStringSubmatch(match)
		bang, text, link := m[1], m[2], m[3]
		if strings.HasPrefix(link, "#") || strings.HasPrefix(link, "mailto:") ||
			strings.HasPrefix(link, "http:") || strings.HasPrefix(link, "https:") ||
			strings.HasPrefix(link, "data:") {
			return match
		}
		rel, err := url.Parse(link)
		if err != nil {
			return match
		}
		return fmt.Sprintf("%s[%s](%s)", bang, text, base.ResolveReference(rel))
	})
}
