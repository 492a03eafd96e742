package search

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/fatih/color"
	"golang.org/x/net/html"
)

var (
	// ANSI colors for terminal output
	colorHeader  = color.New(color.FgHiMagenta, color.Bold)
	colorBold    = color.New(color.Bold)
	colorCyan    = color.New(color.FgCyan)
	colorKeyword = color.New(color.FgYellow, color.Bold)
)

// PlainSnippet renders a highlighted snippet for the terminal: tags are
// dropped and highlighted words are colored.
func PlainSnippet(snippet string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snippet))
	if err != nil {
		return snippet
	}
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			b.WriteString(n.Data)
			return
		case n.Type == html.ElementNode && n.Data == "em" && hasClass(n, "hit-keyword"):
			b.WriteString(colorKeyword.Sprint(textOf(n)))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	doc.Find("body").Each(func(_ int, s *goquery.Selection) { walk(s.Get(0)) })
	return strings.Join(strings.Fields(b.String()), " ")
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key == "class" {
			for _, c := range strings.Fields(a.Val) {
				if c == class {
					return true
				}
			}
		}
	}
	return false
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// FormatResults prints hits in a human-readable format. selected marks one
// hit with an arrow; pass -1 for none.
func FormatResults(w io.Writer, hits []Hit, query string, selected int) {
	if len(hits) == 0 {
		fmt.Fprintf(w, "No matches found for '%s'.\n", query)
		return
	}

	colorHeader.Fprintf(w, "\nSearch Results for '%s'\n", query)
	fmt.Fprintf(w, "Showing %d hits.\n\n", len(hits))

	for i, h := range hits {
		marker := "  "
		if i == selected {
			marker = "> "
		}
		colorBold.Fprintf(w, "%s%d. %s\n", marker, i+1, PlainSnippet(h.Title))
		fmt.Fprintf(w, "   %s\n", h.Link)
		if h.Summary != "" {
			colorCyan.Fprintln(w, "   "+strings.Repeat("-", 40))
			fmt.Fprintf(w, "   %s\n", PlainSnippet(h.Summary))
		}
		fmt.Fprintln(w)
	}
}

// FormatJSON prints hits as JSON.
func FormatJSON(w io.Writer, hits []Hit) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(hits)
}
