package reader

import (
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
)

func mustDoc(t *testing.T, src string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestConvert(t *testing.T) {
	doc := mustDoc(t, `<html><head><title>Site title</title><script>x()</script></head><body>
<div id="sidebar">nav</div>
<div id="article-main">
  <h1 data-article-title>Getting started</h1>
  <p>Read the <a href="../guide/setup">setup guide</a> or <a href="#install">jump</a>.</p>
  <p>A <mark data-markjs="true">tree</mark> widget.</p>
  <img src="img/tree.png" alt="tree">
  <div id="toc">contents</div>
</div>
</body></html>`)

	r := New("#article-main")
	r.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	page, err := r.Convert(doc, "https://docs.example.com/docs/intro/start")
	if err != nil {
		t.Fatalf("Convert() error: %v", err)
	}
	if page.Title != "Getting started" {
		t.Errorf("Title = %q", page.Title)
	}
	if page.FetchedAt != "2026-01-02T03:04:05Z" {
		t.Errorf("FetchedAt = %q", page.FetchedAt)
	}

	for _, want := range []string{
		"# Getting started",
		"[setup guide](https://docs.example.com/docs/guide/setup)",
		"[jump](#install)",
		"A tree widget.",
		"![tree](https://docs.example.com/docs/intro/img/tree.png)",
	} {
		if !strings.Contains(page.Markdown, want) {
			t.Errorf("Markdown missing %q:\n%s", want, page.Markdown)
		}
	}
	for _, unwanted := range []string{"contents", "nav", "x()", "<mark"} {
		if strings.Contains(page.Markdown, unwanted) {
			t.Errorf("Markdown kept %q:\n%s", unwanted, page.Markdown)
		}
	}
	if strings.Contains(page.Markdown, "\n\n\n") {
		t.Errorf("Markdown has runs of blank lines:\n%s", page.Markdown)
	}

	if doc.Find("mark").Length() != 1 || doc.Find("#toc").Length() != 1 {
		t.Error("Convert() modified the source document")
	}

	out := page.String()
	if !strings.HasPrefix(out, "---\ntitle: Getting started\n") || !strings.Contains(out, "source_url: https://docs.example.com/docs/intro/start") {
		t.Errorf("String() =\n%s", out)
	}
}

func TestConvertFallsBackToMain(t *testing.T) {
	doc := mustDoc(t, `<html><body><header>top</header><main><p>Body text</p></main></body></html>`)
	page, err := New("#article-main").Convert(doc, "https://example.com/")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(page.Markdown) != "Body text" {
		t.Errorf("Markdown = %q", page.Markdown)
	}
	if page.Title != "Untitled" {
		t.Errorf("Title = %q", page.Title)
	}
}

func TestResolveLinks(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "relative", in: "[a](b/c)", want: "[a](https://x.test/docs/b/c)"},
		{name: "root relative", in: "[a](/b)", want: "[a](https://x.test/b)"},
		{name: "absolute", in: "[a](https://other.test/)", want: "[a](https://other.test/)"},
		{name: "fragment", in: "[a](#top)", want: "[a](#top)"},
		{name: "mailto", in: "[a](mailto:me@x.test)", want: "[a](mailto:me@x.test)"},
		{name: "image", in: "![i](p.png)", want: "![i](https://x.test/docs/p.png)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveLinks(tt.in, "https://x.test/docs/page"); got != tt.want {
				t.Errorf("ResolveLinks(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
	if got := ResolveLinks("[a](b)", "relative/base"); got != "[a](b)" {
		t.Errorf("relative base changed links: %q", got)
	}
}
