package urlutil

import (
	"net/url"
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse(%q): %v", raw, err)
	}
	return u
}

func TestIsOnlyHashChange(t *testing.T) {
	tests := []struct {
		name     string
		old, new string
		want     bool
	}{
		{"fragment added", "/docs/a", "/docs/a#intro", true},
		{"fragment changed", "/docs/a#x", "/docs/a#y", true},
		{"same url", "/docs/a?q=1", "/docs/a?q=1", true},
		{"path changed", "/docs/a#x", "/docs/b#x", false},
		{"query changed", "/docs/a?q=1#x", "/docs/a?q=2#x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsOnlyHashChange(tt.old, tt.new); got != tt.want {
				t.Errorf("IsOnlyHashChange(%q, %q) = %v, want %v", tt.old, tt.new, got, tt.want)
			}
		})
	}
}

func TestShouldHandleHref(t *testing.T) {
	loc := mustURL(t, "https://docs.example.com/guide/intro")

	tests := []struct {
		name string
		href string
		base string
		want bool
	}{
		{"fragment only", "#x", "", false},
		{"mailto", "mailto:a@b.com", "", false},
		{"empty", "", "", false},
		{"cross origin", "https://other.example.com/guide/a", "", false},
		{"cross scheme", "http://docs.example.com/guide/a", "", false},
		{"protocol relative other host", "//cdn.example.com/x", "", false},
		{"outside base", "/blog/post", "/guide/", false},
		{"document relative", "page.html", "", false},
		{"origin rooted", "/guide/a", "", true},
		{"same origin absolute", "https://docs.example.com/guide/a", "", true},
		{"in base", "/guide/a?x=1#y", "/guide/", true},
		{"same origin absolute in base", "https://docs.example.com/guide/b", "/guide/", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldHandleHref(tt.href, loc, tt.base); got != tt.want {
				t.Errorf("ShouldHandleHref(%q, base=%q) = %v, want %v", tt.href, tt.base, got, tt.want)
			}
		})
	}
}

func TestShouldHandleLinkRequiresAnchor(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<div><a href="/x">x</a><span href="/y">y</span><a>none</a></div>`))
	if err != nil {
		t.Fatal(err)
	}
	loc := mustURL(t, "https://example.com/")

	var anchors, spans []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "a":
				anchors = append(anchors, n)
			case "span":
				spans = append(spans, n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if !ShouldHandleLink(anchors[0], loc, "") {
		t.Error("anchor with in-base href should be handled")
	}
	if ShouldHandleLink(anchors[1], loc, "") {
		t.Error("anchor without href should not be handled")
	}
	if ShouldHandleLink(spans[0], loc, "") {
		t.Error("non-anchor element should not be handled")
	}
	if ShouldHandleLink(nil, loc, "") {
		t.Error("nil node should not be handled")
	}
}

func TestToAbsoluteURL(t *testing.T) {
	tests := []struct {
		relative, current, want string
	}{
		{"b.html", "/docs/a.html", "/docs/b.html"},
		{"b/", "/docs/", "/docs/b/"},
		{"../c", "/docs/guide/a", "/docs/c"},
		{"/root", "/docs/a", "/root"},
		{"https://x.com/y", "/docs/a", "https://x.com/y"},
		{"c?x=1#h", "/docs/a", "/docs/c?x=1#h"},
	}

	for _, tt := range tests {
		t.Run(tt.relative, func(t *testing.T) {
			if got := ToAbsoluteURL(tt.relative, tt.current); got != tt.want {
				t.Errorf("ToAbsoluteURL(%q, %q) = %q, want %q", tt.relative, tt.current, got, tt.want)
			}
		})
	}
}

func TestRemoveQueryParams(t *testing.T) {
	tests := map[string]string{
		"/a/b?x=1#y": "/a/b",
		"/a/b#y?x":   "/a/b",
		"/a/b":       "/a/b",
		"":           "",
	}
	for in, want := range tests {
		if got := RemoveQueryParams(in); got != want {
			t.Errorf("RemoveQueryParams(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsMatchingPath(t *testing.T) {
	tests := []struct {
		current, target string
		want            bool
	}{
		{"/docs/a", "/docs/a/", true},
		{"/docs/a/", "/docs/a", true},
		{"/docs/a", "/docs/a", true},
		{"/docs/a", "/docs/b", false},
		{"/docs/a//", "/docs/a", false},
		{"/docs/ab", "/docs/a", false},
	}

	for _, tt := range tests {
		if got := IsMatchingPath(tt.current, tt.target); got != tt.want {
			t.Errorf("IsMatchingPath(%q, %q) = %v, want %v", tt.current, tt.target, got, tt.want)
		}
	}
}

func TestIsMatchingPrefix(t *testing.T) {
	tests := []struct {
		name            string
		current, target string
		want            bool
	}{
		{"directory prefix", "/a/b/x", "/a/b", true},
		{"parent prefix", "/a/b/x", "/a", true},
		{"sibling not prefix", "/a/b/x", "/a/b/c", false},
		{"segment boundary", "/ab/x", "/a", false},
		{"index html", "/guide/setup", "/guide/index.html", true},
		{"html suffix", "/guide/setup/step1", "/guide/setup.html", true},
		{"html suffix no match", "/guide/setupx", "/guide/setup.html", false},
		{"trailing slash", "/guide/setup", "/guide/", true},
		{"root", "/anything", "/", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsMatchingPrefix(tt.current, tt.target); got != tt.want {
				t.Errorf("IsMatchingPrefix(%q, %q) = %v, want %v", tt.current, tt.target, got, tt.want)
			}
		})
	}
}

func TestFullPath(t *testing.T) {
	if got := FullPath(mustURL(t, "https://e.com/a/b?x=1#h")); got != "/a/b?x=1#h" {
		t.Errorf("FullPath = %q", got)
	}
	if got := FullPath(mustURL(t, "https://e.com")); got != "/" {
		t.Errorf("FullPath of bare origin = %q, want /", got)
	}
}

func TestSegmentCount(t *testing.T) {
	tests := map[string]int{
		"/":                  0,
		"/docs/guide/":       2,
		"/docs/guide/intro":  3,
		"/docs//guide":       2,
		"docs/guide/intro/x": 4,
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			if got := SegmentCount(in); got != want {
				t.Errorf("SegmentCount(%q) = %d, want %d", in, got, want)
			}
		})
	}
}

func TestCanonicalPath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/docs/中文", "/docs/%E4%B8%AD%E6%96%87"},
		{"/docs/%E4%B8%AD%E6%96%87", "/docs/%E4%B8%AD%E6%96%87"},
		{"/docs/%e4%b8%ad%e6%96%87", "/docs/%E4%B8%AD%E6%96%87"},
		{"/docs/a b", "/docs/a%20b"},
		{"/docs/a%20b/", "/docs/a%20b/"},
		{"/docs/100%", "/docs/100%"},
		{"/plain/path", "/plain/path"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := CanonicalPath(tt.in); got != tt.want {
				t.Errorf("CanonicalPath(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
