package navtree

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/f4ah6o/youlog-go/internal/browser"
	"github.com/f4ah6o/youlog-go/internal/events"
)

const sidebarPage = `<html><body>
<div id="sidebar-nav-tree" class="invisible">
<ul>
  <li><a href="/a">A</a>
    <ul>
      <li><a href="/a/b">B</a>
        <ul><li><a href="/a/b/c">C</a></li></ul>
      </li>
      <li><a href="/a/d">D</a></li>
    </ul>
  </li>
  <li><a href="/x">X</a>
    <ul><li><a href="/x/y">Y</a></li></ul>
  </li>
  <li>plain</li>
</ul>
</div>
<nav id="header-nav"><ul>
  <li><a href="/">Home</a></li>
  <li><a href="/guide">Guide</a>
    <ul><li><a href="/guide/start">Start</a></li></ul>
  </li>
  <li><span>no link</span></li>
</ul></nav>
</body></html>`

type pageLoader struct{}

func (pageLoader) Fetch(context.Context, string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(sidebarPage))
}

func parse(t *testing.T) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(sidebarPage))
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func item(doc *goquery.Document, href string) *goquery.Selection {
	return doc.Find(`#sidebar-nav-tree a[href="` + href + `"]`).Closest("li")
}

func TestBuildTree(t *testing.T) {
	doc := parse(t)
	tree := doc.Find("#sidebar-nav-tree > ul")
	BuildTree(tree)

	tests := []struct {
		href   string
		class  string
		depth  string
		toggle bool
	}{
		{"/a", BranchClass, "0", true},
		{"/a/b", BranchClass, "1", true},
		{"/a/b/c", LeafClass, "2", false},
		{"/a/d", LeafClass, "1", false},
		{"/x/y", LeafClass, "1", false},
	}
	for _, tt := range tests {
		t.Run(tt.href, func(t *testing.T) {
			li := item(doc, tt.href)
			if !li.HasClass(tt.class) {
				t.Errorf("class = %q, want %s", li.AttrOr("class", ""), tt.class)
			}
			if got := li.AttrOr(DepthAttr, ""); got != tt.depth {
				t.Errorf("data-depth = %q, want %s", got, tt.depth)
			}
			if got := li.AttrOr("style", ""); got != "--depth: "+tt.depth {
				t.Errorf("style = %q", got)
			}
			row := li.ChildrenFiltered("." + NodeContentClass)
			if row.Length() != 1 {
				t.Fatalf("node-content rows = %d, want 1", row.Length())
			}
			if row.HasClass(ToggleClass) != tt.toggle {
				t.Errorf("with-toggle = %v, want %v", row.HasClass(ToggleClass), tt.toggle)
			}
			if tt.class == BranchClass && !li.ChildrenFiltered("ul").HasClass(HiddenClass) {
				t.Error("nested list should start hidden")
			}
		})
	}

	plain := tree.ChildrenFiltered("li").Last()
	if !plain.HasClass(LeafClass) || strings.TrimSpace(plain.Find("."+NodeContentClass).Text()) != "plain" {
		t.Errorf("text-only item not wrapped as a leaf: %q", plain.AttrOr("class", ""))
	}
}

func TestProcessTreeNodeIsIdempotent(t *testing.T) {
	doc := parse(t)
	li := item(doc, "/a")
	ProcessTreeNode(li)
	first, _ := goquery.OuterHtml(li)
	ProcessTreeNode(li)
	second, _ := goquery.OuterHtml(li)
	if first != second {
		t.Errorf("second pass changed the item:\n%s\n---\n%s", first, second)
	}
}

func TestSetNodeDepthKeepsOtherStyles(t *testing.T) {
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader(`<ul><li style="color: red; --depth: 9">x</li></ul>`))
	SetNodeDepth(doc.Find("ul").Get(0), 0)
	if got := doc.Find("li").AttrOr("style", ""); got != "color: red; --depth: 0" {
		t.Errorf("style = %q", got)
	}
}

func TestFallbackToLongestPrefix(t *testing.T) {
	doc := parse(t)
	tree := doc.Find("#sidebar-nav-tree > ul")
	BuildTree(tree)

	if a := ExpandCurrentPath(tree, "/a/b/x"); a != nil {
		t.Fatalf("ExpandCurrentPath matched %v, want no exact match", a.Attr)
	}
	a := FallbackToLongestPrefixMatchingLink(tree, "/a/b/x")
	if a == nil {
		t.Fatal("fallback found nothing")
	}
	if got := doc.FindNodes(a).AttrOr("href", ""); got != "/a/b" {
		t.Errorf("fallback chose %q, want /a/b", got)
	}
	if !item(doc, "/a/b").HasClass(ActiveClass) || item(doc, "/a").HasClass(ActiveClass) {
		t.Error("only the /a/b item should be active")
	}
}

func TestExpandCurrentPathToleratesTrailingSlash(t *testing.T) {
	doc := parse(t)
	tree := doc.Find("#sidebar-nav-tree > ul")
	BuildTree(tree)
	if a := ExpandCurrentPath(tree, "/x/"); a == nil {
		t.Error("/x/ should match /x")
	}
}

func newWindow(t *testing.T) (*browser.Window, *events.Bus, *Highlighter) {
	t.Helper()
	bus := events.NewBus()
	win, err := browser.New("https://example.com", bus, pageLoader{})
	if err != nil {
		t.Fatal(err)
	}
	h := NewHighlighter(win, bus, "")
	h.Setup()
	t.Cleanup(h.Close)
	return win, bus, h
}

func state(win *browser.Window) (active, expanded []string) {
	win.View(func(doc *goquery.Document) {
		doc.Find("#sidebar-nav-tree li").Each(func(_ int, li *goquery.Selection) {
			href := li.ChildrenFiltered("."+NodeContentClass).Find("a").AttrOr("href", "")
			if li.HasClass(ActiveClass) {
				active = append(active, href)
			}
			if li.ChildrenFiltered("."+NodeContentClass).HasClass(ExpandedClass) {
				expanded = append(expanded, href)
			}
		})
	})
	return active, expanded
}

func TestHighlightFollowsTransitions(t *testing.T) {
	win, bus, h := newWindow(t)
	ctx := context.Background()

	if err := win.Open(ctx, "/a/b"); err != nil {
		t.Fatal(err)
	}
	if n := len(h.Trees()); n != 1 {
		t.Fatalf("trees = %d, want 1", n)
	}
	active, expanded := state(win)
	if !reflect.DeepEqual(active, []string{"/a/b"}) || !reflect.DeepEqual(expanded, []string{"/a"}) {
		t.Errorf("at /a/b: active %v expanded %v", active, expanded)
	}
	win.View(func(doc *goquery.Document) {
		if doc.Find("#sidebar-nav-tree").HasClass("invisible") {
			t.Error("container should be made visible")
		}
		if !doc.Find(`a[href="/a/b"]`).HasClass(ActiveLinkClass) {
			t.Error("anchor should carry active-link")
		}
		if !doc.Find(`a[href="/x"]`).Closest("li").ChildrenFiltered("ul").HasClass(HiddenClass) {
			t.Error("unrelated branch should stay collapsed")
		}
	})
	if f := win.Focused(); f == nil || f.Data != "a" {
		t.Error("active link should be scrolled into view")
	}

	win.PushState("/x/y")
	bus.Emit(ctx, events.Event{Name: events.PageLoaded, URL: "/x/y"})

	active, expanded = state(win)
	if !reflect.DeepEqual(active, []string{"/x/y"}) || !reflect.DeepEqual(expanded, []string{"/x"}) {
		t.Errorf("at /x/y: active %v expanded %v", active, expanded)
	}
	win.View(func(doc *goquery.Document) {
		if doc.Find("." + ActiveLinkClass).Length() != 1 {
			t.Error("previous active-link not cleared")
		}
		if !doc.Find(`a[href="/a"]`).Closest("li").ChildrenFiltered("ul").HasClass(HiddenClass) {
			t.Error("previously expanded branch should collapse")
		}
	})

	if !win.Back(ctx) {
		t.Fatal("Back() failed")
	}
	if active, _ := state(win); !reflect.DeepEqual(active, []string{"/a/b"}) {
		t.Errorf("after popstate: active %v", active)
	}
}

func TestUpdateNavHighlightFallback(t *testing.T) {
	win, _, h := newWindow(t)
	if err := win.Open(context.Background(), "/a/b/missing"); err != nil {
		t.Fatal(err)
	}
	a := h.UpdateNavHighlight()
	if a == nil {
		t.Fatal("UpdateNavHighlight() = nil, want prefix match")
	}
	active, expanded := state(win)
	if !reflect.DeepEqual(active, []string{"/a/b"}) || !reflect.DeepEqual(expanded, []string{"/a"}) {
		t.Errorf("active %v expanded %v", active, expanded)
	}
}

func TestMissingContainer(t *testing.T) {
	bus := events.NewBus()
	win, _ := browser.New("https://example.com", bus, nil)
	h := NewHighlighter(win, bus, "#nope")
	if n := h.Init(); n != 0 {
		t.Errorf("Init() = %d, want 0", n)
	}
	if a := h.UpdateNavHighlight(); a != nil {
		t.Error("UpdateNavHighlight() without trees should do nothing")
	}
}

func TestToggleAndClickNode(t *testing.T) {
	win, _, h := newWindow(t)
	if err := win.Open(context.Background(), "/"); err != nil {
		t.Fatal(err)
	}

	xRow := nodeOf(win, `a[href="/x"]`, "."+NodeContentClass)
	dRow := nodeOf(win, `a[href="/a/d"]`, "."+NodeContentClass)
	dLink := nodeOf(win, `a[href="/a/d"]`, "")

	if !h.Toggle(xRow) {
		t.Fatal("Toggle on a branch row should toggle")
	}
	win.View(func(doc *goquery.Document) {
		li := doc.Find(`a[href="/x"]`).Closest("li")
		if !li.ChildrenFiltered("."+NodeContentClass).HasClass(ExpandedClass) || li.ChildrenFiltered("ul").HasClass(HiddenClass) {
			t.Error("branch should be expanded after toggle")
		}
	})
	h.Toggle(xRow)
	win.View(func(doc *goquery.Document) {
		if !doc.Find(`a[href="/x"]`).Closest("li").ChildrenFiltered("ul").HasClass(HiddenClass) {
			t.Error("branch should collapse on second toggle")
		}
	})

	if h.Toggle(dRow) {
		t.Error("leaf rows have no toggle")
	}
	a, ok := h.ClickNode(dRow)
	if !ok || a != dLink {
		t.Error("clicking a leaf row should return its anchor")
	}
	if _, ok := h.ClickNode(dLink); ok {
		t.Error("clicking the anchor itself is left to the link")
	}
}

func nodeOf(win *browser.Window, anchor, closest string) (n *html.Node) {
	win.View(func(doc *goquery.Document) {
		sel := doc.Find(anchor)
		if closest != "" {
			sel = sel.Closest(closest)
		}
		n = sel.Get(0)
	})
	return n
}

func TestParseMenuData(t *testing.T) {
	doc := parse(t)
	got := ParseMenuData(doc.Find("#header-nav"), "/guide/start")
	want := []MenuItem{
		{Text: "Home", Link: "/"},
		{Text: "Guide", Link: "/guide", Active: true, Children: []MenuItem{
			{Text: "Start", Link: "/guide/start", Active: true},
		}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseMenuData() = %+v, want %+v", got, want)
	}

	if items := ParseMenuData(doc.Find("#none"), "/"); items != nil {
		t.Errorf("missing nav = %v, want nil", items)
	}
	if items := ParseMenuData(doc.Find("#header-nav"), "/"); !items[0].Active || items[1].Active {
		t.Errorf("root path: %+v", items)
	}

	nav, err := goquery.NewDocumentFromReader(strings.NewReader(`<nav><ul><li><a href="/docs/中文/">CJK</a></li></ul></nav>`))
	if err != nil {
		t.Fatal(err)
	}
	if items := ParseMenuData(nav.Find("nav"), "/docs/%E4%B8%AD%E6%96%87/page"); len(items) != 1 || !items[0].Active {
		t.Errorf("escaped path: %+v", items)
	}
}

type staticLoader string

func (s staticLoader) Fetch(context.Context, string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(string(s)))
}

const encodedPage = `<html><body><div id="sidebar-nav-tree"><ul>
  <li><a href="/docs/%E4%B8%AD%E6%96%87">CJK escaped</a></li>
  <li><a href="/docs/a%20b">Space escaped</a></li>
  <li><a href="/docs/日本">CJK raw</a></li>
  <li><a href="https://example.com/docs/abs">Same origin</a></li>
  <li><a href="https://other.com/docs/other">Other origin</a></li>
</ul></div></body></html>`

func TestHighlightMatchesEncodedAndAbsoluteLinks(t *testing.T) {
	tests := []struct {
		open string
		want string
	}{
		{"/docs/%E4%B8%AD%E6%96%87", "CJK escaped"},
		{"/docs/a%20b", "Space escaped"},
		{"/docs/%E6%97%A5%E6%9C%AC", "CJK raw"},
		{"/docs/abs", "Same origin"},
		{"/docs/other", ""},
	}
	for _, tt := range tests {
		t.Run(tt.open, func(t *testing.T) {
			bus := events.NewBus()
			win, err := browser.New("https://example.com", bus, staticLoader(encodedPage))
			if err != nil {
				t.Fatal(err)
			}
			h := NewHighlighter(win, bus, "")
			h.Setup()
			t.Cleanup(h.Close)
			if err := win.Open(context.Background(), tt.open); err != nil {
				t.Fatal(err)
			}

			var got []string
			win.View(func(doc *goquery.Document) {
				doc.Find("." + ActiveLinkClass).Each(func(_ int, a *goquery.Selection) {
					got = append(got, a.Text())
				})
			})
			var want []string
			if tt.want != "" {
				want = []string{tt.want}
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("active links = %v, want %v", got, want)
			}
		})
	}
}

func TestFallbackPrefersDeeperLinkOverDirectory(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<ul>
  <li><a href="/docs/guide/">Guide</a>
    <ul><li><a href="/docs/guide/intro">Intro</a></li></ul>
  </li>
</ul>`))
	if err != nil {
		t.Fatal(err)
	}
	tree := doc.Find("ul").First()
	BuildTree(tree)

	a := FallbackToLongestPrefixMatchingLink(tree, "/docs/guide/intro/x")
	if a == nil {
		t.Fatal("fallback found nothing")
	}
	if got := doc.FindNodes(a).AttrOr("href", ""); got != "/docs/guide/intro" {
		t.Errorf("fallback chose %q, want /docs/guide/intro", got)
	}
}
