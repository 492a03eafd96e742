package navtree

import (
	"context"
	"log"
	"net/url"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/f4ah6o/youlog-go/internal/browser"
	"github.com/f4ah6o/youlog-go/internal/events"
	"github.com/f4ah6o/youlog-go/internal/urlutil"
)

// DefaultContainer holds the sidebar trees.
const DefaultContainer = "#sidebar-nav-tree"

// Highlighter tracks the trees of one window and re-highlights them on every
// transition.
type Highlighter struct {
	win       *browser.Window
	bus       *events.Bus
	container string

	mu       sync.Mutex
	trees    []*html.Node
	expanded []*html.Node

	unsubscribe []func()
}

// NewHighlighter creates a Highlighter for the trees directly under the
// element matched by container.
func NewHighlighter(win *browser.Window, bus *events.Bus, container string) *Highlighter {
	if container == "" {
		container = DefaultContainer
	}
	return &Highlighter{win: win, bus: bus, container: container}
}

// Setup builds the trees of the current document and subscribes to
// page-loaded, popstate and full document loads.
func (h *Highlighter) Setup() {
	h.Init()
	refresh := func(context.Context, events.Event) { h.UpdateNavHighlight() }
	h.unsubscribe = append(h.unsubscribe,
		h.bus.Subscribe(events.DOMContentLoaded, func(context.Context, events.Event) {
			h.mu.Lock()
			h.trees, h.expanded = nil, nil
			h.mu.Unlock()
			h.Init()
		}),
		h.bus.Subscribe(events.PageLoaded, refresh),
		h.bus.Subscribe(events.PopState, refresh),
	)
}

// Close removes the subscriptions.
func (h *Highlighter) Close() {
	for _, u := range h.unsubscribe {
		u()
	}
	h.unsubscribe = nil
}

// Init finds and builds the trees and highlights the current page. It
// returns the number of trees found.
func (h *Highlighter) Init() int {
	loc := h.win.Location()

	var (
		trees  []*html.Node
		active *html.Node
	)
	h.win.Update(func(doc *goquery.Document) {
		box := doc.Find(h.container).First()
		if box.Length() == 0 {
			return
		}
		box.AddClass("nav-tree")
		found := box.ChildrenFiltered("ul, ol")
		found.Each(func(_ int, tree *goquery.Selection) {
			BuildTree(tree)
			if a := expandCurrentPath(tree, loc); a != nil && active == nil {
				active = a
			}
		})
		trees = found.Nodes
		box.RemoveClass("invisible")
	})
	if len(trees) == 0 {
		log.Printf("Warning: nav tree %s not found", h.container)
		return 0
	}
	log.Printf("Found %d nav trees", len(trees))

	h.mu.Lock()
	h.trees = trees
	h.expanded = ancestorItems(active)
	h.mu.Unlock()

	if active != nil {
		h.win.ScrollIntoView(active)
	}
	return len(trees)
}

// Trees returns the tracked tree roots.
func (h *Highlighter) Trees() []*html.Node {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*html.Node(nil), h.trees...)
}

// UpdateNavHighlight clears the previous highlight and highlights the link of
// the current page. The first exact match across trees wins; without one the
// longest prefix match is used. It returns the highlighted anchor, or nil.
func (h *Highlighter) UpdateNavHighlight() *html.Node {
	h.mu.Lock()
	empty := len(h.trees) == 0
	h.mu.Unlock()
	if empty && h.Init() == 0 {
		return nil
	}

	loc := h.win.Location()

	h.mu.Lock()
	defer h.mu.Unlock()

	var active *html.Node
	h.win.Update(func(doc *goquery.Document) {
		collapse(doc, h.expanded)
		trees := doc.FindNodes(h.trees...)
		trees.Find("." + ActiveClass + ", ." + ActiveLinkClass).
			RemoveClass(ActiveClass).
			RemoveClass(ActiveLinkClass)

		trees.EachWithBreak(func(_ int, tree *goquery.Selection) bool {
			active = expandCurrentPath(tree, loc)
			return active == nil
		})
		if active == nil {
			trees.EachWithBreak(func(_ int, tree *goquery.Selection) bool {
				active = fallbackToLongestPrefix(tree, loc)
				return active == nil
			})
		}
	})
	h.expanded = ancestorItems(active)

	if active != nil {
		h.win.ScrollIntoView(active)
	}
	return active
}

// ExpandCurrentPath highlights the first anchor of tree whose href matches
// currentPath exactly and expands its ancestors. It returns that anchor, or
// nil when nothing matched.
func ExpandCurrentPath(tree *goquery.Selection, currentPath string) *html.Node {
	return expandCurrentPath(tree, pathURL(currentPath))
}

// FallbackToLongestPrefixMatchingLink highlights the anchor whose href is the
// longest path prefix of currentPath, counted in segments. Ties go to the
// first anchor in document order.
func FallbackToLongestPrefixMatchingLink(tree *goquery.Selection, currentPath string) *html.Node {
	return fallbackToLongestPrefix(tree, pathURL(currentPath))
}

// pathURL turns a path with optional query into a location without origin.
func pathURL(p string) *url.URL {
	if u, err := url.Parse(p); err == nil {
		return u
	}
	return &url.URL{Path: p}
}

func expandCurrentPath(tree *goquery.Selection, loc *url.URL) *html.Node {
	current := canonicalLocation(loc)
	var active *html.Node
	tree.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href := linkPath(a, loc)
		if href == "" || !urlutil.IsMatchingPath(current, href) {
			return true
		}
		active = activate(a)
		return active == nil
	})
	return active
}

func fallbackToLongestPrefix(tree *goquery.Selection, loc *url.URL) *html.Node {
	current := canonicalLocation(loc)
	var (
		best     *goquery.Selection
		bestSegs int
	)
	tree.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := linkPath(a, loc)
		if href == "" || !urlutil.IsMatchingPrefix(current, href) {
			return
		}
		if segs := urlutil.SegmentCount(href); best == nil || segs > bestSegs {
			best, bestSegs = a, segs
		}
	})
	if best == nil {
		return nil
	}
	return activate(best)
}

// canonicalLocation is the escaped path of loc in canonical form.
func canonicalLocation(loc *url.URL) string {
	return urlutil.CanonicalPath(loc.EscapedPath())
}

// linkPath returns the canonical path an anchor points at, or "" for links
// to another origin.
func linkPath(a *goquery.Selection, loc *url.URL) string {
	href, _ := a.Attr("href")
	if href == "" {
		return ""
	}
	href, ok := urlutil.SameOriginPath(href, loc)
	if !ok {
		return ""
	}
	abs := urlutil.ToAbsoluteURL(href, loc.EscapedPath())
	return urlutil.CanonicalPath(urlutil.RemoveQueryParams(abs))
}

// activate marks the anchor and its list item and expands every ancestor
// list item.
func activate(a *goquery.Selection) *html.Node {
	li := a.Closest("li")
	if li.Length() == 0 {
		return nil
	}
	li.AddClass(ActiveClass)
	a.AddClass(ActiveLinkClass)
	li.ParentsFiltered("li").Each(func(_ int, anc *goquery.Selection) {
		anc.Find("." + NodeContentClass).First().AddClass(ExpandedClass)
		anc.Find("ul, ol").First().RemoveClass(HiddenClass)
	})
	return a.Get(0)
}

func collapse(doc *goquery.Document, items []*html.Node) {
	if len(items) == 0 {
		return
	}
	doc.FindNodes(items...).Each(func(_ int, li *goquery.Selection) {
		li.Find("." + NodeContentClass).First().RemoveClass(ExpandedClass)
		li.Find("ul, ol").First().AddClass(HiddenClass)
	})
}

func ancestorItems(a *html.Node) []*html.Node {
	if a == nil {
		return nil
	}
	var items []*html.Node
	seenItem := false
	for n := a.Parent; n != nil; n = n.Parent {
		if n.Type != html.ElementNode || n.Data != "li" {
			continue
		}
		if !seenItem {
			// the anchor's own item is active, not expanded
			seenItem = true
			continue
		}
		items = append(items, n)
	}
	return items
}

// Toggle flips a node-content row between expanded and collapsed. Rows
// without the toggle affordance are left alone. It reports whether the row
// was toggled.
func (h *Highlighter) Toggle(row *html.Node) bool {
	toggled := false
	h.win.Update(func(doc *goquery.Document) {
		sel := doc.FindNodes(row).Closest("." + NodeContentClass)
		if sel.Length() == 0 || !sel.HasClass(ToggleClass) {
			return
		}
		sel.ToggleClass(ExpandedClass)
		sel.Closest("li").Find("ul, ol").First().ToggleClass(HiddenClass)
		toggled = true
	})
	return toggled
}

// ClickNode handles a click inside a tree. A click on a toggle row expands or
// collapses it. A click anywhere in a leaf other than on the anchor itself
// returns the leaf's anchor so the caller can follow it.
func (h *Highlighter) ClickNode(target *html.Node) (*html.Node, bool) {
	h.Toggle(target)
	if target.Type == html.ElementNode && target.Data == "a" {
		return nil, false
	}

	var anchor *html.Node
	h.win.View(func(doc *goquery.Document) {
		leaf := doc.FindNodes(target).Closest("." + LeafClass)
		if a := leaf.Find("a").First(); a.Length() > 0 {
			anchor = a.Get(0)
		}
	})
	return anchor, anchor != nil
}
