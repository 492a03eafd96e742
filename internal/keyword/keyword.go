// Package keyword highlights the search keywords carried in the __hlts query
// parameter and brings the first match into view.
package keyword

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/f4ah6o/youlog-go/internal/browser"
	"github.com/f4ah6o/youlog-go/internal/events"
)

// Param is the query parameter holding a JSON array of keywords.
const Param = "__hlts"

// MarkAttr is set on every <mark> element this package creates.
const MarkAttr = "data-markjs"

// DefaultQuiet is how long the document must stay unchanged before marking.
const DefaultQuiet = 50 * time.Millisecond

// FromURL returns the keywords of u. It returns nil when the parameter is
// absent or does not hold an array. Non-string entries are skipped.
func FromURL(u *url.URL) ([]string, error) {
	raw := u.Query().Get(Param)
	if raw == "" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("invalid %s parameter: %w", Param, err)
	}
	list, ok := v.([]any)
	if !ok {
		return nil, nil
	}
	var words []string
	for _, item := range list {
		if s, ok := item.(string); ok {
			words = append(words, s)
		}
	}
	return words, nil
}

// WithKeywords returns link with words added as the __hlts parameter.
func WithKeywords(link string, words []string) string {
	if len(words) == 0 {
		return link
	}
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	b, err := json.Marshal(words)
	if err != nil {
		return link
	}
	q := u.Query()
	q.Set(Param, string(b))
	u.RawQuery = q.Encode()
	return u.String()
}

// pattern builds a case-insensitive alternation of the words, split on
// whitespace, longest first.
func pattern(words []string) *regexp.Regexp {
	seen := make(map[string]bool)
	var terms []string
	for _, w := range words {
		for _, term := range strings.Fields(w) {
			key := strings.ToLower(term)
			if !seen[key] {
				seen[key] = true
				terms = append(terms, regexp.QuoteMeta(term))
			}
		}
	}
	if len(terms) == 0 {
		return nil
	}
	sort.SliceStable(terms, func(i, j int) bool { return len(terms[i]) > len(terms[j]) })
	return regexp.MustCompile("(?i)" + strings.Join(terms, "|"))
}

var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Title:    true,
	atom.Head:     true,
	atom.Textarea: true,
	atom.Mark:     true,
}

// Mark wraps every occurrence of the words inside sel in a <mark> element and
// returns the created elements in document order.
func Mark(sel *goquery.Selection, words []string) []*html.Node {
	re := pattern(words)
	if re == nil {
		return nil
	}
	var marks []*html.Node
	for _, root := range sel.Nodes {
		var texts []*html.Node
		collectText(root, &texts)
		for _, t := range texts {
			marks = append(marks, markText(t, re)...)
		}
	}
	return marks
}

func collectText(n *html.Node, out *[]*html.Node) {
	if n.Type == html.ElementNode && skipped[n.DataAtom] {
		return
	}
	if n.Type == html.TextNode {
		*out = append(*out, n)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, out)
	}
}

func markText(t *html.Node, re *regexp.Regexp) []*html.Node {
	locs := re.FindAllStringIndex(t.Data, -1)
	if len(locs) == 0 || t.Parent == nil {
		return nil
	}
	parent, text := t.Parent, t.Data
	var marks []*html.Node
	last := 0
	for _, loc := range locs {
		if loc[0] > last {
			parent.InsertBefore(&html.Node{Type: html.TextNode, Data: text[last:loc[0]]}, t)
		}
		m := &html.Node{
			Type:     html.ElementNode,
			DataAtom: atom.Mark,
			Data:     "mark",
			Attr:     []html.Attribute{{Key: MarkAttr, Val: "true"}},
		}
		m.AppendChild(&html.Node{Type: html.TextNode, Data: text[loc[0]:loc[1]]})
		parent.InsertBefore(m, t)
		marks = append(marks, m)
		last = loc[1]
	}
	if last < len(text) {
		t.Data = text[last:]
	} else {
		parent.RemoveChild(t)
	}
	return marks
}

// FocusTarget returns the element to scroll to for a mark: the enclosing
// <code> element when the mark sits in code, otherwise the mark itself.
// The walk stops below the nearest <pre>.
func FocusTarget(m *html.Node) *html.Node {
	for cur := m; cur.Parent != nil && cur.Parent.DataAtom != atom.Pre; {
		cur = cur.Parent
		if cur.DataAtom == atom.Code {
			return cur
		}
	}
	return m
}

// Highlighter marks keywords after every full load and transition.
type Highlighter struct {
	win       *browser.Window
	bus       *events.Bus
	container string
	quiet     time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	unsubscribe []func()
}

// New creates a Highlighter that marks inside the element matched by
// container, or the whole body when it is missing.
func New(win *browser.Window, bus *events.Bus, container string, quiet time.Duration) *Highlighter {
	if quiet <= 0 {
		quiet = DefaultQuiet
	}
	return &Highlighter{win: win, bus: bus, container: container, quiet: quiet}
}

// Setup subscribes to full document loads and page-loaded.
func (h *Highlighter) Setup() {
	run := func(ctx context.Context, _ events.Event) { h.Start(context.WithoutCancel(ctx)) }
	h.unsubscribe = append(h.unsubscribe,
		h.bus.Subscribe(events.DOMContentLoaded, run),
		h.bus.Subscribe(events.PageLoaded, run),
	)
}

// Close removes the subscriptions and cancels a pending run.
func (h *Highlighter) Close() {
	for _, u := range h.unsubscribe {
		u()
	}
	h.unsubscribe = nil
	h.mu.Lock()
	if h.cancel != nil {
		h.cancel()
	}
	h.mu.Unlock()
}

// Start runs Highlight in the background, cancelling the previous run.
func (h *Highlighter) Start(ctx context.Context) {
	h.mu.Lock()
	if h.cancel != nil {
		h.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if _, err := h.Highlight(ctx); err != nil && ctx.Err() == nil {
			log.Printf("Warning: keyword highlight: %v", err)
		}
	}()
}

// Wait blocks until all background runs have finished.
func (h *Highlighter) Wait() {
	h.wg.Wait()
}

// Highlight waits for the document to settle, marks the keywords of the
// current location and scrolls the first match into view. It returns the
// number of marks created.
func (h *Highlighter) Highlight(ctx context.Context) (int, error) {
	words, err := FromURL(h.win.Location())
	if err != nil || len(words) == 0 {
		return 0, err
	}
	if err := h.win.WaitSettled(ctx, h.quiet); err != nil {
		return 0, err
	}

	var (
		count int
		focus *html.Node
	)
	h.win.Update(func(doc *goquery.Document) {
		box := doc.Find("body")
		if h.container != "" {
			if c := doc.Find(h.container).First(); c.Length() > 0 {
				box = c
			}
		}
		marks := Mark(box, words)
		if count = len(marks); count > 0 {
			focus = FocusTarget(marks[0])
		}
	})
	if focus != nil {
		h.win.ScrollIntoView(focus)
	}
	return count, nil
}
