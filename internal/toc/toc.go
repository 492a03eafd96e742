// Package toc builds the table of contents of the current article.
package toc

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/f4ah6o/youlog-go/internal/browser"
	"github.com/f4ah6o/youlog-go/internal/events"
)

// Defaults for Options.
const (
	DefaultContainer       = "#toc"
	DefaultArticle         = "#article-main"
	DefaultHeadingSelector = "h1, h2, h3, h4"
	DefaultTitle           = "Contents"
)

// Item is one heading of the article.
type Item struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Level    int    `json:"level"`
	ParentID string `json:"parent_id,omitempty"`
}

var spaces = regexp.MustCompile(`\s+`)

// Slug derives a heading id from its text.
func Slug(text string) string {
	return spaces.ReplaceAllString(strings.ToLower(strings.TrimSpace(text)), "-")
}

// Parse lists the headings of article matched by selector. Headings without
// an id get one derived from their text. Levels are shifted so the
// shallowest heading is level 1.
func Parse(article *goquery.Selection, selector string) []Item {
	var (
		items []Item
		stack []Item
		prev  int
	)
	article.Find(selector).Each(func(_ int, h *goquery.Selection) {
		level := headingLevel(goquery.NodeName(h))
		if level == 0 {
			return
		}
		id, ok := h.Attr("id")
		if !ok || id == "" {
			id = Slug(h.Text())
			h.SetAttr("id", id)
		}
		item := Item{ID: id, Text: h.Text(), Level: level}

		switch {
		case level > prev:
			stack = append(stack, item)
		case level < prev:
			for len(stack) > 0 && stack[len(stack)-1].Level >= level {
				stack = stack[:len(stack)-1]
			}
			stack = append(stack, item)
		default:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			stack = append(stack, item)
		}
		prev = level

		if len(stack) > 1 {
			item.ParentID = stack[len(stack)-2].ID
		}
		items = append(items, item)
	})
	return justify(items)
}

func esc(s string) string { return html.EscapeString(s) }

func headingLevel(name string) int {
	if len(name) == 2 && name[0] == 'h' && name[1] >= '1' && name[1] <= '6' {
		return int(name[1] - '0')
	}
	return 0
}

func justify(items []Item) []Item {
	if len(items) == 0 {
		return items
	}
	lowest := items[0].Level
	for _, it := range items[1:] {
		lowest = min(lowest, it.Level)
	}
	if lowest == 1 {
		return items
	}
	for i := range items {
		items[i].Level -= lowest - 1
	}
	return items
}

// Render writes the table into box, replacing its content.
func Render(box *goquery.Selection, items []Item, title string) {
	if title == "" {
		title = DefaultTitle
	}
	var b strings.Builder
	fmt.Fprintf(&b, `<div class="toc-item toc-title-item"><div class="toc-title">%s</div></div>`, esc(title))
	if len(items) == 0 {
		b.WriteString(`<div class="toc-empty">No contents</div>`)
	}
	for _, it := range items {
		fmt.Fprintf(&b, `<div class="toc-item"><a href="#%s" class="toc-link toc-link-h%d" data-target="%s" data-level="%d"`,
			esc(it.ID), it.Level, esc(it.ID), it.Level)
		if it.ParentID != "" {
			fmt.Fprintf(&b, ` data-parent="%s"`, esc(it.ParentID))
		}
		fmt.Fprintf(&b, `>%s</a></div>`, esc(it.Text))
	}
	box.SetHtml(b.String())
}

// Options configures a Table.
type Options struct {
	Container       string
	Article         string
	HeadingSelector string
	Title           string
}

// Table keeps the table of contents of a window in step with its article.
type Table struct {
	win  *browser.Window
	bus  *events.Bus
	opts Options

	mu     sync.Mutex
	items  []Item
	active string

	unsubscribe []func()
}

// New creates a Table. Zero options take the defaults.
func New(win *browser.Window, bus *events.Bus, opts Options) *Table {
	if opts.Container == "" {
		opts.Container = DefaultContainer
	}
	if opts.Article == "" {
		opts.Article = DefaultArticle
	}
	if opts.HeadingSelector == "" {
		opts.HeadingSelector = DefaultHeadingSelector
	}
	if opts.Title == "" {
		opts.Title = DefaultTitle
	}
	return &Table{win: win, bus: bus, opts: opts}
}

// Setup rebuilds the table on every full load and page-loaded.
func (t *Table) Setup() {
	rebuild := func(context.Context, events.Event) { t.Rebuild() }
	t.unsubscribe = append(t.unsubscribe,
		t.bus.Subscribe(events.DOMContentLoaded, rebuild),
		t.bus.Subscribe(events.PageLoaded, rebuild),
	)
}

// Close removes the subscriptions.
func (t *Table) Close() {
	for _, u := range t.unsubscribe {
		u()
	}
	t.unsubscribe = nil
}

// Rebuild parses the article and renders the table. It reports false when
// the container or the article is missing.
func (t *Table) Rebuild() bool {
	var (
		items []Item
		found bool
	)
	t.win.Update(func(doc *goquery.Document) {
		box := doc.Find(t.opts.Container).First()
		article := doc.Find(t.opts.Article).First()
		if box.Length() == 0 || article.Length() == 0 {
			return
		}
		found = true
		items = Parse(article, t.opts.HeadingSelector)
		Render(box, items, t.opts.Title)
	})
	if !found {
		log.Printf("Warning: %s or %s is not found", t.opts.Container, t.opts.Article)
		return false
	}

	t.mu.Lock()
	t.items = items
	t.active = ""
	t.mu.Unlock()
	return true
}

// Items returns the entries of the last rebuild.
func (t *Table) Items() []Item {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Item(nil), t.items...)
}

// Active returns the id of the highlighted entry.
func (t *Table) Active() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Goto scrolls the heading with id into view and highlights its entry and
// the entry of its parent.
func (t *Table) Goto(id string) bool {
	t.mu.Lock()
	var item *Item
	for i := range t.items {
		if t.items[i].ID == id {
			item = &t.items[i]
			break
		}
	}
	if item == nil {
		t.mu.Unlock()
		return false
	}
	parent := item.ParentID
	t.active = id
	t.mu.Unlock()

	var target *html.Node
	t.win.Update(func(doc *goquery.Document) {
		heading := doc.Find(t.opts.Article).Find(`[id="` + id + `"]`).First()
		if heading.Length() == 0 {
			return
		}
		box := doc.Find(t.opts.Container)
		box.Find(".toc-link").RemoveClass("toc-link-active toc-link-parent-active")
		box.Find(`.toc-link[data-target="` + id + `"]`).AddClass("toc-link-active")
		if parent != "" {
			box.Find(`.toc-link[data-target="` + parent + `"]`).AddClass("toc-link-parent-active")
		}
		target = heading.Get(0)
	})
	if target == nil {
		return false
	}
	t.win.ScrollIntoView(target)
	return true
}
