// Package browser models the parts of a browser window the theme runtime
// depends on: the current location, session history, the live document and
// scroll state.
//
// The live document is not safe for concurrent use on its own; every access
// goes through View or Update, which serialize on the window's lock. Callbacks
// passed to View and Update must not call back into the Window.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/f4ah6o/youlog-go/internal/events"
	"github.com/f4ah6o/youlog-go/internal/urlutil"
)

// DocumentLoader fetches and parses a full document.
type DocumentLoader interface {
	Fetch(ctx context.Context, targetURL string) (*goquery.Document, error)
}

// Point is a scroll offset.
type Point struct {
	X, Y int
}

// Window owns the live document and the navigation state around it.
type Window struct {
	mu       sync.Mutex
	origin   *url.URL
	location *url.URL
	doc      *goquery.Document
	history  []string
	pos      int
	scroll   map[string]Point
	focused  *html.Node
	hardNavs []string
	reloads  int

	mutations    uint64
	lastMutation time.Time

	bus    *events.Bus
	loader DocumentLoader
}

// New creates a window for the site at origin ("https://host"). The window
// starts with an empty document at "/".
func New(origin string, bus *events.Bus, loader DocumentLoader) (*Window, error) {
	o, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("invalid origin: %w", err)
	}
	if o.Scheme != "http" && o.Scheme != "https" {
		return nil, fmt.Errorf("invalid origin scheme: %s. Only http and https are supported", o.Scheme)
	}
	if o.Host == "" {
		return nil, fmt.Errorf("invalid origin: host is missing")
	}
	o = &url.URL{Scheme: o.Scheme, Host: o.Host}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<html><head></head><body></body></html>"))
	if err != nil {
		return nil, err
	}

	return &Window{
		origin:   o,
		location: o.ResolveReference(&url.URL{Path: "/"}),
		doc:      doc,
		history:  []string{"/"},
		scroll:   make(map[string]Point),
		bus:      bus,
		loader:   loader,
	}, nil
}

// Origin returns the scheme and host of the window.
func (w *Window) Origin() *url.URL {
	return &url.URL{Scheme: w.origin.Scheme, Host: w.origin.Host}
}

// Location returns a copy of the current location.
func (w *Window) Location() *url.URL {
	w.mu.Lock()
	defer w.mu.Unlock()
	u := *w.location
	return &u
}

// FullPath returns path + query + fragment of the current location.
func (w *Window) FullPath() string {
	return urlutil.FullPath(w.Location())
}

// Resolve turns an href into an absolute URL on this window's origin,
// relative to the current location.
func (w *Window) Resolve(href string) (*url.URL, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", href, err)
	}
	return w.Location().ResolveReference(ref), nil
}

// View runs fn with the live document under the window lock.
func (w *Window) View(fn func(doc *goquery.Document)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn(w.doc)
}

// Update runs fn with the live document under the window lock and records a
// mutation.
func (w *Window) Update(fn func(doc *goquery.Document)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn(w.doc)
	w.touch()
}

func (w *Window) touch() {
	w.mutations++
	w.lastMutation = time.Now()
}

// Mutations returns the number of document updates so far.
func (w *Window) Mutations() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.mutations
}

// WaitSettled blocks until no document update has happened for quiet, or ctx
// is done.
func (w *Window) WaitSettled(ctx context.Context, quiet time.Duration) error {
	for {
		w.mu.Lock()
		idle := time.Since(w.lastMutation)
		w.mu.Unlock()

		if idle >= quiet {
			return nil
		}
		timer := time.NewTimer(quiet - idle)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Open loads targetURL as a full document, replacing the live document and
// pushing a history entry, then emits DOMContentLoaded.
func (w *Window) Open(ctx context.Context, targetURL string) error {
	u, err := w.Resolve(targetURL)
	if err != nil {
		return err
	}
	if err := w.load(ctx, u); err != nil {
		return err
	}
	w.mu.Lock()
	w.pushLocked(urlutil.FullPath(u))
	w.mu.Unlock()

	w.emit(ctx, events.DOMContentLoaded)
	return nil
}

func (w *Window) load(ctx context.Context, u *url.URL) error {
	if w.loader == nil {
		return fmt.Errorf("window has no document loader")
	}
	doc, err := w.loader.Fetch(ctx, u.String())
	if err != nil {
		return err
	}
	w.install(doc, u)
	return nil
}

func (w *Window) install(doc *goquery.Document, u *url.URL) {
	w.mu.Lock()
	w.doc = doc
	w.location = u
	w.scroll = make(map[string]Point)
	w.focused = nil
	w.touch()
	w.mu.Unlock()
}

// errorPage is implemented by load errors that carry the server's error
// document.
type errorPage interface {
	Document() *goquery.Document
}

func errorDocument(err error) *goquery.Document {
	var ep errorPage
	if errors.As(err, &ep) {
		return ep.Document()
	}
	return nil
}

// PushState records a new history entry for target without loading anything.
func (w *Window) PushState(target string) {
	u, err := w.Resolve(target)
	if err != nil {
		log.Printf("Warning: pushState ignored: %v", err)
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.location = u
	w.pushLocked(urlutil.FullPath(u))
}

func (w *Window) pushLocked(entry string) {
	if w.pos < len(w.history) && w.history[w.pos] == entry {
		return
	}
	w.history = append(w.history[:w.pos+1], entry)
	w.pos = len(w.history) - 1
}

// History returns the session history and the index of the current entry.
func (w *Window) History() ([]string, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.history))
	copy(out, w.history)
	return out, w.pos
}

// Back moves one entry back in history and emits PopState. It reports false
// when there is no previous entry.
func (w *Window) Back(ctx context.Context) bool {
	return w.Go(ctx, -1)
}

// Forward moves one entry forward in history and emits PopState.
func (w *Window) Forward(ctx context.Context) bool {
	return w.Go(ctx, 1)
}

// Go moves delta entries through history and emits PopState.
func (w *Window) Go(ctx context.Context, delta int) bool {
	w.mu.Lock()
	pos := w.pos + delta
	if delta == 0 || pos < 0 || pos >= len(w.history) {
		w.mu.Unlock()
		return false
	}
	w.pos = pos
	u, err := w.location.Parse(w.history[pos])
	if err == nil {
		w.location = u
	}
	w.mu.Unlock()

	w.emit(ctx, events.PopState)
	return true
}

// Assign performs a hard navigation: the location changes immediately and the
// whole document is reloaded from targetURL. When the server answers with an
// error page, that page becomes the document and the error is still
// returned. When no document arrives at all, the previous location and
// history are restored.
func (w *Window) Assign(ctx context.Context, targetURL string) error {
	u, err := w.Resolve(targetURL)
	if err != nil {
		return err
	}
	path := urlutil.FullPath(u)

	w.mu.Lock()
	w.hardNavs = append(w.hardNavs, path)
	prevLocation, prevPos := w.location, w.pos
	prevHistory := append([]string(nil), w.history...)
	w.location = u
	w.pushLocked(path)
	w.mu.Unlock()

	log.Printf("Hard navigation to %s", path)
	if err := w.load(ctx, u); err != nil {
		if doc := errorDocument(err); doc != nil {
			w.install(doc, u)
			w.emit(ctx, events.DOMContentLoaded)
		} else {
			w.mu.Lock()
			w.location, w.pos, w.history = prevLocation, prevPos, prevHistory
			w.mu.Unlock()
		}
		return fmt.Errorf("hard navigation to %s failed: %w", path, err)
	}
	w.emit(ctx, events.DOMContentLoaded)
	return nil
}

// Reload reloads the current location as a full document.
func (w *Window) Reload(ctx context.Context) error {
	u := w.Location()

	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()

	log.Printf("Reloading %s", urlutil.FullPath(u))
	if err := w.load(ctx, u); err != nil {
		return fmt.Errorf("reload of %s failed: %w", urlutil.FullPath(u), err)
	}
	w.emit(ctx, events.DOMContentLoaded)
	return nil
}

// HardNavigations returns the targets of every Assign so far.
func (w *Window) HardNavigations() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.hardNavs))
	copy(out, w.hardNavs)
	return out
}

// Reloads returns the number of Reload calls so far.
func (w *Window) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

// ScrollTo records the scroll offset of the element matched by selector.
func (w *Window) ScrollTo(selector string, x, y int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.doc.Find(selector).Length() == 0 {
		return false
	}
	w.scroll[selector] = Point{X: x, Y: y}
	return true
}

// ScrollPosition returns the recorded scroll offset for selector.
func (w *Window) ScrollPosition(selector string) (Point, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.scroll[selector]
	return p, ok
}

// ScrollIntoView marks n as the element brought into view.
func (w *Window) ScrollIntoView(n *html.Node) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.focused = n
}

// Focused returns the last element passed to ScrollIntoView.
func (w *Window) Focused() *html.Node {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.focused
}

func (w *Window) emit(ctx context.Context, name events.Name) {
	if w.bus == nil {
		return
	}
	w.bus.Emit(ctx, events.Event{Name: name, URL: w.FullPath()})
}
