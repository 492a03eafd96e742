// Package navigation implements in-page transitions: it intercepts link
// clicks, fetches the target page, splices the configured regions into the
// live document, keeps history in step and announces each transition on the
// event bus.
package navigation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/f4ah6o/youlog-go/internal/browser"
	"github.com/f4ah6o/youlog-go/internal/domsync"
	"github.com/f4ah6o/youlog-go/internal/events"
	"github.com/f4ah6o/youlog-go/internal/progress"
	"github.com/f4ah6o/youlog-go/internal/urlutil"
)

const (
	// PageLoadingClass is set on <body> while a transition is in flight.
	PageLoadingClass = "page-loading"
	// DefaultScrollContainer is scrolled back to the top after a transition.
	DefaultScrollContainer = "#body-main"
)

// ErrCrossOrigin is returned when asked to navigate to another origin.
var ErrCrossOrigin = errors.New("target is on a different origin")

// State is the phase of the most recent transition.
type State int

const (
	Idle State = iota
	Fetching
	Synced
	HardReload
	Stale
)

func (s State) String() string {
	switch s {
	case Fetching:
		return "fetching"
	case Synced:
		return "synced"
	case HardReload:
		return "hard-reload"
	case Stale:
		return "stale"
	default:
		return "idle"
	}
}

// Loader fetches a full HTML document.
type Loader interface {
	Fetch(ctx context.Context, targetURL string) (*goquery.Document, error)
}

// Options tunes a Controller. Zero values select the defaults.
type Options struct {
	// Base is the path prefix of links handled in-page.
	Base string
	// ScrollContainer is scrolled to the top after each transition.
	ScrollContainer string
	// Progress is driven around every fetch.
	Progress progress.Indicator
}

type loadResult int

const (
	loadOK loadResult = iota
	loadFailed
	loadStale
)

// Controller owns the navigation state of one window.
type Controller struct {
	win      *browser.Window
	bus      *events.Bus
	loader   Loader
	sync     *domsync.Synchronizer
	base     string
	scroll   string
	progress progress.Indicator

	mu          sync.Mutex
	lastFullURL string
	seq         uint64
	cancel      context.CancelFunc
	inflight    int
	state       State
	lastReport  domsync.Report

	unsubscribe []func()
}

// New creates a Controller. Call Setup to start listening for events.
func New(win *browser.Window, bus *events.Bus, loader Loader, s *domsync.Synchronizer, opts Options) *Controller {
	c := &Controller{
		win:      win,
		bus:      bus,
		loader:   loader,
		sync:     s,
		base:     opts.Base,
		scroll:   opts.ScrollContainer,
		progress: opts.Progress,
	}
	if c.base == "" {
		c.base = urlutil.DefaultBase
	}
	if c.scroll == "" {
		c.scroll = DefaultScrollContainer
	}
	if c.progress == nil {
		c.progress = progress.Nop{}
	}
	return c
}

// Setup records the current location as the confirmed state and subscribes
// to page-navigate, popstate and full document loads.
func (c *Controller) Setup() {
	c.mu.Lock()
	c.lastFullURL = c.win.FullPath()
	c.mu.Unlock()

	c.unsubscribe = append(c.unsubscribe,
		c.bus.Subscribe(events.PageNavigate, func(ctx context.Context, ev events.Event) {
			if err := c.HandleNavigation(ctx, ev.URL); err != nil {
				log.Printf("Error: navigation to %s: %v", ev.URL, err)
			}
		}),
		c.bus.Subscribe(events.PopState, func(ctx context.Context, ev events.Event) {
			if err := c.HandlePopState(ctx); err != nil {
				log.Printf("Error: history navigation to %s: %v", ev.URL, err)
			}
		}),
		// A full document load resets the confirmed state.
		c.bus.Subscribe(events.DOMContentLoaded, func(_ context.Context, ev events.Event) {
			c.mu.Lock()
			c.lastFullURL = ev.URL
			c.mu.Unlock()
		}),
	)
}

// Close removes the controller's subscriptions and cancels any in-flight fetch.
func (c *Controller) Close() {
	for _, u := range c.unsubscribe {
		u()
	}
	c.unsubscribe = nil

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()
}

// LastFullURL returns the last confirmed path + query + fragment.
func (c *Controller) LastFullURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastFullURL
}

// State returns the phase of the latest transition.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastReport returns the synchronization report of the latest applied transition.
func (c *Controller) LastReport() domsync.Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastReport
}

// resolve turns target into a path + query + fragment on the window's origin.
func (c *Controller) resolve(target string) (string, error) {
	path, ok := urlutil.SameOriginPath(target, c.win.Location())
	if !ok {
		return "", fmt.Errorf("%s: %w", target, ErrCrossOrigin)
	}
	u, err := c.win.Resolve(path)
	if err != nil {
		return "", err
	}
	return urlutil.FullPath(u), nil
}

// begin starts a new transition, cancelling the previous fetch. c.mu must be held.
func (c *Controller) begin(parent context.Context) (uint64, context.Context, context.CancelFunc) {
	c.seq++
	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	c.cancel = cancel
	c.state = Fetching
	return c.seq, ctx, cancel
}

// HandleNavigation moves the window to target. A change of fragment only
// updates history. Anything else is loaded in-page, with a hard navigation as
// the fallback when the load fails.
func (c *Controller) HandleNavigation(ctx context.Context, target string) error {
	log.Printf("Navigating to %s", target)
	full, err := c.resolve(target)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if urlutil.IsOnlyHashChange(c.lastFullURL, full) {
		c.lastFullURL = full
		c.win.PushState(full)
		c.mu.Unlock()
		return nil
	}
	id, fetchCtx, cancel := c.begin(ctx)
	c.mu.Unlock()
	defer cancel()

	c.bus.Emit(ctx, events.Event{Name: events.PageLoadBefore, URL: full})

	switch c.loadPageContent(fetchCtx, id, full, func() {
		c.lastFullURL = full
		c.win.PushState(full)
	}) {
	case loadOK:
		c.bus.Emit(ctx, events.Event{Name: events.PageLoaded, URL: full})
		c.settle(id)
		return nil
	case loadStale:
		log.Printf("Discarding stale transition to %s", full)
		return nil
	default:
		c.markHardReload(id)
		return c.win.Assign(ctx, full)
	}
}

// HandlePopState reacts to a history move that already changed the window
// location. It never pushes history and falls back to a full reload.
func (c *Controller) HandlePopState(ctx context.Context) error {
	current := c.win.FullPath()

	c.mu.Lock()
	if urlutil.IsOnlyHashChange(c.lastFullURL, current) {
		c.lastFullURL = current
		c.mu.Unlock()
		return nil
	}
	id, fetchCtx, cancel := c.begin(ctx)
	c.mu.Unlock()
	defer cancel()

	c.bus.Emit(ctx, events.Event{Name: events.PageLoadBefore, URL: current})

	switch c.loadPageContent(fetchCtx, id, current, func() {
		c.lastFullURL = current
	}) {
	case loadOK:
		c.bus.Emit(ctx, events.Event{Name: events.PageLoaded, URL: current})
		c.settle(id)
		return nil
	case loadStale:
		log.Printf("Discarding stale history transition to %s", current)
		return nil
	default:
		c.markHardReload(id)
		return c.win.Reload(ctx)
	}
}

// LoadPageContent fetches target and synchronizes the configured regions. It
// reports false on any failure instead of returning an error so that callers
// can fall back to a full navigation. History and the confirmed state are
// left to the caller.
func (c *Controller) LoadPageContent(ctx context.Context, target string) bool {
	full, err := c.resolve(target)
	if err != nil {
		log.Printf("Error: failed to load page: %v", err)
		return false
	}
	c.mu.Lock()
	id, fetchCtx, cancel := c.begin(ctx)
	c.mu.Unlock()
	defer cancel()

	return c.loadPageContent(fetchCtx, id, full, nil) == loadOK
}

// loadPageContent fetches full and, if request id is still current, applies
// it to the live document and runs commit under the controller lock.
func (c *Controller) loadPageContent(ctx context.Context, id uint64, full string, commit func()) loadResult {
	c.startLoading(full)
	defer c.finishLoading()

	target := c.win.Origin().String() + full
	doc, err := c.loader.Fetch(ctx, target)
	if err != nil {
		if c.isStale(id) {
			return loadStale
		}
		log.Printf("Error: failed to load page %s: %v", full, err)
		return loadFailed
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if id != c.seq {
		c.state = Stale
		return loadStale
	}

	var report domsync.Report
	c.win.Update(func(live *goquery.Document) {
		report = c.sync.Sync(live, doc)
	})
	c.lastReport = report
	c.win.ScrollTo(c.scroll, 0, 0)

	if commit != nil {
		commit()
	}
	c.state = Synced
	return loadOK
}

func (c *Controller) isStale(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id != c.seq {
		c.state = Stale
		return true
	}
	return false
}

func (c *Controller) settle(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id == c.seq {
		c.state = Idle
	}
}

func (c *Controller) markHardReload(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id == c.seq {
		c.state = HardReload
	}
}

func (c *Controller) startLoading(full string) {
	c.mu.Lock()
	c.inflight++
	first := c.inflight == 1
	c.mu.Unlock()

	if first {
		c.win.Update(func(doc *goquery.Document) {
			doc.Find("body").AddClass(PageLoadingClass)
		})
		c.progress.Start(full)
	}
}

func (c *Controller) finishLoading() {
	c.mu.Lock()
	c.inflight--
	last := c.inflight == 0
	c.mu.Unlock()

	if last {
		c.progress.Done()
		c.win.Update(func(doc *goquery.Document) {
			doc.Find("body").RemoveClass(PageLoadingClass)
		})
	}
}

// Click handles a click whose innermost target is n. The composed path from n
// up to the document root is searched for the nearest anchor. It reports true
// when the click was taken over, meaning the default navigation must not
// happen.
func (c *Controller) Click(ctx context.Context, n *html.Node) bool {
	var (
		href    string
		handled bool
	)
	loc := c.win.Location()
	c.win.View(func(*goquery.Document) {
		anchor := nearestAnchor(n)
		if anchor == nil {
			return
		}
		if !urlutil.ShouldHandleLink(anchor, loc, c.base) {
			return
		}
		href, _ = urlutil.Attr(anchor, "href")
		handled = true
	})
	if !handled {
		return false
	}

	if err := c.HandleNavigation(ctx, href); err != nil {
		log.Printf("Error: navigation to %s: %v", href, err)
	}
	return true
}

// ClickSelector clicks the first element of the live document matching
// selector. The boolean result is the same as Click's; ok is false when
// nothing matched.
func (c *Controller) ClickSelector(ctx context.Context, selector string) (handled, ok bool) {
	var target *html.Node
	c.win.View(func(doc *goquery.Document) {
		if sel := doc.Find(selector).First(); sel.Length() > 0 {
			target = sel.Get(0)
		}
	})
	if target == nil {
		return false, false
	}
	return c.Click(ctx, target), true
}

func nearestAnchor(n *html.Node) *html.Node {
	for ; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			return n
		}
	}
	return nil
}
