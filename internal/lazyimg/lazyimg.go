// Package lazyimg loads deferred article images. Images carry their real
// source in a data attribute; once the source is reachable it is moved to
// src, otherwise an SVG placeholder is shown.
package lazyimg

import (
	"context"
	"fmt"
	"log"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/f4ah6o/youlog-go/internal/browser"
	"github.com/f4ah6o/youlog-go/internal/events"
)

const (
	// DefaultAttr holds the deferred image source.
	DefaultAttr = "data-src"
	// DefaultContainer is searched for deferred images.
	DefaultContainer = "article"
	// FailedText is drawn on the placeholder of an image that failed to load.
	FailedText = "image failed to load"
)

// Placeholder describes a generated SVG image. Zero fields take defaults.
type Placeholder struct {
	Width      int
	Height     int
	Text       string
	FontFamily string
	FontWeight string
	FontSize   int
	BgColor    string
	TextColor  string
	Charset    string
}

var (
	controlChars = regexp.MustCompile(`[\t\n\r]`)
	spaceRuns    = regexp.MustCompile(`\s\s+`)
)

// SVG returns the placeholder as a data URI.
func (p Placeholder) SVG() string {
	width, height := p.Width, p.Height
	if width <= 0 {
		width = 300
	}
	if height <= 0 {
		height = 200
	}
	text := p.Text
	if text == "" {
		text = fmt.Sprintf("%d×%d", width, height)
	}
	fontSize := p.FontSize
	if fontSize <= 0 {
		fontSize = int(math.Floor(float64(min(width, height)) * 0.1))
	}

	svg := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
        <rect fill="%s" width="%d" height="%d"/>
        <text fill="%s" font-family="%s" font-size="%d" font-weight="%s" x="50%%" y="50%%" text-anchor="middle">%s</text>
      </svg>`,
		width, height, width, height,
		or(p.BgColor, "#ddd"), width, height,
		or(p.TextColor, "rgba(0,0,0,0.3)"), or(p.FontFamily, "sans-serif"), fontSize, or(p.FontWeight, "bold"),
		html.EscapeString(text))

	svg = controlChars.ReplaceAllString(svg, "")
	svg = spaceRuns.ReplaceAllString(svg, " ")
	return "data:image/svg+xml;charset=" + or(p.Charset, "UTF-8") + "," + encodeURIComponent(svg)
}

func or(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// encodeURIComponent escapes like the browser function of that name, with
// brackets escaped as well.
func encodeURIComponent(s string) string {
	e := url.QueryEscape(s)
	return strings.NewReplacer("+", "%20", "%21", "!", "%27", "'", "%2A", "*", "%7E", "~").Replace(e)
}

// Checker checks that a resource can be fetched.
type Checker interface {
	Check(ctx context.Context, targetURL string) error
}

// Result is the outcome of one image.
type Result struct {
	Src    string
	Loaded bool
}

// Loader loads the deferred images of the current page. Pending loads are
// abandoned when a transition starts.
type Loader struct {
	win       *browser.Window
	bus       *events.Bus
	checker   Checker
	attr      string
	container string

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	results []Result

	unsubscribe []func()
}

// New creates a Loader. Empty attr and container select the defaults.
func New(win *browser.Window, bus *events.Bus, checker Checker, attr, container string) *Loader {
	if attr == "" {
		attr = DefaultAttr
	}
	if container == "" {
		container = DefaultContainer
	}
	return &Loader{win: win, bus: bus, checker: checker, attr: attr, container: container}
}

// Setup subscribes to the page lifecycle events.
func (l *Loader) Setup() {
	start := func(ctx context.Context, _ events.Event) { l.Start(context.WithoutCancel(ctx)) }
	l.unsubscribe = append(l.unsubscribe,
		l.bus.Subscribe(events.PageLoadBefore, func(context.Context, events.Event) { l.Cancel() }),
		l.bus.Subscribe(events.DOMContentLoaded, start),
		l.bus.Subscribe(events.PageLoaded, start),
	)
}

// Close removes the subscriptions and abandons pending loads.
func (l *Loader) Close() {
	for _, u := range l.unsubscribe {
		u()
	}
	l.unsubscribe = nil
	l.Cancel()
}

// Cancel abandons pending loads. Images already resolved keep their state.
func (l *Loader) Cancel() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
}

// Wait blocks until every started load has finished or been abandoned.
func (l *Loader) Wait() {
	l.wg.Wait()
}

// Results returns the outcomes recorded since the last Start.
func (l *Loader) Results() []Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Result(nil), l.results...)
}

type pending struct {
	node   *html.Node
	src    string
	width  int
	height int
}

// Start begins loading every deferred image of the container and returns
// how many were found. Loads run in the background.
func (l *Loader) Start(ctx context.Context) int {
	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.results = nil
	l.mu.Unlock()

	var imgs []pending
	l.win.View(func(doc *goquery.Document) {
		box := doc.Find(l.container).First()
		if box.Length() == 0 {
			return
		}
		box.Find("img[" + l.attr + "]").Each(func(_ int, img *goquery.Selection) {
			src := strings.TrimSpace(img.AttrOr(l.attr, ""))
			if src == "" {
				return
			}
			w, _ := strconv.Atoi(img.AttrOr("width", ""))
			h, _ := strconv.Atoi(img.AttrOr("height", ""))
			imgs = append(imgs, pending{node: img.Get(0), src: src, width: w, height: h})
		})
	})
	if len(imgs) == 0 {
		return 0
	}

	for _, img := range imgs {
		l.wg.Add(1)
		go func(img pending) {
			defer l.wg.Done()
			l.load(ctx, img)
		}(img)
	}
	return len(imgs)
}

func (l *Loader) load(ctx context.Context, img pending) {
	abs, err := l.win.Resolve(img.src)
	var loadErr error
	if err != nil {
		loadErr = err
	} else {
		loadErr = l.checker.Check(ctx, abs.String())
	}
	if ctx.Err() != nil {
		return
	}

	applied := false
	l.win.Update(func(doc *goquery.Document) {
		// A transition that started meanwhile owns the document now.
		if ctx.Err() != nil {
			return
		}
		sel := doc.FindNodes(img.node)
		if sel.Length() == 0 {
			return
		}
		if loadErr == nil {
			sel.SetAttr("src", abs.String())
			sel.RemoveAttr(l.attr)
		} else {
			sel.SetAttr("src", Placeholder{Text: FailedText, Width: img.width, Height: img.height}.SVG())
		}
		applied = true
	})
	if !applied {
		return
	}
	if loadErr != nil {
		log.Printf("Warning: image %s failed to load: %v", img.src, loadErr)
	}

	l.mu.Lock()
	l.results = append(l.results, Result{Src: img.src, Loaded: loadErr == nil})
	l.mu.Unlock()
}
