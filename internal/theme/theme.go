// Package theme assembles the runtime: one window, its event bus and every
// widget that reacts to page transitions.
package theme

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/f4ah6o/youlog-go/internal/browser"
	"github.com/f4ah6o/youlog-go/internal/config"
	"github.com/f4ah6o/youlog-go/internal/domsync"
	"github.com/f4ah6o/youlog-go/internal/events"
	"github.com/f4ah6o/youlog-go/internal/fetcher"
	"github.com/f4ah6o/youlog-go/internal/keyword"
	"github.com/f4ah6o/youlog-go/internal/lazyimg"
	"github.com/f4ah6o/youlog-go/internal/navigation"
	"github.com/f4ah6o/youlog-go/internal/navtree"
	"github.com/f4ah6o/youlog-go/internal/prefs"
	"github.com/f4ah6o/youlog-go/internal/progress"
	"github.com/f4ah6o/youlog-go/internal/reader"
	"github.com/f4ah6o/youlog-go/internal/search"
	"github.com/f4ah6o/youlog-go/internal/toc"
)

// Options carries what the configuration does not: collaborators chosen by
// the caller.
type Options struct {
	// Progress is driven around every transition. Nil means none.
	Progress progress.Indicator
	// Prefs supplies the reader's preferences. Nil means defaults.
	Prefs *prefs.Store
	// SystemDark is the system color scheme used when no theme is stored.
	SystemDark bool
}

// Theme is a running window with every widget attached.
type Theme struct {
	cfg  config.Config
	opts Options

	Bus        *events.Bus
	Window     *browser.Window
	Fetcher    *fetcher.Fetcher
	Navigation *navigation.Controller
	Tree       *navtree.Highlighter
	Keywords   *keyword.Highlighter
	Images     *lazyimg.Loader
	TOC        *toc.Table
	Reader     *reader.Reader
	// Search is nil when no search backend is configured.
	Search *search.Session

	unsubscribe []func()
}

// New validates cfg and wires the runtime. Call Open to load the first page.
func New(cfg config.Config, opts Options) (*Theme, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	bus := events.NewBus()
	f := fetcher.New(cfg.Timeout, cfg.UserAgent)
	win, err := browser.New(cfg.BaseURL, bus, f)
	if err != nil {
		return nil, err
	}
	synchronizer, err := domsync.New(cfg.SyncSelectors)
	if err != nil {
		return nil, err
	}

	t := &Theme{
		cfg:     cfg,
		opts:    opts,
		Bus:     bus,
		Window:  win,
		Fetcher: f,
		Navigation: navigation.New(win, bus, f, synchronizer, navigation.Options{
			Base:            cfg.Base,
			ScrollContainer: cfg.ScrollContainer,
			Progress:        opts.Progress,
		}),
		Tree:     navtree.NewHighlighter(win, bus, cfg.NavTree),
		Keywords: keyword.New(win, bus, cfg.KeywordContainer, keyword.DefaultQuiet),
		Images:   lazyimg.New(win, bus, f, cfg.LazyImageAttr, cfg.LazyImageContainer),
		TOC: toc.New(win, bus, toc.Options{
			Container:       cfg.TOC,
			Article:         cfg.Article,
			HeadingSelector: cfg.HeadingSelector,
		}),
		Reader: reader.New(cfg.Article),
	}

	searcher, err := newSearcher(cfg)
	if err != nil {
		return nil, err
	}
	if searcher != nil {
		t.Search = search.NewSession(searcher, bus, cfg.Search.Debounce, cfg.Search.PageSize)
	}

	t.setup()
	return t, nil
}

// newSearcher picks the hosted index when one is configured, then a local
// Markdown directory, then nothing.
func newSearcher(cfg config.Config) (search.Searcher, error) {
	switch {
	case cfg.Search.Remote():
		c, err := search.NewClient(search.Options{
			AppID:    cfg.Search.AppID,
			APIKey:   cfg.Search.APIKey,
			Index:    cfg.Search.Index,
			Site:     cfg.Search.Site,
			Host:     cfg.Search.Host,
			PageSize: cfg.Search.PageSize,
			Timeout:  cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	case cfg.Search.Docs != "":
		base := strings.TrimSuffix(cfg.Base, "/")
		ix, err := search.LoadIndex(cfg.Search.Docs, func(rel string) string {
			rel = strings.TrimSuffix(rel, ".md")
			if rel == "index" || strings.HasSuffix(rel, "/index") {
				rel = strings.TrimSuffix(rel, "index")
			}
			return base + "/" + rel
		})
		if err != nil {
			return nil, err
		}
		return ix, nil
	default:
		return nil, nil
	}
}

// setup applies the preferences on every full load and attaches the
// widgets in page-init order.
func (t *Theme) setup() {
	t.unsubscribe = append(t.unsubscribe,
		t.Bus.Subscribe(events.DOMContentLoaded, func(context.Context, events.Event) { t.ApplyPrefs() }),
	)
	t.Navigation.Setup()
	t.Tree.Setup()
	t.TOC.Setup()
	t.Images.Setup()
	t.Keywords.Setup()
}

// Close detaches every widget and cancels background work.
func (t *Theme) Close() {
	for _, u := range t.unsubscribe {
		u()
	}
	t.unsubscribe = nil
	t.Keywords.Close()
	t.Images.Close()
	t.TOC.Close()
	t.Tree.Close()
	t.Navigation.Close()
	if t.Search != nil {
		t.Search.Close()
	}
	t.Wait()
}

// Wait blocks until the background work of the widgets has finished.
func (t *Theme) Wait() {
	t.Images.Wait()
	t.Keywords.Wait()
}

// Open loads target as a full document, as typing it into the address bar
// would.
func (t *Theme) Open(ctx context.Context, target string) error {
	if target == "" {
		target = t.cfg.Base
	}
	return t.Window.Open(ctx, target)
}

// Navigate asks for an in-page transition to target.
func (t *Theme) Navigate(ctx context.Context, target string) {
	t.Bus.Emit(ctx, events.Event{Name: events.PageNavigate, URL: target})
}

// ApplyPrefs writes the stored preferences onto the live document.
func (t *Theme) ApplyPrefs() {
	p := prefs.Preferences{}
	if t.opts.Prefs != nil {
		p = t.opts.Prefs.Get()
	}
	t.Window.Update(func(doc *goquery.Document) {
		prefs.Apply(doc, p, t.cfg.Article, t.opts.SystemDark)
	})
}

// ClickTree handles a click on n inside the sidebar tree. Toggle rows expand
// or collapse; a click in a leaf row follows the leaf's link, and a click on
// an anchor goes to the navigation controller. It reports whether a
// transition was started.
func (t *Theme) ClickTree(ctx context.Context, n *html.Node) bool {
	target := n
	if anchor, ok := t.Tree.ClickNode(n); ok {
		target = anchor
	}
	return t.Navigation.Click(ctx, target)
}

// TreeRows returns the node-content rows of the sidebar tree whose items are
// visible, in document order.
func (t *Theme) TreeRows() []*html.Node {
	var rows []*html.Node
	t.Window.View(func(doc *goquery.Document) {
		for _, root := range t.Tree.Trees() {
			doc.FindNodes(root).Find("." + navtree.NodeContentClass).Each(func(_ int, row *goquery.Selection) {
				if row.ParentsFiltered("ul."+navtree.HiddenClass+", ol."+navtree.HiddenClass).Length() == 0 {
					rows = append(rows, row.Get(0))
				}
			})
		}
	})
	return rows
}

// Menu returns the header navigation of the current page.
func (t *Theme) Menu() []navtree.MenuItem {
	current := t.Window.Location().EscapedPath()
	var items []navtree.MenuItem
	t.Window.View(func(doc *goquery.Document) {
		items = navtree.ParseMenuData(doc.Find(t.cfg.HeaderNav), current)
	})
	return items
}

// Read converts the current article to Markdown.
func (t *Theme) Read() (reader.Page, error) {
	source := t.Window.Location().String()
	var (
		page reader.Page
		err  error
	)
	t.Window.View(func(doc *goquery.Document) {
		page, err = t.Reader.Convert(doc, source)
	})
	return page, err
}

// Title returns the title of the current page.
func (t *Theme) Title() string {
	var title string
	t.Window.View(func(doc *goquery.Document) { title = reader.Title(doc) })
	return title
}

// Links returns the href and text of every link in the current article.
func (t *Theme) Links() [][2]string {
	var out [][2]string
	t.Window.View(func(doc *goquery.Document) {
		doc.Find(t.cfg.Article).Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			out = append(out, [2]string{a.AttrOr("href", ""), strings.TrimSpace(a.Text())})
		})
	})
	return out
}

// Config returns the configuration the theme was built from.
func (t *Theme) Config() config.Config {
	return t.cfg
}
