// Package devsite serves a directory of Markdown pages as a documentation
// site laid out the way the theme runtime expects, together with a search
// endpoint that speaks the hosted index's query protocol.
package devsite

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	mdhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/f4ah6o/youlog-go/internal/search"
)

// Options configures a Site.
type Options struct {
	// Dir holds the Markdown pages and their assets.
	Dir string
	// Base is the path prefix of every page. It defaults to "/".
	Base string
	// Title is the site name shown in page titles.
	Title string
	// AllowAll accepts cross-origin search requests from any origin.
	AllowAll bool
}

type page struct {
	rel     string
	link    string
	title   string
	content template.HTML
}

// Site is a rendered documentation site.
type Site struct {
	opts   Options
	pages  map[string]*page
	order  []string
	tree   *node
	index  *search.Index
	tmpl   *template.Template
	router chi.Router
}

// New renders every page under opts.Dir.
func New(opts Options) (*Site, error) {
	if opts.Base == "" {
		opts.Base = "/"
	}
	if !strings.HasPrefix(opts.Base, "/") {
		opts.Base = "/" + opts.Base
	}
	if !strings.HasSuffix(opts.Base, "/") {
		opts.Base += "/"
	}
	if opts.Title == "" {
		opts.Title = "Docs"
	}
	absDir, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve directory: %w", err)
	}
	if info, err := os.Stat(absDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("docs directory not found: %s", absDir)
	}
	opts.Dir = absDir

	tmpl, err := template.New("page").Parse(pageTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing page template: %w", err)
	}
	s := &Site{opts: opts, pages: make(map[string]*page), tmpl: tmpl}

	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle("github"),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			mdhtml.WithUnsafe(),
		),
	)

	var pages []*page
	walkErr := filepath.Walk(absDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || filepath.Ext(p) != ".md" {
			return nil
		}
		rel, _ := filepath.Rel(absDir, p)
		pg, err := s.render(md, filepath.ToSlash(rel))
		if err != nil {
			return fmt.Errorf("rendering %s: %w", rel, err)
		}
		pages = append(pages, pg)
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].rel < pages[j].rel })
	for _, pg := range pages {
		s.pages[pg.link] = pg
	}
	s.tree = buildTree(pages)
	s.order = s.tree.links()

	s.index, err = search.LoadIndex(absDir, s.pageLink)
	if err != nil {
		return nil, err
	}

	s.router = s.buildRouter()
	log.Printf("Rendered %d pages from %s", len(pages), absDir)
	return s, nil
}

// pageLink maps a Markdown path to the URL it is served at: "a/b.md" to
// base+"a/b" and "a/index.md" to base+"a/".
func (s *Site) pageLink(rel string) string {
	rel = strings.TrimSuffix(rel, ".md")
	if path.Base(rel) == "index" {
		rel = strings.TrimSuffix(rel, "index")
	}
	return s.opts.Base + rel
}

func (s *Site) render(md goldmark.Markdown, rel string) (*page, error) {
	raw, err := os.ReadFile(filepath.Join(s.opts.Dir, filepath.FromSlash(rel)))
	if err != nil {
		return nil, err
	}
	fm, body := search.SplitFrontmatter(string(raw))

	var buf bytes.Buffer
	if err := md.Convert([]byte(body), &buf); err != nil {
		return nil, fmt.Errorf("converting markdown: %w", err)
	}
	link := s.pageLink(rel)
	content, err := rewriteContent(buf.String(), link)
	if err != nil {
		return nil, err
	}
	return &page{
		rel:     rel,
		link:    link,
		title:   search.PageTitle(fm, body, rel),
		content: template.HTML(content),
	}, nil
}

// rewriteContent points .md links at the served pages, as root-relative
// paths resolved against link, and defers every image to the lazy loader.
func rewriteContent(body, link string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parsing rendered page: %w", err)
	}
	base := &url.URL{Path: link}
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := a.AttrOr("href", "")
		if strings.Contains(href, "://") {
			return
		}
		target, frag, _ := strings.Cut(href, "#")
		if !strings.HasSuffix(target, ".md") {
			return
		}
		target = strings.TrimSuffix(target, ".md")
		if path.Base(target) == "index" {
			target = strings.TrimSuffix(target, "index")
		}
		if target == "" {
			target = "./"
		}
		ref, err := url.Parse(target)
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref)
		resolved.Fragment = frag
		a.SetAttr("href", resolved.String())
	})
	doc.Find("img[src]").Each(func(_ int, img *goquery.Selection) {
		img.SetAttr("data-src", img.AttrOr("src", ""))
		img.RemoveAttr("src")
	})
	return doc.Find("body").Html()
}

// Handler returns the site's HTTP handler.
func (s *Site) Handler() http.Handler {
	return s.router
}

// Links returns the page URLs in reading order.
func (s *Site) Links() []string {
	return append([]string(nil), s.order...)
}

func (s *Site) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	corsOpts := cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Algolia-Application-Id", "X-Algolia-API-Key"},
		MaxAge:         300,
	}
	if s.opts.AllowAll {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(corsOpts))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Post("/1/indexes/{index}/queries", s.handleQueries)
	r.Get("/*", s.handlePage)
	return r
}

func (s *Site) handleQueries(w http.ResponseWriter, r *http.Request) {
	var req search.QueriesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	resp := search.QueriesResponse{Results: []search.QueryResult{}}
	for _, q := range req.Requests {
		query, site, offset, length, err := search.ParseParams(q.Params)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp.Results = append(resp.Results, s.index.Query(query, site, offset, length))
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("Warning: failed to write search response: %v", err)
	}
}

func (s *Site) handlePage(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Path
	if !strings.HasPrefix(p, s.opts.Base) {
		if p+"/" == s.opts.Base || p == "/" {
			http.Redirect(w, r, s.opts.Base, http.StatusFound)
			return
		}
		http.NotFound(w, r)
		return
	}
	if pg := s.lookup(p); pg != nil {
		s.writePage(w, pg)
		return
	}

	rel := strings.TrimPrefix(p, s.opts.Base)
	if rel != "" && !strings.HasSuffix(rel, ".md") {
		file := filepath.Join(s.opts.Dir, filepath.FromSlash(path.Clean("/"+rel)))
		if info, err := os.Stat(file); err == nil && !info.IsDir() {
			http.ServeFile(w, r, file)
			return
		}
	}
	http.NotFound(w, r)
}

func (s *Site) lookup(p string) *page {
	for _, key := range []string{p, strings.TrimSuffix(p, ".html"), strings.TrimSuffix(p, "/"), p + "/"} {
		if pg, ok := s.pages[key]; ok {
			return pg
		}
	}
	return nil
}

type pageData struct {
	Title      string
	SiteTitle  string
	Menu       template.HTML
	Tree       template.HTML
	Breadcrumb []crumb
	Indicator  string
	Content    template.HTML
}

func (s *Site) writePage(w http.ResponseWriter, pg *page) {
	pos := 0
	for i, l := range s.order {
		if l == pg.link {
			pos = i + 1
			break
		}
	}
	data := pageData{
		Title:      pg.title,
		SiteTitle:  s.opts.Title,
		Menu:       template.HTML(s.tree.menuHTML(s.opts.Base)),
		Tree:       template.HTML(s.tree.treeHTML()),
		Breadcrumb: s.tree.breadcrumb(pg.rel, s.opts.Base),
		Indicator:  strconv.Itoa(pos) + " / " + strconv.Itoa(len(s.order)),
		Content:    pg.content,
	}
	var buf bytes.Buffer
	if err := s.tmpl.Execute(&buf, data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}
