// Package main is the entry point for the youlog tool.
// youlog runs the documentation theme headlessly against a live site: it
// loads pages, follows links as in-page transitions and drives the sidebar,
// table of contents, search and reader preferences from the terminal.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"golang.org/x/net/html"

	"github.com/f4ah6o/youlog-go/internal/config"
	"github.com/f4ah6o/youlog-go/internal/navtree"
	"github.com/f4ah6o/youlog-go/internal/prefs"
	"github.com/f4ah6o/youlog-go/internal/progress"
	"github.com/f4ah6o/youlog-go/internal/search"
	"github.com/f4ah6o/youlog-go/internal/theme"
)

var (
	colorHeader = color.New(color.FgGreen, color.Bold)
	colorActive = color.New(color.FgYellow, color.Bold)
	colorDim    = color.New(color.Faint)
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	subcommand := os.Args[1]

	switch subcommand {
	case "browse":
		runBrowse(os.Args[2:])
	case "tree":
		runTree(os.Args[2:])
	case "read":
		runRead(os.Args[2:])
	case "search":
		runSearch(os.Args[2:])
	case "prefs":
		runPrefs(os.Args[2:])
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown subcommand: %s\n\n", subcommand)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `youlog - Browse a documentation site through its theme runtime

Usage:
  youlog browse [PATH] [options]
  youlog tree [PATH] [options]
  youlog read [PATH] [options]
  youlog search <QUERY> [options]
  youlog prefs [KEY VALUE] [options]
  youlog help

Commands:
  browse      Open a page and drive it interactively
  tree        Print the sidebar tree with the current page highlighted
  read        Print the article of a page as Markdown
  search      Search the configured index
  prefs       Show or change the stored reader preferences
  help        Show this help message

Examples:
  youlog browse /docs/ --config youlog.toml
  youlog read /docs/guide/setup --base-url http://localhost:8080
  youlog search "install" --json
  youlog prefs width 360

For more information on a command, use:
  youlog <command> -h
`)
}

// commonFlags are shared by every command that talks to a site.
type commonFlags struct {
	configPath string
	baseURL    string
	systemDark bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "Path to a TOML or YAML configuration file")
	fs.StringVar(&c.baseURL, "base-url", "", "Origin of the documentation site (overrides the configuration)")
	fs.BoolVar(&c.systemDark, "system-dark", false, "Treat the system color scheme as dark")
}

func (c *commonFlags) load() config.Config {
	cfg := config.Default()
	if c.configPath != "" {
		loaded, err := config.Load(c.configPath)
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
		cfg = loaded
	} else if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		log.Fatalf("Failed to read environment: %v", err)
	}
	if c.baseURL != "" {
		cfg.BaseURL = c.baseURL
	}
	return cfg
}

func openPrefs(cfg config.Config) *prefs.Store {
	dir := cfg.StateDir
	if dir == "" {
		d, err := prefs.StateDir()
		if err != nil {
			log.Fatalf("Failed to locate state directory: %v", err)
		}
		dir = d
	}
	store, err := prefs.OpenDir(dir)
	if err != nil {
		log.Fatalf("Failed to open preferences: %v", err)
	}
	return store
}

// start builds the theme and loads target as a full document.
func start(ctx context.Context, c *commonFlags, target string, indicator progress.Indicator) *theme.Theme {
	cfg := c.load()
	th, err := theme.New(cfg, theme.Options{
		Progress:   indicator,
		Prefs:      openPrefs(cfg),
		SystemDark: c.systemDark,
	})
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	if err := th.Open(ctx, target); err != nil {
		th.Close()
		log.Fatalf("Failed to open %s: %v", target, err)
	}
	th.Wait()
	return th
}

func runBrowse(args []string) {
	fs := flag.NewFlagSet("browse", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: youlog browse [PATH] [options]

Open PATH (default: the configured base) and read commands from stdin.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nType 'help' at the prompt for the list of commands.\n")
	}
	fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	th := start(ctx, &common, fs.Arg(0), progress.New())
	defer th.Close()

	r := &repl{th: th, out: os.Stdout}
	r.status()
	if err := r.run(ctx, os.Stdin); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Browse failed: %v", err)
	}
}

// repl reads one command per line and applies it to the theme.
type repl struct {
	th  *theme.Theme
	out io.Writer
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(r.out, "> ")
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) > 0 {
			if quit := r.exec(ctx, fields[0], fields[1:]); quit {
				return nil
			}
		}
		fmt.Fprint(r.out, "> ")
	}
	return scanner.Err()
}

func (r *repl) exec(ctx context.Context, cmd string, args []string) bool {
	th := r.th
	switch cmd {
	case "go":
		if len(args) == 0 {
			fmt.Fprintln(r.out, "usage: go <path>")
			return false
		}
		th.Navigate(ctx, args[0])
	case "click":
		links := th.Links()
		i, err := strconv.Atoi(strings.Join(args, ""))
		if err != nil || i < 1 || i > len(links) {
			r.printLinks(links)
			return false
		}
		var anchor *html.Node
		th.Window.View(func(doc *goquery.Document) {
			anchor = doc.Find(th.Config().Article).Find("a[href]").Get(i - 1)
		})
		if anchor == nil || !th.Navigation.Click(ctx, anchor) {
			// not an in-page transition: follow it as a full load
			if err := th.Window.Assign(ctx, links[i-1][0]); err != nil {
				log.Printf("Warning: %v", err)
			}
		}
	case "links":
		r.printLinks(th.Links())
	case "back":
		if !th.Window.Back(ctx) {
			fmt.Fprintln(r.out, "no previous page")
		}
	case "forward":
		if !th.Window.Forward(ctx) {
			fmt.Fprintln(r.out, "no next page")
		}
	case "reload":
		if err := th.Window.Reload(ctx); err != nil {
			log.Printf("Warning: %v", err)
		}
	case "tree":
		printTree(r.out, th)
		return false
	case "toggle":
		rows := th.TreeRows()
		i, err := strconv.Atoi(strings.Join(args, ""))
		if err != nil || i < 1 || i > len(rows) {
			printTree(r.out, th)
			return false
		}
		if !th.ClickTree(ctx, rows[i-1]) {
			printTree(r.out, th)
			return false
		}
	case "toc":
		printTOC(r.out, th)
		return false
	case "goto":
		if len(args) == 0 || !th.TOC.Goto(args[0]) {
			fmt.Fprintln(r.out, "unknown heading")
		}
		return false
	case "menu":
		printMenu(r.out, th.Menu(), 0)
		return false
	case "read":
		printRead(r.out, th)
		return false
	case "search":
		r.search(ctx, strings.Join(args, " "))
		return false
	case "more":
		r.more(ctx)
		return false
	case "up", "down":
		if th.Search != nil {
			th.Search.Move(cmd == "up")
			search.FormatResults(r.out, th.Search.Hits(), th.Search.Query(), th.Search.SelectedIndex())
		}
		return false
	case "open":
		if th.Search == nil || !th.Search.Enter(ctx) {
			fmt.Fprintln(r.out, "no search result selected")
			return false
		}
	case "help":
		fmt.Fprintln(r.out, "commands: go PATH, click N, links, back, forward, reload, tree, toggle N, toc, goto ID, menu, read, search QUERY, more, up, down, open, quit")
		return false
	case "quit", "exit":
		return true
	default:
		fmt.Fprintf(r.out, "unknown command %q, try help\n", cmd)
		return false
	}
	th.Wait()
	r.status()
	return false
}

func (r *repl) status() {
	th := r.th
	colorHeader.Fprintf(r.out, "%s\n", th.Title())
	fmt.Fprintf(r.out, "%s  [%s]\n", th.Window.FullPath(), th.Navigation.State())
	if failed := th.Navigation.LastReport().Failed(); len(failed) > 0 {
		colorDim.Fprintf(r.out, "not synchronized: %s\n", strings.Join(failed, ", "))
	}
	loaded := 0
	results := th.Images.Results()
	for _, res := range results {
		if res.Loaded {
			loaded++
		}
	}
	if len(results) > 0 {
		colorDim.Fprintf(r.out, "images: %d of %d loaded\n", loaded, len(results))
	}
}

func (r *repl) printLinks(links [][2]string) {
	for i, l := range links {
		fmt.Fprintf(r.out, "%3d. %s ", i+1, l[1])
		colorDim.Fprintf(r.out, "(%s)\n", l[0])
	}
}

func (r *repl) search(ctx context.Context, query string) {
	s := r.th.Search
	if s == nil {
		fmt.Fprintln(r.out, "search is not configured")
		return
	}
	if _, err := s.Submit(ctx, query); err != nil {
		log.Printf("Warning: search: %v", err)
	}
	search.FormatResults(r.out, s.Hits(), s.Query(), s.SelectedIndex())
}

func (r *repl) more(ctx context.Context) {
	s := r.th.Search
	if s == nil || s.Finished() {
		fmt.Fprintln(r.out, "no more results")
		return
	}
	if _, err := s.LoadMore(ctx); err != nil {
		log.Printf("Warning: search: %v", err)
	}
	search.FormatResults(r.out, s.Hits(), s.Query(), s.SelectedIndex())
}

func runTree(args []string) {
	fs := flag.NewFlagSet("tree", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: youlog tree [PATH] [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	th := start(context.Background(), &common, fs.Arg(0), progress.Nop{})
	defer th.Close()
	printTree(os.Stdout, th)
}

// printTree prints the visible rows of the sidebar tree, numbered for the
// toggle command.
func printTree(w io.Writer, th *theme.Theme) {
	rows := th.TreeRows()
	th.Window.View(func(doc *goquery.Document) {
		for i, n := range rows {
			row := doc.FindNodes(n)
			li := row.Closest("li")
			depth, _ := strconv.Atoi(li.AttrOr(navtree.DepthAttr, "0"))
			marker := "  "
			if sub := li.ChildrenFiltered("ul, ol").First(); sub.Length() > 0 {
				marker = "- "
				if sub.HasClass(navtree.HiddenClass) {
					marker = "+ "
				}
			}
			line := fmt.Sprintf("%3d. %s%s%s", i+1, strings.Repeat("  ", depth), marker, strings.TrimSpace(row.Text()))
			if li.HasClass(navtree.ActiveClass) {
				colorActive.Fprintln(w, line)
			} else {
				fmt.Fprintln(w, line)
			}
		}
	})
}

func printTOC(w io.Writer, th *theme.Theme) {
	active := th.TOC.Active()
	for _, item := range th.TOC.Items() {
		line := fmt.Sprintf("%s%s  #%s", strings.Repeat("  ", item.Level-1), item.Text, item.ID)
		if item.ID == active {
			colorActive.Fprintln(w, line)
		} else {
			fmt.Fprintln(w, line)
		}
	}
}

func printMenu(w io.Writer, items []navtree.MenuItem, depth int) {
	for _, it := range items {
		line := fmt.Sprintf("%s%s (%s)", strings.Repeat("  ", depth), it.Text, it.Link)
		if it.Active {
			colorActive.Fprintln(w, line)
		} else {
			fmt.Fprintln(w, line)
		}
		printMenu(w, it.Children, depth+1)
	}
}

func printRead(w io.Writer, th *theme.Theme) {
	page, err := th.Read()
	if err != nil {
		log.Printf("Warning: %v", err)
		return
	}
	out := page.String()
	fmt.Fprint(w, out)
	colorDim.Fprintf(w, "\n%s of Markdown\n", humanize.Bytes(uint64(len(out))))
}

func runRead(args []string) {
	fs := flag.NewFlagSet("read", flag.ExitOnError)
	var (
		common commonFlags
		output string
	)
	common.register(fs)
	fs.StringVar(&output, "o", "", "Write the Markdown to this file instead of stdout")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: youlog read [PATH] [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	th := start(context.Background(), &common, fs.Arg(0), progress.Nop{})
	defer th.Close()

	page, err := th.Read()
	if err != nil {
		log.Fatalf("Failed to convert page: %v", err)
	}
	if output == "" {
		fmt.Print(page.String())
		return
	}
	if err := os.WriteFile(output, []byte(page.String()), 0644); err != nil {
		log.Fatalf("Failed to write %s: %v", output, err)
	}
	log.Printf("Saved %s (%s)", output, humanize.Bytes(uint64(len(page.String()))))
}

func runSearch(args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	var (
		common     commonFlags
		pages      int
		jsonOutput bool
	)
	common.register(fs)
	fs.IntVar(&pages, "pages", 1, "Number of result pages to load")
	fs.BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: youlog search <QUERY> [options]

Search the hosted index, or the local Markdown directory set by search.docs.

Options:
`)
		fs.PrintDefaults()
	}
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Error: search query is required\n\n")
		fs.Usage()
		os.Exit(1)
	}
	query := strings.Join(fs.Args(), " ")

	cfg := common.load()
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost"
	}
	th, err := theme.New(cfg, theme.Options{})
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer th.Close()
	if th.Search == nil {
		log.Fatalf("Search is not configured: set search.app_id, search.api_key and search.index, or search.docs")
	}

	ctx := context.Background()
	state, err := th.Search.Submit(ctx, query)
	for i := 1; err == nil && i < pages && state == search.StateLoaded; i++ {
		state, err = th.Search.LoadMore(ctx)
	}
	if err != nil {
		log.Fatalf("Search failed: %v", err)
	}

	hits := th.Search.Hits()
	if jsonOutput {
		if err := search.FormatJSON(os.Stdout, hits); err != nil {
			log.Fatalf("Failed to format JSON output: %v", err)
		}
		return
	}
	search.FormatResults(os.Stdout, hits, query, -1)
	if !th.Search.Finished() {
		colorDim.Printf("%s hits shown, more available with --pages\n", humanize.Comma(int64(len(hits))))
	}
}

func runPrefs(args []string) {
	fs := flag.NewFlagSet("prefs", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: youlog prefs [KEY VALUE...] [options]

Without arguments the stored preferences are printed.

Keys:
  width N|reset                  Sidebar width in pixels (200 to 600)
  theme light|dark|toggle        Color theme
  font FAMILY SIZE LINE_HEIGHT   Reader font
  reader-style on|off            Apply the reader font to the article
  reset                          Restore the reader defaults

Options:
`)
		fs.PrintDefaults()
	}
	fs.Parse(args)

	store := openPrefs(common.load())
	if err := applyPrefs(store, fs.Args(), common.systemDark); err != nil {
		log.Fatalf("Failed to update preferences: %v", err)
	}
	printPrefs(os.Stdout, store, common.systemDark)
}

func applyPrefs(store *prefs.Store, args []string, systemDark bool) error {
	if len(args) == 0 {
		return nil
	}
	key, vals := args[0], args[1:]
	switch key {
	case "width":
		if len(vals) != 1 {
			return fmt.Errorf("width takes one value")
		}
		if vals[0] == "reset" {
			return store.ResetSidebarWidth()
		}
		n, err := strconv.Atoi(vals[0])
		if err != nil {
			return fmt.Errorf("invalid width %q: %w", vals[0], err)
		}
		_, err = store.SetSidebarWidth(n)
		return err
	case "theme":
		if len(vals) != 1 {
			return fmt.Errorf("theme takes one value")
		}
		if vals[0] == "toggle" {
			_, err := store.ToggleDark(systemDark)
			return err
		}
		return store.SetColorTheme(vals[0])
	case "font":
		if len(vals) != 3 {
			return fmt.Errorf("font takes a family, a size and a line height")
		}
		size, err := strconv.Atoi(vals[1])
		if err != nil {
			return fmt.Errorf("invalid font size %q: %w", vals[1], err)
		}
		lh, err := strconv.ParseFloat(vals[2], 64)
		if err != nil {
			return fmt.Errorf("invalid line height %q: %w", vals[2], err)
		}
		return store.SetReaderFont(vals[0], size, lh)
	case "reader-style":
		if len(vals) != 1 {
			return fmt.Errorf("reader-style takes on or off")
		}
		return store.SetReaderStyle(vals[0] == "on")
	case "reset":
		return store.ResetReader()
	default:
		return fmt.Errorf("unknown preference %q", key)
	}
}

func printPrefs(w io.Writer, store *prefs.Store, systemDark bool) {
	p := store.Get()
	family, size, lh := p.Font()
	scheme := prefs.ThemeLight
	if p.Dark(systemDark) {
		scheme = prefs.ThemeDark
	}
	colorHeader.Fprintf(w, "%s\n", store.Path())
	fmt.Fprintf(w, "sidebar width: %dpx\n", p.Width())
	fmt.Fprintf(w, "color theme:   %s\n", scheme)
	fmt.Fprintf(w, "reader font:   %s %dpx / %g\n", family, size, lh)
	fmt.Fprintf(w, "reader style:  %t\n", p.ReaderStyleApplied)
}
