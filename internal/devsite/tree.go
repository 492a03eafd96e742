package devsite

import (
	"fmt"
	"html"
	"path"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// node is one entry of the page tree. Directories carry the link of their
// index page, if any.
type node struct {
	name     string
	title    string
	link     string
	dir      bool
	children []*node
}

// buildTree arranges pages by directory. Index pages become the link of
// their directory instead of a child.
func buildTree(pages []*page) *node {
	root := &node{name: "", dir: true}
	for _, p := range pages {
		parts := strings.Split(p.rel, "/")
		current := root
		for _, part := range parts[:len(parts)-1] {
			child := current.child(part)
			if child == nil {
				child = &node{name: part, title: dirTitle(part), dir: true}
				current.children = append(current.children, child)
			}
			current = child
		}
		if path.Base(p.rel) == "index.md" {
			current.link, current.title = p.link, p.title
			continue
		}
		current.children = append(current.children, &node{name: parts[len(parts)-1], title: p.title, link: p.link})
	}
	sortTree(root)
	return root
}

func (n *node) child(name string) *node {
	for _, c := range n.children {
		if c.dir && c.name == name {
			return c
		}
	}
	return nil
}

// sortTree orders files before directories, each alphabetically.
func sortTree(n *node) {
	sort.SliceStable(n.children, func(i, j int) bool {
		a, b := n.children[i], n.children[j]
		if a.dir != b.dir {
			return !a.dir
		}
		return a.name < b.name
	})
	for _, c := range n.children {
		if c.dir {
			sortTree(c)
		}
	}
}

func dirTitle(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool { return r == '-' || r == '_' })
	return cases.Title(language.Und).String(strings.Join(words, " "))
}

// links returns the page links in reading order: a directory's index page
// comes before its children.
func (n *node) links() []string {
	var out []string
	if n.link != "" {
		out = append(out, n.link)
	}
	for _, c := range n.children {
		if c.dir {
			out = append(out, c.links()...)
		} else {
			out = append(out, c.link)
		}
	}
	return out
}

// treeHTML renders the children of n as the nested lists the sidebar tree
// is built from.
func (n *node) treeHTML() string {
	var b strings.Builder
	writeList(&b, n.children)
	return b.String()
}

func writeList(b *strings.Builder, nodes []*node) {
	if len(nodes) == 0 {
		return
	}
	b.WriteString("<ul>")
	for _, c := range nodes {
		b.WriteString("<li>")
		writeLabel(b, c)
		if c.dir {
			writeList(b, c.children)
		}
		b.WriteString("</li>")
	}
	b.WriteString("</ul>")
}

func writeLabel(b *strings.Builder, n *node) {
	if n.link == "" {
		fmt.Fprintf(b, "<span>%s</span>", html.EscapeString(n.title))
		return
	}
	fmt.Fprintf(b, `<a href="%s">%s</a>`, html.EscapeString(n.link), html.EscapeString(n.title))
}

// menuHTML renders the header navigation: the top level of the tree with
// one level of children.
func (n *node) menuHTML(home string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<ul><li><a href="%s">Home</a></li>`, html.EscapeString(home))
	for _, c := range n.children {
		b.WriteString("<li>")
		link := c.link
		if link == "" && c.dir {
			if all := c.links(); len(all) > 0 {
				link = all[0]
			}
		}
		fmt.Fprintf(&b, `<a href="%s">%s</a>`, html.EscapeString(link), html.EscapeString(c.title))
		if c.dir && len(c.children) > 0 {
			b.WriteString("<ul>")
			for _, g := range c.children {
				if g.link == "" {
					continue
				}
				fmt.Fprintf(&b, `<li><a href="%s">%s</a></li>`, html.EscapeString(g.link), html.EscapeString(g.title))
			}
			b.WriteString("</ul>")
		}
		b.WriteString("</li>")
	}
	b.WriteString("</ul>")
	return b.String()
}

// crumb is one step of a page's breadcrumb.
type crumb struct {
	Title string
	Link  string
}

// breadcrumb returns the directories leading to rel, starting at home.
func (n *node) breadcrumb(rel, home string) []crumb {
	crumbs := []crumb{{Title: "Home", Link: home}}
	parts := strings.Split(rel, "/")
	current := n
	for _, part := range parts[:len(parts)-1] {
		current = current.child(part)
		if current == nil {
			break
		}
		crumbs = append(crumbs, crumb{Title: current.title, Link: current.link})
	}
	return crumbs
}
