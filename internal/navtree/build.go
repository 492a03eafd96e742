// Package navtree turns the sidebar's nested lists into a collapsible tree
// and keeps the branch holding the current page expanded and highlighted.
package navtree

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Classes and attributes owned by the tree.
const (
	LeafClass        = "tree-node-leaf"
	BranchClass      = "tree-node-branch"
	NodeContentClass = "node-content"
	ToggleClass      = "with-toggle"
	HiddenClass      = "hidden"
	ExpandedClass    = "expanded"
	ActiveClass      = "active"
	ActiveLinkClass  = "active-link"
	DepthAttr        = "data-depth"
)

// ProcessTreeNode wraps the content of one list item in a node-content row
// and classifies it as a leaf or a branch. Nested lists start hidden and
// their items are processed recursively. A list item that already holds a
// node-content row is left alone.
func ProcessTreeNode(li *goquery.Selection) {
	if li.Length() == 0 || li.Find("."+NodeContentClass).Length() > 0 {
		return
	}
	n := li.Get(0)

	var kids []*html.Node
	listIndex := -1
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.ElementNode:
			if listIndex < 0 && isList(c) {
				listIndex = len(kids)
			}
			kids = append(kids, c)
		case html.TextNode:
			if strings.TrimSpace(c.Data) != "" {
				kids = append(kids, c)
			}
		}
	}

	switch {
	case len(kids) == 1:
		li.AddClass(LeafClass)
		row := newNodeContent()
		n.RemoveChild(kids[0])
		row.AppendChild(kids[0])
		n.InsertBefore(row, n.FirstChild)

	case len(kids) >= 2 && listIndex >= 0:
		li.AddClass(BranchClass)
		list := kids[listIndex]
		if listIndex > 0 {
			row := newNodeContent()
			for _, k := range kids[:listIndex] {
				n.RemoveChild(k)
				row.AppendChild(k)
			}
			n.InsertBefore(row, list)
		}

		sub := li.FindNodes(list)
		sub.AddClass(HiddenClass)
		sub.ChildrenFiltered("li").Each(func(_ int, child *goquery.Selection) {
			ProcessTreeNode(child)
		})
	}
}

func newNodeContent() *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Div,
		Data:     "div",
		Attr:     []html.Attribute{{Key: "class", Val: NodeContentClass + " " + ToggleClass}},
	}
}

func isList(n *html.Node) bool {
	return n.Type == html.ElementNode && (n.DataAtom == atom.Ul || n.DataAtom == atom.Ol)
}

// RemoveLeafToggle drops the toggle affordance from every node-content row
// whose list item has nothing to expand: all of the item's other element
// children are leaves. A leaf row has no siblings, so it always loses it.
func RemoveLeafToggle(root *goquery.Selection) {
	root.Find("." + ToggleClass).Each(func(_ int, row *goquery.Selection) {
		expandable := false
		row.Siblings().Each(func(_ int, sib *goquery.Selection) {
			if !sib.HasClass(LeafClass) {
				expandable = true
			}
		})
		if !expandable {
			row.RemoveClass(ToggleClass)
		}
	})
}

// SetNodeDepth labels every list item under n with its nesting depth, both
// as data-depth and as the --depth style property. Depth grows only when
// going from a list item into a nested list.
func SetNodeDepth(n *html.Node, depth int) {
	if n.Type == html.ElementNode && n.DataAtom == atom.Li {
		setAttr(n, DepthAttr, strconv.Itoa(depth))
		setStyleProperty(n, "--depth", strconv.Itoa(depth))
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		d := depth
		if n.DataAtom == atom.Li && isList(c) {
			d++
		}
		SetNodeDepth(c, d)
	}
}

// BuildTree processes the top-level items of one tree and labels depths.
func BuildTree(tree *goquery.Selection) {
	tree.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
		ProcessTreeNode(li)
	})
	for _, n := range tree.Nodes {
		SetNodeDepth(n, 0)
	}
	RemoveLeafToggle(tree)
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

var styleDecl = regexp.MustCompile(`\s*;\s*`)

// setStyleProperty sets one declaration of the inline style, keeping the
// others in place.
func setStyleProperty(n *html.Node, prop, val string) {
	var decls []string
	found := false
	for _, d := range styleDecl.Split(getAttr(n, "style"), -1) {
		if strings.TrimSpace(d) == "" {
			continue
		}
		name, _, _ := strings.Cut(d, ":")
		if strings.TrimSpace(name) == prop {
			d = prop + ": " + val
			found = true
		}
		decls = append(decls, strings.TrimSpace(d))
	}
	if !found {
		decls = append(decls, prop+": "+val)
	}
	setAttr(n, "style", strings.Join(decls, "; "))
}
