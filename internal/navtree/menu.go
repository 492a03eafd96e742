package navtree

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/f4ah6o/youlog-go/internal/urlutil"
)

// MenuItem is one entry of the header navigation.
type MenuItem struct {
	Text     string     `json:"text" yaml:"text"`
	Link     string     `json:"link" yaml:"link"`
	Active   bool       `json:"active" yaml:"active"`
	Children []MenuItem `json:"children,omitempty" yaml:"children,omitempty"`
}

// ParseMenuData reads the first list under nav into menu items. An item is
// active when currentPath equals its link or, for links other than "/",
// starts with it, comparing escaped paths. A parent is active when a child
// or grandchild is.
func ParseMenuData(nav *goquery.Selection, currentPath string) []MenuItem {
	if nav == nil || nav.Length() == 0 {
		return nil
	}
	root := nav.Find("ul").First()
	if root.Length() == 0 {
		return nil
	}
	return parseMenuItems(root, urlutil.CanonicalPath(currentPath))
}

func parseMenuItems(ul *goquery.Selection, currentPath string) []MenuItem {
	var items []MenuItem
	ul.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
		link := li.ChildrenFiltered("a").First()
		if link.Length() == 0 {
			return
		}
		href := link.AttrOr("href", "")
		if href == "" {
			href = "#"
		}
		p := urlutil.CanonicalPath(href)
		item := MenuItem{
			Text:   strings.TrimSpace(link.Text()),
			Link:   href,
			Active: currentPath == p || (p != "/" && strings.HasPrefix(currentPath, p)),
		}

		if sub := li.ChildrenFiltered("ul").First(); sub.Length() > 0 {
			item.Children = parseMenuItems(sub, currentPath)
			for _, child := range item.Children {
				if child.Active || anyActive(child.Children) {
					item.Active = true
					break
				}
			}
		}
		items = append(items, item)
	})
	return items
}

func anyActive(items []MenuItem) bool {
	for _, it := range items {
		if it.Active {
			return true
		}
	}
	return false
}
