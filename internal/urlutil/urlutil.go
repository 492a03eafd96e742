// Package urlutil provides the URL helpers shared by the navigation controller
// and the nav-tree highlighter: hash-only change detection, link filtering,
// relative href resolution and the path matching rules used for highlighting.
package urlutil

import (
	"log"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultBase is the path prefix a link must start with to be handled in-page.
const DefaultBase = "/"

// stripHash removes the fragment part of a URL string.
func stripHash(u string) string {
	if i := strings.IndexByte(u, '#'); i >= 0 {
		return u[:i]
	}
	return u
}

// IsOnlyHashChange reports whether oldURL and newURL are identical once their
// fragments are removed.
func IsOnlyHashChange(oldURL, newURL string) bool {
	return stripHash(oldURL) == stripHash(newURL)
}

// FullPath returns path + query + fragment of u, the form the controller
// records as its last confirmed state.
func FullPath(u *url.URL) string {
	if u == nil {
		return ""
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	if u.Fragment != "" {
		path += "#" + u.EscapedFragment()
	}
	return path
}

// SameOriginPath strips the origin of loc from an absolute href. Hrefs that
// are not absolute are returned unchanged. The boolean is false when href
// points at another origin or cannot be parsed.
func SameOriginPath(href string, loc *url.URL) (string, bool) {
	if !isAbsolute(href) {
		return href, true
	}
	target, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if loc == nil {
		return "", false
	}
	scheme := target.Scheme
	if scheme == "" {
		// protocol-relative
		scheme = loc.Scheme
	}
	if !strings.EqualFold(scheme, loc.Scheme) || !strings.EqualFold(target.Host, loc.Host) {
		return "", false
	}
	return FullPath(target), true
}

func isAbsolute(href string) bool {
	return strings.HasPrefix(href, "http:") ||
		strings.HasPrefix(href, "https:") ||
		strings.HasPrefix(href, "//")
}

// ShouldHandleHref reports whether an href should be loaded in-page rather
// than left to the browser. base is the configured base prefix; an empty base
// means DefaultBase.
func ShouldHandleHref(href string, loc *url.URL, base string) bool {
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "mailto:") {
		log.Printf("Skipping link %q: not a navigable link", href)
		return false
	}

	path, ok := SameOriginPath(href, loc)
	if !ok {
		log.Printf("Skipping link %q: different origin", href)
		return false
	}

	if base == "" {
		base = DefaultBase
	}
	if !strings.HasPrefix(path, base) {
		log.Printf("Skipping link %q: outside base %s", href, base)
		return false
	}
	return true
}

// ShouldHandleLink applies ShouldHandleHref to an anchor element. Any other
// node is rejected.
func ShouldHandleLink(n *html.Node, loc *url.URL, base string) bool {
	if n == nil || n.Type != html.ElementNode || n.DataAtom != atom.A {
		return false
	}
	href, ok := Attr(n, "href")
	if !ok {
		return false
	}
	return ShouldHandleHref(href, loc, base)
}

// Attr returns the value of the named attribute of n.
func Attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// ToAbsoluteURL resolves a relative href against the directory of
// currentPath. Absolute and origin-rooted hrefs are returned as-is.
func ToAbsoluteURL(relative, currentPath string) string {
	if strings.HasPrefix(relative, "http://") ||
		strings.HasPrefix(relative, "https://") ||
		strings.HasPrefix(relative, "/") {
		return relative
	}

	base, err := url.Parse(currentPath)
	if err != nil {
		return fallbackJoin(relative, currentPath)
	}
	rel, err := url.Parse(relative)
	if err != nil {
		return fallbackJoin(relative, currentPath)
	}
	return base.ResolveReference(rel).String()
}

func fallbackJoin(relative, currentPath string) string {
	dir := currentPath
	if i := strings.LastIndexByte(dir, '/'); i >= 0 {
		dir = dir[:i]
	}
	return dir + "/" + relative
}

// RemoveQueryParams strips both the query string and the fragment.
func RemoveQueryParams(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		return u[:i]
	}
	return u
}

// IsMatchingPath reports an exact path match, tolerating a single trailing
// slash on either side.
func IsMatchingPath(currentPath, targetPath string) bool {
	if currentPath == targetPath {
		return true
	}
	if strings.HasSuffix(currentPath, "/") {
		return currentPath[:len(currentPath)-1] == targetPath
	}
	return currentPath+"/" == targetPath
}

// IsMatchingPrefix reports whether targetPath, normalized to directory form,
// is a path prefix of currentPath. "x/index.html" becomes "x/" and "x.html"
// becomes "x/". The comparison respects segment boundaries: "/a" is a prefix
// of "/a/b" but not of "/ab".
func IsMatchingPrefix(currentPath, targetPath string) bool {
	prefix := targetPath
	switch {
	case strings.HasSuffix(prefix, "/"):
	case strings.HasSuffix(prefix, "/index.html"):
		prefix = strings.TrimSuffix(prefix, "index.html")
	case strings.HasSuffix(prefix, ".html"):
		prefix = strings.TrimSuffix(prefix, ".html") + "/"
	}
	if prefix == "" {
		return false
	}
	if strings.HasSuffix(prefix, "/") {
		return strings.HasPrefix(currentPath, prefix)
	}
	return currentPath == prefix || strings.HasPrefix(currentPath, prefix+"/")
}

// SegmentCount returns the number of non-empty "/"-separated parts of p,
// used to rank prefix matches. A trailing slash adds no segment.
func SegmentCount(p string) int {
	return len(strings.FieldsFunc(p, func(r rune) bool { return r == '/' }))
}

// CanonicalPath returns p in one escaped form, so that "/a b", "/a%20b" and
// "/%E4%B8%AD" compare equal to their other spellings. A path that is not a
// valid escape sequence is returned unchanged.
func CanonicalPath(p string) string {
	decoded, err := url.PathUnescape(p)
	if err != nil {
		return p
	}
	return (&url.URL{Path: decoded}).EscapedPath()
}
