// Package domsync copies designated regions from a freshly fetched document
// into the live document.
//
// Synchronization is selector-driven and non-transactional: each selector is
// handled on its own and a failure on one never blocks the others.
package domsync

import (
	"fmt"
	"log"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// DefaultSelectors are the regions replaced on every transition.
var DefaultSelectors = []string{
	"#article-main",
	"h1[data-article-title]",
	"title",
	"#page-indicator",
	"#breadcrumb",
	"#article-title",
}

// Status is the outcome of synchronizing one selector.
type Status int

const (
	// Missing means the selector matched nothing in the live document.
	Missing Status = iota
	// Replaced means the live region now holds the fetched region's content.
	Replaced
	// Cleared means the region is absent from the fetched page and was emptied.
	Cleared
)

func (s Status) String() string {
	switch s {
	case Replaced:
		return "replaced"
	case Cleared:
		return "cleared"
	default:
		return "missing"
	}
}

// Result records the outcome for one selector.
type Result struct {
	Selector string
	Status   Status
}

// Report lists results in selector order.
type Report []Result

// Failed returns the selectors that could not be synchronized.
func (r Report) Failed() []string {
	var failed []string
	for _, res := range r {
		if res.Status == Missing {
			failed = append(failed, res.Selector)
		}
	}
	return failed
}

type target struct {
	selector string
	matcher  cascadia.Selector
}

// Synchronizer holds a compiled, ordered selector list.
type Synchronizer struct {
	targets []target
}

// New compiles selectors. An invalid selector is a configuration error.
func New(selectors []string) (*Synchronizer, error) {
	s := &Synchronizer{}
	for _, sel := range selectors {
		m, err := cascadia.Compile(sel)
		if err != nil {
			return nil, fmt.Errorf("invalid sync selector %q: %w", sel, err)
		}
		s.targets = append(s.targets, target{selector: sel, matcher: m})
	}
	return s, nil
}

// Selectors returns the configured selector list.
func (s *Synchronizer) Selectors() []string {
	out := make([]string, len(s.targets))
	for i, t := range s.targets {
		out[i] = t.selector
	}
	return out
}

// Sync synchronizes every configured region from next into live. Content is
// moved out of next, which must not be used afterwards.
func (s *Synchronizer) Sync(live, next *goquery.Document) Report {
	report := make(Report, 0, len(s.targets))
	for _, t := range s.targets {
		status := syncMatched(live.FindMatcher(t.matcher), next.FindMatcher(t.matcher))
		if status == Missing {
			log.Printf("Warning: sync element %q not found in current document", t.selector)
		}
		report = append(report, Result{Selector: t.selector, Status: status})
	}
	return report
}

// SyncElement synchronizes a single selector between live and next.
func SyncElement(live, next *goquery.Document, selector string) Status {
	status := syncMatched(live.Find(selector), next.Find(selector))
	if status == Missing {
		log.Printf("Warning: sync element %q not found in current document", selector)
	}
	return status
}

func syncMatched(current, incoming *goquery.Selection) Status {
	if current.Length() == 0 {
		return Missing
	}
	dst := current.Get(0)
	removeChildren(dst)

	if incoming.Length() == 0 {
		return Cleared
	}
	src := incoming.Get(0)
	for c := src.FirstChild; c != nil; {
		next := c.NextSibling
		src.RemoveChild(c)
		dst.AppendChild(c)
		c = next
	}
	return Replaced
}

func removeChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
}
