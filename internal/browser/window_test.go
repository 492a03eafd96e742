package browser

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/f4ah6o/youlog-go/internal/events"
)

// stubLoader serves documents from a map keyed by absolute URL.
type stubLoader struct {
	pages map[string]string
}

func (s stubLoader) Fetch(_ context.Context, targetURL string) (*goquery.Document, error) {
	if strings.HasSuffix(targetURL, "/error") {
		return nil, fmt.Errorf("loading: %w", serverError{})
	}
	body, ok := s.pages[targetURL]
	if !ok {
		return nil, fmt.Errorf("no page for %s", targetURL)
	}
	return goquery.NewDocumentFromReader(strings.NewReader(body))
}

// serverError is a failed response that carries an error page.
type serverError struct{}

func (serverError) Error() string { return "status 500" }

func (serverError) Document() *goquery.Document {
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader(`<title>Server Error</title>`))
	return doc
}

func newTestWindow(t *testing.T, bus *events.Bus) *Window {
	t.Helper()
	loader := stubLoader{pages: map[string]string{
		"https://example.com/a": `<title>A</title><div id="body-main"></div>`,
		"https://example.com/b": `<title>B</title>`,
	}}
	w, err := New("https://example.com/ignored/path", bus, loader)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return w
}

func TestNewRejectsBadOrigin(t *testing.T) {
	for _, origin := range []string{"ftp://example.com", "https://", "::"} {
		if _, err := New(origin, nil, nil); err == nil {
			t.Errorf("New(%q) should fail", origin)
		}
	}
}

func TestOpenAndHistory(t *testing.T) {
	bus := events.NewBus()
	var loaded, popped []string
	bus.Subscribe(events.DOMContentLoaded, func(_ context.Context, ev events.Event) { loaded = append(loaded, ev.URL) })
	bus.Subscribe(events.PopState, func(_ context.Context, ev events.Event) { popped = append(popped, ev.URL) })

	w := newTestWindow(t, bus)
	ctx := context.Background()

	if err := w.Open(ctx, "/a"); err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	w.View(func(doc *goquery.Document) {
		if got := doc.Find("title").Text(); got != "A" {
			t.Errorf("title = %q, want A", got)
		}
	})

	w.PushState("/a#section")
	w.PushState("/b")

	history, pos := w.History()
	if want := []string{"/", "/a", "/a#section", "/b"}; !reflect.DeepEqual(history, want) {
		t.Errorf("history = %v, want %v", history, want)
	}
	if pos != 3 {
		t.Errorf("pos = %d, want 3", pos)
	}

	if !w.Back(ctx) {
		t.Fatal("Back() should succeed")
	}
	if got := w.FullPath(); got != "/a#section" {
		t.Errorf("FullPath after Back = %q", got)
	}
	if !w.Forward(ctx) {
		t.Fatal("Forward() should succeed")
	}
	if w.Forward(ctx) {
		t.Error("Forward() at the end of history should fail")
	}

	if want := []string{"/a"}; !reflect.DeepEqual(loaded, want) {
		t.Errorf("DOMContentLoaded events = %v, want %v", loaded, want)
	}
	if want := []string{"/a#section", "/b"}; !reflect.DeepEqual(popped, want) {
		t.Errorf("PopState events = %v, want %v", popped, want)
	}
}

func TestAssignRecordsHardNavigation(t *testing.T) {
	w := newTestWindow(t, nil)
	ctx := context.Background()

	if err := w.Assign(ctx, "/b"); err != nil {
		t.Fatalf("Assign(/b) error: %v", err)
	}
	historyBefore, posBefore := w.History()
	err := w.Assign(ctx, "/missing")
	if err == nil {
		t.Fatal("Assign(/missing) should report the load failure")
	}
	if got := w.FullPath(); got != "/b" {
		t.Errorf("location after failed Assign = %q, want /b restored", got)
	}
	if history, pos := w.History(); !reflect.DeepEqual(history, historyBefore) || pos != posBefore {
		t.Errorf("history after failed Assign = %v at %d, want %v at %d", history, pos, historyBefore, posBefore)
	}
	w.View(func(doc *goquery.Document) {
		if got := doc.Find("title").Text(); got != "B" {
			t.Errorf("title after failed Assign = %q, want B", got)
		}
	})
	if got := w.HardNavigations(); !reflect.DeepEqual(got, []string{"/b", "/missing"}) {
		t.Errorf("HardNavigations() = %v", got)
	}
}

func TestAssignShowsErrorPage(t *testing.T) {
	bus := events.NewBus()
	var loaded []string
	bus.Subscribe(events.DOMContentLoaded, func(_ context.Context, ev events.Event) { loaded = append(loaded, ev.URL) })
	w := newTestWindow(t, bus)
	ctx := context.Background()

	if err := w.Assign(ctx, "/a"); err != nil {
		t.Fatal(err)
	}
	if err := w.Assign(ctx, "/error"); err == nil {
		t.Fatal("Assign(/error) should report the failed status")
	}
	if got := w.FullPath(); got != "/error" {
		t.Errorf("location = %q, want /error", got)
	}
	w.View(func(doc *goquery.Document) {
		if got := doc.Find("title").Text(); got != "Server Error" {
			t.Errorf("title = %q, want the error page", got)
		}
	})
	if want := []string{"/a", "/error"}; !reflect.DeepEqual(loaded, want) {
		t.Errorf("DOMContentLoaded events = %v, want %v", loaded, want)
	}
}

func TestReload(t *testing.T) {
	w := newTestWindow(t, nil)
	ctx := context.Background()
	if err := w.Open(ctx, "/a"); err != nil {
		t.Fatal(err)
	}
	w.Update(func(doc *goquery.Document) { doc.Find("title").SetText("changed") })

	if err := w.Reload(ctx); err != nil {
		t.Fatalf("Reload() error: %v", err)
	}
	w.View(func(doc *goquery.Document) {
		if got := doc.Find("title").Text(); got != "A" {
			t.Errorf("title after reload = %q, want A", got)
		}
	})
	if w.Reloads() != 1 {
		t.Errorf("Reloads() = %d, want 1", w.Reloads())
	}
}

func TestScroll(t *testing.T) {
	w := newTestWindow(t, nil)
	if err := w.Open(context.Background(), "/a"); err != nil {
		t.Fatal(err)
	}
	if !w.ScrollTo("#body-main", 0, 0) {
		t.Error("ScrollTo(#body-main) should succeed")
	}
	if w.ScrollTo("#nope", 0, 0) {
		t.Error("ScrollTo(#nope) should fail")
	}
	if p, ok := w.ScrollPosition("#body-main"); !ok || p != (Point{}) {
		t.Errorf("ScrollPosition = %v, %v", p, ok)
	}
}

func TestWaitSettled(t *testing.T) {
	w := newTestWindow(t, nil)
	w.Update(func(*goquery.Document) {})

	start := time.Now()
	if err := w.WaitSettled(context.Background(), 20*time.Millisecond); err != nil {
		t.Fatalf("WaitSettled() error: %v", err)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Error("WaitSettled returned before the quiet period elapsed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Update(func(*goquery.Document) {})
	if err := w.WaitSettled(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("WaitSettled() with canceled ctx = %v", err)
	}
}
