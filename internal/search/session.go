package search

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/f4ah6o/youlog-go/internal/debounce"
	"github.com/f4ah6o/youlog-go/internal/events"
)

// DefaultDebounce is the pause in typing after which a search is issued.
const DefaultDebounce = 500 * time.Millisecond

// LoadState is the outcome of loading one page of hits.
type LoadState int

const (
	// StateLoaded means more hits may be available.
	StateLoaded LoadState = iota
	// StateComplete means every hit has been loaded.
	StateComplete
	// StateError means the backend failed; hits loaded so far are kept.
	StateError
	// StateStale means the query changed while loading and the page was dropped.
	StateStale
)

func (s LoadState) String() string {
	switch s {
	case StateComplete:
		return "complete"
	case StateError:
		return "error"
	case StateStale:
		return "stale"
	default:
		return "loaded"
	}
}

// Session holds the state of one search box: the query, the hits loaded
// so far and the selected hit.
type Session struct {
	searcher Searcher
	bus      *events.Bus
	pageSize int
	debounce *debounce.Func[uint64]

	mu        sync.Mutex
	query     string
	infinite  uint64
	hits      []Hit
	selected  int
	finished  bool
	searching bool
	err       error
	onChange  func()
}

// NewSession creates a Session. Selecting a hit emits page-navigate on bus.
func NewSession(searcher Searcher, bus *events.Bus, delay time.Duration, pageSize int) *Session {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	if pageSize <= 0 {
		pageSize = PageSize
	}
	s := &Session{searcher: searcher, bus: bus, pageSize: pageSize, selected: -1}
	s.debounce = debounce.New(delay, func(id uint64) {
		s.mu.Lock()
		if id != s.infinite || s.query == "" {
			s.mu.Unlock()
			return
		}
		s.hits, s.finished, s.selected, s.err = nil, false, -1, nil
		s.mu.Unlock()
		if _, err := s.load(context.Background(), id, 0); err != nil {
			log.Printf("Warning: search error: %v", err)
		}
	})
	return s
}

// OnChange registers fn to run after every state change.
func (s *Session) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Session) changed() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Input records what the reader typed. The search runs once typing pauses.
// An empty value clears the session.
func (s *Session) Input(value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		s.Clear()
		return
	}
	s.mu.Lock()
	s.query = value
	s.infinite++
	id := s.infinite
	s.mu.Unlock()
	s.debounce.Call(id)
}

// Submit searches for query right away, replacing the current hits.
func (s *Session) Submit(ctx context.Context, query string) (LoadState, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		s.Clear()
		return StateComplete, nil
	}
	s.debounce.Cancel()
	s.mu.Lock()
	s.query = query
	s.infinite++
	id := s.infinite
	s.hits, s.finished, s.selected, s.err = nil, false, -1, nil
	s.mu.Unlock()
	return s.load(ctx, id, 0)
}

// LoadMore loads the next page of the current query.
func (s *Session) LoadMore(ctx context.Context) (LoadState, error) {
	s.mu.Lock()
	if s.query == "" || s.finished {
		s.mu.Unlock()
		return StateComplete, nil
	}
	id, offset := s.infinite, len(s.hits)
	s.mu.Unlock()
	return s.load(ctx, id, offset)
}

func (s *Session) load(ctx context.Context, id uint64, offset int) (LoadState, error) {
	s.mu.Lock()
	query := s.query
	s.searching = true
	s.mu.Unlock()

	page, err := s.searcher.Search(ctx, query, offset, s.pageSize)

	state, err := s.apply(id, page, err)
	s.changed()
	return state, err
}

func (s *Session) apply(id uint64, page Page, err error) (LoadState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != s.infinite {
		log.Printf("Search condition changed, skipping results")
		return StateStale, nil
	}
	s.searching = false
	if err != nil {
		s.err = err
		return StateError, err
	}
	if page.Query != s.query {
		log.Printf("Search keyword changed, skipping results")
		return StateStale, nil
	}
	s.err = nil
	s.hits = append(s.hits, page.Hits...)
	if s.selected < 0 && len(s.hits) > 0 {
		s.selected = 0
	}
	if len(page.Hits) < s.pageSize {
		s.finished = true
		return StateComplete, nil
	}
	return StateLoaded, nil
}

// Clear empties the query, the hits and the selection.
func (s *Session) Clear() {
	s.debounce.Cancel()
	s.mu.Lock()
	s.query = ""
	s.infinite++
	s.hits, s.finished, s.selected, s.err, s.searching = nil, false, -1, nil, false
	s.mu.Unlock()
	s.changed()
}

// Close cancels a pending debounced search.
func (s *Session) Close() {
	s.debounce.Cancel()
}

// Query returns the current query.
func (s *Session) Query() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query
}

// Hits returns the hits loaded so far.
func (s *Session) Hits() []Hit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Hit(nil), s.hits...)
}

// Finished reports whether every hit of the query has been loaded.
func (s *Session) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// Searching reports whether a page is being loaded.
func (s *Session) Searching() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searching
}

// Err returns the error of the last load, if it failed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// NoResults reports a finished query without hits.
func (s *Session) NoResults() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished && s.query != "" && len(s.hits) == 0
}

// SelectedIndex returns the index of the selected hit, or -1.
func (s *Session) SelectedIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// Selected returns the selected hit.
func (s *Session) Selected() (Hit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected < 0 || s.selected >= len(s.hits) {
		return Hit{}, false
	}
	return s.hits[s.selected], true
}

// Select selects the hit at index i.
func (s *Session) Select(i int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.hits) {
		return false
	}
	s.selected = i
	return true
}

// Move moves the selection one hit up or down, stopping at either end. It
// reports false when moving down from the last hit, which is the cue to
// load more.
func (s *Session) Move(up bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.hits) == 0 {
		return false
	}
	next := s.selected + 1
	if up {
		next = max(0, s.selected-1)
	}
	if next >= len(s.hits) {
		return false
	}
	s.selected = next
	return true
}

// Enter opens the selected hit by emitting page-navigate. It reports false
// when nothing is selected.
func (s *Session) Enter(ctx context.Context) bool {
	hit, ok := s.Selected()
	if !ok {
		return false
	}
	if s.bus != nil {
		s.bus.Emit(ctx, events.Event{Name: events.PageNavigate, URL: hit.Link})
	}
	return true
}
