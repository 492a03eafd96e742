// Package progress drives the top-of-page loading indicator shown while a
// page transition is in flight.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"
)

// Indicator is started when a transition begins and finished on every exit
// path of that transition.
type Indicator interface {
	Start(url string)
	Done()
}

// New returns a TerminalIndicator when running interactively, or a
// LogIndicator if the CI environment variable is set.
func New() Indicator {
	if os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != "" {
		return &LogIndicator{w: os.Stderr}
	}
	return &TerminalIndicator{w: os.Stderr}
}

// TerminalIndicator shows a spinner in the terminal.
type TerminalIndicator struct {
	mu  sync.Mutex
	w   io.Writer
	bar *progressbar.ProgressBar
}

// NewTerminal creates a TerminalIndicator writing to w.
func NewTerminal(w io.Writer) *TerminalIndicator {
	return &TerminalIndicator{w: w}
}

func (t *TerminalIndicator) Start(url string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bar != nil {
		_ = t.bar.Finish()
	}
	t.bar = progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(t.w),
		progressbar.OptionSetDescription("Loading "+url),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(40),
		progressbar.OptionClearOnFinish(),
	)
	_ = t.bar.Add(1)
}

func (t *TerminalIndicator) Done() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bar != nil {
		_ = t.bar.Finish()
		t.bar = nil
	}
}

// LogIndicator prints one line per transition, suitable for CI logs.
type LogIndicator struct {
	w   io.Writer
	url string
}

func (l *LogIndicator) Start(url string) {
	l.url = url
	fmt.Fprintf(l.w, "Loading %s\n", url)
}

func (l *LogIndicator) Done() {
	fmt.Fprintf(l.w, "Finished %s\n", l.url)
}

// Nop ignores every call.
type Nop struct{}

func (Nop) Start(string) {}
func (Nop) Done()        {}

// Counter records calls, mostly for tests.
type Counter struct {
	mu     sync.Mutex
	starts int
	dones  int
}

func (c *Counter) Start(string) {
	c.mu.Lock()
	c.starts++
	c.mu.Unlock()
}

func (c *Counter) Done() {
	c.mu.Lock()
	c.dones++
	c.mu.Unlock()
}

// Counts returns the number of Start and Done calls.
func (c *Counter) Counts() (starts, dones int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.starts, c.dones
}
