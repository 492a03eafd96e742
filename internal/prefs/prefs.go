// Package prefs stores the reader's display preferences between sessions
// and applies them to a document.
package prefs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"gopkg.in/yaml.v3"
)

// Sidebar width bounds, in pixels.
const (
	MinSidebarWidth     = 200
	MaxSidebarWidth     = 600
	DefaultSidebarWidth = 288
)

// Reader defaults.
const (
	DefaultFontFamily = "system-ui"
	DefaultFontSize   = 16
	DefaultLineHeight = 1.7
)

// ReadabilityClass is set on the article when the reader style is applied.
const ReadabilityClass = "custom-readability"

// DarkClass is set on the root element in the dark color theme.
const DarkClass = "dark"

// Color themes. An empty theme follows the system.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// FileName is the name of the preferences file inside the state directory.
const FileName = "prefs.yaml"

// Preferences are the persisted values. Zero values mean "not set".
type Preferences struct {
	SidebarWidth       int     `yaml:"sidebar-width,omitempty"`
	ColorTheme         string  `yaml:"color-theme,omitempty"`
	ReaderFontFamily   string  `yaml:"reader-font-family,omitempty"`
	ReaderFontSize     int     `yaml:"reader-font-size,omitempty"`
	ReaderLineHeight   float64 `yaml:"reader-line-height,omitempty"`
	ReaderStyleApplied bool    `yaml:"reader-style-applied,omitempty"`
}

// Width returns the stored sidebar width, or the default when it is unset
// or out of bounds.
func (p Preferences) Width() int {
	if p.SidebarWidth < MinSidebarWidth || p.SidebarWidth > MaxSidebarWidth {
		return DefaultSidebarWidth
	}
	return p.SidebarWidth
}

// Font returns the reader font family, size and line height, with defaults
// filled in.
func (p Preferences) Font() (family string, size int, lineHeight float64) {
	family, size, lineHeight = p.ReaderFontFamily, p.ReaderFontSize, p.ReaderLineHeight
	if family == "" {
		family = DefaultFontFamily
	}
	if size <= 0 {
		size = DefaultFontSize
	}
	if lineHeight <= 0 {
		lineHeight = DefaultLineHeight
	}
	return family, size, lineHeight
}

// Dark reports whether the dark theme applies. Without a stored theme the
// system preference decides.
func (p Preferences) Dark(systemDark bool) bool {
	switch p.ColorTheme {
	case ThemeDark:
		return true
	case ThemeLight:
		return false
	default:
		return systemDark
	}
}

// StateDir returns $XDG_STATE_HOME/youlog, falling back to
// ~/.local/state/youlog.
func StateDir() (string, error) {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "youlog"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to find home directory: %w", err)
	}
	return filepath.Join(home, ".local", "state", "youlog"), nil
}

// Store is a Preferences file. Every setter writes the file.
type Store struct {
	path string

	mu    sync.Mutex
	prefs Preferences
}

// Open reads the preferences file at path. A missing file yields empty
// preferences.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read preferences: %w", err)
	}
	if err := yaml.Unmarshal(data, &s.prefs); err != nil {
		return nil, fmt.Errorf("failed to parse preferences %s: %w", path, err)
	}
	return s, nil
}

// OpenDir opens FileName inside dir, or inside StateDir when dir is empty.
func OpenDir(dir string) (*Store, error) {
	if dir == "" {
		var err error
		if dir, err = StateDir(); err != nil {
			return nil, err
		}
	}
	return Open(filepath.Join(dir, FileName))
}

// Path returns the file backing the store.
func (s *Store) Path() string {
	return s.path
}

// Get returns a copy of the current preferences.
func (s *Store) Get() Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs
}

func (s *Store) update(fn func(p *Preferences)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.prefs)
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	data, err := yaml.Marshal(s.prefs)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	return nil
}

// SetSidebarWidth clamps width to the allowed range, stores it and returns
// the stored value.
func (s *Store) SetSidebarWidth(width int) (int, error) {
	width = min(max(width, MinSidebarWidth), MaxSidebarWidth)
	return width, s.update(func(p *Preferences) { p.SidebarWidth = width })
}

// ResetSidebarWidth forgets the stored width.
func (s *Store) ResetSidebarWidth() error {
	return s.update(func(p *Preferences) { p.SidebarWidth = 0 })
}

// SetColorTheme stores ThemeLight or ThemeDark.
func (s *Store) SetColorTheme(theme string) error {
	if theme != ThemeLight && theme != ThemeDark {
		return fmt.Errorf("unknown color theme %q", theme)
	}
	return s.update(func(p *Preferences) { p.ColorTheme = theme })
}

// ToggleDark flips the theme and returns whether it is now dark.
func (s *Store) ToggleDark(systemDark bool) (bool, error) {
	var dark bool
	err := s.update(func(p *Preferences) {
		dark = !p.Dark(systemDark)
		p.ColorTheme = ThemeLight
		if dark {
			p.ColorTheme = ThemeDark
		}
	})
	return dark, err
}

// SetReaderFont stores the reader font settings. Zero values keep the
// current setting.
func (s *Store) SetReaderFont(family string, size int, lineHeight float64) error {
	return s.update(func(p *Preferences) {
		if family != "" {
			p.ReaderFontFamily = family
		}
		if size > 0 {
			p.ReaderFontSize = size
		}
		if lineHeight > 0 {
			p.ReaderLineHeight = lineHeight
		}
	})
}

// ResetReader forgets the reader font settings and the reader style.
func (s *Store) ResetReader() error {
	return s.update(func(p *Preferences) {
		p.ReaderFontFamily, p.ReaderFontSize, p.ReaderLineHeight = "", 0, 0
		p.ReaderStyleApplied = false
	})
}

// SetReaderStyle turns the reader style on or off.
func (s *Store) SetReaderStyle(applied bool) error {
	return s.update(func(p *Preferences) { p.ReaderStyleApplied = applied })
}

// Apply writes p onto doc: the CSS variables and the theme class on the
// root element, and the reader style class on the article.
func Apply(doc *goquery.Document, p Preferences, article string, systemDark bool) {
	root := doc.Find("html").First()
	family, size, lineHeight := p.Font()
	setStyle(root, "--sidebar-width", strconv.Itoa(p.Width())+"px")
	setStyle(root, "--reader-font-family", family)
	setStyle(root, "--reader-font-size", strconv.Itoa(size)+"px")
	setStyle(root, "--reader-line-height", strconv.FormatFloat(lineHeight, 'f', -1, 64))

	if p.Dark(systemDark) {
		root.AddClass(DarkClass)
	} else {
		root.RemoveClass(DarkClass)
	}

	if article == "" {
		return
	}
	if p.ReaderStyleApplied {
		doc.Find(article).AddClass(ReadabilityClass)
	} else {
		doc.Find(article).RemoveClass(ReadabilityClass)
	}
}

// setStyle sets one declaration of the inline style, keeping the others.
func setStyle(sel *goquery.Selection, prop, val string) {
	if sel.Length() == 0 {
		return
	}
	var decls []string
	found := false
	for _, d := range strings.Split(sel.AttrOr("style", ""), ";") {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		name, _, _ := strings.Cut(d, ":")
		if strings.TrimSpace(name) == prop {
			d, found = prop+": "+val, true
		}
		decls = append(decls, d)
	}
	if !found {
		decls = append(decls, prop+": "+val)
	}
	sel.SetAttr("style", strings.Join(decls, "; "))
}
