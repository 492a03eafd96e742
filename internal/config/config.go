// Package config loads the runtime configuration from TOML or YAML files
// and YOULOG_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/andybalholm/cascadia"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the runtime.
type Config struct {
	BaseURL            string        `toml:"base_url" yaml:"base_url"`
	Base               string        `toml:"base" yaml:"base"`
	UserAgent          string        `toml:"user_agent" yaml:"user_agent"`
	Timeout            time.Duration `toml:"timeout" yaml:"timeout"`
	SyncSelectors      []string      `toml:"sync_selectors" yaml:"sync_selectors"`
	ScrollContainer    string        `toml:"scroll_container" yaml:"scroll_container"`
	NavTree            string        `toml:"nav_tree" yaml:"nav_tree"`
	HeaderNav          string        `toml:"header_nav" yaml:"header_nav"`
	Article            string        `toml:"article" yaml:"article"`
	TOC                string        `toml:"toc" yaml:"toc"`
	HeadingSelector    string        `toml:"heading_selector" yaml:"heading_selector"`
	LazyImageAttr      string        `toml:"lazy_image_attr" yaml:"lazy_image_attr"`
	LazyImageContainer string        `toml:"lazy_image_container" yaml:"lazy_image_container"`
	KeywordContainer   string        `toml:"keyword_container" yaml:"keyword_container"`
	StateDir           string        `toml:"state_dir" yaml:"state_dir"`
	Search             Search        `toml:"search" yaml:"search"`
}

// Search configures the search backend. Without an app id the search
// falls back to a local Markdown directory when Docs is set.
type Search struct {
	AppID    string        `toml:"app_id" yaml:"app_id"`
	APIKey   string        `toml:"api_key" yaml:"api_key"`
	Index    string        `toml:"index" yaml:"index"`
	Site     string        `toml:"site" yaml:"site"`
	Host     string        `toml:"host" yaml:"host"`
	PageSize int           `toml:"page_size" yaml:"page_size"`
	Debounce time.Duration `toml:"debounce" yaml:"debounce"`
	Docs     string        `toml:"docs" yaml:"docs"`
}

// Remote reports whether a hosted index is configured.
func (s Search) Remote() bool {
	return s.AppID != "" && s.APIKey != "" && s.Index != ""
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Base:      "/",
		UserAgent: "youlog/1.0 (+https://github.com/f4ah6o/youlog-go)",
		Timeout:   30 * time.Second,
		SyncSelectors: []string{
			"#article-main",
			"h1[data-article-title]",
			"title",
			"#page-indicator",
			"#breadcrumb",
			"#article-title",
		},
		ScrollContainer:    "#body-main",
		NavTree:            "#sidebar-nav-tree",
		HeaderNav:          "#header-nav",
		Article:            "#article-main",
		TOC:                "#toc",
		HeadingSelector:    "h1, h2, h3, h4",
		LazyImageAttr:      "data-src",
		LazyImageContainer: "article",
		KeywordContainer:   "#article-main",
		Search: Search{
			PageSize: 10,
			Debounce: 500 * time.Millisecond,
		},
	}
}

// Load reads path over the defaults, then applies the environment. An
// empty path loads only the defaults and the environment. The format
// follows the extension: .toml, .yaml or .yml.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config format: %s", path)
	}
	return nil
}

// ApplyEnv overrides fields from YOULOG_* variables looked up with lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"YOULOG_BASE_URL":       &c.BaseURL,
		"YOULOG_USER_AGENT":     &c.UserAgent,
		"YOULOG_STATE_DIR":      &c.StateDir,
		"YOULOG_SEARCH_APP_ID":  &c.Search.AppID,
		"YOULOG_SEARCH_API_KEY": &c.Search.APIKey,
		"YOULOG_SEARCH_INDEX":   &c.Search.Index,
		"YOULOG_SEARCH_SITE":    &c.Search.Site,
		"YOULOG_SEARCH_HOST":    &c.Search.Host,
		"YOULOG_SEARCH_DOCS":    &c.Search.Docs,
	}
	for name, field := range strs {
		if v, ok := lookup(name); ok && v != "" {
			*field = v
		}
	}
	if v, ok := lookup("YOULOG_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid YOULOG_TIMEOUT %q: %w", v, err)
		}
		c.Timeout = d
	}
	if v, ok := lookup("YOULOG_SEARCH_PAGE_SIZE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid YOULOG_SEARCH_PAGE_SIZE %q: %w", v, err)
		}
		c.Search.PageSize = n
	}
	return nil
}

// FieldError reports one invalid field.
type FieldError struct {
	Field string
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Field, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Validate checks every selector, URL and duration. All problems are
// reported together.
func (c Config) Validate() error {
	var errs []error
	selector := func(field, sel string) {
		if sel == "" {
			return
		}
		if _, err := cascadia.Compile(sel); err != nil {
			errs = append(errs, &FieldError{Field: field, Value: sel, Err: err})
		}
	}

	if c.BaseURL != "" {
		if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, &FieldError{Field: "base_url", Value: c.BaseURL, Err: errors.New("must be an absolute URL")})
		}
	}
	if !strings.HasPrefix(c.Base, "/") {
		errs = append(errs, &FieldError{Field: "base", Value: c.Base, Err: errors.New("must start with /")})
	}
	if c.Timeout <= 0 {
		errs = append(errs, &FieldError{Field: "timeout", Value: c.Timeout.String(), Err: errors.New("must be positive")})
	}
	if len(c.SyncSelectors) == 0 {
		errs = append(errs, &FieldError{Field: "sync_selectors", Err: errors.New("must not be empty")})
	}
	for i, s := range c.SyncSelectors {
		selector(fmt.Sprintf("sync_selectors[%d]", i), s)
	}
	selector("scroll_container", c.ScrollContainer)
	selector("nav_tree", c.NavTree)
	selector("header_nav", c.HeaderNav)
	selector("article", c.Article)
	selector("toc", c.TOC)
	selector("heading_selector", c.HeadingSelector)
	selector("lazy_image_container", c.LazyImageContainer)
	selector("keyword_container", c.KeywordContainer)

	if c.Search.PageSize <= 0 {
		errs = append(errs, &FieldError{Field: "search.page_size", Value: strconv.Itoa(c.Search.PageSize), Err: errors.New("must be positive")})
	}
	if c.Search.Debounce < 0 {
		errs = append(errs, &FieldError{Field: "search.debounce", Value: c.Search.Debounce.String(), Err: errors.New("must not be negative")})
	}
	if c.Search.Host != "" {
		if u, err := url.Parse(c.Search.Host); err != nil || u.Scheme == "" {
			errs = append(errs, &FieldError{Field: "search.host", Value: c.Search.Host, Err: errors.New("must be an absolute URL")})
		}
	}
	return errors.Join(errs...)
}
