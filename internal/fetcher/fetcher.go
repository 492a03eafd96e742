// Package fetcher retrieves HTML pages over HTTP and parses them into
// documents the theme runtime can query and splice.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DefaultUserAgent identifies the runtime in server logs.
const DefaultUserAgent = "youlog/1.0 (+https://github.com/f4ah6o/youlog-go)"

// ErrNotHTML is returned when the response is not an HTML document.
var ErrNotHTML = errors.New("response is not an HTML document")

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 1 << 20

// StatusError is returned for responses outside the 2xx range. Body holds
// the response when the server sent an HTML error page.
type StatusError struct {
	URL  string
	Code int
	Body []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.URL, e.Code)
}

// Document parses the error page, or returns nil when there is none.
func (e *StatusError) Document() *goquery.Document {
	if len(e.Body) == 0 {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(decodeHTML(e.Body)))
	if err != nil {
		return nil
	}
	return doc
}

// Fetcher issues GET requests for full HTML documents.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

// New creates a Fetcher. A zero timeout means 30 seconds; an empty userAgent
// means DefaultUserAgent.
func New(timeout time.Duration, userAgent string) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
		},
		userAgent: userAgent,
	}
}

// Client returns the underlying HTTP client so other components can share it.
func (f *Fetcher) Client() *http.Client {
	return f.client
}

// Fetch performs a GET for targetURL and parses the body as an HTML document.
// The response is decoded using the charset declared in the page, if any.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) (*goquery.Document, error) {
	body, err := f.get(ctx, targetURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(decodeHTML(body)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", targetURL, err)
	}
	return doc, nil
}

func (f *Fetcher) get(ctx context.Context, targetURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid request for %s: %w", targetURL, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", targetURL, err)
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	isHTML := contentType == "" || strings.Contains(contentType, "text/html") ||
		strings.Contains(contentType, "application/xhtml+xml")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{URL: targetURL, Code: resp.StatusCode}
		if isHTML {
			statusErr.Body, _ = io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		}
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, statusErr
	}

	if !isHTML {
		return nil, fmt.Errorf("%s: %w (%s)", targetURL, ErrNotHTML, contentType)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, fmt.Errorf("failed to read body from %s: %w", targetURL, err)
	}
	return buf.Bytes(), nil
}

// Check issues a GET for a resource and reports whether it is reachable. The
// body is discarded.
func (f *Fetcher) Check(ctx context.Context, targetURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return fmt.Errorf("invalid request for %s: %w", targetURL, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", targetURL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{URL: targetURL, Code: resp.StatusCode}
	}
	return nil
}
