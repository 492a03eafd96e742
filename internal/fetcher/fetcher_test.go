package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/text/encoding/charmap"
)

func TestNewFetcherDefaults(t *testing.T) {
	f := New(0, "")
	if f == nil {
		t.Fatal("New() should return non-nil fetcher")
	}
	if f.client.Timeout != 30*time.Second {
		t.Errorf("timeout = %v, want 30s", f.client.Timeout)
	}
	if f.userAgent != DefaultUserAgent {
		t.Errorf("userAgent = %q, want default", f.userAgent)
	}
}

func TestFetch(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		switch r.URL.Path {
		case "/ok":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte(`<html><head><title>Hello</title></head><body><div id="article-main">x</div></body></html>`))
		case "/fail":
			http.Error(w, "boom", http.StatusInternalServerError)
		case "/gone":
			w.Header().Set("Content-Type", "text/html")
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`<html><head><title>Not Found</title></head><body>gone</body></html>`))
		case "/json":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := New(5*time.Second, "test-agent")
	ctx := context.Background()

	t.Run("html document", func(t *testing.T) {
		doc, err := f.Fetch(ctx, srv.URL+"/ok")
		if err != nil {
			t.Fatalf("Fetch() error: %v", err)
		}
		if got := doc.Find("title").Text(); got != "Hello" {
			t.Errorf("title = %q, want Hello", got)
		}
		if gotUA != "test-agent" {
			t.Errorf("User-Agent = %q, want test-agent", gotUA)
		}
	})

	t.Run("server error", func(t *testing.T) {
		_, err := f.Fetch(ctx, srv.URL+"/fail")
		var se *StatusError
		if !errors.As(err, &se) {
			t.Fatalf("error = %v, want *StatusError", err)
		}
		if se.Code != http.StatusInternalServerError {
			t.Errorf("code = %d, want 500", se.Code)
		}
		if se.Document() != nil {
			t.Error("a plain-text error should carry no document")
		}
	})

	t.Run("html error page", func(t *testing.T) {
		_, err := f.Fetch(ctx, srv.URL+"/gone")
		var se *StatusError
		if !errors.As(err, &se) || se.Code != http.StatusNotFound {
			t.Fatalf("error = %v, want 404 *StatusError", err)
		}
		doc := se.Document()
		if doc == nil {
			t.Fatal("Document() = nil, want the error page")
		}
		if got := doc.Find("title").Text(); got != "Not Found" {
			t.Errorf("error page title = %q", got)
		}
	})

	t.Run("not html", func(t *testing.T) {
		_, err := f.Fetch(ctx, srv.URL+"/json")
		if !errors.Is(err, ErrNotHTML) {
			t.Errorf("error = %v, want ErrNotHTML", err)
		}
	})

	t.Run("check", func(t *testing.T) {
		if err := f.Check(ctx, srv.URL+"/ok"); err != nil {
			t.Errorf("Check(/ok) error: %v", err)
		}
		if err := f.Check(ctx, srv.URL+"/missing"); err == nil {
			t.Error("Check(/missing) should fail")
		}
	})
}

func TestDecodeHTML(t *testing.T) {
	latin1, err := charmap.ISO8859_1.NewEncoder().String(`<meta charset="iso-8859-1"><p>café</p>`)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		body []byte
		want string
	}{
		{"utf8 without declaration", []byte("<p>café</p>"), "<p>café</p>"},
		{"declared latin1", []byte(latin1), `<meta charset="iso-8859-1"><p>café</p>`},
		{"bom", append([]byte{0xEF, 0xBB, 0xBF}, []byte("<p>x</p>")...), "\ufeff<p>x</p>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := decodeHTML(tt.body); got != tt.want {
				t.Errorf("decodeHTML() = %q, want %q", got, tt.want)
			}
		})
	}
}
