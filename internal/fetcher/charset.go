package fetcher

import (
	"bytes"
	"io"
	"regexp"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

var (
	// <meta charset="...">
	metaCharsetRe = regexp.MustCompile(`(?i)<meta[^>]+charset=["']?([^"'\s>;]+)`)
	// <meta content="text/html; charset=..." http-equiv="Content-Type">
	metaContentRe = regexp.MustCompile(`(?i)<meta[^>]+content=["']?[^"']*charset=([^"'\s;>]+)`)
)

// decodeHTML decodes body using the charset declared in the page. Pages
// without a declaration, or with a UTF-8 BOM, are returned as-is.
func decodeHTML(body []byte) string {
	enc := encodingFromMeta(body)
	if enc == nil {
		return string(body)
	}
	decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(body), enc.NewDecoder()))
	if err != nil {
		return string(body)
	}
	return string(decoded)
}

// encodingFromMeta looks for a charset declaration in the raw bytes, before
// any parsing, so that a wrong default decoding cannot corrupt the document.
func encodingFromMeta(body []byte) encoding.Encoding {
	if bytes.HasPrefix(body, []byte{0xEF, 0xBB, 0xBF}) {
		return nil
	}

	for _, re := range []*regexp.Regexp{metaCharsetRe, metaContentRe} {
		m := re.FindSubmatch(body)
		if len(m) < 2 {
			continue
		}
		name := string(m[1])
		if name == "utf-8" || name == "UTF-8" {
			return nil
		}
		if enc, err := htmlindex.Get(name); err == nil {
			return enc
		}
	}
	return nil
}
