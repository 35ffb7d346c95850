// Package extracthtml finds the sales table inside POS exports that are HTML
// documents saved with an .xls extension.
package extracthtml

import (
	"bytes"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// documentReader returns a UTF-8 reader over b, honoring a BOM or <meta
// charset> and falling back to Windows-1252 for legacy exports.
func documentReader(b []byte) io.Reader {
	r, err := charset.NewReader(bytes.NewReader(b), "text/html")
	if err != nil {
		return bytes.NewReader(b)
	}
	return r
}

// nodeText joins the trimmed text fragments under n with single spaces.
func nodeText(n *html.Node) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		}
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(parts, " ")
}

// linkValue renders a cell that holds a hyperlink. Relative hrefs are kept as
// authored since POS exports use app-relative links.
func linkValue(text, href string) string {
	if text == "" {
		return href
	}
	return text + " (" + href + ")"
}
