// Package htmlutil pulls readable text out of HTML pages so they can be
// tagged line by line.
package htmlutil

import (
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/happyhackingspace/nerd/internal/textutil"
)

// LoadHTML parses HTML into a goquery Document.
func LoadHTML(r io.Reader) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(r)
}

// LoadHTMLString parses an HTML string into a goquery Document.
func LoadHTMLString(s string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(s))
}

// IsHTML reports whether a content type or file name denotes HTML.
func IsHTML(contentTypeOrName string) bool {
	s := strings.ToLower(contentTypeOrName)
	return strings.Contains(s, "text/html") || strings.Contains(s, "application/xhtml") ||
		strings.HasSuffix(s, ".html") || strings.HasSuffix(s, ".htm")
}

// skipped elements never contribute text.
var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
	atom.Head:     true,
	atom.Title:    true,
}

// blocks end a line of text.
var blocks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Td: true, atom.Th: true, atom.Tr: true, atom.Dt: true, atom.Dd: true,
	atom.Blockquote: true, atom.Pre: true, atom.Article: true, atom.Section: true,
	atom.Header: true, atom.Footer: true, atom.Caption: true, atom.Figcaption: true,
	atom.Option: true, atom.Label: true, atom.Button: true,
}

// Lines returns the visible text of sel, one entry per block element, with
// whitespace normalized and blank lines dropped. The page title comes first
// when sel is a whole document.
func Lines(sel *goquery.Selection) []string {
	var out []string
	var buf strings.Builder
	flush := func() {
		if line := strings.TrimSpace(textutil.NormalizeWhitespaces(buf.String())); line != "" {
			out = append(out, line)
		}
		buf.Reset()
	}

	var visit func(n *html.Node)
	visit = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			buf.WriteString(n.Data)
			buf.WriteByte(' ')
			return
		case html.CommentNode:
			return
		case html.ElementNode:
			if skipped[n.DataAtom] {
				return
			}
		}
		block := n.Type == html.ElementNode && blocks[n.DataAtom]
		if block {
			flush()
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
		if block {
			flush()
		}
	}

	if title := sel.Find("title"); title.Length() > 0 {
		if s := strings.TrimSpace(textutil.NormalizeWhitespaces(title.First().Text())); s != "" {
			out = append(out, s)
		}
	}
	for _, n := range sel.Nodes {
		visit(n)
	}
	flush()
	return out
}

// Text is Lines joined by newlines.
func Text(r io.Reader) (string, error) {
	doc, err := LoadHTML(r)
	if err != nil {
		return "", err
	}
	return strings.Join(Lines(doc.Selection), "\n"), nil
}
