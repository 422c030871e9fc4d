// Package document parses page HTML into a mutable goquery tree and finds the
// asset references it carries.
package document

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/page-archiver/internal/archive"
)

// Document owns the parsed tree for one archive run.
type Document struct {
	url  *url.URL
	raw  []byte
	tree *goquery.Document
}

// Element is an opaque handle to one node of a Document.
type Element struct {
	sel *goquery.Selection
}

// Parse builds a Document for raw HTML fetched from pageURL.
func Parse(pageURL *url.URL, raw []byte) (*Document, error) {
	if pageURL == nil {
		return nil, fmt.Errorf("%w: page url is required", archive.ErrParse)
	}
	tree, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", archive.ErrParse, err)
	}
	tree.Url = pageURL
	return &Document{
		url:  pageURL,
		raw:  append([]byte(nil), raw...),
		tree: tree,
	}, nil
}

// URL returns the page URL the document was fetched from.
func (d *Document) URL() *url.URL {
	return d.url
}

// Raw returns the untouched HTML bytes.
func (d *Document) Raw() []byte {
	return d.raw
}

// FindAll returns every element with the given tag name in document order.
func (d *Document) FindAll(tag string) []Element {
	sel := d.tree.Find(tag)
	out := make([]Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, Element{sel: s})
	})
	return out
}

// HTML serializes the current tree.
func (d *Document) HTML() (string, error) {
	html, err := d.tree.Html()
	if err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return html, nil
}

// Tag returns the element's tag name.
func (e Element) Tag() string {
	return goquery.NodeName(e.sel)
}

// Attr returns the named attribute and whether it is set.
func (e Element) Attr(name string) (string, bool) {
	return e.sel.Attr(name)
}

// SetAttr replaces the named attribute's value, keeping its position.
func (e Element) SetAttr(name, value string) {
	e.sel.SetAttr(name, value)
}

// hasValue reports whether the attribute is set to something other than whitespace.
func (e Element) hasValue(name string) (string, bool) {
	v, ok := e.Attr(name)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}
