// Package detector decides when a page probe should be re-fetched with the
// headless renderer.
package detector

import (
	"bytes"
	"mime"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/page-archiver/internal/archive"
)

const defaultMinTextLength = 60

// mountSelectors match the empty root elements client-side frameworks render
// into.
var mountSelectors = []string{
	"#__next",
	"#root",
	"#app",
	"[data-reactroot]",
	"[ng-app]",
}

// Heuristic flags HTML that looks like a JavaScript shell.
type Heuristic struct {
	// MinTextLength is the visible-text length below which a page with
	// scripts is considered unrendered.
	MinTextLength int
}

// NewHeuristic creates a new detector.
func NewHeuristic(minTextLength int) *Heuristic {
	if minTextLength <= 0 {
		minTextLength = defaultMinTextLength
	}
	return &Heuristic{MinTextLength: minTextLength}
}

// ShouldPromote decides whether a headless fetch is required.
func (h *Heuristic) ShouldPromote(resp archive.FetchResponse) bool {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false
	}
	if !isHTML(resp.ContentType()) {
		return false
	}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return true
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return false
	}

	for _, sel := range mountSelectors {
		mount := doc.Find(sel).First()
		if mount.Length() > 0 && strings.TrimSpace(mount.Text()) == "" {
			return true
		}
	}

	scripts := doc.Find("script").Length()
	if scripts == 0 {
		return false
	}
	body := doc.Find("body").Clone()
	body.Find("script, style, noscript, template").Remove()
	visible := strings.Join(strings.Fields(body.Text()), " ")
	return len(visible) < h.MinTextLength
}

// isHTML treats a missing Content-Type as HTML, since probes of static
// servers sometimes omit it.
func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}
