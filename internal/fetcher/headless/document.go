package headless

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"

	"github.com/JakeFAU/page-archiver/internal/archive"
)

// documentTracker records the main-frame document response of a navigation.
// Iframe documents and subresources are ignored.
type documentTracker struct {
	mu        sync.Mutex
	frame     cdp.FrameID
	status    int
	headers   http.Header
	url       string
	redirects int
}

func (d *documentTracker) observe(ev any) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		d.request(e)
	case *network.EventResponseReceived:
		d.responseReceived(e)
	}
}

func (d *documentTracker) request(e *network.EventRequestWillBeSent) {
	if e.Type != network.ResourceTypeDocument {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frame == "" {
		d.frame = e.FrameID
	}
	if e.FrameID == d.frame && e.RedirectResponse != nil {
		d.redirects++
	}
}

func (d *documentTracker) responseReceived(e *network.EventResponseReceived) {
	if e.Type != network.ResourceTypeDocument || e.Response == nil {
		return
	}
	headers := headersFromNetwork(e.Response.Headers)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frame == "" {
		d.frame = e.FrameID
	}
	if e.FrameID != d.frame {
		return
	}
	d.status = int(e.Response.Status)
	d.headers = headers
	d.url = e.Response.URL
}

func (d *documentTracker) redirectCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.redirects
}

// response builds the fetch response for the rendered page. The URL falls
// back to the tab location and then the requested URL; a missing status is
// reported as 200 since the page did render.
func (d *documentTracker) response(requestURL, location string) archive.FetchResponse {
	d.mu.Lock()
	status, url := d.status, d.url
	headers := d.headers.Clone()
	d.mu.Unlock()

	if url == "" {
		url = location
	}
	if url == "" {
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	if headers == nil {
		headers = http.Header{}
	}
	// The serialized DOM is always UTF-8 HTML, whatever the server sent.
	headers.Set("Content-Type", "text/html; charset=utf-8")
	headers.Del("Content-Length")
	headers.Del("Content-Encoding")

	return archive.FetchResponse{
		URL:        url,
		StatusCode: status,
		Headers:    headers,
	}
}

func headersFromNetwork(src network.Headers) http.Header {
	headers := http.Header{}
	for key, value := range src {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []any:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	return headers
}
