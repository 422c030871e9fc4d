// Package asset models one discovered page resource: its content key, its
// absolute source URL, and the name it is stored under once downloaded.
package asset

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/JakeFAU/page-archiver/internal/archive"
	"github.com/JakeFAU/page-archiver/internal/document"
)

// ErrUnsupportedScheme marks references that cannot be downloaded with a GET.
var ErrUnsupportedScheme = errors.New("unsupported asset url scheme")

// Asset is one downloadable resource referenced by a Document.
type Asset struct {
	// Key is the hash of the literal reference text.
	Key string
	// URL is the absolute source location, derived once at discovery.
	URL        string
	DefaultExt string

	Body []byte
	Ext  string
	// Name is empty until the resolution phase finalizes the asset.
	Name string

	ref     document.Reference
	literal string
}

// New builds an Asset for ref found on the page at pageURL.
func New(ref document.Reference, pageURL *url.URL, hasher archive.Hasher) (*Asset, error) {
	literal := ref.Value()
	key, err := hasher.Hash([]byte(literal))
	if err != nil {
		return nil, fmt.Errorf("hash reference: %w", err)
	}
	abs, err := Normalize(literal, pageURL)
	if err != nil {
		return nil, err
	}
	return &Asset{
		Key:        key,
		URL:        abs,
		DefaultExt: ref.DefaultExt,
		ref:        ref,
		literal:    literal,
	}, nil
}

// Normalize turns a literal reference into an absolute http(s) URL relative
// to pageURL.
func Normalize(literal string, pageURL *url.URL) (string, error) {
	v := strings.TrimSpace(literal)
	var abs string
	switch {
	case strings.HasPrefix(v, "//"):
		abs = pageURL.Scheme + ":" + v
	case hasHTTPScheme(v):
		abs = v
	default:
		rel, err := url.Parse(v)
		if err != nil {
			return "", fmt.Errorf("parse reference %q: %w", literal, err)
		}
		abs = pageURL.ResolveReference(rel).String()
	}
	u, err := url.Parse(abs)
	if err != nil {
		return "", fmt.Errorf("parse asset url %q: %w", abs, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, abs)
	}
	return abs, nil
}

// hasHTTPScheme reports whether v starts with http:// or https://, ignoring
// case. A bare "http" prefix such as "httpdocs/x.png" is a relative path.
func hasHTTPScheme(v string) bool {
	lower := strings.ToLower(v)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// Literal returns the unmodified attribute text the key was computed from.
func (a *Asset) Literal() string {
	return a.literal
}

// Reference returns the document location to rewrite once the asset is stored.
func (a *Asset) Reference() document.Reference {
	return a.ref
}

// Finalize records the downloaded body and computes Name from Key and ext.
func (a *Asset) Finalize(body []byte, ext string) {
	a.Body = body
	a.Ext = ext
	a.Name = a.Key + ext
}
