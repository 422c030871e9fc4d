package asset

import (
	"mime"
	"net/url"
	"path"
	"strings"
)

// maxURLExtLen guards against query-string artifacts being read as extensions.
const maxURLExtLen = 10

// Source names the precedence step that produced an extension.
type Source string

// Extension sources, in precedence order.
const (
	SourceContentType Source = "content_type"
	SourceURL         Source = "url"
	SourceDefault     Source = "default"
	SourceNone        Source = "none"
)

// canonical pins one extension per common media type; the standard table
// lists several for most of these and its order is not a preference.
var canonical = map[string]string{
	"text/javascript":          ".js",
	"application/javascript":   ".js",
	"application/x-javascript": ".js",
	"application/ecmascript":   ".js",
	"text/css":                 ".css",
	"text/html":                ".html",
	"application/xhtml+xml":    ".xhtml",
	"text/plain":               ".txt",
	"application/json":         ".json",
	"application/xml":          ".xml",
	"text/xml":                 ".xml",
	"image/jpeg":               ".jpg",
	"image/pjpeg":              ".jpg",
	"image/png":                ".png",
	"image/gif":                ".gif",
	"image/webp":               ".webp",
	"image/avif":               ".avif",
	"image/svg+xml":            ".svg",
	"image/x-icon":             ".ico",
	"image/vnd.microsoft.icon": ".ico",
	"image/bmp":                ".bmp",
	"font/woff":                ".woff",
	"font/woff2":               ".woff2",
	"font/ttf":                 ".ttf",
	"font/otf":                 ".otf",
	"application/font-woff":    ".woff",
	"application/pdf":          ".pdf",
}

// Resolver infers file extensions for downloaded assets.
type Resolver struct {
	types map[string]string
}

// NewResolver returns a Resolver; overrides extend or replace the canonical
// media type table.
func NewResolver(overrides map[string]string) *Resolver {
	types := make(map[string]string, len(canonical)+len(overrides))
	for k, v := range canonical {
		types[k] = v
	}
	for k, v := range overrides {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || v == "" {
			continue
		}
		if !strings.HasPrefix(v, ".") {
			v = "." + v
		}
		types[k] = v
	}
	return &Resolver{types: types}
}

// Resolve applies the precedence chain: Content-Type header, URL path suffix,
// default extension. It returns SourceNone with an empty extension when all
// three fail.
func (r *Resolver) Resolve(contentType, rawURL, defaultExt string) (string, Source) {
	if ext := r.fromContentType(contentType); ext != "" {
		return ext, SourceContentType
	}
	if ext := fromURL(rawURL); ext != "" {
		return ext, SourceURL
	}
	if defaultExt != "" {
		return defaultExt, SourceDefault
	}
	return "", SourceNone
}

func (r *Resolver) fromContentType(contentType string) string {
	mediaType, _, _ := strings.Cut(contentType, ";")
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	if mediaType == "" {
		return ""
	}
	if ext, ok := r.types[mediaType]; ok {
		return ext
	}
	exts, err := mime.ExtensionsByType(mediaType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}

func fromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	idx := strings.LastIndex(base, ".")
	if idx < 0 {
		return ""
	}
	ext := base[idx+1:]
	if ext == "" || len(ext) > maxURLExtLen {
		return ""
	}
	return "." + ext
}
