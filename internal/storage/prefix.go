package storage

import (
	"context"
	"strings"

	"github.com/JakeFAU/page-archiver/internal/archive"
)

// Prefixed scopes every name of an underlying backend under "<prefix>/".
type Prefixed struct {
	inner  archive.Backend
	prefix string
}

// WithPrefix wraps b so names are stored under prefix. An empty prefix
// returns b unchanged.
func WithPrefix(b archive.Backend, prefix string) archive.Backend {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return b
	}
	return &Prefixed{inner: b, prefix: prefix + "/"}
}

// Store writes name under the prefix.
func (p *Prefixed) Store(ctx context.Context, name string, data []byte) error {
	return p.inner.Store(ctx, p.prefix+name, data)
}

// Read reads name under the prefix.
func (p *Prefixed) Read(ctx context.Context, name string) ([]byte, error) {
	return p.inner.Read(ctx, p.prefix+name)
}

// Exists checks name under the prefix.
func (p *Prefixed) Exists(ctx context.Context, name string) bool {
	return p.inner.Exists(ctx, p.prefix+name)
}

// Delete removes name under the prefix.
func (p *Prefixed) Delete(ctx context.Context, name string) error {
	return p.inner.Delete(ctx, p.prefix+name)
}

// List returns the names under the prefix with the prefix stripped.
func (p *Prefixed) List(ctx context.Context) ([]string, error) {
	return p.ListPrefix(ctx, "")
}

// ListPrefix returns the names under the prefix that start with sub, with
// the wrapper's prefix stripped. The range is pushed down to the inner
// backend when it supports prefix listing.
func (p *Prefixed) ListPrefix(ctx context.Context, sub string) ([]string, error) {
	full := p.prefix + sub
	var (
		all []string
		err error
	)
	if lister, ok := p.inner.(archive.PrefixLister); ok {
		all, err = lister.ListPrefix(ctx, full)
	} else {
		all, err = p.inner.List(ctx)
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, name := range all {
		if !strings.HasPrefix(name, full) {
			continue
		}
		names = append(names, strings.TrimPrefix(name, p.prefix))
	}
	return names, nil
}

// URLFor formats the public URL of name under the prefix.
func (p *Prefixed) URLFor(name string) string {
	return p.inner.URLFor(p.prefix + name)
}
