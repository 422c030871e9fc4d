// Package remote implements archive.Backend over an object storage client.
// Drivers for Google Cloud Storage and S3-compatible services live in
// sibling packages.
package remote

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/page-archiver/internal/archive"
)

// ObjectClient is the minimal surface a storage driver must provide. Missing
// objects must be reported with an error matching archive.ErrNotFound.
type ObjectClient interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Stat(ctx context.Context, key string) error
	Remove(ctx context.Context, key string) error
	// Keys lists the object keys starting with prefix; an empty prefix
	// lists the whole container.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Config describes the container and public URL base of a remote backend.
type Config struct {
	Container  string
	CDNBaseURL string
}

// Backend stores each name as one object in the configured container.
type Backend struct {
	client ObjectClient
	cfg    Config
	logger *zap.Logger
}

// New wraps client as an archive.Backend.
func New(client ObjectClient, cfg Config, logger *zap.Logger) (*Backend, error) {
	if client == nil {
		return nil, fmt.Errorf("object client is required")
	}
	if strings.TrimSpace(cfg.Container) == "" {
		return nil, fmt.Errorf("container is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backend{client: client, cfg: cfg, logger: logger}, nil
}

// ContentTypeFor derives the object Content-Type from the name's extension.
func ContentTypeFor(name string) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// Store uploads data, replacing any existing object.
func (b *Backend) Store(ctx context.Context, name string, data []byte) error {
	if err := b.client.Put(ctx, name, data, ContentTypeFor(name)); err != nil {
		return archive.NewStorageError("store", name, err)
	}
	return nil
}

// Read downloads the object stored under name.
func (b *Backend) Read(ctx context.Context, name string) ([]byte, error) {
	data, err := b.client.Get(ctx, name)
	if errors.Is(err, archive.ErrNotFound) {
		return nil, fmt.Errorf("read %q: %w", name, archive.ErrNotFound)
	}
	if err != nil {
		return nil, archive.NewStorageError("read", name, err)
	}
	return data, nil
}

// Exists reports whether the object is present. Any failure other than a
// clean miss is logged and reported as absent.
func (b *Backend) Exists(ctx context.Context, name string) bool {
	err := b.client.Stat(ctx, name)
	if err == nil {
		return true
	}
	if !errors.Is(err, archive.ErrNotFound) {
		b.logger.Warn("exists check failed",
			zap.String("container", b.cfg.Container),
			zap.String("name", name),
			zap.Error(err),
		)
	}
	return false
}

// Delete removes the object; a missing object is not an error.
func (b *Backend) Delete(ctx context.Context, name string) error {
	err := b.client.Remove(ctx, name)
	if err == nil || errors.Is(err, archive.ErrNotFound) {
		return nil
	}
	return archive.NewStorageError("delete", name, err)
}

// List enumerates every object key in the container.
func (b *Backend) List(ctx context.Context) ([]string, error) {
	return b.ListPrefix(ctx, "")
}

// ListPrefix enumerates the object keys starting with prefix. The filter is
// applied by the storage service.
func (b *Backend) ListPrefix(ctx context.Context, prefix string) ([]string, error) {
	keys, err := b.client.Keys(ctx, prefix)
	if err != nil {
		return nil, archive.NewStorageError("list", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// URLFor joins the CDN base URL and name.
func (b *Backend) URLFor(name string) string {
	return b.cfg.CDNBaseURL + name
}
