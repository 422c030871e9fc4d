// Package memory keeps archive artifacts and run records in-memory for
// development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/JakeFAU/page-archiver/internal/archive"
)

// BlobStore is an archive.Backend holding copies of every stored blob.
type BlobStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	prefix string
}

// NewBlobStore creates a new in-memory backend. URLFor returns
// "memory://<name>".
func NewBlobStore() *BlobStore {
	return &BlobStore{
		data:   make(map[string][]byte),
		prefix: "memory://",
	}
}

// Store persists a copy of data under name.
func (s *BlobStore) Store(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return archive.NewStorageError("store", name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[name] = append([]byte(nil), data...)
	return nil
}

// Read returns a copy of the blob stored under name.
func (s *BlobStore) Read(_ context.Context, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[name]
	if !ok {
		return nil, fmt.Errorf("read %q: %w", name, archive.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// Exists reports whether name is stored.
func (s *BlobStore) Exists(_ context.Context, name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[name]
	return ok
}

// Delete removes name if present.
func (s *BlobStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, name)
	return nil
}

// List returns the sorted stored names.
func (s *BlobStore) List(ctx context.Context) ([]string, error) {
	return s.ListPrefix(ctx, "")
}

// ListPrefix returns the sorted stored names starting with prefix.
func (s *BlobStore) ListPrefix(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.data))
	for name := range s.data {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// URLFor returns a pseudo URI for name.
func (s *BlobStore) URLFor(name string) string {
	return s.prefix + name
}
