// Package local implements a local filesystem storage backend.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/page-archiver/internal/archive"
)

// Config captures the parameters for the local filesystem backend.
type Config struct {
	// RootPath is the directory names are stored under.
	RootPath string `mapstructure:"root_path" yaml:"root_path"`
	// PublicPrefix is prepended to names by URLFor.
	PublicPrefix string `mapstructure:"public_prefix" yaml:"public_prefix"`
}

// BlobStore maps names 1:1 to files under a root directory.
type BlobStore struct {
	root   string
	prefix string
	logger *zap.Logger
}

// New creates a local filesystem backend, creating the root if needed.
func New(cfg Config, logger *zap.Logger) (*BlobStore, error) {
	if strings.TrimSpace(cfg.RootPath) == "" {
		return nil, fmt.Errorf("root path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	info, err := os.Stat(cfg.RootPath)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.RootPath, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create root directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat root directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("root path is not a directory")
	}

	// Check for write permissions.
	testFile := filepath.Join(cfg.RootPath, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("root directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &BlobStore{
		root:   filepath.Clean(cfg.RootPath),
		prefix: cfg.PublicPrefix,
		logger: logger,
	}, nil
}

// Store writes data to a temporary file and renames it over name, so readers
// never observe a partial write.
func (s *BlobStore) Store(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return archive.NewStorageError("store", name, err)
	}
	fullPath, err := s.resolve(name)
	if err != nil {
		return archive.NewStorageError("store", name, err)
	}
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return archive.NewStorageError("store", name, fmt.Errorf("create parent directories: %w", err))
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return archive.NewStorageError("store", name, fmt.Errorf("create temp file: %w", err))
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		closeErr := tmp.Close()
		removeTemp(tmpName)
		return archive.NewStorageError("store", name, fmt.Errorf("write file: %w (close: %v)", err, closeErr))
	}
	if err := tmp.Close(); err != nil {
		removeTemp(tmpName)
		return archive.NewStorageError("store", name, fmt.Errorf("close file: %w", err))
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		removeTemp(tmpName)
		return archive.NewStorageError("store", name, fmt.Errorf("rename file: %w", err))
	}
	return nil
}

// Read returns the file contents for name.
func (s *BlobStore) Read(_ context.Context, name string) ([]byte, error) {
	fullPath, err := s.resolve(name)
	if err != nil {
		return nil, archive.NewStorageError("read", name, err)
	}
	// #nosec G304 -- path is confined to the root by resolve.
	data, err := os.ReadFile(fullPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read %q: %w", name, archive.ErrNotFound)
	}
	if err != nil {
		return nil, archive.NewStorageError("read", name, err)
	}
	return data, nil
}

// Exists reports whether name is a regular file under the root.
func (s *BlobStore) Exists(_ context.Context, name string) bool {
	fullPath, err := s.resolve(name)
	if err != nil {
		s.logger.Warn("exists check rejected name", zap.String("name", name), zap.Error(err))
		return false
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("exists check failed", zap.String("name", name), zap.Error(err))
		}
		return false
	}
	return info.Mode().IsRegular()
}

// Delete removes name; a missing file is not an error.
func (s *BlobStore) Delete(_ context.Context, name string) error {
	fullPath, err := s.resolve(name)
	if err != nil {
		return archive.NewStorageError("delete", name, err)
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return archive.NewStorageError("delete", name, err)
	}
	return nil
}

// List walks the root and returns every stored name, slash separated.
func (s *BlobStore) List(ctx context.Context) ([]string, error) {
	return s.ListPrefix(ctx, "")
}

// ListPrefix returns the stored names starting with prefix. Only the
// directory named by the prefix's leading path segments is walked.
func (s *BlobStore) ListPrefix(ctx context.Context, prefix string) ([]string, error) {
	start := s.root
	if dir, _ := path.Split(prefix); dir != "" {
		resolved, err := s.resolve(dir)
		if err != nil {
			return nil, archive.NewStorageError("list", prefix, err)
		}
		start = resolved
	}
	var names []string
	err := filepath.WalkDir(start, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			// Entries removed mid-walk are expected with concurrent writers.
			if errors.Is(walkErr, fs.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		if name := filepath.ToSlash(rel); strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, archive.NewStorageError("list", prefix, err)
	}
	sort.Strings(names)
	return names, nil
}

// URLFor prefixes name with the configured public base path.
func (s *BlobStore) URLFor(name string) string {
	return s.prefix + name
}

// resolve joins name onto the root and rejects paths escaping it.
func (s *BlobStore) resolve(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("name is required")
	}
	fullPath := filepath.Clean(filepath.Join(s.root, filepath.FromSlash(name)))
	if !strings.HasPrefix(fullPath, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return fullPath, nil
}

func removeTemp(name string) {
	_ = os.Remove(name)
}
