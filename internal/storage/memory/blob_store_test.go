package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/JakeFAU/page-archiver/internal/archive"
)

func TestBlobStoreStoreCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	if err := store.Store(context.Background(), "path/index.html", payload); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	payload[0] = 'C'
	stored := string(store.data["path/index.html"])
	if stored != "content" {
		t.Fatalf("expected stored copy to be immutable, got %q", stored)
	}
	if got := store.URLFor("path/index.html"); got != "memory://path/index.html" {
		t.Fatalf("unexpected url %s", got)
	}
}

func TestBlobStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	ctx := context.Background()

	if _, err := store.Read(ctx, "missing"); !errors.Is(err, archive.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	for _, name := range []string{"b.css", "a.js"} {
		if err := store.Store(ctx, name, []byte(name)); err != nil {
			t.Fatalf("Store(%s) error = %v", name, err)
		}
	}
	names, err := store.List(ctx)
	if err != nil || len(names) != 2 || names[0] != "a.js" {
		t.Fatalf("List() unexpected result: names=%v err=%v", names, err)
	}
	if !store.Exists(ctx, "a.js") {
		t.Fatal("expected a.js to exist")
	}
	if err := store.Delete(ctx, "a.js"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete(ctx, "a.js"); err != nil {
		t.Fatalf("second Delete() error = %v", err)
	}
	if store.Exists(ctx, "a.js") {
		t.Fatal("expected a.js to be gone")
	}
}

func TestBlobStoreStoreHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := store.Store(ctx, "x", []byte("x"))
	var storageErr *archive.StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("expected StorageError, got %v", err)
	}
}

func TestBlobStoreListPrefix(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	ctx := context.Background()
	for _, name := range []string{"r1/a.js", "r1/index.html", "r2/index.html"} {
		if err := store.Store(ctx, name, []byte(name)); err != nil {
			t.Fatalf("Store(%s) error = %v", name, err)
		}
	}
	names, err := store.ListPrefix(ctx, "r1/")
	if err != nil {
		t.Fatalf("ListPrefix() error = %v", err)
	}
	if len(names) != 2 || names[0] != "r1/a.js" || names[1] != "r1/index.html" {
		t.Fatalf("ListPrefix() = %v", names)
	}
	names, err = store.ListPrefix(ctx, "r3/")
	if err != nil || len(names) != 0 {
		t.Fatalf("ListPrefix(r3/) = %v, %v", names, err)
	}
}
