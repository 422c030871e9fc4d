package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/JakeFAU/page-archiver/internal/archive"
)

func TestRunStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewRunStore()
	ctx := context.Background()
	run := archive.Run{ID: "run-1", URL: "https://example.com", Status: archive.RunStatusQueued}

	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	if err := store.CreateRun(ctx, run); err == nil {
		t.Fatal("expected duplicate run error")
	}

	run.Status = archive.RunStatusRunning
	if err := store.UpdateRun(ctx, run); err != nil {
		t.Fatalf("UpdateRun running error = %v", err)
	}

	run.Status = archive.RunStatusSucceeded
	run.State = archive.StatePersisted
	run.Counters = archive.RunCounters{Discovered: 2, Stored: 1, Skipped: 1}
	run.Manifest = archive.Manifest{{Name: "k.js", URL: "https://example.com/a.js"}}
	if err := store.UpdateRun(ctx, run); err != nil {
		t.Fatalf("UpdateRun succeeded error = %v", err)
	}
	run.Manifest[0].Name = "modified"

	final, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if final.Started == nil || final.Finished == nil {
		t.Fatalf("expected timestamps set, got %+v", final)
	}
	if final.Counters.Stored != 1 || final.State != archive.StatePersisted {
		t.Fatalf("expected counters/state to persist, got %+v", final)
	}
	if final.Manifest[0].Name != "k.js" {
		t.Fatal("expected UpdateRun to store a copy of the manifest")
	}
}

func TestRunStoreUnknownRun(t *testing.T) {
	t.Parallel()

	store := NewRunStore()
	if _, err := store.GetRun(context.Background(), "nope"); !errors.Is(err, archive.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	err := store.UpdateRun(context.Background(), archive.Run{ID: "nope"})
	if !errors.Is(err, archive.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
