package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/page-archiver/internal/archive"
	queuememory "github.com/JakeFAU/page-archiver/internal/queue/memory"
	"github.com/JakeFAU/page-archiver/internal/storage/memory"
)

func TestWorker_ProcessRun_SuccessFlow(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runs := memory.NewRunStore()
	queue := queuememory.NewQueue(1)
	arch := &fakeArchiver{result: archive.Result{
		URL:        "https://example.com",
		State:      archive.StatePersisted,
		IndexURL:   "memory://run-1/index.html",
		Discovered: 3,
		Manifest:   archive.Manifest{{Name: "a.js", URL: "https://example.com/a.js"}, {Name: "b.css", URL: "https://example.com/b.css"}},
		Skipped:    []archive.SkippedAsset{{Key: "c", URL: "https://example.com/c.png", Reason: "asset download failed"}},
	}}
	submit(t, runs, queue, "run-1", "https://example.com")

	w := New(queue, runs, arch, &fakeClock{now: time.Unix(100, 0)}, zap.NewNop())
	go w.Run(ctx)

	run := waitForStatus(t, runs, "run-1", archive.RunStatusSucceeded)
	assert.Equal(t, archive.StatePersisted, run.State)
	assert.Equal(t, "memory://run-1/index.html", run.IndexURL)
	assert.Equal(t, archive.RunCounters{Discovered: 3, Stored: 2, Skipped: 1}, run.Counters)
	assert.Len(t, run.Manifest, 2)
	assert.Empty(t, run.ErrorText)
	require.NotNil(t, run.Started)
	require.NotNil(t, run.Finished)

	reqs := arch.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, archive.Request{URL: "https://example.com", Prefix: "run-1"}, reqs[0])
}

func TestWorker_ProcessRun_FailureRecordsPhase(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runs := memory.NewRunStore()
	queue := queuememory.NewQueue(1)
	arch := &fakeArchiver{
		result: archive.Result{State: archive.StatePending},
		err:    &archive.PhaseError{Phase: archive.StateFetched, Err: archive.ErrFetch},
	}
	submit(t, runs, queue, "run-fail", "https://example.com")

	go New(queue, runs, arch, &fakeClock{now: time.Unix(200, 0)}, zap.NewNop()).Run(ctx)

	run := waitForStatus(t, runs, "run-fail", archive.RunStatusFailed)
	assert.Equal(t, archive.StatePending, run.State)
	assert.Contains(t, run.ErrorText, "page fetch failed")
	assert.Empty(t, run.IndexURL)
}

func TestWorker_ProcessRun_CancelMarksRunCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	runs := memory.NewRunStore()
	queue := queuememory.NewQueue(1)
	arch := &fakeArchiver{block: make(chan struct{})}
	submit(t, runs, queue, "run-cancel", "https://example.com")

	done := make(chan struct{})
	go func() {
		New(queue, runs, arch, &fakeClock{now: time.Unix(300, 0)}, zap.NewNop()).Run(ctx)
		close(done)
	}()

	select {
	case <-arch.block:
	case <-time.After(time.Second):
		t.Fatal("archiver was not invoked")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}

	run, err := runs.GetRun(context.Background(), "run-cancel")
	require.NoError(t, err)
	assert.Equal(t, archive.RunStatusCanceled, run.Status)
	assert.Contains(t, run.ErrorText, "context canceled")
}

func TestWorker_ProcessRun_UnknownRunSkipsArchive(t *testing.T) {
	t.Parallel()

	runs := memory.NewRunStore()
	arch := &fakeArchiver{}
	w := New(nil, runs, arch, &fakeClock{}, zap.NewNop())

	w.processRun(context.Background(), archive.QueueItem{RunID: "missing"})
	assert.Empty(t, arch.requests())
}

func TestWorker_ProcessRun_KeepsExplicitPrefix(t *testing.T) {
	t.Parallel()

	runs := memory.NewRunStore()
	require.NoError(t, runs.CreateRun(context.Background(), archive.Run{ID: "r", Status: archive.RunStatusQueued}))
	arch := &fakeArchiver{result: archive.Result{State: archive.StatePersisted}}
	w := New(nil, runs, arch, &fakeClock{}, zap.NewNop())

	w.processRun(context.Background(), archive.QueueItem{
		RunID:   "r",
		Request: archive.Request{URL: "https://example.com", Prefix: "custom"},
	})
	require.Len(t, arch.requests(), 1)
	assert.Equal(t, "custom", arch.requests()[0].Prefix)
}

func TestWorker_ProcessRun_TerminalRunIsNotRerun(t *testing.T) {
	t.Parallel()

	runs := memory.NewRunStore()
	require.NoError(t, runs.CreateRun(context.Background(), archive.Run{ID: "done", Status: archive.RunStatusSucceeded}))
	arch := &fakeArchiver{}
	New(nil, runs, arch, &fakeClock{}, zap.NewNop()).processRun(
		context.Background(), archive.QueueItem{RunID: "done"})
	assert.Empty(t, arch.requests())
}

func TestFinalizeStatus(t *testing.T) {
	t.Parallel()

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		want archive.RunStatus
	}{
		{name: "success", ctx: context.Background(), want: archive.RunStatusSucceeded},
		{name: "failure", ctx: context.Background(), err: archive.ErrBackendOutage, want: archive.RunStatusFailed},
		{name: "ctx canceled", ctx: canceled, err: errors.New("resolve canceled"), want: archive.RunStatusCanceled},
		{name: "wrapped cancel", ctx: context.Background(), err: context.Canceled, want: archive.RunStatusCanceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			run := finalize(tt.ctx, archive.Run{ID: "x"}, archive.Result{}, tt.err)
			assert.Equal(t, tt.want, run.Status)
			if tt.err != nil {
				assert.Equal(t, tt.err.Error(), run.ErrorText)
			}
		})
	}
}

func submit(t *testing.T, runs archive.RunStore, queue archive.Queue, id, url string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, runs.CreateRun(ctx, archive.Run{ID: id, URL: url, Status: archive.RunStatusQueued}))
	require.NoError(t, queue.Enqueue(ctx, archive.QueueItem{RunID: id, Request: archive.Request{URL: url}}))
}

func waitForStatus(t *testing.T, runs archive.RunStore, id string, want archive.RunStatus) archive.Run {
	t.Helper()
	var run archive.Run
	require.Eventually(t, func() bool {
		got, err := runs.GetRun(context.Background(), id)
		if err != nil {
			return false
		}
		run = got
		return got.Status == want
	}, time.Second, 10*time.Millisecond)
	return run
}

type fakeArchiver struct {
	mu     sync.Mutex
	reqs   []archive.Request
	result archive.Result
	err    error
	// block, when set, is closed on the first call, which then waits for ctx.
	block chan struct{}
}

func (f *fakeArchiver) Archive(ctx context.Context, req archive.Request) (archive.Result, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	block := f.block
	f.mu.Unlock()
	if block != nil {
		close(block)
		<-ctx.Done()
		return archive.Result{State: archive.StateDiscovered}, ctx.Err()
	}
	return f.result, f.err
}

func (f *fakeArchiver) requests() []archive.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]archive.Request(nil), f.reqs...)
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}
