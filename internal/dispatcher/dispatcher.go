// Package dispatcher runs the worker pool behind the service API and stops
// taking submissions once shutdown begins.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/JakeFAU/page-archiver/internal/archive"
	"github.com/JakeFAU/page-archiver/internal/worker"
)

// ErrUnavailable is returned when a run cannot be accepted right now, either
// because the dispatcher is draining or because the queue has no room.
var ErrUnavailable = errors.New("dispatcher not accepting runs")

// nonBlocking is implemented by queues that can reject work instead of
// waiting for capacity.
type nonBlocking interface {
	TryEnqueue(item archive.QueueItem) error
}

// Dispatcher owns the worker pool and gates submissions to its queue.
type Dispatcher struct {
	queue    archive.Queue
	workers  []*worker.Worker
	logger   *zap.Logger
	draining atomic.Bool
}

// New creates a Dispatcher.
func New(queue archive.Queue, workers []*worker.Worker, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:   queue,
		workers: workers,
		logger:  logger,
	}
}

// Workers reports the size of the pool.
func (d *Dispatcher) Workers() int {
	return len(d.workers)
}

// Run starts all workers and blocks until ctx ends and every worker has
// returned. The dispatcher drains from the moment ctx ends.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Go(func() { w.Run(ctx) })
	}
	d.logger.Info("dispatcher started", zap.Int("workers", len(d.workers)))
	<-ctx.Done()
	d.Drain()
	wg.Wait()
	d.logger.Info("dispatcher stopped")
}

// Drain stops accepting new runs. Runs already queued are left to the workers.
func (d *Dispatcher) Drain() {
	if d.draining.CompareAndSwap(false, true) {
		d.logger.Info("dispatcher draining")
	}
}

// Accepting reports whether Enqueue may succeed.
func (d *Dispatcher) Accepting() bool {
	return !d.draining.Load()
}

// Enqueue hands a run to the queue. Queues that support it are offered the
// run without blocking so a full queue fails fast with ErrUnavailable.
func (d *Dispatcher) Enqueue(ctx context.Context, item archive.QueueItem) error {
	if d.draining.Load() {
		return fmt.Errorf("enqueue run %s: %w", item.RunID, ErrUnavailable)
	}
	if q, ok := d.queue.(nonBlocking); ok {
		if err := q.TryEnqueue(item); err != nil {
			return fmt.Errorf("enqueue run %s: %w: %w", item.RunID, ErrUnavailable, err)
		}
		return nil
	}
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
