// Package memory provides the bounded in-process run queue.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/page-archiver/internal/archive"
)

// ErrQueueFull is returned by TryEnqueue when no capacity is left.
var ErrQueueFull = errors.New("queue full")

// ErrQueueClosed is returned once Close has been called.
var ErrQueueClosed = errors.New("queue closed")

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan archive.QueueItem
	closeMu sync.RWMutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch: make(chan archive.QueueItem, capacity),
	}
}

// Enqueue pushes a run into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, item archive.QueueItem) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// TryEnqueue pushes a run without blocking; a full queue yields ErrQueueFull.
func (q *Queue) TryEnqueue(item archive.QueueItem) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- item:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue pops the next run, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (archive.QueueItem, error) {
	select {
	case <-ctx.Done():
		return archive.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return archive.QueueItem{}, ErrQueueClosed
		}
		return item, nil
	}
}

// Len reports how many runs are waiting.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
