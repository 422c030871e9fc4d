package archive

import (
	"context"
	"time"
)

// Backend persists and retrieves named byte blobs. Local and remote
// implementations satisfy it identically; only the transport differs.
type Backend interface {
	// Store writes data under name, replacing any previous content.
	Store(ctx context.Context, name string, data []byte) error
	// Read returns the bytes stored under name. Missing names yield an error
	// matching ErrNotFound.
	Read(ctx context.Context, name string) ([]byte, error)
	// Exists reports whether name is stored. Backend failures are logged and
	// reported as false.
	Exists(ctx context.Context, name string) bool
	// Delete removes name. Deleting a missing name succeeds.
	Delete(ctx context.Context, name string) error
	// List returns the stored names. Concurrent writers may make the
	// snapshot approximate.
	List(ctx context.Context) ([]string, error)
	// URLFor formats the public URL for name without performing I/O.
	URLFor(name string) string
}

// PrefixLister is implemented by backends that can enumerate one key range
// without walking everything they hold.
type PrefixLister interface {
	// ListPrefix returns the stored names that start with prefix.
	ListPrefix(ctx context.Context, prefix string) ([]string, error)
}

// Fetcher performs a GET for a URL and returns the body plus metadata. It is
// used both for the page fetch and for every asset download, and must be
// safe for concurrent use.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// HeadlessDetector decides whether a probe response needs a headless fetch.
type HeadlessDetector interface {
	ShouldPromote(probe FetchResponse) bool
}

// Hasher computes content keys.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// RunStore persists run records for the service mode.
type RunStore interface {
	CreateRun(ctx context.Context, run Run) error
	UpdateRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, runID string) (Run, error)
}

// Queue provides enqueue/dequeue semantics for archive requests.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
