package headless

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/page-archiver/internal/archive"
)

// ErrDisabled is returned when no browser is available for rendering.
var ErrDisabled = errors.New("headless rendering unavailable")

// Noop stands in for the renderer when Chrome could not be prepared. The
// archiver treats its error like any other render failure and keeps the
// probe response.
type Noop struct {
	reason error
}

// NewNoop returns a Noop that reports reason alongside ErrDisabled.
func NewNoop(reason error) *Noop {
	return &Noop{reason: reason}
}

// Fetch always fails with ErrDisabled.
func (n *Noop) Fetch(_ context.Context, request archive.FetchRequest) (archive.FetchResponse, error) {
	if n.reason != nil {
		return archive.FetchResponse{}, fmt.Errorf("render %s: %w: %v", request.URL, ErrDisabled, n.reason)
	}
	return archive.FetchResponse{}, fmt.Errorf("render %s: %w", request.URL, ErrDisabled)
}
