package archive

import (
	"errors"
	"fmt"
)

// Sentinel errors for the archive pipeline. Callers match them with errors.Is.
var (
	// ErrInvalidURL rejects page URLs before any fetch is attempted.
	ErrInvalidURL = errors.New("invalid page url")
	// ErrFetch marks a failed page-level fetch.
	ErrFetch = errors.New("page fetch failed")
	// ErrParse marks HTML that could not be parsed.
	ErrParse = errors.New("html parse failed")
	// ErrNetwork marks a failed asset download.
	ErrNetwork = errors.New("asset download failed")
	// ErrExtensionUnresolvable marks an asset whose extension could not be inferred.
	ErrExtensionUnresolvable = errors.New("file extension unresolvable")
	// ErrNotFound is returned by Backend.Read for missing names and by run stores.
	ErrNotFound = errors.New("not found")
	// ErrBackendOutage aborts a run after repeated asset store failures.
	ErrBackendOutage = errors.New("storage backend outage")
)

// StorageError normalizes any backend failure other than a missing name.
type StorageError struct {
	Op   string
	Name string
	Err  error
}

// NewStorageError wraps err for the given operation and object name.
func NewStorageError(op, name string, err error) *StorageError {
	return &StorageError{Op: op, Name: name, Err: err}
}

func (e *StorageError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Name, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// PhaseError reports the state a run was trying to reach when it failed.
type PhaseError struct {
	Phase State
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("archive %s phase: %v", phaseName(e.Phase), e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// FailedPhase extracts the phase from a PhaseError anywhere in err's chain.
func FailedPhase(err error) (State, bool) {
	var pe *PhaseError
	if errors.As(err, &pe) {
		return pe.Phase, true
	}
	return StatePending, false
}

func phaseName(s State) string {
	if s == StatePending {
		return "validate"
	}
	return string(s)
}
