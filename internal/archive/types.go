package archive

import (
	"net/http"
	"time"
)

// Fixed artifact names written for every archive run.
const (
	RawName      = "raw.html"
	IndexName    = "index.html"
	ManifestName = "hashmap.txt"
)

// State is a phase of the archive state machine.
type State string

// States in the order a run passes through them.
const (
	StatePending    State = ""
	StateFetched    State = "fetched"
	StateParsed     State = "parsed"
	StateDiscovered State = "discovered"
	StateResolved   State = "resolved"
	StatePersisted  State = "persisted"
)

// RunStatus represents the lifecycle of a queued archive run.
type RunStatus string

// Run status values persisted in the run store.
const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCanceled  RunStatus = "canceled"
)

// IsTerminal reports whether no further transitions follow status.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed, RunStatusCanceled:
		return true
	default:
		return false
	}
}

// FetchRequest captures everything needed to GET a URL.
type FetchRequest struct {
	URL         string
	UseHeadless bool
	Headers     http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// ContentType returns the raw Content-Type header value.
func (r FetchResponse) ContentType() string {
	if r.Headers == nil {
		return ""
	}
	return r.Headers.Get("Content-Type")
}

// Request asks for one page to be archived. Prefix scopes every artifact name
// of the run; it is empty for a bare archive.
type Request struct {
	URL    string
	Prefix string
}

// SkippedAsset records an asset that was left out of the archive.
type SkippedAsset struct {
	Key    string `json:"key"`
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// Result summarizes a run that reached StatePersisted.
type Result struct {
	URL        string         `json:"url"`
	State      State          `json:"state"`
	IndexURL   string         `json:"index_url"`
	Manifest   Manifest       `json:"manifest"`
	Skipped    []SkippedAsset `json:"skipped,omitempty"`
	Discovered int            `json:"discovered"`
}

// RunCounters tracks per-run asset totals.
type RunCounters struct {
	Discovered int `json:"discovered"`
	Stored     int `json:"stored"`
	Skipped    int `json:"skipped"`
}

// Run is the record kept for each archive request in service mode.
type Run struct {
	ID        string      `json:"id"`
	URL       string      `json:"url"`
	Prefix    string      `json:"prefix"`
	Status    RunStatus   `json:"status"`
	State     State       `json:"state"`
	IndexURL  string      `json:"index_url,omitempty"`
	ErrorText string      `json:"error_text,omitempty"`
	Counters  RunCounters `json:"counters"`
	Manifest  Manifest    `json:"manifest,omitempty"`
	Submitted time.Time   `json:"submitted_at"`
	Started   *time.Time  `json:"started_at,omitempty"`
	Finished  *time.Time  `json:"finished_at,omitempty"`
}

// QueueItem wraps a run ready to execute.
type QueueItem struct {
	RunID     string
	Request   Request
	Attempt   int
	Submitted int64
}
