package notify

import (
	"context"
	"time"
)

// =============================================================================
// Event Types
// =============================================================================

// EventType names a step of a fetch run.
type EventType string

// Event type constants.
const (
	EventRunStarted      EventType = "run_started"
	EventTargetStarted   EventType = "target_started"
	EventJobDownloaded   EventType = "job_downloaded"
	EventJobUnavailable  EventType = "job_unavailable"
	EventJobFailed       EventType = "job_failed"
	EventTargetCompleted EventType = "target_completed"
	EventRunCompleted    EventType = "run_completed"
	EventRunAborted      EventType = "run_aborted"
)

// Severity constants.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
	SeverityInfo    = "info"
)

// Event describes one step of a run.
type Event struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"` // SeverityInfo, SeverityWarning, SeverityError
	Timestamp time.Time `json:"timestamp"`

	// Target is the targets file index, or -1 for run-level events.
	Target     int    `json:"target"`
	ProjectID  string `json:"project_id,omitempty"`
	PipelineID int    `json:"pipeline_id,omitempty"`
	JobName    string `json:"job_name,omitempty"`
	JobID      int    `json:"job_id,omitempty"`

	// Total is the number of jobs a target will download, on target_started.
	Total int `json:"total,omitempty"`

	// Bytes is the artifact size, on job_downloaded.
	Bytes int64 `json:"bytes,omitempty"`

	// Miss marks a job_unavailable event for a name or job that was never
	// going to be downloaded, as opposed to a download that came back 404.
	Miss bool `json:"miss,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`

	// Report is the run report, on run_completed and run_aborted.
	Report any `json:"report,omitempty"`
}

// Terminal reports whether the event ends a run.
func (e Event) Terminal() bool {
	return e.Type == EventRunCompleted || e.Type == EventRunAborted
}

// =============================================================================
// Notifier Interface
// =============================================================================

// Notifier receives run events. Implementations must be safe for concurrent
// use; job events arrive from download workers.
type Notifier interface {
	// Notify handles one event. A failing notifier never fails the run.
	Notify(ctx context.Context, event Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, event Event) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, event Event) error {
	return f(ctx, event)
}
