package fetch

import (
	"time"

	"github.com/randalmurphal/artifetch/config"
	"github.com/randalmurphal/artifetch/store"
)

// Status is the result class of one outcome.
type Status string

// Outcome statuses.
const (
	// StatusDownloaded means the artifact was written to Path.
	StatusDownloaded Status = "downloaded"

	// StatusUnavailable means nothing could be downloaded: the name matched
	// no job, the job had no archive, or the server answered 404.
	StatusUnavailable Status = "unavailable"

	// StatusFailed means the download or the write failed.
	StatusFailed Status = "failed"
)

// Outcome is the result for one resolved job or one soft miss.
type Outcome struct {
	Target  int    `json:"target"`
	JobName string `json:"job_name"`

	// JobID is 0 for a name that matched no job.
	JobID int `json:"job_id,omitempty"`

	// Path is set only when Status is StatusDownloaded.
	Path   string `json:"path,omitempty"`
	Status Status `json:"status"`

	// Err is set iff Status is not StatusDownloaded.
	Err    error  `json:"-"`
	Reason string `json:"reason,omitempty"`

	Size   int64  `json:"size,omitempty"`
	Digest string `json:"digest,omitempty"`

	// Extracted counts files unpacked from the archive. An extraction
	// failure leaves the outcome downloaded and sets ExtractError.
	Extracted    int    `json:"extracted,omitempty"`
	ExtractError string `json:"extract_error,omitempty"`

	// Converted counts JSON and XML files rendered to PDF after extraction.
	Converted    int    `json:"converted,omitempty"`
	ConvertError string `json:"convert_error,omitempty"`
}

// Counts summarizes outcomes.
type Counts struct {
	Requested   int `json:"requested"`
	Resolved    int `json:"resolved"`
	Downloaded  int `json:"downloaded"`
	Unavailable int `json:"unavailable"`
	Failed      int `json:"failed"`
}

func (c *Counts) add(o Counts) {
	c.Requested += o.Requested
	c.Resolved += o.Resolved
	c.Downloaded += o.Downloaded
	c.Unavailable += o.Unavailable
	c.Failed += o.Failed
}

// TargetReport holds everything that happened for one target.
type TargetReport struct {
	Target config.Target `json:"target"`

	// Err is the target's configuration error, if any. Such a target has
	// no outcomes.
	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`

	// Requested is the number of distinct job names asked for.
	Requested int `json:"requested"`

	// Resolved is the number of downloadable jobs those names matched.
	Resolved int `json:"resolved"`

	Outcomes []Outcome `json:"outcomes"`

	// Bundle is set when the target's reports were bundled.
	Bundle      *store.WriteResult `json:"bundle,omitempty"`
	BundleError string             `json:"bundle_error,omitempty"`

	// Skipped is true when the run aborted before the target was reached.
	Skipped bool `json:"skipped,omitempty"`
}

// Counts tallies the target's outcomes.
func (t *TargetReport) Counts() Counts {
	c := Counts{Requested: t.Requested, Resolved: t.Resolved}
	for _, o := range t.Outcomes {
		switch o.Status {
		case StatusDownloaded:
			c.Downloaded++
		case StatusUnavailable:
			c.Unavailable++
		case StatusFailed:
			c.Failed++
		}
	}
	return c
}

// Report is the result of a run.
type Report struct {
	RunID      string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Targets    []*TargetReport `json:"targets"`

	// Aborted is true when an authentication failure or cancellation
	// stopped the run early.
	Aborted     bool   `json:"aborted,omitempty"`
	AbortReason string `json:"abort_reason,omitempty"`
	AbortErr    error  `json:"-"`
}

// Totals sums the counts of every target.
func (r *Report) Totals() Counts {
	var c Counts
	for _, t := range r.Targets {
		c.add(t.Counts())
	}
	return c
}

// Outcomes returns every outcome of the run, in target order.
func (r *Report) Outcomes() []Outcome {
	var all []Outcome
	for _, t := range r.Targets {
		all = append(all, t.Outcomes...)
	}
	return all
}

// ConfigErrors counts targets rejected for configuration problems.
func (r *Report) ConfigErrors() int {
	n := 0
	for _, t := range r.Targets {
		if t.Err != nil {
			n++
		}
	}
	return n
}
