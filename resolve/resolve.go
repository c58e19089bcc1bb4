// Package resolve matches requested job names against the jobs of a pipeline.
//
// A pipeline is listed once per Resolver no matter how many names or targets
// refer to it. Every job whose name equals a requested name is a match,
// which keeps retried jobs (same name, different id) visible. Matches that
// cannot be downloaded, and names that match nothing, are soft misses.
package resolve

import (
	"context"
	"fmt"
	"sync"

	"github.com/randalmurphal/artifetch/gitlab"
)

// JobLister lists every job of a pipeline in server order.
type JobLister interface {
	ListPipelineJobs(ctx context.Context, projectID string, pipelineID int) ([]gitlab.Job, error)
}

// Miss reasons.
const (
	ReasonNoMatch     = "no job with this name in the pipeline"
	ReasonNoArtifacts = "job has no artifacts"
	ReasonNotFinished = "job did not finish"
)

// ResolvedJob is a job that matched a requested name and has an archive to download.
type ResolvedJob struct {
	gitlab.Job
}

// Miss is a requested name, or one matching job, that yields no download.
type Miss struct {
	// Name is the requested job name.
	Name string `json:"name"`

	// JobID is the matching job, or 0 when nothing matched.
	JobID int `json:"job_id,omitempty"`

	// Status is the matching job's status, if any.
	Status gitlab.JobStatus `json:"status,omitempty"`

	Reason string `json:"reason"`
}

// String describes the miss for reports.
func (m Miss) String() string {
	if m.JobID == 0 {
		return fmt.Sprintf("%s: %s", m.Name, m.Reason)
	}
	return fmt.Sprintf("%s (job %d, %s): %s", m.Name, m.JobID, m.Status, m.Reason)
}

// Result is the outcome of resolving one target.
type Result struct {
	// Requested holds the distinct requested names in first-seen order.
	Requested []string

	// Jobs are the downloadable matches, in listing order.
	Jobs []ResolvedJob

	// Misses are unmatched names (in requested order) followed by matched
	// jobs that cannot be downloaded (in listing order).
	Misses []Miss
}

type pipelineKey struct {
	projectID  string
	pipelineID int
}

// Resolver resolves names against pipeline listings, caching each listing.
// It is safe for concurrent use.
type Resolver struct {
	lister JobLister

	mu       sync.Mutex
	listings map[pipelineKey][]gitlab.Job
}

// New creates a Resolver backed by lister.
func New(lister JobLister) *Resolver {
	return &Resolver{
		lister:   lister,
		listings: make(map[pipelineKey][]gitlab.Job),
	}
}

// Resolve lists the pipeline (once per Resolver) and matches names against it.
// Listing errors are returned unchanged for the caller to classify.
func (r *Resolver) Resolve(ctx context.Context, projectID string, pipelineID int, names []string) (*Result, error) {
	jobs, err := r.listing(ctx, projectID, pipelineID)
	if err != nil {
		return nil, err
	}
	return Match(jobs, names), nil
}

func (r *Resolver) listing(ctx context.Context, projectID string, pipelineID int) ([]gitlab.Job, error) {
	key := pipelineKey{projectID: projectID, pipelineID: pipelineID}

	r.mu.Lock()
	defer r.mu.Unlock()

	if jobs, ok := r.listings[key]; ok {
		return jobs, nil
	}

	jobs, err := r.lister.ListPipelineJobs(ctx, projectID, pipelineID)
	if err != nil {
		return nil, err
	}
	r.listings[key] = jobs
	return jobs, nil
}

// Match applies the matching policy to a listing. It is pure: the same jobs
// and names always produce the same Result, and the order of names does not
// affect the order of Jobs.
func Match(jobs []gitlab.Job, names []string) *Result {
	result := &Result{}

	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		if !wanted[name] {
			wanted[name] = true
			result.Requested = append(result.Requested, name)
		}
	}

	matched := make(map[string]bool, len(wanted))
	var filtered []Miss
	for _, job := range jobs {
		if !wanted[job.Name] {
			continue
		}
		matched[job.Name] = true

		switch {
		case !job.Status.Finished():
			filtered = append(filtered, Miss{Name: job.Name, JobID: job.ID, Status: job.Status, Reason: ReasonNotFinished})
		case !job.HasArtifacts:
			filtered = append(filtered, Miss{Name: job.Name, JobID: job.ID, Status: job.Status, Reason: ReasonNoArtifacts})
		default:
			result.Jobs = append(result.Jobs, ResolvedJob{Job: job})
		}
	}

	for _, name := range result.Requested {
		if !matched[name] {
			result.Misses = append(result.Misses, Miss{Name: name, Reason: ReasonNoMatch})
		}
	}
	result.Misses = append(result.Misses, filtered...)

	return result
}
