package gitlab

import (
	"time"

	gl "github.com/xanzy/go-gitlab"
)

// JobStatus is a GitLab CI job state.
type JobStatus string

// Job states reported by the jobs API.
const (
	StatusCreated            JobStatus = "created"
	StatusWaitingForResource JobStatus = "waiting_for_resource"
	StatusPreparing          JobStatus = "preparing"
	StatusPending            JobStatus = "pending"
	StatusRunning            JobStatus = "running"
	StatusSuccess            JobStatus = "success"
	StatusFailed             JobStatus = "failed"
	StatusCanceled           JobStatus = "canceled"
	StatusSkipped            JobStatus = "skipped"
	StatusManual             JobStatus = "manual"
	StatusScheduled          JobStatus = "scheduled"
)

// Finished reports whether a job in this state can have uploaded artifacts.
// Failed jobs count: artifacts declared with "when: always" survive failure.
func (s JobStatus) Finished() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Job is one job instance of a pipeline. Retried jobs share a Name but
// never an ID.
type Job struct {
	ID     int       `json:"id"`
	Name   string    `json:"name"`
	Status JobStatus `json:"status"`
	Stage  string    `json:"stage,omitempty"`
	Ref    string    `json:"ref,omitempty"`
	WebURL string    `json:"web_url,omitempty"`

	// HasArtifacts is true when the job uploaded an artifacts archive.
	HasArtifacts bool `json:"has_artifacts"`

	ArtifactFilename  string     `json:"artifact_filename,omitempty"`
	ArtifactSize      int64      `json:"artifact_size,omitempty"`
	ArtifactsExpireAt *time.Time `json:"artifacts_expire_at,omitempty"`
}

// Eligible reports whether the job's artifact archive can be downloaded.
func (j Job) Eligible() bool {
	return j.HasArtifacts && j.Status.Finished()
}

// jobFromGitLab converts a go-gitlab job into our Job type.
func jobFromGitLab(j *gl.Job) Job {
	job := Job{
		ID:                j.ID,
		Name:              j.Name,
		Status:            JobStatus(j.Status),
		Stage:             j.Stage,
		Ref:               j.Ref,
		WebURL:            j.WebURL,
		ArtifactsExpireAt: j.ArtifactsExpireAt,
	}

	// The "archive" entry is what the artifacts endpoint serves; traces and
	// reports are listed alongside it but are not downloadable through it.
	for _, a := range j.Artifacts {
		if a.FileType == "archive" {
			job.HasArtifacts = true
			job.ArtifactFilename = a.Filename
			job.ArtifactSize = int64(a.Size)
			break
		}
	}

	// Older GitLab versions only populate artifacts_file
	if !job.HasArtifacts && j.ArtifactsFile.Filename != "" {
		job.HasArtifacts = true
		job.ArtifactFilename = j.ArtifactsFile.Filename
		job.ArtifactSize = int64(j.ArtifactsFile.Size)
	}

	return job
}
