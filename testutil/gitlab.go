package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// FakeJob is one job served by GitLabServer.
type FakeJob struct {
	ID     int
	Name   string
	Status string // defaults to "success"

	// Artifact is the archive body. Nil means the job has no artifacts.
	Artifact []byte

	// ContentType defaults to "application/zip".
	ContentType string

	// Filename is sent in Content-Disposition and listed in the job record.
	// Defaults to "artifacts.zip".
	Filename string

	// Expired jobs are listed with artifacts but the download returns 404.
	Expired bool

	// Retried jobs are only listed when include_retried=true.
	Retried bool
}

// GitLabServer is a fake of the two GitLab endpoints artifetch uses:
// pipeline job listing and job artifact download.
type GitLabServer struct {
	server *httptest.Server

	mu        sync.Mutex
	token     string
	pageSize  int
	pipelines map[string]map[int][]FakeJob
	jobs      map[string]map[int]FakeJob
	faults    map[string][]int
	requests  map[string]int
}

// NewGitLabServer starts a fake server that is closed when the test ends.
// Requests must carry token (as PRIVATE-TOKEN, JOB-TOKEN, or Bearer).
func NewGitLabServer(t *testing.T, token string) *GitLabServer {
	t.Helper()

	s := &GitLabServer{
		token:     token,
		pipelines: make(map[string]map[int][]FakeJob),
		jobs:      make(map[string]map[int]FakeJob),
		faults:    make(map[string][]int),
		requests:  make(map[string]int),
	}
	s.server = httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	t.Cleanup(s.server.Close)

	return s
}

// BaseURL returns the API root to configure clients with.
func (s *GitLabServer) BaseURL() string {
	return s.server.URL + "/api/v4"
}

// SetPageSize forces the listing page size regardless of per_page.
func (s *GitLabServer) SetPageSize(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageSize = n
}

// AddPipeline registers a pipeline and its jobs, in listing order.
func (s *GitLabServer) AddPipeline(projectID string, pipelineID int, jobs ...FakeJob) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pipelines[projectID] == nil {
		s.pipelines[projectID] = make(map[int][]FakeJob)
		s.jobs[projectID] = make(map[int]FakeJob)
	}
	for i := range jobs {
		if jobs[i].Status == "" {
			jobs[i].Status = "success"
		}
		if jobs[i].Filename == "" {
			jobs[i].Filename = "artifacts.zip"
		}
		if jobs[i].ContentType == "" {
			jobs[i].ContentType = "application/zip"
		}
		s.jobs[projectID][jobs[i].ID] = jobs[i]
	}
	s.pipelines[projectID][pipelineID] = append(s.pipelines[projectID][pipelineID], jobs...)
}

// FailNext makes the next requests to path answer with the given statuses,
// one per request, before normal service resumes. Status 0 drops the
// connection without a response. Path is relative to the API root,
// e.g. "/projects/7/jobs/900/artifacts".
func (s *GitLabServer) FailNext(path string, statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[path] = append(s.faults[path], statuses...)
}

// Requests returns how many requests were made to path.
func (s *GitLabServer) Requests(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[path]
}

// ListPath returns the listing path for a pipeline.
func ListPath(projectID string, pipelineID int) string {
	return fmt.Sprintf("/projects/%s/pipelines/%d/jobs", projectID, pipelineID)
}

// ArtifactPath returns the download path for a job.
func ArtifactPath(projectID string, jobID int) string {
	return fmt.Sprintf("/projects/%s/jobs/%d/artifacts", projectID, jobID)
}

func (s *GitLabServer) serveHTTP(w http.ResponseWriter, r *http.Request) {
	escaped := strings.TrimPrefix(r.URL.EscapedPath(), "/api/v4")
	segments := strings.Split(strings.Trim(escaped, "/"), "/")
	for i, seg := range segments {
		if dec, err := url.PathUnescape(seg); err == nil {
			segments[i] = dec
		}
	}
	path := "/" + strings.Join(segments, "/")

	s.mu.Lock()
	s.requests[path]++
	var fault *int
	if queued := s.faults[path]; len(queued) > 0 {
		code := queued[0]
		s.faults[path] = queued[1:]
		fault = &code
	}
	s.mu.Unlock()

	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "401 Unauthorized")
		return
	}

	if fault != nil {
		if *fault == 0 {
			dropConnection(w)
			return
		}
		writeError(w, *fault, http.StatusText(*fault))
		return
	}

	// projects/:id/pipelines/:pipeline_id/jobs or projects/:id/jobs/:job_id/artifacts
	switch {
	case len(segments) == 5 && segments[0] == "projects" && segments[2] == "pipelines" && segments[4] == "jobs":
		pipelineID, _ := strconv.Atoi(segments[3])
		s.serveJobs(w, r, segments[1], pipelineID)
	case len(segments) == 5 && segments[0] == "projects" && segments[2] == "jobs" && segments[4] == "artifacts":
		jobID, _ := strconv.Atoi(segments[3])
		s.serveArtifact(w, segments[1], jobID)
	default:
		writeError(w, http.StatusNotFound, "404 Not Found")
	}
}

func (s *GitLabServer) authorized(r *http.Request) bool {
	if s.token == "" {
		return true
	}
	return r.Header.Get("PRIVATE-TOKEN") == s.token ||
		r.Header.Get("JOB-TOKEN") == s.token ||
		r.Header.Get("Authorization") == "Bearer "+s.token
}

func (s *GitLabServer) serveJobs(w http.ResponseWriter, r *http.Request, projectID string, pipelineID int) {
	s.mu.Lock()
	all, ok := s.pipelines[projectID][pipelineID]
	pageSize := s.pageSize
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "404 Pipeline Not Found")
		return
	}

	includeRetried := r.URL.Query().Get("include_retried") == "true"
	var visible []FakeJob
	for _, j := range all {
		if j.Retried && !includeRetried {
			continue
		}
		visible = append(visible, j)
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize, _ = strconv.Atoi(r.URL.Query().Get("per_page"))
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(visible) {
		start = len(visible)
	}
	if end > len(visible) {
		end = len(visible)
	}

	records := make([]map[string]any, 0, end-start)
	for _, j := range visible[start:end] {
		records = append(records, jobRecord(j))
	}

	totalPages := (len(visible) + pageSize - 1) / pageSize
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Page", strconv.Itoa(page))
	w.Header().Set("X-Per-Page", strconv.Itoa(pageSize))
	w.Header().Set("X-Total", strconv.Itoa(len(visible)))
	w.Header().Set("X-Total-Pages", strconv.Itoa(totalPages))
	if end < len(visible) {
		w.Header().Set("X-Next-Page", strconv.Itoa(page+1))
	} else {
		w.Header().Set("X-Next-Page", "")
	}
	json.NewEncoder(w).Encode(records)
}

func (s *GitLabServer) serveArtifact(w http.ResponseWriter, projectID string, jobID int) {
	s.mu.Lock()
	j, ok := s.jobs[projectID][jobID]
	s.mu.Unlock()

	if !ok || j.Artifact == nil || j.Expired {
		writeError(w, http.StatusNotFound, "404 Not Found")
		return
	}

	w.Header().Set("Content-Type", j.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", j.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(j.Artifact)))
	w.Write(j.Artifact)
}

// jobRecord renders a job the way the GitLab jobs API does.
func jobRecord(j FakeJob) map[string]any {
	record := map[string]any{
		"id":     j.ID,
		"name":   j.Name,
		"status": j.Status,
		"stage":  "build",
		"ref":    "main",
	}
	if j.Artifact != nil {
		record["artifacts"] = []map[string]any{
			{"file_type": "archive", "filename": j.Filename, "size": len(j.Artifact), "file_format": "zip"},
			{"file_type": "trace", "filename": "job.log", "size": 10, "file_format": nil},
		}
		record["artifacts_file"] = map[string]any{"filename": j.Filename, "size": len(j.Artifact)}
	} else {
		record["artifacts"] = []map[string]any{
			{"file_type": "trace", "filename": "job.log", "size": 10, "file_format": nil},
		}
	}
	return record
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": message})
}

func dropConnection(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		return
	}
	conn.Close()
}
