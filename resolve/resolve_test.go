package resolve

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/randalmurphal/artifetch/gitlab"
	ahttp "github.com/randalmurphal/artifetch/http"
)

type fakeLister struct {
	mu    sync.Mutex
	jobs  map[int][]gitlab.Job
	err   error
	calls int
}

func (f *fakeLister) ListPipelineJobs(_ context.Context, _ string, pipelineID int) ([]gitlab.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.jobs[pipelineID], nil
}

func job(id int, name string, status gitlab.JobStatus, artifacts bool) gitlab.Job {
	return gitlab.Job{ID: id, Name: name, Status: status, HasArtifacts: artifacts}
}

func jobIDs(r *Result) []int {
	var ids []int
	for _, j := range r.Jobs {
		ids = append(ids, j.ID)
	}
	return ids
}

// =============================================================================
// Match
// =============================================================================

func TestMatch(t *testing.T) {
	listing := []gitlab.Job{
		job(1, "build-pdf", gitlab.StatusFailed, true),
		job(2, "lint", gitlab.StatusSuccess, false),
		job(3, "build-pdf", gitlab.StatusSuccess, true),
		job(4, "deploy", gitlab.StatusManual, true),
		job(5, "test", gitlab.StatusSuccess, true),
	}

	tests := []struct {
		name       string
		names      []string
		wantJobs   []int
		wantMisses []Miss
	}{
		{
			name:     "retried jobs all match",
			names:    []string{"build-pdf"},
			wantJobs: []int{1, 3},
		},
		{
			name:     "listing order kept",
			names:    []string{"test", "build-pdf"},
			wantJobs: []int{1, 3, 5},
		},
		{
			name:  "no match is one miss",
			names: []string{"missing"},
			wantMisses: []Miss{
				{Name: "missing", Reason: ReasonNoMatch},
			},
		},
		{
			name:  "matched without artifacts",
			names: []string{"lint"},
			wantMisses: []Miss{
				{Name: "lint", JobID: 2, Status: gitlab.StatusSuccess, Reason: ReasonNoArtifacts},
			},
		},
		{
			name:  "matched but not finished",
			names: []string{"deploy"},
			wantMisses: []Miss{
				{Name: "deploy", JobID: 4, Status: gitlab.StatusManual, Reason: ReasonNotFinished},
			},
		},
		{
			name:     "duplicates collapse",
			names:    []string{"test", "test"},
			wantJobs: []int{5},
		},
		{
			name:  "case sensitive",
			names: []string{"Build-PDF"},
			wantMisses: []Miss{
				{Name: "Build-PDF", Reason: ReasonNoMatch},
			},
		},
		{
			name:     "mixed",
			names:    []string{"nope", "lint", "test"},
			wantJobs: []int{5},
			wantMisses: []Miss{
				{Name: "nope", Reason: ReasonNoMatch},
				{Name: "lint", JobID: 2, Status: gitlab.StatusSuccess, Reason: ReasonNoArtifacts},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Match(listing, tt.names)
			if ids := jobIDs(got); !reflect.DeepEqual(ids, tt.wantJobs) {
				t.Errorf("Jobs = %v, want %v", ids, tt.wantJobs)
			}
			if !reflect.DeepEqual(got.Misses, tt.wantMisses) {
				t.Errorf("Misses = %+v, want %+v", got.Misses, tt.wantMisses)
			}
		})
	}
}

func TestMatch_Requested(t *testing.T) {
	got := Match(nil, []string{"b", "a", "b"})
	if want := []string{"b", "a"}; !reflect.DeepEqual(got.Requested, want) {
		t.Errorf("Requested = %v, want %v", got.Requested, want)
	}
}

func TestMatch_NameOrderIndependent(t *testing.T) {
	listing := []gitlab.Job{
		job(10, "x", gitlab.StatusSuccess, true),
		job(11, "y", gitlab.StatusSuccess, true),
		job(12, "x", gitlab.StatusSuccess, true),
	}

	a := jobIDs(Match(listing, []string{"x", "y"}))
	b := jobIDs(Match(listing, []string{"y", "x"}))
	if !reflect.DeepEqual(a, b) {
		t.Errorf("order depends on names: %v vs %v", a, b)
	}
}

func TestMiss_String(t *testing.T) {
	if got := (Miss{Name: "a", Reason: ReasonNoMatch}).String(); got != "a: "+ReasonNoMatch {
		t.Errorf("String() = %q", got)
	}
	m := Miss{Name: "a", JobID: 3, Status: gitlab.StatusSuccess, Reason: ReasonNoArtifacts}
	if got, want := m.String(), "a (job 3, success): job has no artifacts"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

// =============================================================================
// Resolver
// =============================================================================

func TestResolver_CachesListing(t *testing.T) {
	lister := &fakeLister{jobs: map[int][]gitlab.Job{
		42: {job(1, "a", gitlab.StatusSuccess, true)},
		43: {job(2, "a", gitlab.StatusSuccess, true)},
	}}
	r := New(lister)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := r.Resolve(ctx, "7", 42, []string{"a"}); err != nil {
			t.Fatalf("Resolve: %v", err)
		}
	}
	if lister.calls != 1 {
		t.Errorf("listings = %d, want 1", lister.calls)
	}

	got, err := r.Resolve(ctx, "7", 43, []string{"a"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if lister.calls != 2 {
		t.Errorf("listings = %d, want 2", lister.calls)
	}
	if ids := jobIDs(got); !reflect.DeepEqual(ids, []int{2}) {
		t.Errorf("Jobs = %v", ids)
	}
}

func TestResolver_ConcurrentSamePipeline(t *testing.T) {
	lister := &fakeLister{jobs: map[int][]gitlab.Job{42: {job(1, "a", gitlab.StatusSuccess, true)}}}
	r := New(lister)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Resolve(context.Background(), "7", 42, []string{"a"})
		}()
	}
	wg.Wait()

	if lister.calls != 1 {
		t.Errorf("listings = %d, want 1", lister.calls)
	}
}

func TestResolver_ListingError(t *testing.T) {
	lister := &fakeLister{err: &ahttp.APIError{Service: "gitlab", StatusCode: 404}}
	r := New(lister)

	_, err := r.Resolve(context.Background(), "7", 42, []string{"a"})
	if !errors.Is(err, ahttp.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	// failures are not cached
	r.Resolve(context.Background(), "7", 42, []string{"a"})
	if lister.calls != 2 {
		t.Errorf("listings = %d, want 2", lister.calls)
	}
}
