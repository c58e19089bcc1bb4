package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, Wait: time.Millisecond, MaxWait: 5 * time.Millisecond}
}

// =============================================================================
// Error Taxonomy Tests
// =============================================================================

func TestAPIError(t *testing.T) {
	tests := []struct {
		name       string
		err        *APIError
		wantMsg    string
		wantUnwrap error
	}{
		{
			name: "not found",
			err: &APIError{
				Service:    "gitlab",
				StatusCode: 404,
				Message:    "404 Not found",
				Endpoint:   "/projects/7/jobs/900/artifacts",
			},
			wantMsg:    "gitlab API error (404) at /projects/7/jobs/900/artifacts: 404 Not found",
			wantUnwrap: ErrNotFound,
		},
		{
			name: "with request ID",
			err: &APIError{
				Service:    "gitlab",
				StatusCode: 502,
				Message:    "Bad Gateway",
				Endpoint:   "/projects/7/pipelines/42/jobs",
				RequestID:  "abc123",
			},
			wantMsg:    "gitlab API error (502) at /projects/7/pipelines/42/jobs [abc123]: Bad Gateway",
			wantUnwrap: ErrServerError,
		},
		{
			name:       "unauthorized",
			err:        &APIError{Service: "gitlab", StatusCode: 401, Message: "401 Unauthorized", Endpoint: "/x"},
			wantMsg:    "gitlab API error (401) at /x: 401 Unauthorized",
			wantUnwrap: ErrUnauthorized,
		},
		{
			name:       "forbidden",
			err:        &APIError{Service: "gitlab", StatusCode: 403, Message: "403 Forbidden", Endpoint: "/x"},
			wantMsg:    "gitlab API error (403) at /x: 403 Forbidden",
			wantUnwrap: ErrForbidden,
		},
		{
			name:       "rate limited",
			err:        &APIError{Service: "gitlab", StatusCode: 429, Message: "Too Many Requests", Endpoint: "/x"},
			wantMsg:    "gitlab API error (429) at /x: Too Many Requests",
			wantUnwrap: ErrRateLimited,
		},
		{
			name:       "bad request is unexpected",
			err:        &APIError{Service: "gitlab", StatusCode: 400, Message: "Bad Request", Endpoint: "/x"},
			wantMsg:    "gitlab API error (400) at /x: Bad Request",
			wantUnwrap: ErrUnexpectedResponse,
		},
		{
			name:       "teapot is unexpected",
			err:        &APIError{Service: "gitlab", StatusCode: 418, Message: "teapot", Endpoint: "/x"},
			wantMsg:    "gitlab API error (418) at /x: teapot",
			wantUnwrap: ErrUnexpectedResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
			if !errors.Is(tt.err, tt.wantUnwrap) {
				t.Errorf("errors.Is(%v) = false", tt.wantUnwrap)
			}
		})
	}
}

func TestAuthError(t *testing.T) {
	err := &AuthError{Service: "gitlab", Reason: "token is empty"}

	want := "gitlab authentication failed: token is empty"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !IsAuthFailure(err) {
		t.Error("AuthError should be an auth failure")
	}
}

func TestTransientError(t *testing.T) {
	last := &APIError{Service: "gitlab", StatusCode: 503, Message: "unavailable", Endpoint: "/x"}
	err := &TransientError{Attempts: 3, Err: last}

	if !IsTransient(err) {
		t.Error("TransientError should match ErrTransient")
	}
	if !errors.Is(err, ErrServerError) {
		t.Error("TransientError should expose the last attempt's error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 503 {
		t.Errorf("errors.As = %v", apiErr)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", ErrRateLimited, true},
		{"server error", &APIError{StatusCode: 500}, true},
		{"bad gateway wrapped", fmt.Errorf("list jobs: %w", &APIError{StatusCode: 502}), true},
		{"network", &NetworkError{Service: "gitlab", Err: errors.New("connection reset")}, true},
		{"not found", &APIError{StatusCode: 404}, false},
		{"unauthorized", &APIError{StatusCode: 401}, false},
		{"unexpected", &APIError{StatusCode: 409}, false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

// =============================================================================
// RetryPolicy Tests
// =============================================================================

func TestRetryPolicy_SucceedsWithinBudget(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &APIError{StatusCode: 503}
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryPolicy_Exhausted(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return &NetworkError{Service: "gitlab", Endpoint: "/x", Err: errors.New("timeout")}
	})

	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	var transient *TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("error = %v, want *TransientError", err)
	}
	if transient.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", transient.Attempts)
	}
}

func TestRetryPolicy_NonRetryableStops(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return &APIError{StatusCode: 404}
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !IsNotFound(err) {
		t.Errorf("error = %v, want not found", err)
	}
	if IsTransient(err) {
		t.Error("non-retryable errors must not become transient")
	}
}

func TestRetryPolicy_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxAttempts: 5, Wait: time.Hour}

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- policy.Do(ctx, func(ctx context.Context) error {
			calls++
			return &APIError{StatusCode: 500}
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancel")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryPolicy_WaitFor(t *testing.T) {
	p := RetryPolicy{Wait: 100 * time.Millisecond, MaxWait: time.Second}.withDefaults()

	if got := p.waitFor(ErrServerError, 0); got != 100*time.Millisecond {
		t.Errorf("attempt 0 wait = %v", got)
	}
	if got := p.waitFor(ErrServerError, 2); got != 400*time.Millisecond {
		t.Errorf("attempt 2 wait = %v", got)
	}
	if got := p.waitFor(ErrServerError, 10); got != time.Second {
		t.Errorf("capped wait = %v", got)
	}
	if got := p.waitFor(&APIError{StatusCode: 429, RetryAfter: 700 * time.Millisecond}, 0); got != 700*time.Millisecond {
		t.Errorf("Retry-After wait = %v", got)
	}
}

func TestRetryPolicy_Defaults(t *testing.T) {
	if got := (RetryPolicy{}).Attempts(); got != DefaultMaxAttempts {
		t.Errorf("Attempts() = %d, want %d", got, DefaultMaxAttempts)
	}
}

// =============================================================================
// PageIterator Tests
// =============================================================================

func TestPageIterator_All(t *testing.T) {
	pages := map[int][]int{
		1: {1, 2, 3},
		2: {4, 5},
		3: {6},
	}
	next := map[int]int{1: 2, 2: 3, 3: 0}

	var requested []int
	iter := NewPageIterator(func(ctx context.Context, page int) ([]int, int, error) {
		requested = append(requested, page)
		return pages[page], next[page], nil
	})

	got, err := iter.All(context.Background())
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}

	want := []int{1, 2, 3, 4, 5, 6}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("All() = %v, want %v", got, want)
	}
	if fmt.Sprint(requested) != "[1 2 3]" {
		t.Errorf("pages requested = %v", requested)
	}
	if iter.Pages() != 3 || iter.Fetched() != 6 {
		t.Errorf("Pages() = %d, Fetched() = %d", iter.Pages(), iter.Fetched())
	}
}

func TestPageIterator_EmptyListing(t *testing.T) {
	iter := NewPageIterator(func(ctx context.Context, page int) ([]string, int, error) {
		return nil, 0, nil
	})

	got, err := iter.All(context.Background())
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("All() = %v, want empty", got)
	}
}

func TestPageIterator_NonAdvancingNextStops(t *testing.T) {
	calls := 0
	iter := NewPageIterator(func(ctx context.Context, page int) ([]int, int, error) {
		calls++
		return []int{page}, page, nil
	})

	got, err := iter.All(context.Background())
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(got) != 1 || calls != 1 {
		t.Errorf("got %v after %d calls", got, calls)
	}
}

func TestPageIterator_Error(t *testing.T) {
	boom := errors.New("boom")
	iter := NewPageIterator(func(ctx context.Context, page int) ([]int, int, error) {
		if page == 2 {
			return nil, 0, boom
		}
		return []int{1}, 2, nil
	})

	if _, err := iter.All(context.Background()); !errors.Is(err, boom) {
		t.Errorf("All() error = %v, want %v", err, boom)
	}
	if !errors.Is(iter.Err(), boom) {
		t.Errorf("Err() = %v", iter.Err())
	}
}

// =============================================================================
// Client Tests
// =============================================================================

func TestClient_PostJSON(t *testing.T) {
	var attempts atomic.Int32
	var received map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if got := r.Header.Get("X-Token"); got != "secret" {
			t.Errorf("X-Token = %q", got)
		}
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := NewClient(ClientConfig{
		ServiceName: "webhook",
		Retry:       fastPolicy(3),
		Headers:     map[string]string{"X-Token": "secret"},
	})

	if err := c.PostJSON(context.Background(), server.URL, map[string]string{"hello": "world"}); err != nil {
		t.Fatalf("PostJSON() error = %v", err)
	}
	if attempts.Load() != 2 {
		t.Errorf("attempts = %d, want 2", attempts.Load())
	}
	if received["hello"] != "world" {
		t.Errorf("received = %v", received)
	}
}

func TestClient_PostJSONClientError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-Id", "req-1")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"invalid payload"}`))
	}))
	defer server.Close()

	c := NewClient(ClientConfig{ServiceName: "webhook", Retry: fastPolicy(3)})
	err := c.PostJSON(context.Background(), server.URL, struct{}{})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Message != "invalid payload" || apiErr.RequestID != "req-1" {
		t.Errorf("APIError = %+v", apiErr)
	}
	if !IsUnexpected(err) {
		t.Error("400 should be unexpected")
	}
}

func TestRetryAfter(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", 0},
		{"3", 3 * time.Second},
		{"-1", 0},
		{"Wed, 21 Oct 2015 07:28:00 GMT", 0},
	}

	for _, tt := range tests {
		h := http.Header{}
		if tt.value != "" {
			h.Set("Retry-After", tt.value)
		}
		if got := RetryAfter(h); got != tt.want {
			t.Errorf("RetryAfter(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}
