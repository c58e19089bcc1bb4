package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/randalmurphal/artifetch/config"
	"github.com/randalmurphal/artifetch/fetch"
	"github.com/randalmurphal/artifetch/store"
)

func sampleReport() *fetch.Report {
	target := config.Target{Index: 0, ProjectID: "group/app", PipelineID: "42", PDFPrefix: "rel", JobNames: []string{"build-pdf", "lint", "docs"}}
	badErr := &config.ConfigurationError{Index: 1, Err: errors.New("pipeline_id: cannot be blank")}

	return &fetch.Report{
		RunID: "abc123",
		Targets: []*fetch.TargetReport{
			{
				Target:    target,
				Requested: 3,
				Resolved:  2,
				Outcomes: []fetch.Outcome{
					{JobName: "build-pdf", JobID: 900, Status: fetch.StatusDownloaded, Path: "artifacts/rel_build-pdf_900.pdf", Size: 2048},
					{JobName: "lint", JobID: 901, Status: fetch.StatusFailed, Err: errors.New("boom"), Reason: "GitLab: transient failure"},
					{JobName: "docs", Status: fetch.StatusUnavailable, Err: errors.New("no job"), Reason: "no job with this name in the pipeline"},
				},
				Bundle: &store.WriteResult{Path: "artifacts/rel_reports.zip", Size: 1024},
			},
			{Target: config.Target{Index: 1, Err: badErr}, Err: badErr, Error: badErr.Error()},
		},
	}
}

// =============================================================================
// Table Tests
// =============================================================================

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTable(&buf, sampleReport()); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"group/app",
		"2.0 kB",
		"lint",
		"901",
		"GitLab: transient failure",
		"no job with this name in the pipeline",
		"invalid",
		"pipeline_id: cannot be blank",
		"artifacts/rel_reports.zip",
		"run abc123: 1 downloaded, 1 unavailable, 1 failed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "aborted") {
		t.Errorf("completed run reported as aborted:\n%s", out)
	}
}

func TestWriteTable_Aborted(t *testing.T) {
	r := sampleReport()
	r.Aborted = true
	r.AbortReason = "GitLab: unauthorized"
	r.Targets = append(r.Targets, &fetch.TargetReport{Target: config.Target{Index: 2, ProjectID: "7", PipelineID: "43"}, Skipped: true})

	var buf bytes.Buffer
	if err := WriteTable(&buf, r); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}
	for _, want := range []string{"skipped", "run aborted: GitLab: unauthorized"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("table missing %q:\n%s", want, buf.String())
		}
	}
}

func TestWriteTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTable(&buf, &fetch.Report{RunID: "empty"}); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}
	if !strings.Contains(buf.String(), "run empty: 0 downloaded") {
		t.Errorf("output = %q", buf.String())
	}
}

// =============================================================================
// JSON Tests
// =============================================================================

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, sampleReport()); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	var decoded struct {
		RunID   string       `json:"run_id"`
		Totals  fetch.Counts `json:"totals"`
		Targets []struct {
			Error    string `json:"error"`
			Outcomes []struct {
				JobName string       `json:"job_name"`
				Status  fetch.Status `json:"status"`
				Path    string       `json:"path"`
			} `json:"outcomes"`
			Bundle *store.WriteResult `json:"bundle"`
		} `json:"targets"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v\n%s", err, buf.String())
	}

	if decoded.RunID != "abc123" {
		t.Errorf("run_id = %q", decoded.RunID)
	}
	want := fetch.Counts{Requested: 3, Resolved: 2, Downloaded: 1, Unavailable: 1, Failed: 1}
	if decoded.Totals != want {
		t.Errorf("totals = %+v, want %+v", decoded.Totals, want)
	}
	if len(decoded.Targets) != 2 {
		t.Fatalf("targets = %d, want 2", len(decoded.Targets))
	}
	first := decoded.Targets[0]
	if first.Outcomes[0].Path != "artifacts/rel_build-pdf_900.pdf" || first.Outcomes[2].Path != "" {
		t.Errorf("outcomes = %+v", first.Outcomes)
	}
	if first.Bundle == nil || first.Bundle.Path != "artifacts/rel_reports.zip" {
		t.Errorf("bundle = %+v", first.Bundle)
	}
	if decoded.Targets[1].Error == "" {
		t.Error("configuration error missing from JSON")
	}
}
