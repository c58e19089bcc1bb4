package config

import (
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

// =============================================================================
// ID Tests
// =============================================================================

func TestID_Int(t *testing.T) {
	tests := []struct {
		id      ID
		want    int
		wantErr bool
	}{
		{"42", 42, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"group/docs", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.id), func(t *testing.T) {
			got, err := tt.id.Int()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Int() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Int() = %d, want %d", got, tt.want)
			}
		})
	}
}

// =============================================================================
// ParseTargets Tests
// =============================================================================

func TestParseTargets_YAML(t *testing.T) {
	data := []byte(`
- pipeline_id: 42
  project_id: 7
  pdf_prefix: rel
  job_names: [build-pdf, build-pdf, docs]
- pipeline_id: "43"
  project_id: group/docs
  pdf_prefix: ""
  job_names:
    - manual
`)

	targets, err := ParseTargets(data)
	if err != nil {
		t.Fatalf("ParseTargets: %v", err)
	}
	if len(targets) != 2 {
		t.Fatalf("got %d targets, want 2", len(targets))
	}

	first := targets[0]
	if first.Err != nil {
		t.Fatalf("targets[0].Err = %v", first.Err)
	}
	if first.PipelineID != "42" || first.ProjectID != "7" || first.PDFPrefix != "rel" {
		t.Errorf("targets[0] = %+v", first)
	}
	if first.Pipeline() != 42 {
		t.Errorf("Pipeline() = %d", first.Pipeline())
	}
	// duplicates survive loading
	if len(first.JobNames) != 3 {
		t.Errorf("JobNames = %v", first.JobNames)
	}

	second := targets[1]
	if second.Err != nil {
		t.Fatalf("targets[1].Err = %v", second.Err)
	}
	if second.Index != 1 || second.ProjectID != "group/docs" || second.PDFPrefix != "" {
		t.Errorf("targets[1] = %+v", second)
	}
}

func TestParseTargets_EntryErrorsIsolated(t *testing.T) {
	data := []byte(`
- pipeline_id: 42
  project_id: 7
  pdf_prefix: rel
  job_names: [a]
- project_id: 7
  pdf_prefix: rel
  job_names: [a]
- pipeline_id: 42
  project_id: 7
  job_names: [a]
- pipeline_id: 42
  project_id: 7
  pdf_prefix: rel
  job_names: []
- pipeline_id: 42
  project_id: 7
  pdf_prefix: rel
  job_names: build
- just a string
- pipeline_id: 1.5
  project_id: 7
  pdf_prefix: rel
  job_names: [a]
- pipeline_id: 42
  project_id: 7
  pdf_prefix: rel
  job_names: [a, ""]
- pipeline_id: abc
  project_id: 7
  pdf_prefix: rel
  job_names: [a]
`)

	targets, err := ParseTargets(data)
	if err != nil {
		t.Fatalf("ParseTargets: %v", err)
	}
	if len(targets) != 9 {
		t.Fatalf("got %d targets, want 9", len(targets))
	}

	if targets[0].Err != nil {
		t.Errorf("valid entry failed: %v", targets[0].Err)
	}

	wantInError := map[int]string{
		1: "pipeline_id",
		2: "pdf_prefix",
		3: "job_names",
		4: "",
		5: "mapping",
		6: "",
		7: "job_names",
		8: "pipeline_id",
	}
	for i, want := range wantInError {
		cerr := targets[i].Err
		if cerr == nil {
			t.Errorf("targets[%d] has no error", i)
			continue
		}
		if cerr.Index != i {
			t.Errorf("targets[%d].Err.Index = %d", i, cerr.Index)
		}
		if !strings.Contains(cerr.Error(), want) {
			t.Errorf("targets[%d].Err = %v, want mention of %q", i, cerr, want)
		}
	}

	if got := len(Valid(targets)); got != 1 {
		t.Errorf("Valid() = %d targets, want 1", got)
	}
}

func TestParseTargets_Fatal(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"mapping at top level", "pipeline_id: 42\n"},
		{"scalar", "hello\n"},
		{"broken yaml", "- [unclosed\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTargets([]byte(tt.data))
			if !errors.Is(err, ErrInvalidTargets) {
				t.Errorf("err = %v, want ErrInvalidTargets", err)
			}
		})
	}
}

func TestParseTargets_Empty(t *testing.T) {
	targets, err := ParseTargets([]byte("[]"))
	if err != nil || len(targets) != 0 {
		t.Errorf("ParseTargets([]) = %v, %v", targets, err)
	}
}

// =============================================================================
// LoadTargets Tests
// =============================================================================

func TestLoadTargetsFs_JSONWithComments(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "targets.json", []byte(`[
  // release docs
  {
    "pipeline_id": 42,
    "project_id": 7,
    "pdf_prefix": "rel",
    "job_names": ["build-pdf"], /* trailing comma next */
  },
]`), 0o644)

	targets, err := LoadTargetsFs(fs, "targets.json")
	if err != nil {
		t.Fatalf("LoadTargetsFs: %v", err)
	}
	if len(targets) != 1 || targets[0].Err != nil {
		t.Fatalf("targets = %+v", targets)
	}
	if targets[0].JobNames[0] != "build-pdf" {
		t.Errorf("JobNames = %v", targets[0].JobNames)
	}
}

func TestLoadTargetsFs_Missing(t *testing.T) {
	_, err := LoadTargetsFs(afero.NewMemMapFs(), "nope.json")
	if !errors.Is(err, ErrInvalidTargets) {
		t.Errorf("err = %v, want ErrInvalidTargets", err)
	}
}

func TestLoadTargets_OS(t *testing.T) {
	path := t.TempDir() + "/targets.yaml"
	fs := afero.NewOsFs()
	afero.WriteFile(fs, path, []byte("- {pipeline_id: 1, project_id: 2, pdf_prefix: p, job_names: [j]}\n"), 0o644)

	targets, err := LoadTargets(path)
	if err != nil {
		t.Fatalf("LoadTargets: %v", err)
	}
	if len(targets) != 1 || targets[0].Err != nil {
		t.Errorf("targets = %+v", targets)
	}
}
