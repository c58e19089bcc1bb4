package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/afero"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// ErrInvalidTargets is returned when a targets file cannot be used at all.
var ErrInvalidTargets = errors.New("invalid targets file")

// ID is an opaque identifier written as a string or a number.
type ID string

// UnmarshalYAML accepts string and integer scalars.
func (id *ID) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a string or number", node.Line)
	}
	switch node.Tag {
	case "!!str", "!!int":
		*id = ID(strings.TrimSpace(node.Value))
		return nil
	case "!!null":
		*id = ""
		return nil
	default:
		return fmt.Errorf("line %d: expected a string or integer, got %q", node.Line, node.Value)
	}
}

// Int parses the identifier as a positive integer.
func (id ID) Int() (int, error) {
	n, err := strconv.Atoi(string(id))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%q is not a positive integer", string(id))
	}
	return n, nil
}

func (id ID) String() string {
	return string(id)
}

// Target is one entry of the targets file.
type Target struct {
	// Index is the entry's position in the file, starting at 0.
	Index int `json:"index"`

	PipelineID ID       `json:"pipeline_id"`
	ProjectID  ID       `json:"project_id"`
	PDFPrefix  string   `json:"pdf_prefix"`
	JobNames   []string `json:"job_names"`

	// Err is set when the entry is malformed. Such a target is reported
	// but never processed.
	Err *ConfigurationError `json:"-"`
}

// Pipeline returns the pipeline id as an integer. Valid targets always parse.
func (t Target) Pipeline() int {
	n, _ := t.PipelineID.Int()
	return n
}

// ConfigurationError describes one malformed targets entry.
type ConfigurationError struct {
	Index int
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("target %d: %v", e.Index, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// rawTarget mirrors the file format. PDFPrefix is a pointer so a missing
// key can be told apart from an empty prefix.
type rawTarget struct {
	PipelineID ID       `yaml:"pipeline_id" json:"pipeline_id"`
	ProjectID  ID       `yaml:"project_id" json:"project_id"`
	PDFPrefix  *string  `yaml:"pdf_prefix" json:"pdf_prefix"`
	JobNames   []string `yaml:"job_names" json:"job_names"`
}

func (r *rawTarget) validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.PipelineID, validation.Required, validation.By(positiveID)),
		validation.Field(&r.ProjectID, validation.Required),
		validation.Field(&r.PDFPrefix, validation.NotNil),
		validation.Field(&r.JobNames, validation.Required, validation.Each(validation.Required)),
	)
}

func positiveID(value interface{}) error {
	id, _ := value.(ID)
	if id == "" {
		return nil
	}
	_, err := id.Int()
	return err
}

// LoadTargets reads a targets file from the OS filesystem.
func LoadTargets(path string) ([]Target, error) {
	return LoadTargetsFs(afero.NewOsFs(), path)
}

// LoadTargetsFs reads a targets file from fs. Files ending in .json may
// carry comments and trailing commas; anything else is read as YAML.
//
// An unreadable file or one that is not a list fails as a whole. Entries
// are validated one by one, and a malformed entry is returned with Err set.
func LoadTargetsFs(fs afero.Fs, path string) ([]Target, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTargets, err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		data = jsonc.ToJSON(data)
	}
	return ParseTargets(data)
}

// ParseTargets decodes a YAML (or JSON) list of targets.
func ParseTargets(data []byte) ([]Target, error) {
	var entries []yaml.Node
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: expected a list of targets: %v", ErrInvalidTargets, err)
	}

	targets := make([]Target, 0, len(entries))
	for i := range entries {
		targets = append(targets, parseTarget(i, &entries[i]))
	}
	return targets, nil
}

func parseTarget(index int, node *yaml.Node) Target {
	target := Target{Index: index}

	fail := func(err error) Target {
		target.Err = &ConfigurationError{Index: index, Err: err}
		return target
	}

	if node.Kind != yaml.MappingNode {
		return fail(fmt.Errorf("line %d: expected a mapping", node.Line))
	}

	var raw rawTarget
	if err := node.Decode(&raw); err != nil {
		return fail(err)
	}

	target.PipelineID = raw.PipelineID
	target.ProjectID = raw.ProjectID
	target.JobNames = raw.JobNames
	if raw.PDFPrefix != nil {
		target.PDFPrefix = *raw.PDFPrefix
	}

	if err := raw.validate(); err != nil {
		return fail(err)
	}
	return target
}

// Valid returns the targets without configuration errors.
func Valid(targets []Target) []Target {
	var valid []Target
	for _, t := range targets {
		if t.Err == nil {
			valid = append(valid, t)
		}
	}
	return valid
}
