package config

// Source indicates where a settings value came from.
type Source string

// Settings sources, lowest priority first.
const (
	SourceDefault Source = "default"

	// SourceGlobal is ~/.config/artifetch/config.yaml.
	SourceGlobal Source = "global"

	// SourceLocal is .artifetch.yaml in the git root.
	SourceLocal Source = "local"

	// SourceEnv is an ARTIFETCH_* variable or a GitLab alias such as GITLAB_TOKEN.
	SourceEnv Source = "env"

	SourceFlag Source = "flag"
)
