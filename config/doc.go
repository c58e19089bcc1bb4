// Package config loads the targets file and resolves artifetch settings.
//
// # Targets
//
// A targets file is a list of entries, in JSON (comments allowed) or YAML:
//
//	[
//	  // release docs
//	  {"pipeline_id": 42, "project_id": 7, "pdf_prefix": "rel", "job_names": ["build-pdf"]}
//	]
//
// LoadTargets fails only when the file as a whole is unusable. Each
// malformed entry comes back with Target.Err set to a *ConfigurationError
// and the other entries are unaffected.
//
// # Settings
//
// Settings resolve with this precedence, highest first:
//  1. Command-line flags
//  2. Environment: ARTIFETCH_<KEY>, then GITLAB_TOKEN / GITLAB_BASE_URL
//  3. Local config: .artifetch.yaml in the git root
//  4. Global config: ~/.config/artifetch/config.yaml
//  5. Built-in defaults
//
//	resolver := config.NewResolver(config.ResolverConfig{})
//	settings, err := resolver.Resolve(flags).Settings()
//
// The local file is meant to be committed, so it may not hold a token.
package config
