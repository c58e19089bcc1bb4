// Package artifetch downloads GitLab CI job artifacts for a list of
// pipelines and stores them under a predictable local layout.
//
// The work is split into subpackages, leaves first:
//
//   - http: error taxonomy, retry policy, page iterator, JSON client
//   - gitlab: pipeline job listing and artifact download over the GitLab API
//   - resolve: matching requested job names against a pipeline's jobs
//   - store: collision-free artifact writes, extraction, bundling
//   - fetch: the download run and its report
//   - config: targets file and settings resolution
//   - notify: run events for logs, progress bars, and webhooks
//   - report: summary rendering
//   - errors: user-facing CLI errors and exit codes
//   - testutil: a fake GitLab server and fixtures for tests
//
// # Quick Start
//
//	client, err := gitlab.New(gitlab.Config{
//	    BaseURL: "https://gitlab.example.com/api/v4",
//	    Token:   os.Getenv("GITLAB_TOKEN"),
//	})
//	if err != nil {
//	    return err // missing credentials fail here, before any request
//	}
//
//	targets, err := config.LoadTargets("targets.json")
//	if err != nil {
//	    return err
//	}
//
//	orch := fetch.New(fetch.Options{
//	    Client:     client,
//	    Resolver:   resolve.New(client),
//	    Store:      store.New(store.Options{}),
//	    OutputRoot: "artifacts",
//	})
//	report, err := orch.Run(ctx, targets)
//
// The cmd/artifetch command wires the same pieces behind a CLI.
package artifetch
