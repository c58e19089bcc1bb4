package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/randalmurphal/artifetch"
	"github.com/randalmurphal/artifetch/config"
	clierrors "github.com/randalmurphal/artifetch/errors"
	"github.com/randalmurphal/artifetch/fetch"
	"github.com/randalmurphal/artifetch/gitlab"
	ahttp "github.com/randalmurphal/artifetch/http"
	"github.com/randalmurphal/artifetch/notify"
	"github.com/randalmurphal/artifetch/report"
	"github.com/randalmurphal/artifetch/resolve"
	"github.com/randalmurphal/artifetch/store"
)

// environment is everything the commands touch outside the process.
type environment struct {
	fs     afero.Fs
	getenv func(string) string
	stdout io.Writer
	stderr io.Writer

	// globalPath and startDir override config file discovery.
	globalPath string
	startDir   string
}

func defaultEnvironment() *environment {
	return &environment{
		fs:     afero.NewOsFs(),
		getenv: os.Getenv,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
}

func (e *environment) resolver(logger *slog.Logger) *config.Resolver {
	return config.NewResolver(config.ResolverConfig{
		Fs:         e.fs,
		GlobalPath: e.globalPath,
		StartDir:   e.startDir,
		Getenv:     e.getenv,
		Logger:     logger,
	})
}

// runOptions holds the flags of the root command.
type runOptions struct {
	targetsPath string
	clean       bool
	extract     bool
	convert     bool
	bundle      bool
	jsonOutput  bool
	quiet       bool

	// settings flags, passed to the resolver by key
	outputDir  string
	baseURL    string
	tokenType  string
	workers    int
	timeout    time.Duration
	retries    int
	webhookURL string
	logLevel   string
}

func newRootCommand(env *environment) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "artifetch --config <targets-file>",
		Short: "Download GitLab CI job artifacts for a list of pipelines",
		Long: `artifetch downloads the artifacts of named jobs from GitLab CI pipelines.

The targets file (JSON or YAML) lists what to fetch:

  [
    {"pipeline_id": 42, "project_id": 7, "pdf_prefix": "rel", "job_names": ["build-pdf"]}
  ]

Each artifact is written to <output-dir>/<pdf_prefix>_<job name>_<job id><ext>.

Credentials and settings resolve from flags, then ARTIFETCH_* and GITLAB_*
environment variables, then .artifetch.yaml in the git root, then
~/.config/artifetch/config.yaml.

Exit codes: 0 success or soft misses only, 1 failed downloads,
2 configuration error, 3 authentication failure.`,
		Version:       artifetch.Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd.Context(), env, opts, changedSettings(cmd, opts))
		},
	}
	cmd.SetOut(env.stdout)
	cmd.SetErr(env.stderr)

	flags := cmd.Flags()
	flags.StringVarP(&opts.targetsPath, "config", "c", "", "targets file (JSON or YAML)")
	flags.BoolVar(&opts.clean, "clean", false, "remove earlier downloads of the listed jobs and their bundles first")
	flags.BoolVar(&opts.extract, "extract", false, "unpack zip artifacts next to the archive")
	flags.BoolVar(&opts.convert, "convert", false, "render extracted JSON and XML files as PDFs (implies --extract)")
	flags.BoolVar(&opts.bundle, "bundle", false, "zip each target's PDFs into <pdf_prefix>_reports.zip")
	flags.BoolVar(&opts.jsonOutput, "json", false, "print the report as JSON")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "no progress bar and no summary table")

	flags.StringVarP(&opts.outputDir, "output-dir", "o", "", "output directory (default \"artifacts\")")
	flags.StringVar(&opts.baseURL, "base-url", "", "GitLab API root, e.g. https://gitlab.example.com/api/v4")
	flags.StringVar(&opts.tokenType, "token-type", "", "token header: private, oauth, or job")
	flags.IntVarP(&opts.workers, "workers", "w", 0, "concurrent downloads per target, 1-8 (default 1)")
	flags.DurationVar(&opts.timeout, "timeout", 0, "per-request timeout (default 30s)")
	flags.IntVar(&opts.retries, "retries", 0, "attempts per request (default 3)")
	flags.StringVar(&opts.webhookURL, "webhook-url", "", "POST the run report to this URL when done")
	flags.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn, or error (default warn)")
	cmd.MarkFlagRequired("config")

	cmd.AddCommand(newConfigCommand(env))

	return cmd
}

// changedSettings returns the settings flags the user set, keyed like the
// config files.
func changedSettings(cmd *cobra.Command, opts *runOptions) map[string]string {
	flags := map[string]string{}
	set := func(name, key, value string) {
		if cmd.Flags().Changed(name) {
			flags[key] = value
		}
	}
	set("output-dir", config.KeyOutputDir, opts.outputDir)
	set("base-url", config.KeyBaseURL, opts.baseURL)
	set("token-type", config.KeyTokenType, opts.tokenType)
	set("workers", config.KeyWorkers, strconv.Itoa(opts.workers))
	set("timeout", config.KeyTimeout, opts.timeout.String())
	set("retries", config.KeyRetries, strconv.Itoa(opts.retries))
	set("webhook-url", config.KeyWebhookURL, opts.webhookURL)
	set("log-level", config.KeyLogLevel, opts.logLevel)
	return flags
}

func runFetch(ctx context.Context, env *environment, opts *runOptions, flags map[string]string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	resolver := env.resolver(discardLogger())
	settings, err := resolver.Resolve(flags).Settings()
	if err != nil {
		return clierrors.NewConfigError(err)
	}

	logger := slog.New(slog.NewTextHandler(env.stderr, &slog.HandlerOptions{Level: settings.LogLevel}))
	for _, w := range resolver.Warnings {
		logger.Warn("config", "warning", w)
	}

	targets, err := config.LoadTargetsFs(env.fs, opts.targetsPath)
	if err != nil {
		return clierrors.NewConfigError(err)
	}

	client, err := gitlab.New(gitlab.Config{
		BaseURL:   settings.BaseURL,
		Token:     settings.Token,
		TokenType: gitlab.TokenType(settings.TokenType),
		Timeout:   settings.Timeout,
		Retry: ahttp.RetryPolicy{
			MaxAttempts: settings.Retries,
			OnRetry: func(attempt int, wait time.Duration, err error) {
				logger.Debug("retrying request", "attempt", attempt, "wait", wait, "error", err)
			},
		},
		Logger: logger,
	})
	if err != nil {
		return clierrors.WrapAuthError(err)
	}

	orchestrator := fetch.New(fetch.Options{
		Client:     client,
		Resolver:   resolve.New(client),
		Store:      store.New(store.Options{Fs: env.fs}),
		OutputRoot: settings.OutputDir,
		Workers:    settings.Workers,
		Extract:    opts.extract,
		Convert:    opts.convert,
		Bundle:     opts.bundle,
		Notifier:   notifiers(env, opts, settings, logger),
		Logger:     logger,
	})

	if opts.clean {
		n, err := orchestrator.Clean(targets)
		if err != nil {
			return err
		}
		logger.Info("cleaned output directory", "dir", settings.OutputDir, "removed", n)
	}

	rpt, runErr := orchestrator.Run(ctx, targets)

	var renderErr error
	switch {
	case opts.jsonOutput:
		renderErr = report.WriteJSON(env.stdout, rpt)
	case !opts.quiet:
		renderErr = report.WriteTable(env.stdout, rpt)
	}

	return outcomeError(rpt, runErr, settings.BaseURL, renderErr)
}

func notifiers(env *environment, opts *runOptions, settings config.Settings, logger *slog.Logger) notify.Notifier {
	all := []notify.Notifier{notify.NewLogNotifier(logger)}

	if f, ok := env.stderr.(*os.File); ok && !opts.quiet && !opts.jsonOutput && notify.IsTerminal(f) {
		all = append(all, notify.NewProgressNotifier(f))
	}
	if settings.WebhookURL != "" {
		all = append(all, notify.NewWebhookNotifier(settings.WebhookURL, map[string]string{
			"User-Agent": artifetch.UserAgent(),
		}))
	}
	if settings.SlackURL != "" {
		all = append(all, notify.NewSlackNotifier(settings.SlackURL))
	}

	multi := notify.NewMultiNotifier(all...)
	multi.Logger = logger
	return multi
}

// outcomeError picks the error that decides the exit code.
func outcomeError(rpt *fetch.Report, runErr error, baseURL string, renderErr error) error {
	if runErr != nil {
		if ahttp.IsAuthFailure(runErr) {
			return clierrors.WrapAuthError(runErr)
		}
		return clierrors.WrapConnectionError(runErr, baseURL)
	}

	var entryErrs error
	for _, t := range rpt.Targets {
		if t.Err != nil {
			entryErrs = multierr.Append(entryErrs, t.Err)
		}
	}
	if entryErrs != nil {
		return clierrors.NewConfigError(entryErrs)
	}

	if totals := rpt.Totals(); totals.Failed > 0 {
		return clierrors.NewPartialFailureError(totals.Failed, totals.Downloaded+totals.Unavailable+totals.Failed)
	}

	if renderErr != nil {
		return fmt.Errorf("write report: %w", renderErr)
	}
	return nil
}
