// Package fetch drives a run: for each target it resolves the requested job
// names, downloads every resolved job's archive, and writes it to the store.
//
// Targets are processed in order. Downloads of one target may fan out over
// a bounded pool of workers; outcomes are still reported in resolver order.
// An authentication failure anywhere aborts the run: work already in flight
// finishes, everything else is recorded as failed or skipped.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kushsharma/parallel"
	nanoid "github.com/matoous/go-nanoid/v2"

	"github.com/randalmurphal/artifetch/config"
	"github.com/randalmurphal/artifetch/gitlab"
	ahttp "github.com/randalmurphal/artifetch/http"
	"github.com/randalmurphal/artifetch/notify"
	"github.com/randalmurphal/artifetch/resolve"
	"github.com/randalmurphal/artifetch/store"
)

// MaxWorkers caps concurrent downloads per target.
const MaxWorkers = 8

const runIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Outcome reasons.
const (
	ReasonPipelineNotFound = "pipeline not found"
	ReasonArtifactNotFound = "artifact not found (expired or removed)"
	ReasonAborted          = "not attempted: run aborted"
)

// ArtifactClient downloads job archives.
type ArtifactClient interface {
	DownloadJobArtifact(ctx context.Context, projectID string, jobID int) (*gitlab.Artifact, error)
}

// JobResolver matches job names against a pipeline. *resolve.Resolver
// implements it.
type JobResolver interface {
	Resolve(ctx context.Context, projectID string, pipelineID int, names []string) (*resolve.Result, error)
}

// Options configures an Orchestrator.
type Options struct {
	Client   ArtifactClient
	Resolver JobResolver
	Store    *store.Store

	// OutputRoot is the directory artifacts are written to.
	OutputRoot string

	// Workers bounds concurrent downloads within a target. Values below 1
	// mean sequential; values above MaxWorkers are capped.
	Workers int

	// Extract unpacks zip artifacts into a directory next to the archive.
	Extract bool

	// Convert renders extracted JSON and XML files as PDFs next to them.
	// It implies Extract.
	Convert bool

	// Bundle zips each target's PDFs into <OutputRoot>/<prefix>_reports.zip.
	Bundle bool

	// Notifier receives run events. Defaults to notify.NopNotifier.
	Notifier notify.Notifier

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// RunID tags the run. Generated when empty.
	RunID string
}

// Orchestrator runs targets through resolve, download and write.
type Orchestrator struct {
	client   ArtifactClient
	resolver JobResolver
	store    *store.Store
	root     string
	workers  int
	extract  bool
	convert  bool
	bundle   bool
	notifier notify.Notifier
	logger   *slog.Logger
	runID    string
}

// New creates an Orchestrator. Client, Resolver and Store are required.
func New(opts Options) *Orchestrator {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > MaxWorkers {
		workers = MaxWorkers
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	runID := opts.RunID
	if runID == "" {
		runID = newRunID()
	}

	return &Orchestrator{
		client:   opts.Client,
		resolver: opts.Resolver,
		store:    opts.Store,
		root:     opts.OutputRoot,
		workers:  workers,
		extract:  opts.Extract || opts.Convert,
		convert:  opts.Convert,
		bundle:   opts.Bundle,
		notifier: notifier,
		logger:   logger,
		runID:    runID,
	}
}

// RunID returns the id events and the report are tagged with.
func (o *Orchestrator) RunID() string {
	return o.runID
}

func newRunID() string {
	id, err := nanoid.Generate(runIDAlphabet, 12)
	if err != nil {
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return id
}

// =============================================================================
// Abort State
// =============================================================================

// abortState is shared by the workers of one run. The flag is checked
// between jobs; nothing is interrupted mid-write.
type abortState struct {
	flag atomic.Bool

	mu    sync.Mutex
	cause error
}

func (a *abortState) abort(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cause == nil {
		a.cause = err
	}
	a.flag.Store(true)
}

func (a *abortState) aborted() bool {
	return a.flag.Load()
}

func (a *abortState) err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cause
}

// check aborts on cancellation so callers only need to test the flag.
func (a *abortState) check(ctx context.Context) bool {
	if err := ctx.Err(); err != nil {
		a.abort(err)
	}
	return a.aborted()
}

// fatal reports whether err must stop the run.
func fatal(ctx context.Context, err error) bool {
	if ahttp.IsAuthFailure(err) {
		return true
	}
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}

// =============================================================================
// Run
// =============================================================================

// Run processes targets in order and returns the report. If the run aborts,
// the partial report is returned with an error wrapping the cause.
func (o *Orchestrator) Run(ctx context.Context, targets []config.Target) (*Report, error) {
	report := &Report{RunID: o.runID, StartedAt: time.Now().UTC()}
	state := &abortState{}

	o.emit(ctx, notify.Event{
		Type:     notify.EventRunStarted,
		Target:   -1,
		Total:    len(targets),
		Severity: notify.SeverityInfo,
		Message:  fmt.Sprintf("starting run over %d targets", len(targets)),
	})

	for _, target := range targets {
		if state.check(ctx) {
			report.Targets = append(report.Targets, &TargetReport{
				Target:    target,
				Requested: len(resolve.Match(nil, target.JobNames).Requested),
				Skipped:   true,
			})
			continue
		}
		report.Targets = append(report.Targets, o.runTarget(ctx, state, target))
	}
	report.FinishedAt = time.Now().UTC()

	totals := report.Totals()
	metadata := map[string]any{
		"requested":   totals.Requested,
		"downloaded":  totals.Downloaded,
		"unavailable": totals.Unavailable,
		"failed":      totals.Failed,
	}

	if cause := state.err(); cause != nil {
		report.Aborted = true
		report.AbortErr = cause
		report.AbortReason = cause.Error()

		// Detached so a canceled run still reports its abort.
		o.emit(context.WithoutCancel(ctx), notify.Event{
			Type:     notify.EventRunAborted,
			Target:   -1,
			Severity: notify.SeverityError,
			Message:  fmt.Sprintf("run aborted: %v", cause),
			Metadata: metadata,
			Report:   report,
		})
		return report, fmt.Errorf("run aborted: %w", cause)
	}

	severity := notify.SeverityInfo
	if totals.Failed > 0 || report.ConfigErrors() > 0 {
		severity = notify.SeverityWarning
	}
	o.emit(ctx, notify.Event{
		Type:     notify.EventRunCompleted,
		Target:   -1,
		Severity: severity,
		Message: fmt.Sprintf("%d downloaded, %d unavailable, %d failed",
			totals.Downloaded, totals.Unavailable, totals.Failed),
		Metadata: metadata,
		Report:   report,
	})
	return report, nil
}

func (o *Orchestrator) runTarget(ctx context.Context, state *abortState, target config.Target) *TargetReport {
	tr := &TargetReport{Target: target}

	if target.Err != nil {
		tr.Err = target.Err
		tr.Error = target.Err.Error()
		o.emit(ctx, o.targetEvent(target, notify.Event{
			Type:     notify.EventTargetCompleted,
			Severity: notify.SeverityError,
			Message:  tr.Error,
		}))
		return tr
	}

	projectID := target.ProjectID.String()
	result, err := o.resolver.Resolve(ctx, projectID, target.Pipeline(), target.JobNames)
	if err != nil {
		o.listingFailed(ctx, state, tr, err)
		o.finishTarget(ctx, tr)
		return tr
	}

	tr.Requested = len(result.Requested)
	tr.Resolved = len(result.Jobs)

	o.emit(ctx, o.targetEvent(target, notify.Event{
		Type:     notify.EventTargetStarted,
		Total:    len(result.Jobs),
		Severity: notify.SeverityInfo,
		Message: fmt.Sprintf("pipeline %d: %d of %d names resolved to %d jobs",
			target.Pipeline(), tr.Requested-countNoMatch(result.Misses), tr.Requested, tr.Resolved),
	}))

	tr.Outcomes = append(o.downloadAll(ctx, state, target, result.Jobs), o.misses(ctx, target, result.Misses)...)

	if o.bundle && !state.aborted() {
		o.bundleTarget(tr)
	}

	o.finishTarget(ctx, tr)
	return tr
}

func countNoMatch(misses []resolve.Miss) int {
	n := 0
	for _, m := range misses {
		if m.Reason == resolve.ReasonNoMatch {
			n++
		}
	}
	return n
}

// listingFailed records one outcome per requested name when the pipeline
// could not be listed.
func (o *Orchestrator) listingFailed(ctx context.Context, state *abortState, tr *TargetReport, err error) {
	names := resolve.Match(nil, tr.Target.JobNames).Requested
	tr.Requested = len(names)

	status, reason := StatusFailed, err.Error()
	eventType, severity := notify.EventJobFailed, notify.SeverityError
	switch {
	case fatal(ctx, err):
		state.abort(err)
	case ahttp.IsNotFound(err):
		status, reason = StatusUnavailable, ReasonPipelineNotFound
		eventType, severity = notify.EventJobUnavailable, notify.SeverityWarning
	}

	o.logger.Warn("list pipeline jobs failed",
		"project_id", tr.Target.ProjectID,
		"pipeline_id", tr.Target.Pipeline(),
		"error", err,
	)

	for _, name := range names {
		out := Outcome{Target: tr.Target.Index, JobName: name, Status: status, Err: err, Reason: reason}
		tr.Outcomes = append(tr.Outcomes, out)
		o.emit(ctx, o.targetEvent(tr.Target, notify.Event{
			Type:     eventType,
			JobName:  name,
			Severity: severity,
			Miss:     true,
			Message:  fmt.Sprintf("%s: %s", name, reason),
		}))
	}
}

func (o *Orchestrator) misses(ctx context.Context, target config.Target, misses []resolve.Miss) []Outcome {
	outcomes := make([]Outcome, 0, len(misses))
	for _, m := range misses {
		outcomes = append(outcomes, Outcome{
			Target:  target.Index,
			JobName: m.Name,
			JobID:   m.JobID,
			Status:  StatusUnavailable,
			Err:     errors.New(m.String()),
			Reason:  m.Reason,
		})
		o.emit(ctx, o.targetEvent(target, notify.Event{
			Type:     notify.EventJobUnavailable,
			JobName:  m.Name,
			JobID:    m.JobID,
			Severity: notify.SeverityWarning,
			Miss:     true,
			Message:  m.String(),
		}))
	}
	return outcomes
}

func (o *Orchestrator) finishTarget(ctx context.Context, tr *TargetReport) {
	c := tr.Counts()
	severity := notify.SeverityInfo
	if c.Failed > 0 {
		severity = notify.SeverityWarning
	}
	o.emit(ctx, o.targetEvent(tr.Target, notify.Event{
		Type:     notify.EventTargetCompleted,
		Severity: severity,
		Message: fmt.Sprintf("pipeline %d: %d downloaded, %d unavailable, %d failed",
			tr.Target.Pipeline(), c.Downloaded, c.Unavailable, c.Failed),
	}))
}

// =============================================================================
// Downloads
// =============================================================================

// downloadAll returns one outcome per job, in the order of jobs.
func (o *Orchestrator) downloadAll(ctx context.Context, state *abortState, target config.Target, jobs []resolve.ResolvedJob) []Outcome {
	outcomes := make([]Outcome, len(jobs))

	if o.workers == 1 || len(jobs) < 2 {
		for i, job := range jobs {
			outcomes[i] = o.download(ctx, state, target, job)
		}
		return outcomes
	}

	runner := parallel.NewRunner(parallel.WithLimit(o.workers))
	for i, job := range jobs {
		runner.Add(func(i int, job resolve.ResolvedJob) func() (interface{}, error) {
			return func() (interface{}, error) {
				// each worker owns one index
				outcomes[i] = o.download(ctx, state, target, job)
				return nil, nil // nolint:nilnil
			}
		}(i, job))
	}
	runner.Run()

	return outcomes
}

func (o *Orchestrator) download(ctx context.Context, state *abortState, target config.Target, job resolve.ResolvedJob) Outcome {
	out := Outcome{Target: target.Index, JobName: job.Name, JobID: job.ID}

	if state.check(ctx) {
		out.Status = StatusFailed
		out.Err = state.err()
		out.Reason = ReasonAborted
		o.emitOutcome(ctx, target, out)
		return out
	}

	projectID := target.ProjectID.String()
	artifact, err := o.client.DownloadJobArtifact(ctx, projectID, job.ID)
	if err != nil {
		return o.downloadFailed(ctx, state, target, out, err)
	}

	ext := store.ExtensionFor(artifact.ContentType, artifact.Filename, job.ArtifactFilename)
	path := store.ArtifactPath(o.root, target.PDFPrefix, job.Name, job.ID, ext)

	written, err := o.store.Write(path, artifact.Body)
	if err != nil {
		return o.downloadFailed(ctx, state, target, out, err)
	}

	out.Status = StatusDownloaded
	out.Path = written.Path
	out.Size = written.Size
	out.Digest = written.Digest

	if o.extract && store.IsZip(written.Path) {
		dir := filepath.Join(o.root, store.ArtifactBase(target.PDFPrefix, job.Name, job.ID))
		n, err := o.store.Extract(written.Path, dir)
		out.Extracted = n
		if err != nil {
			out.ExtractError = err.Error()
			o.logger.Warn("extract artifact failed", "job_id", job.ID, "path", written.Path, "error", err)
		}
		if o.convert && n > 0 {
			pdfs, err := o.store.Convert(dir)
			out.Converted = len(pdfs)
			if err != nil {
				out.ConvertError = err.Error()
				o.logger.Warn("convert reports failed", "job_id", job.ID, "dir", dir, "error", err)
			}
		}
	}

	o.emitOutcome(ctx, target, out)
	return out
}

func (o *Orchestrator) downloadFailed(ctx context.Context, state *abortState, target config.Target, out Outcome, err error) Outcome {
	out.Err = err
	out.Reason = err.Error()
	out.Status = StatusFailed

	switch {
	case fatal(ctx, err):
		state.abort(err)
	case ahttp.IsNotFound(err):
		out.Status = StatusUnavailable
		out.Reason = ReasonArtifactNotFound
	}

	o.emitOutcome(ctx, target, out)
	return out
}

func (o *Orchestrator) emitOutcome(ctx context.Context, target config.Target, out Outcome) {
	event := notify.Event{JobName: out.JobName, JobID: out.JobID}
	switch out.Status {
	case StatusDownloaded:
		event.Type = notify.EventJobDownloaded
		event.Severity = notify.SeverityInfo
		event.Bytes = out.Size
		event.Message = fmt.Sprintf("downloaded %s", out.Path)
	case StatusUnavailable:
		event.Type = notify.EventJobUnavailable
		event.Severity = notify.SeverityWarning
		event.Message = fmt.Sprintf("%s (job %d): %s", out.JobName, out.JobID, out.Reason)
	default:
		event.Type = notify.EventJobFailed
		event.Severity = notify.SeverityError
		event.Message = fmt.Sprintf("%s (job %d): %s", out.JobName, out.JobID, out.Reason)
	}
	o.emit(ctx, o.targetEvent(target, event))
}

// =============================================================================
// Bundling
// =============================================================================

// bundleTarget zips the PDFs this target produced, downloaded or extracted.
func (o *Orchestrator) bundleTarget(tr *TargetReport) {
	var roots []string
	for _, out := range tr.Outcomes {
		if out.Status != StatusDownloaded {
			continue
		}
		roots = append(roots, out.Path)
		if out.Extracted > 0 {
			roots = append(roots, filepath.Join(o.root, store.ArtifactBase(tr.Target.PDFPrefix, out.JobName, out.JobID)))
		}
	}
	if len(roots) == 0 {
		return
	}

	files, err := o.store.MatchFiles(store.DefaultBundlePattern, roots...)
	if err != nil {
		tr.BundleError = err.Error()
		return
	}

	prefix := tr.Target.PDFPrefix
	if prefix != "" {
		prefix += "_"
	}
	bundlePath := filepath.Join(o.root, store.BundleName(tr.Target.PDFPrefix))
	result, n, err := o.store.BundleFiles(bundlePath, prefix, files)
	switch {
	case err != nil:
		tr.BundleError = err.Error()
		o.logger.Warn("bundle reports failed", "path", bundlePath, "error", err)
	case n > 0:
		tr.Bundle = &result
		o.logger.Info("bundled reports", "path", result.Path, "files", n)
	}
}

// =============================================================================
// Cleaning
// =============================================================================

// Clean removes what earlier runs of targets left in the output root:
// archives and extraction directories of the requested job names (any job
// id), and the targets' report bundles. Other files are kept. Targets with
// a configuration error are ignored.
func (o *Orchestrator) Clean(targets []config.Target) (int, error) {
	var patterns []string
	for _, t := range config.Valid(targets) {
		for _, name := range resolve.Match(nil, t.JobNames).Requested {
			patterns = append(patterns, store.ArtifactGlob(t.PDFPrefix, name))
		}
		patterns = append(patterns, store.BundleName(t.PDFPrefix))
	}
	if len(patterns) == 0 {
		return 0, nil
	}
	return o.store.Clean(o.root, patterns...)
}

// =============================================================================
// Events
// =============================================================================

func (o *Orchestrator) targetEvent(target config.Target, event notify.Event) notify.Event {
	event.Target = target.Index
	event.ProjectID = target.ProjectID.String()
	event.PipelineID = target.Pipeline()
	return event
}

func (o *Orchestrator) emit(ctx context.Context, event notify.Event) {
	event.RunID = o.runID
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if err := o.notifier.Notify(ctx, event); err != nil {
		o.logger.Debug("notify failed", "event_type", event.Type, "error", err)
	}
}
