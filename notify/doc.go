// Package notify delivers fetch run events.
//
// The orchestrator emits an Event for every step: run and target start,
// each job's outcome, target completion, and the end of the run. Terminal
// events (run_completed, run_aborted) carry the run report.
//
// Implementations:
//   - LogNotifier: structured slog output
//   - ProgressNotifier: a progress bar per target
//   - WebhookNotifier: POSTs terminal events as JSON
//   - SlackNotifier: posts a run summary to a Slack incoming webhook
//   - MultiNotifier: fans out to several notifiers
//   - NopNotifier: discards everything
//
// Example usage:
//
//	notifier := notify.NewMultiNotifier(
//	    notify.NewLogNotifier(logger),
//	    notify.NewWebhookNotifier(webhookURL, nil),
//	)
package notify
