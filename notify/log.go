package notify

import (
	"context"
	"log/slog"
)

// =============================================================================
// LogNotifier
// =============================================================================

// LogNotifier writes events to slog, with severity mapped to level.
// Job events log at debug unless they failed.
type LogNotifier struct {
	Logger *slog.Logger
}

// NewLogNotifier creates a notifier that logs to the given logger.
// If logger is nil, uses the default slog logger.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{Logger: logger}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(ctx context.Context, event Event) error {
	level := slog.LevelInfo
	switch event.Severity {
	case SeverityWarning:
		level = slog.LevelWarn
	case SeverityError:
		level = slog.LevelError
	default:
		if event.Type == EventJobDownloaded || event.Type == EventTargetStarted {
			level = slog.LevelDebug
		}
	}

	attrs := []any{"type", event.Type, "run_id", event.RunID}
	if event.Target >= 0 {
		attrs = append(attrs, "target", event.Target)
	}
	if event.ProjectID != "" {
		attrs = append(attrs, "project_id", event.ProjectID, "pipeline_id", event.PipelineID)
	}
	if event.JobID != 0 {
		attrs = append(attrs, "job_name", event.JobName, "job_id", event.JobID)
	}
	if event.Bytes != 0 {
		attrs = append(attrs, "bytes", event.Bytes)
	}
	for k, v := range event.Metadata {
		attrs = append(attrs, k, v)
	}

	n.Logger.Log(ctx, level, event.Message, attrs...)
	return nil
}
