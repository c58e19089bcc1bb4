package notify

import (
	"context"
	"log/slog"
	"sync"

	"go.uber.org/multierr"
)

// =============================================================================
// MultiNotifier
// =============================================================================

// MultiNotifier sends every event to each of its notifiers in order.
type MultiNotifier struct {
	Notifiers []Notifier
	Logger    *slog.Logger

	mu sync.Mutex
}

// NewMultiNotifier fans out to notifiers, skipping nils. Errors from one
// notifier are logged and do not stop the others.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	m := &MultiNotifier{Logger: slog.Default()}
	for _, n := range notifiers {
		if n != nil {
			m.Notifiers = append(m.Notifiers, n)
		}
	}
	return m
}

// Notify implements Notifier. Events are delivered one at a time so
// notifiers see them in the order they were sent.
func (n *MultiNotifier) Notify(ctx context.Context, event Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	var errs error
	for _, notifier := range n.Notifiers {
		if err := notifier.Notify(ctx, event); err != nil {
			errs = multierr.Append(errs, err)
			if n.Logger != nil {
				n.Logger.Warn("notifier failed",
					"error", err,
					"event_type", event.Type,
				)
			}
		}
	}
	return errs
}

// =============================================================================
// NopNotifier
// =============================================================================

// NopNotifier discards all events.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(ctx context.Context, event Event) error {
	return nil
}
