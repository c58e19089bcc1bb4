package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

const progressBarWidth = 20

// =============================================================================
// ProgressNotifier
// =============================================================================

// ProgressNotifier draws one progress bar per target, counting finished
// downloads.
type ProgressNotifier struct {
	writer io.Writer

	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

// NewProgressNotifier draws to w.
func NewProgressNotifier(w io.Writer) *ProgressNotifier {
	return &ProgressNotifier{writer: w}
}

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Notify implements Notifier.
func (n *ProgressNotifier) Notify(_ context.Context, event Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch event.Type {
	case EventTargetStarted:
		n.finish()
		if event.Total == 0 {
			return nil
		}
		n.bar = progressbar.NewOptions(event.Total,
			progressbar.OptionSetWriter(n.writer),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionSetWidth(progressBarWidth),
			progressbar.OptionSetDescription(fmt.Sprintf("[cyan]target %d[reset] pipeline %d", event.Target, event.PipelineID)),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(false),
		)

	case EventJobDownloaded, EventJobFailed, EventJobUnavailable:
		if n.bar == nil || event.Miss {
			return nil
		}
		return n.bar.Add(1)

	case EventTargetCompleted, EventRunCompleted, EventRunAborted:
		n.finish()
	}
	return nil
}

func (n *ProgressNotifier) finish() {
	if n.bar == nil {
		return
	}
	n.bar.Finish()
	fmt.Fprintln(n.writer)
	n.bar = nil
}
