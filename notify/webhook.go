package notify

import (
	"context"
	"fmt"

	ahttp "github.com/randalmurphal/artifetch/http"
)

// =============================================================================
// WebhookNotifier
// =============================================================================

// WebhookNotifier POSTs terminal events, report included, to a URL as JSON.
// Per-job events are not sent.
type WebhookNotifier struct {
	URL    string
	Client *ahttp.Client
}

// NewWebhookNotifier creates a webhook notifier. Transient failures are
// retried with the default policy.
func NewWebhookNotifier(url string, headers map[string]string) *WebhookNotifier {
	return &WebhookNotifier{
		URL: url,
		Client: ahttp.NewClient(ahttp.ClientConfig{
			ServiceName: "webhook",
			Headers:     headers,
		}),
	}
}

// Notify implements Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	if !event.Terminal() {
		return nil
	}
	if err := n.Client.PostJSON(ctx, n.URL, event); err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	return nil
}
