package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const webhookTimeout = 5 * time.Second

// WebhookNotifier POSTs each event as a JSON document to a single operator
// endpoint. Delivery runs detached from the caller's context so a fatal stop
// alert still goes out while the rest of the process is tearing down.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

var _ Notifier = (*WebhookNotifier)(nil)

func NewWebhookNotifier(url string, logger *slog.Logger) *WebhookNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: webhookTimeout},
		logger: logger.With("component", "notify"),
	}
}

type webhookPayload struct {
	Event     Event          `json:"event"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

func (n *WebhookNotifier) Notify(_ context.Context, event Event, details map[string]any) {
	if n.url == "" {
		return
	}
	payload := webhookPayload{Event: event, Details: details, Timestamp: time.Now().UTC()}
	go n.deliver(payload)
}

func (n *WebhookNotifier) deliver(payload webhookPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Warn("webhook payload marshal failed", "event", string(payload.Event), "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		n.logger.Warn("webhook request build failed", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("webhook delivery failed", "event", string(payload.Event), "error", err)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		n.logger.Warn("webhook rejected", "event", string(payload.Event), "status", resp.StatusCode)
	}
}
