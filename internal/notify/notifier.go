package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sheetpulse/sheetpulse/internal/config"
)

const defaultTimeout = 10 * time.Second

// Notifier posts cards to the configured webhook targets.
type Notifier struct {
	client *http.Client

	mu       sync.RWMutex
	webhooks []config.WebhookConfig
}

// New returns a Notifier for webhooks. A nil client gets a 10s timeout client.
func New(webhooks []config.WebhookConfig, client *http.Client) *Notifier {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Notifier{client: client, webhooks: webhooks}
}

// SetWebhooks replaces the delivery targets, e.g. after a config reload.
func (n *Notifier) SetWebhooks(webhooks []config.WebhookConfig) {
	n.mu.Lock()
	n.webhooks = webhooks
	n.mu.Unlock()
}

// Webhooks returns the current delivery targets.
func (n *Notifier) Webhooks() []config.WebhookConfig {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.webhooks
}

// Deliver sends c to every configured target and returns how many accepted it.
// Errors are logged but do not affect the caller.
func (n *Notifier) Deliver(ctx context.Context, c *Card) int {
	return n.DeliverAll(ctx, n.Webhooks(), c)
}

// DeliverAll sends c to each of targets. Targets without an endpoint are skipped.
func (n *Notifier) DeliverAll(ctx context.Context, targets []config.WebhookConfig, c *Card) int {
	delivered := 0
	for _, wh := range targets {
		url := wh.Endpoint()
		if url == "" {
			continue
		}
		if err := n.Send(ctx, wh.Type, url, c); err != nil {
			slog.Error("notify: webhook delivery failed",
				"type", wh.Type,
				"business", c.Business,
				"err", err,
			)
			continue
		}
		delivered++
		slog.Debug("notify: webhook delivered",
			"type", wh.Type,
			"business", c.Business,
			"status", c.Status,
		)
	}
	return delivered
}

// Send renders c for typ and posts it to url.
func (n *Notifier) Send(ctx context.Context, typ, url string, c *Card) error {
	body, err := Render(typ, c)
	if err != nil {
		return err
	}
	return n.post(ctx, url, body)
}

func (n *Notifier) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}
