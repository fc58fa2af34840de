// Package webhook delivers extraction events to subscriber endpoints with
// HMAC-signed payloads and retries.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"golang.org/x/sync/errgroup"
)

// Event types a webhook endpoint can subscribe to.
const (
	EventEmailProcessed = "email_processed"
	EventFilterUpdated  = "filter_updated"
	EventAll            = "all"
)

// Endpoint is a single webhook subscriber.
type Endpoint struct {
	ID         string   `json:"id"`
	URL        string   `json:"url"`
	Secret     string   `json:"secret,omitempty"`
	EventTypes []string `json:"event_types"`
	Disabled   bool     `json:"disabled,omitempty"`
}

// subscribed reports whether the endpoint wants the given event.
func (e *Endpoint) subscribed(event string) bool {
	for _, t := range e.EventTypes {
		if t == event || t == EventAll {
			return true
		}
	}
	return false
}

// payload is the JSON body sent to endpoints.
type payload struct {
	Event     string `json:"event"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// Config holds notifier configuration.
type Config struct {
	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration
	// Attempts is the number of delivery attempts per endpoint.
	Attempts uint
	// RetryDelay is the base delay between attempts; backoff doubles it.
	RetryDelay time.Duration
}

// Notifier sends signed event notifications to webhook endpoints.
type Notifier struct {
	client     *http.Client
	attempts   uint
	retryDelay time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a Notifier.
func New(cfg Config, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 5 * time.Second
	}

	return &Notifier{
		client:     &http.Client{Timeout: cfg.Timeout},
		attempts:   cfg.Attempts,
		retryDelay: cfg.RetryDelay,
		logger:     logger,
		now:        time.Now,
	}
}

// Signature returns the hex-encoded HMAC-SHA256 of body under secret.
// An empty secret yields an empty signature.
func Signature(body []byte, secret string) string {
	if secret == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Notify delivers one event to one endpoint. Disabled endpoints and
// unsubscribed events are skipped without error.
func (n *Notifier) Notify(ctx context.Context, ep *Endpoint, event string, data any) error {
	if ep.Disabled {
		n.logger.Debug("webhook disabled, skipping", "webhook_id", ep.ID)
		return nil
	}
	if !ep.subscribed(event) {
		n.logger.Debug("event not subscribed, skipping", "webhook_id", ep.ID, "event", event)
		return nil
	}

	body, err := json.Marshal(payload{
		Event:     event,
		Timestamp: n.now().Unix(),
		Data:      data,
	})
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	signature := Signature(body, ep.Secret)

	err = retry.Do(
		func() error {
			return n.post(ctx, ep.URL, body, signature)
		},
		retry.Context(ctx),
		retry.Attempts(n.attempts),
		retry.Delay(n.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("delivering webhook %s: %w", ep.ID, err)
	}

	n.logger.Info("webhook notification sent", "webhook_id", ep.ID, "event", event)
	return nil
}

// NotifyAll fans one event out to every endpoint in parallel and returns
// per-endpoint delivery errors keyed by endpoint ID. A failed endpoint never
// blocks the others.
func (n *Notifier) NotifyAll(ctx context.Context, endpoints []*Endpoint, event string, data any) map[string]error {
	results := make(map[string]error, len(endpoints))
	if len(endpoints) == 0 {
		return results
	}

	var mu sync.Mutex
	var g errgroup.Group
	for _, ep := range endpoints {
		ep := ep
		g.Go(func() error {
			err := n.Notify(ctx, ep, event, data)
			mu.Lock()
			results[ep.ID] = err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (n *Notifier) post(ctx context.Context, url string, body []byte, signature string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "mailscout-webhook")
	if signature != "" {
		req.Header.Set("X-Webhook-Signature", signature)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
