// Package webhook posts notifications to HTTP endpoints.
package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/AshkanYarmoradi/go-dugout/notify"
)

var _ notify.Publisher = (*Publisher)(nil)

// Publisher sends each message as an HTTP POST.
// Destination format: "webhook:https://example.com/score".
type Publisher struct {
	client         *http.Client
	defaultHeaders map[string]string
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Publisher) {
		p.client = client
	}
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Publisher) {
		p.client.Timeout = d
	}
}

// WithDefaultHeaders adds headers to every request.
func WithDefaultHeaders(headers map[string]string) Option {
	return func(p *Publisher) {
		for k, v := range headers {
			p.defaultHeaders[k] = v
		}
	}
}

// New creates a Publisher with a 10s timeout.
func New(opts ...Option) *Publisher {
	p := &Publisher{
		client: &http.Client{Timeout: 10 * time.Second},
		defaultHeaders: map[string]string{
			"Content-Type": "application/json",
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Destination implements notify.Publisher.
func (p *Publisher) Destination() string {
	return "webhook"
}

// Publish posts messages in order and stops at the first failure.
func (p *Publisher) Publish(ctx context.Context, messages []*notify.Message) error {
	for _, msg := range messages {
		url := notify.TrimPrefix(msg.Destination, "webhook")
		if url == "" {
			return fmt.Errorf("webhook: invalid destination %q: missing URL", msg.Destination)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(msg.Payload))
		if err != nil {
			return fmt.Errorf("webhook: failed to create request: %w", err)
		}
		for k, v := range p.defaultHeaders {
			req.Header.Set(k, v)
		}
		for k, v := range msg.Headers {
			req.Header.Set("X-Dugout-"+k, v)
		}
		if msg.ID != "" {
			req.Header.Set("X-Dugout-Delivery", msg.ID)
		}

		resp, err := p.client.Do(req)
		if err != nil {
			return fmt.Errorf("webhook: request failed for %s: %w", url, err)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("webhook: server error %d from %s", resp.StatusCode, url)
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("webhook: client error %d from %s", resp.StatusCode, url)
		}
	}
	return nil
}
