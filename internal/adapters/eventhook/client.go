// Package eventhook forwards payment events to the commerce backend over HTTP.
package eventhook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/fitstack/checkout-gateways/internal/core/domain"
	"github.com/fitstack/checkout-gateways/internal/core/ports"
)

// HeaderSecret carries the shared secret the backend checks.
const HeaderSecret = "X-Webhook-Secret"

// Client implements ports.EventPublisher.
type Client struct {
	url       string
	secret    string
	transport ports.Transport
}

var _ ports.EventPublisher = (*Client)(nil)

// NewClient creates a client posting to url.
func NewClient(url, secret string, transport ports.Transport) *Client {
	return &Client{
		url:       strings.TrimRight(url, "/"),
		secret:    secret,
		transport: transport,
	}
}

// Publish sends the event as JSON.
// POST <url>
func (c *Client) Publish(ctx context.Context, event domain.PaymentEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return domain.NewServiceError(domain.ErrEventDelivery,
			"failed to marshal payload", "MARSHAL_ERROR")
	}

	header := http.Header{"Content-Type": {"application/json"}}
	if c.secret != "" {
		header.Set(HeaderSecret, c.secret)
	}

	resp, err := c.transport.Do(ctx, &domain.HTTPRequest{
		Method: http.MethodPost,
		URL:    c.url,
		Header: header,
		Body:   body,
	})
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.NewServiceError(domain.ErrEventDelivery,
			fmt.Sprintf("backend returned status %d: %s", resp.StatusCode, string(resp.Body)),
			"BACKEND_ERROR")
	}
	return nil
}
