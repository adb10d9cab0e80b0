// Package notify delivers outbound messages and handoff alerts over HTTP.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/soochol/chatflow/internal/chatflow"
	"github.com/soochol/chatflow/internal/chatflow/ports"
)

var _ ports.Sender = (*WebhookSender)(nil)

// WebhookSender posts every outbound message as JSON to a messaging
// gateway. Status codes are kept in the error text so transient ones can
// be retried.
type WebhookSender struct {
	URL    string
	Token  string
	Client *http.Client
}

func NewWebhookSender(url, token string, timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSender{URL: url, Token: token, Client: &http.Client{Timeout: timeout}}
}

// NewOAuthWebhookSender authenticates against the gateway with the OAuth2
// client credentials grant. Tokens are fetched and refreshed on demand.
func NewOAuthWebhookSender(ctx context.Context, url string, cc *clientcredentials.Config, timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := cc.Client(ctx)
	client.Timeout = timeout
	return &WebhookSender{URL: url, Client: client}
}

func (s *WebhookSender) Send(ctx context.Context, msg chatflow.Outbound) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal outbound: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("gateway returned %d", resp.StatusCode)
	}
	return nil
}
