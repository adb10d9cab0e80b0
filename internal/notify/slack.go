package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/soochol/chatflow/internal/chatflow"
)

// HandoffNotifier posts a Slack incoming-webhook message whenever a
// conversation is transferred to a human agent.
type HandoffNotifier struct {
	WebhookURL string
	Client     *http.Client
}

// Run consumes events until the channel closes. Pair it with
// events.Bus.Channel so Slack calls happen off the executor's goroutine.
func (n *HandoffNotifier) Run(ctx context.Context, ch <-chan chatflow.Event) {
	for ev := range ch {
		if !isHandoff(ev) {
			continue
		}
		if err := n.Notify(ctx, ev); err != nil {
			slog.Warn("handoff notification failed", "tenant", ev.TenantID, "contact", ev.ContactID, "err", err)
		}
	}
}

func isHandoff(ev chatflow.Event) bool {
	if ev.Type != chatflow.EventConversationEnd {
		return false
	}
	status, _ := ev.Payload["status"].(string)
	return status == string(chatflow.ConversationTransferred)
}

// Notify sends one handoff alert.
func (n *HandoffNotifier) Notify(ctx context.Context, ev chatflow.Event) error {
	text := fmt.Sprintf("Contact %s (tenant %s) asked for an agent in flow %s at node %s.",
		ev.ContactID, ev.TenantID, ev.FlowID, ev.NodeID)
	body, _ := json.Marshal(map[string]string{"text": text})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("slack send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("slack API returned %d", resp.StatusCode)
	}
	return nil
}
