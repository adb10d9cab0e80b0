package runtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/soochol/chatflow/internal/chatflow"
)

// LogSender writes outbound messages to the structured log. It stands in
// for a messaging transport.
type LogSender struct{}

func (LogSender) Send(_ context.Context, msg chatflow.Outbound) error {
	slog.Info("outbound message",
		"tenant", msg.TenantID,
		"contact", msg.ContactID,
		"flow", msg.FlowID,
		"node", msg.NodeID,
		"kind", msg.Kind,
		"text", msg.Text,
	)
	return nil
}

// RecordingSender keeps every outbound message in memory.
type RecordingSender struct {
	mu   sync.Mutex
	sent []chatflow.Outbound
	// Err, when set, is returned by Send instead of recording.
	Err error
}

func (r *RecordingSender) Send(_ context.Context, msg chatflow.Outbound) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sent = append(r.sent, msg)
	return nil
}

// Sent returns a copy of the recorded messages.
func (r *RecordingSender) Sent() []chatflow.Outbound {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]chatflow.Outbound, len(r.sent))
	copy(out, r.sent)
	return out
}

// Reset discards recorded messages.
func (r *RecordingSender) Reset() {
	r.mu.Lock()
	r.sent = nil
	r.mu.Unlock()
}
