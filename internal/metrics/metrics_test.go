package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soochol/chatflow/internal/chatflow"
	"github.com/soochol/chatflow/internal/events"
)

func TestMetrics_ObservesBusEvents(t *testing.T) {
	m := New()
	bus := events.NewBus()
	detach := m.Attach(bus)

	bus.Publish(chatflow.Event{Type: chatflow.EventConversationStart, TenantID: "t1"})
	bus.Publish(chatflow.Event{Type: chatflow.EventConversationStep, NodeType: chatflow.NodeTypeTextMessage})
	bus.Publish(chatflow.Event{Type: chatflow.EventConversationStep, NodeType: chatflow.NodeTypeTextMessage})
	bus.Publish(chatflow.Event{Type: chatflow.EventConversationFail, TenantID: "t1",
		Payload: map[string]any{"kind": string(chatflow.ExecStepBudget)}})
	bus.Publish(chatflow.Event{Type: chatflow.EventWaitResolved, Payload: map[string]any{"outcome": "timeout"}})
	bus.Publish(chatflow.Event{Type: chatflow.EventPublishRefused, TenantID: "t1"})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.conversationsStarted.WithLabelValues("t1")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.steps.WithLabelValues(string(chatflow.NodeTypeTextMessage))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.conversationsFailed.WithLabelValues("t1", "step_budget")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.waitsResolved.WithLabelValues("timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.publishes.WithLabelValues("refused")))

	detach()
	bus.Publish(chatflow.Event{Type: chatflow.EventConversationStart, TenantID: "t1"})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.conversationsStarted.WithLabelValues("t1")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Observe(chatflow.Event{Type: chatflow.EventMessageSent, TenantID: "t1"})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `chatflow_messages_sent_total{tenant="t1"} 1`)
}
