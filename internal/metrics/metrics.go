// Package metrics exposes Prometheus collectors fed from domain events.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soochol/chatflow/internal/chatflow"
	"github.com/soochol/chatflow/internal/events"
)

// Metrics holds the collectors registered on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	conversationsStarted *prometheus.CounterVec
	conversationsEnded   *prometheus.CounterVec
	conversationsFailed  *prometheus.CounterVec
	steps                *prometheus.CounterVec
	messagesSent         *prometheus.CounterVec
	waitsResolved        *prometheus.CounterVec
	publishes            *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		conversationsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatflow",
			Name:      "conversations_started_total",
			Help:      "Conversations started, by tenant.",
		}, []string{"tenant"}),
		conversationsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatflow",
			Name:      "conversations_ended_total",
			Help:      "Conversations reaching a terminal status other than failed.",
		}, []string{"tenant", "status"}),
		conversationsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatflow",
			Name:      "conversations_failed_total",
			Help:      "Conversations aborted by an execution error.",
		}, []string{"tenant", "kind"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatflow",
			Name:      "steps_total",
			Help:      "Nodes executed, by node type.",
		}, []string{"node_type"}),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatflow",
			Name:      "messages_sent_total",
			Help:      "Outbound messages handed to the sender.",
		}, []string{"tenant"}),
		waitsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatflow",
			Name:      "waits_resolved_total",
			Help:      "Suspensions resolved, by outcome.",
		}, []string{"outcome"}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatflow",
			Name:      "flow_publish_total",
			Help:      "Publish lifecycle transitions, by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		prometheus.NewGoCollector(),
		m.conversationsStarted,
		m.conversationsEnded,
		m.conversationsFailed,
		m.steps,
		m.messagesSent,
		m.waitsResolved,
		m.publishes,
	)
	return m
}

// Registry returns the underlying registry for additional collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Attach subscribes the collectors to bus.
func (m *Metrics) Attach(bus *events.Bus) (detach func()) {
	return bus.Subscribe(m.Observe)
}

// Observe records one domain event.
func (m *Metrics) Observe(ev chatflow.Event) {
	switch ev.Type {
	case chatflow.EventConversationStart:
		m.conversationsStarted.WithLabelValues(ev.TenantID).Inc()
	case chatflow.EventConversationEnd:
		m.conversationsEnded.WithLabelValues(ev.TenantID, payloadString(ev, "status")).Inc()
	case chatflow.EventConversationFail:
		m.conversationsFailed.WithLabelValues(ev.TenantID, payloadString(ev, "kind")).Inc()
	case chatflow.EventConversationStep:
		m.steps.WithLabelValues(string(ev.NodeType)).Inc()
	case chatflow.EventMessageSent:
		m.messagesSent.WithLabelValues(ev.TenantID).Inc()
	case chatflow.EventWaitResolved:
		m.waitsResolved.WithLabelValues(payloadString(ev, "outcome")).Inc()
	case chatflow.EventFlowPublished:
		m.publishes.WithLabelValues("published").Inc()
	case chatflow.EventPublishRefused:
		m.publishes.WithLabelValues("refused").Inc()
	case chatflow.EventFlowUnpublished:
		m.publishes.WithLabelValues("unpublished").Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func payloadString(ev chatflow.Event, key string) string {
	if v, ok := ev.Payload[key].(string); ok {
		return v
	}
	return ""
}
