package chatflow

import "time"

type EventType string

const (
	EventFlowPublished     EventType = "flow.published"
	EventFlowUnpublished   EventType = "flow.unpublished"
	EventPublishRefused    EventType = "flow.publish_refused"
	EventConversationStart EventType = "conversation.started"
	EventConversationStep  EventType = "conversation.step"
	EventConversationEnd   EventType = "conversation.ended"
	EventConversationFail  EventType = "conversation.failed"
	EventWaitResolved      EventType = "wait.resolved"
	EventMessageSent       EventType = "message.sent"
)

// Event is a domain event published on the in-process bus.
type Event struct {
	Type      EventType
	TenantID  string
	FlowID    string
	ContactID string
	NodeID    string
	NodeType  NodeType
	Payload   map[string]any
	Timestamp time.Time
}
