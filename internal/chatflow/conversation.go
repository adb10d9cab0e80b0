package chatflow

import (
	"fmt"
	"strings"
	"time"
)

type ConversationStatus string

const (
	ConversationActive      ConversationStatus = "active"
	ConversationWaiting     ConversationStatus = "waiting"
	ConversationCompleted   ConversationStatus = "completed"
	ConversationTransferred ConversationStatus = "transferred"
	ConversationFailed      ConversationStatus = "failed"
	ConversationAborted     ConversationStatus = "aborted"
)

// Terminal reports whether the runtime will never advance the conversation
// again.
func (s ConversationStatus) Terminal() bool {
	switch s {
	case ConversationCompleted, ConversationTransferred, ConversationFailed, ConversationAborted:
		return true
	}
	return false
}

// WaitKind tells the executor how to resolve a pending wait.
type WaitKind string

const (
	// WaitReply resumes on the next inbound message (text, buttons, list).
	WaitReply WaitKind = "reply"
	// WaitResponse races an inbound message against a deadline.
	WaitResponse WaitKind = "response"
	// WaitDelay resumes only when the deadline passes.
	WaitDelay WaitKind = "delay"
)

// Wait is a suspension point. Each wait has a fresh ID; it is resolved at
// most once, after which events carrying that ID are ignored.
type Wait struct {
	ID       string    `json:"id"`
	NodeID   string    `json:"nodeId"`
	Kind     WaitKind  `json:"kind"`
	Deadline time.Time `json:"deadline,omitempty"`
}

// HasDeadline reports whether the wait can time out.
func (w *Wait) HasDeadline() bool { return w != nil && !w.Deadline.IsZero() }

// Expired reports whether the deadline is at or before now.
func (w *Wait) Expired(now time.Time) bool {
	return w.HasDeadline() && !now.Before(w.Deadline)
}

// Conversation is the traversal state of one contact in one flow, keyed by
// tenant and contact.
type Conversation struct {
	TenantID      string             `json:"tenantId"`
	ContactID     string             `json:"contactId"`
	FlowID        string             `json:"flowId"`
	CurrentNodeID string             `json:"currentNodeId"`
	Status        ConversationStatus `json:"status"`
	Variables     map[string]string  `json:"variables"`
	Wait          *Wait              `json:"wait,omitempty"`
	LastError     string             `json:"lastError,omitempty"`
	StartedAt     time.Time          `json:"startedAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

// CheckTenantID rejects tenant ids that cannot address conversations
// unambiguously. The tenant is the key prefix up to the first ':', so a
// tenant id containing ':' could collide with another tenant's contacts.
func CheckTenantID(tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: empty tenant id", ErrTenantViolation)
	}
	if strings.Contains(tenantID, ":") {
		return fmt.Errorf("%w: tenant id %q contains ':'", ErrTenantViolation, tenantID)
	}
	return nil
}

// ConversationKey is the stable address of a conversation.
func ConversationKey(tenantID, contactID string) string {
	return tenantID + ":" + contactID
}

func (c *Conversation) Key() string { return ConversationKey(c.TenantID, c.ContactID) }

// KeyTenant returns the tenant part of a conversation key.
func KeyTenant(key string) string {
	tenant, _, _ := strings.Cut(key, ":")
	return tenant
}

// Inbound is a message received from a contact.
type Inbound struct {
	TenantID  string `json:"tenantId"`
	ContactID string `json:"contactId"`
	// FlowID pins the flow to start when no conversation is active. Empty
	// means the tenant's published flows are matched by start keywords.
	FlowID string `json:"flowId,omitempty"`
	Text   string `json:"text"`
	// ButtonID carries a structured button or list-row callback.
	ButtonID   string    `json:"buttonId,omitempty"`
	ReceivedAt time.Time `json:"receivedAt"`
}

type OutboundKind string

const (
	OutboundText     OutboundKind = "text"
	OutboundMedia    OutboundKind = "media"
	OutboundButtons  OutboundKind = "buttons"
	OutboundList     OutboundKind = "list"
	OutboundTransfer OutboundKind = "transfer"
)

// Outbound is a message the runtime asks the transport to deliver.
type Outbound struct {
	TenantID   string       `json:"tenantId"`
	ContactID  string       `json:"contactId"`
	FlowID     string       `json:"flowId"`
	NodeID     string       `json:"nodeId"`
	Kind       OutboundKind `json:"kind"`
	Text       string       `json:"text,omitempty"`
	MediaType  string       `json:"mediaType,omitempty"`
	URL        string       `json:"url,omitempty"`
	Buttons    []string     `json:"buttons,omitempty"`
	ButtonText string       `json:"buttonText,omitempty"`
	Rows       []ListRow    `json:"rows,omitempty"`
	Team       string       `json:"team,omitempty"`
	// TypingDelay is a hint for the transport to show a typing indicator.
	TypingDelay time.Duration `json:"typingDelay,omitempty"`
}

// Clone returns a deep copy of c.
func (c *Conversation) Clone() *Conversation {
	out := *c
	out.Variables = make(map[string]string, len(c.Variables))
	for k, v := range c.Variables {
		out.Variables[k] = v
	}
	if c.Wait != nil {
		w := *c.Wait
		out.Wait = &w
	}
	return &out
}
