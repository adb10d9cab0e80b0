package ports

import (
	"context"
	"time"

	"github.com/soochol/chatflow/internal/chatflow"
)

// ConversationStore persists per-contact traversal state so suspended
// conversations survive a restart.
type ConversationStore interface {
	// Load returns chatflow.ErrNoConversation when the key is unknown.
	Load(ctx context.Context, key string) (*chatflow.Conversation, error)
	// Save writes the conversation and updates the deadline index from its
	// pending wait.
	Save(ctx context.Context, c *chatflow.Conversation) error
	Delete(ctx context.Context, key string) error
	// DueWaits returns waits whose deadline is at or before now, oldest first.
	DueWaits(ctx context.Context, now time.Time, limit int) ([]DueWait, error)
}

// DueWait identifies a pending wait whose deadline has passed.
type DueWait struct {
	Key      string
	WaitID   string
	Deadline time.Time
}

// UnlockFunc releases a lock obtained from Locker.
type UnlockFunc func(ctx context.Context) error

// Locker serialises work on a single conversation, possibly across
// replicas.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}

// Sender delivers outbound messages to the messaging transport.
type Sender interface {
	Send(ctx context.Context, msg chatflow.Outbound) error
}
