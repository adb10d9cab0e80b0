package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/soochol/chatflow/internal/chatflow"
	"github.com/soochol/chatflow/internal/chatflow/ports"
	memstore "github.com/soochol/chatflow/internal/repository/memory"
)

// MemoryConversationStore keeps conversations in process memory. Suspended
// conversations do not survive a restart; use the Redis store for that.
type MemoryConversationStore struct {
	store *memstore.Store[*chatflow.Conversation]
}

func NewMemoryConversationStore() *MemoryConversationStore {
	return &MemoryConversationStore{
		store: memstore.NewCopying((*chatflow.Conversation).Key, (*chatflow.Conversation).Clone),
	}
}

func (s *MemoryConversationStore) Load(ctx context.Context, key string) (*chatflow.Conversation, error) {
	c, err := s.store.Get(ctx, key)
	if errors.Is(err, memstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", chatflow.ErrNoConversation, key)
	}
	return c, err
}

func (s *MemoryConversationStore) Save(ctx context.Context, c *chatflow.Conversation) error {
	return s.store.Set(ctx, c)
}

func (s *MemoryConversationStore) Delete(ctx context.Context, key string) error {
	_ = s.store.Delete(ctx, key)
	return nil
}

func (s *MemoryConversationStore) DueWaits(ctx context.Context, now time.Time, limit int) ([]ports.DueWait, error) {
	due, err := s.store.Filter(ctx, func(c *chatflow.Conversation) bool {
		return c.Wait.Expired(now)
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(due, func(i, j int) bool { return due[i].Wait.Deadline.Before(due[j].Wait.Deadline) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	out := make([]ports.DueWait, len(due))
	for i, c := range due {
		out[i] = ports.DueWait{Key: c.Key(), WaitID: c.Wait.ID, Deadline: c.Wait.Deadline}
	}
	return out, nil
}
