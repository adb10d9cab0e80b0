package repository

import (
	"context"
	"testing"
	"time"

	"github.com/soochol/chatflow/internal/chatflow"
	"github.com/soochol/chatflow/internal/chatflow/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConversation(tenant, contact string) *chatflow.Conversation {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &chatflow.Conversation{
		TenantID:      tenant,
		ContactID:     contact,
		FlowID:        "flow-1",
		CurrentNodeID: "textMessage-1",
		Status:        chatflow.ConversationActive,
		Variables:     map[string]string{"name": "Ana"},
		StartedAt:     now,
		UpdatedAt:     now,
	}
}

// runConversationStoreContract verifies behaviour every ConversationStore
// must share.
func runConversationStoreContract(t *testing.T, store ports.ConversationStore) {
	ctx := context.Background()

	t.Run("Save and Load", func(t *testing.T) {
		c := newConversation("tenant-a", "+15550001")
		require.NoError(t, store.Save(ctx, c))

		loaded, err := store.Load(ctx, c.Key())
		require.NoError(t, err)
		assert.Equal(t, c.CurrentNodeID, loaded.CurrentNodeID)
		assert.Equal(t, "Ana", loaded.Variables["name"])
		assert.Nil(t, loaded.Wait)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, chatflow.ConversationKey("tenant-a", "nobody"))
		assert.ErrorIs(t, err, chatflow.ErrNoConversation)
	})

	t.Run("Delete", func(t *testing.T) {
		c := newConversation("tenant-a", "+15550002")
		require.NoError(t, store.Save(ctx, c))
		require.NoError(t, store.Delete(ctx, c.Key()))
		_, err := store.Load(ctx, c.Key())
		assert.ErrorIs(t, err, chatflow.ErrNoConversation)
	})

	t.Run("DueWaits", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Millisecond)

		past := newConversation("tenant-b", "+1")
		past.Status = chatflow.ConversationWaiting
		past.Wait = &chatflow.Wait{ID: "w-past", NodeID: "wait-1", Kind: chatflow.WaitResponse, Deadline: now.Add(-2 * time.Second)}

		older := newConversation("tenant-b", "+2")
		older.Status = chatflow.ConversationWaiting
		older.Wait = &chatflow.Wait{ID: "w-older", NodeID: "wait-1", Kind: chatflow.WaitDelay, Deadline: now.Add(-5 * time.Second)}

		future := newConversation("tenant-b", "+3")
		future.Status = chatflow.ConversationWaiting
		future.Wait = &chatflow.Wait{ID: "w-future", NodeID: "wait-1", Kind: chatflow.WaitResponse, Deadline: now.Add(time.Hour)}

		open := newConversation("tenant-b", "+4")
		open.Status = chatflow.ConversationWaiting
		open.Wait = &chatflow.Wait{ID: "w-open", NodeID: "text-1", Kind: chatflow.WaitReply}

		for _, c := range []*chatflow.Conversation{past, older, future, open} {
			require.NoError(t, store.Save(ctx, c))
		}

		due, err := store.DueWaits(ctx, now, 10)
		require.NoError(t, err)
		require.Len(t, due, 2)
		assert.Equal(t, "w-older", due[0].WaitID)
		assert.Equal(t, "w-past", due[1].WaitID)
		assert.Equal(t, older.Key(), due[0].Key)

		limited, err := store.DueWaits(ctx, now, 1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)

		// resolving the wait removes it from the index
		past.Wait = nil
		past.Status = chatflow.ConversationActive
		require.NoError(t, store.Save(ctx, past))
		due, err = store.DueWaits(ctx, now, 10)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, "w-older", due[0].WaitID)
	})
}

func TestMemoryConversationStore_Contract(t *testing.T) {
	runConversationStoreContract(t, NewMemoryConversationStore())
}

func TestMemoryConversationStore_Isolation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryConversationStore()
	c := newConversation("tenant-a", "+1")
	require.NoError(t, s.Save(ctx, c))

	c.Variables["name"] = "changed"
	loaded, err := s.Load(ctx, c.Key())
	require.NoError(t, err)
	assert.Equal(t, "Ana", loaded.Variables["name"])
}
