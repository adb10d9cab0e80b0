package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/soochol/chatflow/internal/chatflow"
	"github.com/soochol/chatflow/internal/chatflow/ports"
	"github.com/soochol/chatflow/internal/crypto"
)

// errUndecodable marks stored state that can never be loaded again, such
// as corrupt JSON or state sealed under another key.
var errUndecodable = errors.New("undecodable conversation state")

// RedisConversationStore implements ports.ConversationStore on Redis.
// Pending deadlines are indexed in a sorted set scored by deadline in
// unix milliseconds.
type RedisConversationStore struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
	sealer *crypto.Sealer
}

type RedisOption func(*RedisConversationStore)

// WithTTL sets the expiration for conversation state.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisConversationStore) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisConversationStore) {
		s.prefix = prefix
	}
}

// WithSealer encrypts stored conversation state. The conversation key is
// bound as additional data so state cannot be replayed under another key.
func WithSealer(sealer *crypto.Sealer) RedisOption {
	return func(s *RedisConversationStore) {
		s.sealer = sealer
	}
}

// NewRedisConversationStore creates a store from an existing client.
func NewRedisConversationStore(client *backend.Client, opts ...RedisOption) *RedisConversationStore {
	s := &RedisConversationStore{
		client: client,
		prefix: "chatflow:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisConversationStore) key(k string) string {
	return s.prefix + "conv:" + k
}

func (s *RedisConversationStore) indexKey() string {
	return s.prefix + "waits"
}

func (s *RedisConversationStore) Save(ctx context.Context, c *chatflow.Conversation) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}
	k := c.Key()
	if data, err = s.sealer.Seal(data, []byte(k)); err != nil {
		return fmt.Errorf("seal conversation: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(k), data, s.ttl)
	if c.Wait.HasDeadline() && !c.Status.Terminal() {
		pipe.ZAdd(ctx, s.indexKey(), backend.Z{
			Score:  float64(c.Wait.Deadline.UnixMilli()),
			Member: k,
		})
	} else {
		pipe.ZRem(ctx, s.indexKey(), k)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save conversation to redis: %w", err)
	}
	return nil
}

func (s *RedisConversationStore) Load(ctx context.Context, key string) (*chatflow.Conversation, error) {
	val, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, fmt.Errorf("%w: %s", chatflow.ErrNoConversation, key)
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation from redis: %w", err)
	}
	if val, err = s.sealer.Open(val, []byte(key)); err != nil {
		return nil, fmt.Errorf("%w: open conversation %s: %w", errUndecodable, key, err)
	}
	var c chatflow.Conversation
	if err := json.Unmarshal(val, &c); err != nil {
		return nil, fmt.Errorf("%w: unmarshal conversation %s: %w", errUndecodable, key, err)
	}
	return &c, nil
}

func (s *RedisConversationStore) Delete(ctx context.Context, key string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(key))
	pipe.ZRem(ctx, s.indexKey(), key)
	_, err := pipe.Exec(ctx)
	return err
}

// DueWaits reads expired entries from the deadline index. Entries whose
// state has expired, no longer waits or cannot be decoded are pruned, so
// one bad entry never holds back the rest of the index.
func (s *RedisConversationStore) DueWaits(ctx context.Context, now time.Time, limit int) ([]ports.DueWait, error) {
	opt := &backend.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}
	if limit > 0 {
		opt.Count = int64(limit)
	}
	keys, err := s.client.ZRangeByScore(ctx, s.indexKey(), opt).Result()
	if err != nil {
		return nil, fmt.Errorf("scan wait index: %w", err)
	}

	var out []ports.DueWait
	for _, k := range keys {
		c, err := s.Load(ctx, k)
		if errors.Is(err, chatflow.ErrNoConversation) {
			s.client.ZRem(ctx, s.indexKey(), k)
			continue
		}
		if errors.Is(err, errUndecodable) {
			slog.Error("redis store: dropping undecodable wait", "key", k, "err", err)
			s.client.ZRem(ctx, s.indexKey(), k)
			continue
		}
		if err != nil {
			return nil, err
		}
		if !c.Wait.Expired(now) {
			if !c.Wait.HasDeadline() {
				s.client.ZRem(ctx, s.indexKey(), k)
			}
			continue
		}
		out = append(out, ports.DueWait{Key: k, WaitID: c.Wait.ID, Deadline: c.Wait.Deadline})
	}
	return out, nil
}
