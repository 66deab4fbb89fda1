package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/leapstack-labs/vectorflow/pkg/core"
	"github.com/redis/go-redis/v9"
)

// DraftKeyPrefix namespaces draft keys in a shared Redis instance.
const DraftKeyPrefix = "vectorflow:draft:"

// RedisDraftStore keeps drafts in Redis with no expiry.
type RedisDraftStore struct {
	client *redis.Client
}

// NewRedisDraftStore connects to the Redis instance at url and pings it.
func NewRedisDraftStore(ctx context.Context, url string) (*RedisDraftStore, error) {
	if url == "" {
		return nil, fmt.Errorf("redis draft store: empty url")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisDraftStore{client: client}, nil
}

// NewRedisDraftStoreFromClient wraps an existing client.
func NewRedisDraftStoreFromClient(client *redis.Client) *RedisDraftStore {
	return &RedisDraftStore{client: client}
}

// SaveDraft overwrites the draft stored under key.
func (s *RedisDraftStore) SaveDraft(ctx context.Context, key string, state *core.CanvasState) error {
	if state == nil {
		return fmt.Errorf("draft %s: nil state", key)
	}
	payload, err := sonic.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode draft: %w", err)
	}
	if err := s.client.Set(ctx, DraftKeyPrefix+key, payload, 0).Err(); err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

// LoadDraft returns the draft under key, or nil when none exists.
func (s *RedisDraftStore) LoadDraft(ctx context.Context, key string) (*core.CanvasState, error) {
	data, err := s.client.Get(ctx, DraftKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load draft: %w", err)
	}

	var state core.CanvasState
	if err := sonic.UnmarshalString(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode draft %s: %w", key, err)
	}
	return &state, nil
}

// DeleteDraft removes the draft under key.
func (s *RedisDraftStore) DeleteDraft(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, DraftKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *RedisDraftStore) Close() error {
	return s.client.Close()
}
