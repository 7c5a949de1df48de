package repository

import (
	"context"
	"errors"

	"github.com/liliang-cn/askdesk/internal/chat"
	"github.com/liliang-cn/askdesk/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisStateStore persists the chat state as a JSON string in redis
type RedisStateStore struct {
	rdb *redis.Client
	key string
}

// NewRedisStateStore creates a store writing to key
func NewRedisStateStore(rdb *redis.Client, key string) *RedisStateStore {
	if key == "" {
		key = chat.StateKey
	}
	return &RedisStateStore{rdb: rdb, key: key}
}

// Load reads the saved chat state
func (s *RedisStateStore) Load(ctx context.Context) (*domain.ChatState, error) {
	raw, err := s.rdb.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, &chat.StoreError{Op: "load", Key: s.key, Err: err}
	}

	state, err := chat.DecodeState(raw)
	if err != nil {
		return nil, &chat.StoreError{Op: "load", Key: s.key, Err: err}
	}
	return state, nil
}

// Save replaces the saved chat state
func (s *RedisStateStore) Save(ctx context.Context, state *domain.ChatState) error {
	data, err := chat.EncodeState(state)
	if err != nil {
		return &chat.StoreError{Op: "save", Key: s.key, Err: err}
	}
	if err := s.rdb.Set(ctx, s.key, data, 0).Err(); err != nil {
		return &chat.StoreError{Op: "save", Key: s.key, Err: err}
	}
	return nil
}
