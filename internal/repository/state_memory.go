package repository

import (
	"context"
	"time"

	"github.com/liliang-cn/askdesk/internal/chat"
	"github.com/liliang-cn/askdesk/internal/domain"
	"github.com/patrickmn/go-cache"
)

// MemoryStateStore keeps the encoded chat state in process memory.
// State survives registry rebuilds but not process restarts.
type MemoryStateStore struct {
	cache *cache.Cache
	key   string
}

// NewMemoryStateStore creates an in-memory store. A zero ttl never expires.
func NewMemoryStateStore(key string, ttl time.Duration) *MemoryStateStore {
	if key == "" {
		key = chat.StateKey
	}
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &MemoryStateStore{cache: cache.New(ttl, 10*time.Minute), key: key}
}

// Load reads the saved chat state
func (s *MemoryStateStore) Load(ctx context.Context) (*domain.ChatState, error) {
	x, found := s.cache.Get(s.key)
	if !found {
		return nil, domain.ErrNotFound
	}

	state, err := chat.DecodeState(x.([]byte))
	if err != nil {
		return nil, &chat.StoreError{Op: "load", Key: s.key, Err: err}
	}
	return state, nil
}

// Save replaces the saved chat state
func (s *MemoryStateStore) Save(ctx context.Context, state *domain.ChatState) error {
	data, err := chat.EncodeState(state)
	if err != nil {
		return &chat.StoreError{Op: "save", Key: s.key, Err: err}
	}
	s.cache.Set(s.key, data, cache.DefaultExpiration)
	return nil
}
