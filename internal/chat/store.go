package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/liliang-cn/askdesk/internal/domain"
)

// StateKey is the fixed key the chat state is persisted under
const StateKey = "chat_state_v1"

// ErrCorruptState indicates a persisted state that cannot be used
var ErrCorruptState = errors.New("corrupt chat state")

// Store persists the whole chat state as a single record.
// Load returns domain.ErrNotFound when nothing has been saved yet.
type Store interface {
	Load(ctx context.Context) (*domain.ChatState, error)
	Save(ctx context.Context, state *domain.ChatState) error
}

// EncodeState serializes the chat state in its persisted layout
func EncodeState(state *domain.ChatState) ([]byte, error) {
	if state.Chats == nil {
		state = &domain.ChatState{Chats: []*domain.ChatSession{}, SelectedChatID: state.SelectedChatID}
	}
	return json.Marshal(state)
}

// DecodeState parses a persisted chat state
func DecodeState(data []byte) (*domain.ChatState, error) {
	var state domain.ChatState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	if state.Chats == nil {
		return nil, fmt.Errorf("%w: missing chats", ErrCorruptState)
	}
	for _, c := range state.Chats {
		if c == nil || c.ID == "" {
			return nil, fmt.Errorf("%w: chat without id", ErrCorruptState)
		}
		if c.Messages == nil {
			c.Messages = []*domain.Message{}
		}
		for _, m := range c.Messages {
			if m == nil {
				return nil, fmt.Errorf("%w: chat %s has a null message", ErrCorruptState, c.ID)
			}
		}
	}
	return &state, nil
}
