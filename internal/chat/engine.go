package chat

import (
	"strings"
	"unicode/utf8"

	"github.com/liliang-cn/askdesk/internal/domain"
)

// MessagePatch holds the fields to merge into an existing message.
// Nil fields are left unchanged.
type MessagePatch struct {
	Role          *string
	Content       *string
	IsStreaming   *bool
	AttachedFiles []domain.AttachedFile
}

// AddMessage appends a message to the end of a chat and returns its id.
// The message id is kept when set, otherwise generated. The first user
// message of a chat still carrying the default title becomes its title.
// It returns "" when the chat does not exist.
func (r *Registry) AddMessage(chatID string, msg domain.Message) string {
	m := msg.Clone()
	if m.ID == "" {
		m.ID = NewID()
	}
	m.CreatedAt = r.now()
	if m.Role == domain.RoleUser {
		m.IsStreaming = false
	}
	if m.IsStreaming {
		m.AccumulationBuffer = nil
		if m.Content != "" {
			m.AccumulationBuffer = []string{m.Content}
		}
	} else {
		m.AccumulationBuffer = nil
	}

	ok := r.updateChat(chatID, func(c *domain.ChatSession) bool {
		if m.Role == domain.RoleUser && needsTitle(c) {
			c.Title = TitleFrom(m.Content)
		}
		c.Messages = append(c.Messages, m)
		return true
	})
	if !ok {
		return ""
	}
	return m.ID
}

// UpdateMessage merges patch into a message in place. Unknown chats or
// messages are ignored. Clearing IsStreaming finalizes the message; a
// finalized message cannot be reopened.
func (r *Registry) UpdateMessage(chatID, messageID string, patch MessagePatch) {
	r.updateMessage(chatID, messageID, func(m *domain.Message) bool {
		if patch.Role != nil {
			m.Role = *patch.Role
		}
		if patch.Content != nil {
			m.Content = *patch.Content
			if m.IsStreaming {
				m.AccumulationBuffer = []string{m.Content}
			}
		}
		if patch.AttachedFiles != nil {
			m.AttachedFiles = append([]domain.AttachedFile(nil), patch.AttachedFiles...)
		}
		if patch.IsStreaming != nil && !*patch.IsStreaming {
			finalize(m)
		}
		return true
	})
}

// AppendFragment pushes a streamed fragment onto a streaming message and
// refreshes its content. Finalized or unknown messages are ignored.
func (r *Registry) AppendFragment(chatID, messageID, fragment string) {
	r.updateMessage(chatID, messageID, func(m *domain.Message) bool {
		return appendFragment(m, fragment)
	})
}

// FinalizeMessage freezes a streaming message. Calling it again has no effect.
func (r *Registry) FinalizeMessage(chatID, messageID string) {
	r.updateMessage(chatID, messageID, finalize)
}

// Message returns a copy of a message, or nil
func (r *Registry) Message(chatID, messageID string) *domain.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := indexOf(r.chats, chatID)
	if i < 0 {
		return nil
	}
	for _, m := range r.chats[i].Messages {
		if m.ID == messageID {
			return m.Clone()
		}
	}
	return nil
}

func (r *Registry) updateMessage(chatID, messageID string, fn func(m *domain.Message) bool) {
	r.updateChat(chatID, func(c *domain.ChatSession) bool {
		for i, m := range c.Messages {
			if m.ID != messageID {
				continue
			}
			m = m.Clone()
			if !fn(m) {
				return false
			}
			c.Messages[i] = m
			return true
		}
		return false
	})
}

func needsTitle(c *domain.ChatSession) bool {
	if c.Title != domain.DefaultChatTitle && strings.TrimSpace(c.Title) != "" {
		return false
	}
	for _, m := range c.Messages {
		if m.Role == domain.RoleUser {
			return false
		}
	}
	return true
}

// TitleFrom derives a chat title from message content
func TitleFrom(content string) string {
	if utf8.RuneCountInString(content) <= domain.TitleMaxLength {
		return content
	}
	return string([]rune(content)[:domain.TitleMaxLength])
}
