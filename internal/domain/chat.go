package domain

import "time"

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Chat defaults
const (
	DefaultChatTitle = "New chat"
	DefaultModel     = "gpt-4o"
	TitleMaxLength   = 60
)

// ChatSession represents a single chat conversation
type ChatSession struct {
	ID        string     `json:"id"`
	Slug      string     `json:"slug"`
	Title     string     `json:"title"`
	Messages  []*Message `json:"messages"`
	Model     string     `json:"model,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Message represents a chat message
type Message struct {
	ID                 string         `json:"id"`
	Role               string         `json:"role"` // user, assistant
	Content            string         `json:"content"`
	CreatedAt          time.Time      `json:"createdAt"`
	IsStreaming        bool           `json:"isStreaming,omitempty"`
	AccumulationBuffer []string       `json:"accumulationBuffer,omitempty"`
	AttachedFiles      []AttachedFile `json:"attachedFiles,omitempty"`
}

// AttachedFile is the display metadata of a file sent with a message
type AttachedFile struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

// ChatState is the persisted layout of all chat sessions
type ChatState struct {
	Chats          []*ChatSession `json:"chats"`
	SelectedChatID *string        `json:"selectedChatId"`
}

// Clone returns a deep copy of the message
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	if m.AccumulationBuffer != nil {
		c.AccumulationBuffer = append([]string(nil), m.AccumulationBuffer...)
	}
	if m.AttachedFiles != nil {
		c.AttachedFiles = append([]AttachedFile(nil), m.AttachedFiles...)
	}
	return &c
}

// Clone returns a deep copy of the session and its messages
func (s *ChatSession) Clone() *ChatSession {
	if s == nil {
		return nil
	}
	c := *s
	c.Messages = make([]*Message, len(s.Messages))
	for i, m := range s.Messages {
		c.Messages[i] = m.Clone()
	}
	return &c
}

// IsValidRole reports whether role can be stored on a message. The system
// role only appears in prompts sent to a provider.
func IsValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAssistant:
		return true
	}
	return false
}
