package domain

// CreateSessionRequest is the request to create a chat session
type CreateSessionRequest struct {
	Title          string `json:"title,omitempty"`
	Model          string `json:"model,omitempty"`
	InitialMessage string `json:"initialMessage,omitempty"`
}

// CreateSessionResponse is returned after a session is created
type CreateSessionResponse struct {
	SessionID string   `json:"sessionId"`
	Slug      string   `json:"slug"`
	Message   *Message `json:"message,omitempty"`
}

// RenameSessionRequest is the request to rename a chat session
type RenameSessionRequest struct {
	Title string `json:"title" binding:"required"`
}

// AppendMessageRequest is the request to add a message to a session
type AppendMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SendMessageRequest is the request to send a message and stream the reply
type SendMessageRequest struct {
	Content string `json:"content" form:"content"`
	Model   string `json:"model,omitempty" form:"model"`
}
