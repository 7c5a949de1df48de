package domain

// AskRequest is a question over the documents of the knowledge base
type AskRequest struct {
	Question  string `json:"question"`
	ProjectID string `json:"projectId,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// AskResponse is the answer to an AskRequest
type AskResponse struct {
	Answer    string   `json:"answer"`
	SessionID string   `json:"session_id"`
	Sources   []Source `json:"sources,omitempty"`
}

// Source is an indexed passage an answer was grounded on
type Source struct {
	FileID    string  `json:"fileId"`
	ProjectID string  `json:"projectId"`
	Filename  string  `json:"filename"`
	Content   string  `json:"content"`
	Score     float64 `json:"score"`
}
