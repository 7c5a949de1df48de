package domain

// SSE framing used by the chat endpoint
const (
	SSEDataPrefix = "data: "
	SSEDone       = "[DONE]"
)

// CompletionMessage is a role-tagged message sent to the chat endpoint
type CompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the body accepted by the chat endpoint
type CompletionRequest struct {
	Messages []CompletionMessage `json:"messages"`
	Model    string              `json:"model"`
	ChatID   string              `json:"chatId,omitempty"`
	Stream   bool                `json:"stream"`
	Files    []AttachedFile      `json:"files,omitempty"`
}

// Attachment is an uploaded file forwarded with a completion request
type Attachment struct {
	Name string
	Type string
	Data []byte
}

// Info returns the display metadata of the attachment
func (a Attachment) Info() AttachedFile {
	return AttachedFile{Name: a.Name, Type: a.Type, Size: int64(len(a.Data))}
}

// CompletionChunk is one streamed event payload
type CompletionChunk struct {
	Choices []ChunkChoice `json:"choices"`
}

// ChunkChoice holds the incremental delta of a chunk
type ChunkChoice struct {
	Delta ChunkDelta `json:"delta"`
}

// ChunkDelta carries a text fragment
type ChunkDelta struct {
	Content string `json:"content,omitempty"`
}

// NewCompletionChunk wraps a fragment in the streamed payload shape
func NewCompletionChunk(fragment string) CompletionChunk {
	return CompletionChunk{Choices: []ChunkChoice{{Delta: ChunkDelta{Content: fragment}}}}
}

// Fragment returns the text of the first choice
func (c *CompletionChunk) Fragment() string {
	if len(c.Choices) == 0 {
		return ""
	}
	return c.Choices[0].Delta.Content
}

// Usage reports token counts of a completion
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionResponse is the non-streaming chat endpoint response
type CompletionResponse struct {
	Content string         `json:"content"`
	Model   string         `json:"model"`
	Usage   Usage          `json:"usage"`
	Files   []AttachedFile `json:"files"`
}
