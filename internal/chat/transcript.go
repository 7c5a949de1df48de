package chat

import (
	"strings"

	"github.com/liliang-cn/askdesk/internal/domain"
)

// Transcript is the ordered fragment buffer of a streaming message.
// Fragments are only ever appended; Content is their join in arrival order.
type Transcript struct {
	fragments []string
}

// NewTranscript starts a transcript from existing fragments
func NewTranscript(fragments ...string) *Transcript {
	return &Transcript{fragments: append([]string(nil), fragments...)}
}

// Append adds a fragment to the end and returns the new content
func (t *Transcript) Append(fragment string) string {
	t.fragments = append(t.fragments, fragment)
	return t.Content()
}

// Content joins all fragments received so far
func (t *Transcript) Content() string {
	return strings.Join(t.fragments, "")
}

// Fragments returns a copy of the buffered fragments
func (t *Transcript) Fragments() []string {
	return append([]string{}, t.fragments...)
}

// Len returns the number of buffered fragments
func (t *Transcript) Len() int {
	return len(t.fragments)
}

// appendFragment pushes a fragment onto a streaming message.
// Finalized messages are left untouched.
func appendFragment(m *domain.Message, fragment string) bool {
	if !m.IsStreaming || fragment == "" {
		return false
	}
	t := Transcript{fragments: m.AccumulationBuffer}
	m.Content = t.Append(fragment)
	m.AccumulationBuffer = t.fragments
	return true
}

// finalize freezes the content of a streaming message and drops its buffer
func finalize(m *domain.Message) bool {
	if !m.IsStreaming {
		return false
	}
	if m.AccumulationBuffer != nil {
		m.Content = NewTranscript(m.AccumulationBuffer...).Content()
	}
	m.AccumulationBuffer = nil
	m.IsStreaming = false
	return true
}
