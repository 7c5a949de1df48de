package chat

import (
	"context"
	"fmt"

	"github.com/liliang-cn/askdesk/internal/domain"
	"go.uber.org/zap"
)

// SendRequest is a user message to send to a chat
type SendRequest struct {
	ChatID  string
	Content string
	Model   string
	Files   []domain.Attachment

	// OnUpdate, when set, receives a copy of the assistant message after
	// every change, ending with the settled message.
	OnUpdate func(domain.Message)
}

// Sender runs the send-message flow: it appends the user message and an
// assistant placeholder, dispatches the request and streams the response
// into the placeholder until it settles.
type Sender struct {
	registry   *Registry
	dispatcher *Dispatcher
	assembler  *Assembler
	logger     *zap.Logger
}

// NewSender creates a new sender
func NewSender(registry *Registry, dispatcher *Dispatcher, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		registry:   registry,
		dispatcher: dispatcher,
		assembler:  NewAssembler(logger),
		logger:     logger,
	}
}

// Send delivers a message and returns the id of the assistant message.
//
// The assistant message is always finalized before Send returns. A dispatch
// or stream failure leaves FallbackMessage in the transcript and is also
// returned, as *DispatchError or *StreamError, for callers that want it.
// An unknown chat returns domain.ErrNotFound without sending anything.
func (s *Sender) Send(ctx context.Context, req SendRequest) (string, error) {
	chat := s.registry.Chat(req.ChatID)
	if chat == nil {
		return "", fmt.Errorf("chat %s: %w", req.ChatID, domain.ErrNotFound)
	}
	model := req.Model
	if model == "" {
		model = domain.DefaultModel
	}

	files := make([]domain.AttachedFile, 0, len(req.Files))
	for _, f := range req.Files {
		files = append(files, f.Info())
	}
	user := domain.Message{Role: domain.RoleUser, Content: req.Content}
	if len(files) > 0 {
		user.AttachedFiles = files
	}
	s.registry.AddMessage(chat.ID, user)
	messageID := s.registry.AddMessage(chat.ID, domain.Message{Role: domain.RoleAssistant, IsStreaming: true})

	notify := func() {
		if req.OnUpdate == nil {
			return
		}
		if m := s.registry.Message(chat.ID, messageID); m != nil {
			req.OnUpdate(*m)
		}
	}
	notify()

	resp, err := s.dispatcher.Dispatch(ctx, DispatchRequest{
		ChatID:  chat.ID,
		Content: req.Content,
		Model:   model,
		Files:   req.Files,
	})
	if err != nil {
		s.logger.Warn("Chat dispatch failed", zap.String("chat_id", chat.ID), zap.Error(err))
		s.fail(chat.ID, messageID)
		notify()
		return messageID, err
	}
	defer resp.Body.Close()

	res, err := s.assembler.Assemble(ctx, resp.Body, func(fragment string) {
		s.registry.AppendFragment(chat.ID, messageID, fragment)
		notify()
	})
	if err != nil {
		partial := ""
		if m := s.registry.Message(chat.ID, messageID); m != nil {
			partial = m.Content
		}
		s.logger.Warn("Chat stream interrupted",
			zap.String("chat_id", chat.ID),
			zap.Int("fragments", res.Fragments),
			zap.Error(err),
		)
		s.fail(chat.ID, messageID)
		notify()
		return messageID, &StreamError{Partial: partial, Err: err}
	}

	s.registry.FinalizeMessage(chat.ID, messageID)
	if chat.Model != model {
		s.registry.SetModel(chat.ID, model)
	}
	notify()

	s.logger.Debug("Chat response settled",
		zap.String("chat_id", chat.ID),
		zap.Int("fragments", res.Fragments),
		zap.Int("skipped", res.Skipped),
		zap.Bool("done", res.Done),
	)
	return messageID, nil
}

func (s *Sender) fail(chatID, messageID string) {
	s.registry.AppendFragment(chatID, messageID, FallbackMessage)
	s.registry.FinalizeMessage(chatID, messageID)
}
