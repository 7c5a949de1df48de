package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/liliang-cn/askdesk/internal/domain"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

// maxAttachmentContext bounds how much of each text attachment is added to the prompt
const maxAttachmentContext = 8 << 10

// CompletionService answers chat endpoint requests through a Provider
type CompletionService struct {
	provider     Provider
	defaultModel string
	logger       *zap.Logger
}

// NewCompletionService creates a new completion service
func NewCompletionService(provider Provider, defaultModel string, logger *zap.Logger) *CompletionService {
	if defaultModel == "" {
		defaultModel = domain.DefaultModel
	}
	return &CompletionService{
		provider:     provider,
		defaultModel: defaultModel,
		logger:       logger,
	}
}

// Model returns the model a request runs against
func (s *CompletionService) Model(req *domain.CompletionRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return s.defaultModel
}

// Stream runs the completion and hands every fragment to emit. An emit error
// cancels the provider and is returned.
func (s *CompletionService) Stream(
	ctx context.Context,
	req *domain.CompletionRequest,
	files []domain.Attachment,
	emit func(fragment string) error,
) (domain.Usage, error) {
	if len(req.Messages) == 0 {
		return domain.Usage{}, fmt.Errorf("no messages: %w", domain.ErrInvalidRequest)
	}
	messages := withAttachments(req.Messages, files)
	model := s.Model(req)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fragments := make(chan string)
	var providerErr, emitErr error
	var completion strings.Builder

	wg := conc.NewWaitGroup()
	wg.Go(func() {
		defer close(fragments)
		providerErr = s.provider.Stream(ctx, model, messages, fragments)
	})
	wg.Go(func() {
		for fragment := range fragments {
			completion.WriteString(fragment)
			if emitErr != nil {
				continue
			}
			if emitErr = emit(fragment); emitErr != nil {
				cancel()
			}
		}
	})
	wg.Wait()

	usage := estimateUsage(messages, completion.String())
	if emitErr != nil {
		return usage, emitErr
	}
	if providerErr != nil {
		s.logger.Warn("Completion provider failed",
			zap.String("provider", s.provider.Name()),
			zap.String("model", model),
			zap.Error(providerErr),
		)
		return usage, providerErr
	}

	s.logger.Debug("Completion finished",
		zap.String("provider", s.provider.Name()),
		zap.String("model", model),
		zap.Int("completion_tokens", usage.CompletionTokens),
	)
	return usage, nil
}

// Complete runs the completion and returns the whole answer
func (s *CompletionService) Complete(
	ctx context.Context,
	req *domain.CompletionRequest,
	files []domain.Attachment,
) (*domain.CompletionResponse, error) {
	var content strings.Builder
	usage, err := s.Stream(ctx, req, files, func(fragment string) error {
		content.WriteString(fragment)
		return nil
	})
	if err != nil {
		return nil, err
	}

	infos := make([]domain.AttachedFile, 0, len(files))
	for _, f := range files {
		infos = append(infos, f.Info())
	}
	return &domain.CompletionResponse{
		Content: content.String(),
		Model:   s.Model(req),
		Usage:   usage,
		Files:   infos,
	}, nil
}

// withAttachments appends the attached files to the last user message.
// Text files contribute their content; others are named only.
func withAttachments(messages []domain.CompletionMessage, files []domain.Attachment) []domain.CompletionMessage {
	out := append([]domain.CompletionMessage(nil), messages...)
	if len(files) == 0 {
		return out
	}

	last := -1
	for i := len(out) - 1; i >= 0; i-- {
		if out[i].Role == domain.RoleUser {
			last = i
			break
		}
	}
	if last < 0 {
		return out
	}

	var b strings.Builder
	b.WriteString(out[last].Content)
	for _, f := range files {
		if !isTextAttachment(f) {
			fmt.Fprintf(&b, "\n\n[Attached file: %s (%s, %d bytes)]", f.Name, f.Type, len(f.Data))
			continue
		}
		data := f.Data
		if len(data) > maxAttachmentContext {
			data = data[:maxAttachmentContext]
			// drop a rune cut in half
			for len(data) > 0 {
				if r, size := utf8.DecodeLastRune(data); r != utf8.RuneError || size > 1 {
					break
				}
				data = data[:len(data)-1]
			}
		}
		fmt.Fprintf(&b, "\n\n[File: %s]\n%s", f.Name, data)
	}
	out[last].Content = b.String()
	return out
}

func isTextAttachment(f domain.Attachment) bool {
	if strings.HasPrefix(f.Type, "text/") || f.Type == "application/json" {
		return true
	}
	switch strings.ToLower(f.Name[strings.LastIndex(f.Name, ".")+1:]) {
	case "txt", "md", "csv", "json":
		return true
	}
	return false
}

// estimateUsage approximates token counts at four bytes per token
func estimateUsage(messages []domain.CompletionMessage, completion string) domain.Usage {
	var prompt int
	for _, m := range messages {
		prompt += tokens(m.Content)
	}
	done := tokens(completion)
	return domain.Usage{PromptTokens: prompt, CompletionTokens: done, TotalTokens: prompt + done}
}

func tokens(s string) int {
	return (len(s) + 3) / 4
}
