package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/liliang-cn/askdesk/internal/config"
	"github.com/liliang-cn/askdesk/internal/domain"
	"github.com/sashabaranov/go-openai"
)

// Provider produces a streamed completion. Each fragment is sent on out in
// order; the provider does not close out.
type Provider interface {
	Name() string
	Stream(ctx context.Context, model string, messages []domain.CompletionMessage, out chan<- string) error
}

// NewProvider returns the provider selected by the LLM configuration.
// Without an API key the echo provider is used.
func NewProvider(cfg config.LLMConfig) Provider {
	if cfg.Provider == "openai" && cfg.APIKey != "" {
		return NewOpenAIProvider(cfg)
	}
	return NewEchoProvider(0)
}

// OpenAIProvider streams completions from an OpenAI compatible API
type OpenAIProvider struct {
	client       *openai.Client
	defaultModel string
}

// NewOpenAIProvider creates a provider for cfg.BaseURL
func NewOpenAIProvider(cfg config.LLMConfig) *OpenAIProvider {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(clientConfig),
		defaultModel: cfg.Model,
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Stream(ctx context.Context, model string, messages []domain.CompletionMessage, out chan<- string) error {
	if model == "" {
		model = p.defaultModel
	}

	history := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		history = append(history, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: history,
		Stream:   true,
	})
	if err != nil {
		return fmt.Errorf("openai: %w", err)
	}
	defer stream.Close()

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("openai stream: %w", err)
		}
		if len(response.Choices) == 0 || response.Choices[0].Delta.Content == "" {
			continue
		}

		select {
		case out <- response.Choices[0].Delta.Content:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// EchoProvider answers without a model, word by word. It is used when no
// LLM is configured.
type EchoProvider struct {
	delay time.Duration
}

// NewEchoProvider creates an echo provider pausing delay between words
func NewEchoProvider(delay time.Duration) *EchoProvider {
	return &EchoProvider{delay: delay}
}

func (p *EchoProvider) Name() string { return "echo" }

func (p *EchoProvider) Stream(ctx context.Context, model string, messages []domain.CompletionMessage, out chan<- string) error {
	var question string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == domain.RoleUser {
			question = messages[i].Content
			break
		}
	}
	answer := fmt.Sprintf("LLM provider not configured. Your question: %s", question)

	for _, word := range strings.SplitAfter(answer, " ") {
		if p.delay > 0 {
			select {
			case <-time.After(p.delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		select {
		case out <- word:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
