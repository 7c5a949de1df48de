package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/askdesk/internal/domain"
	"github.com/liliang-cn/askdesk/internal/repository"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// NoContextAnswer is returned when no indexed passage matches a question
const NoContextAnswer = "The information is not available in the provided context."

const (
	askTopK        = 8
	askMaxHistory  = 10
	askHistoryIdle = 30 * time.Minute
)

const askSystemPrompt = `You are a knowledgeable assistant answering questions about the user's documents.
Answer clearly, accurately and concisely, using ONLY the context provided with the question.
If the answer is not present in the context, respond with:
"` + NoContextAnswer + `"
Structure longer answers and point out important terms, risks or compliance notes where they apply.`

// AskService answers questions over the indexed text of project files. The
// turns of an ask session are kept in memory until it goes idle.
type AskService struct {
	projectRepo *repository.ProjectRepository
	chunkRepo   *repository.ChunkRepository
	completion  *CompletionService
	logger      *zap.Logger

	mu      sync.Mutex
	history *cache.Cache
}

// NewAskService creates a new ask service
func NewAskService(
	projectRepo *repository.ProjectRepository,
	chunkRepo *repository.ChunkRepository,
	completion *CompletionService,
	logger *zap.Logger,
) *AskService {
	return &AskService{
		projectRepo: projectRepo,
		chunkRepo:   chunkRepo,
		completion:  completion,
		logger:      logger,
		history:     cache.New(askHistoryIdle, 10*time.Minute),
	}
}

// Ask answers a question from the passages of userID's files. A request
// without a project searches all of the user's projects, and one without a
// session starts a new session.
func (s *AskService) Ask(ctx context.Context, userID string, req *domain.AskRequest) (*domain.AskResponse, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("question is required: %w", domain.ErrInvalidRequest)
	}

	if req.ProjectID != "" {
		project, err := s.projectRepo.Get(req.ProjectID, userID)
		if err != nil {
			return nil, err
		}
		if project == nil {
			return nil, fmt.Errorf("project %s: %w", req.ProjectID, domain.ErrNotFound)
		}
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	historyKey := userID + ":" + sessionID

	sources, err := s.chunkRepo.Search(userID, req.ProjectID, question, askTopK)
	if err != nil {
		return nil, fmt.Errorf("search passages: %w", err)
	}

	resp := &domain.AskResponse{SessionID: sessionID, Sources: sources}
	if len(sources) == 0 {
		resp.Answer = NoContextAnswer
		s.remember(historyKey, question, resp.Answer)
		return resp, nil
	}

	messages := []domain.CompletionMessage{{Role: domain.RoleSystem, Content: askSystemPrompt}}
	messages = append(messages, s.turns(historyKey)...)
	messages = append(messages, domain.CompletionMessage{
		Role:    domain.RoleUser,
		Content: fmt.Sprintf("Context:\n%s\n\nQuestion: %s", formatSources(sources), question),
	})

	completion, err := s.completion.Complete(ctx, &domain.CompletionRequest{Messages: messages}, nil)
	if err != nil {
		return nil, err
	}
	resp.Answer = completion.Content
	s.remember(historyKey, question, resp.Answer)

	s.logger.Info("Answered question",
		zap.String("session_id", sessionID),
		zap.String("project_id", req.ProjectID),
		zap.Int("sources", len(sources)),
	)
	return resp, nil
}

func (s *AskService) turns(key string) []domain.CompletionMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.history.Get(key); ok {
		return append([]domain.CompletionMessage(nil), v.([]domain.CompletionMessage)...)
	}
	return nil
}

// remember records a question and its answer, keeping the newest turns
func (s *AskService) remember(key, question, answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var turns []domain.CompletionMessage
	if v, ok := s.history.Get(key); ok {
		turns = v.([]domain.CompletionMessage)
	}
	turns = append(append([]domain.CompletionMessage(nil), turns...),
		domain.CompletionMessage{Role: domain.RoleUser, Content: question},
		domain.CompletionMessage{Role: domain.RoleAssistant, Content: answer},
	)
	if len(turns) > askMaxHistory {
		turns = turns[len(turns)-askMaxHistory:]
	}
	s.history.SetDefault(key, turns)
}

func formatSources(sources []domain.Source) string {
	parts := make([]string, 0, len(sources))
	for _, src := range sources {
		parts = append(parts, fmt.Sprintf("[%s]\n%s", src.Filename, src.Content))
	}
	return strings.Join(parts, "\n\n")
}
