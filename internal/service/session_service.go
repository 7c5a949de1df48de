package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/liliang-cn/askdesk/internal/chat"
	"github.com/liliang-cn/askdesk/internal/domain"
	"go.uber.org/zap"
)

// RegistryOpener opens the chat registry holding one user's sessions
type RegistryOpener func(ctx context.Context, userID string) (*chat.Registry, error)

// OpenRegistries returns a RegistryOpener that restores each user's registry
// from the store newStore returns for them. A state that cannot be loaded is
// logged and replaced by the example sessions.
func OpenRegistries(newStore func(userID string) chat.Store, logger *zap.Logger) RegistryOpener {
	return func(ctx context.Context, userID string) (*chat.Registry, error) {
		registry := chat.NewRegistry(
			chat.WithStore(newStore(userID)),
			chat.WithLogger(logger.With(zap.String("user_id", userID))),
		)
		if err := registry.Restore(ctx); err != nil {
			logger.Warn("Saved chat state could not be loaded, starting from examples",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
		return registry, nil
	}
}

// SessionService exposes the chat registries to the sessions API. Every user
// has a registry of their own, opened on first use. Sessions are addressed
// by slug.
type SessionService struct {
	open       RegistryOpener
	dispatcher *chat.Dispatcher
	logger     *zap.Logger

	mu         sync.Mutex
	workspaces map[string]*workspace
}

type workspace struct {
	registry *chat.Registry
	sender   *chat.Sender
}

// NewSessionService creates a new session service
func NewSessionService(open RegistryOpener, dispatcher *chat.Dispatcher, logger *zap.Logger) *SessionService {
	return &SessionService{
		open:       open,
		dispatcher: dispatcher,
		logger:     logger,
		workspaces: make(map[string]*workspace),
	}
}

// workspace returns the registry and sender of userID, opening them once
func (s *SessionService) workspace(ctx context.Context, userID string) (*workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ws, ok := s.workspaces[userID]; ok {
		return ws, nil
	}
	registry, err := s.open(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("open chats of %s: %w", userID, err)
	}
	ws := &workspace{
		registry: registry,
		sender:   chat.NewSender(registry, s.dispatcher, s.logger.Named("chat")),
	}
	s.workspaces[userID] = ws
	return ws, nil
}

// Flush saves the newest state of every open registry
func (s *SessionService) Flush(ctx context.Context) error {
	s.mu.Lock()
	workspaces := make(map[string]*workspace, len(s.workspaces))
	for id, ws := range s.workspaces {
		workspaces[id] = ws
	}
	s.mu.Unlock()

	var errs []error
	for id, ws := range workspaces {
		if err := ws.registry.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush chats of %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// List returns the user's sessions, most recently updated first
func (s *SessionService) List(ctx context.Context, userID string) ([]*domain.ChatSession, error) {
	ws, err := s.workspace(ctx, userID)
	if err != nil {
		return nil, err
	}
	chats := ws.registry.Chats()
	sort.SliceStable(chats, func(i, j int) bool {
		return chats[i].UpdatedAt.After(chats[j].UpdatedAt)
	})
	return chats, nil
}

// Create starts a new session, optionally with a first user message
func (s *SessionService) Create(ctx context.Context, userID string, req *domain.CreateSessionRequest) (*domain.CreateSessionResponse, error) {
	ws, err := s.workspace(ctx, userID)
	if err != nil {
		return nil, err
	}
	id, slug := ws.registry.CreateChat(req.Title, req.Model)
	resp := &domain.CreateSessionResponse{SessionID: id, Slug: slug}

	if strings.TrimSpace(req.InitialMessage) != "" {
		msgID := ws.registry.AddMessage(id, domain.Message{Role: domain.RoleUser, Content: req.InitialMessage})
		resp.Message = ws.registry.Message(id, msgID)
	}

	s.logger.Info("Created chat session",
		zap.String("user_id", userID),
		zap.String("chat_id", id),
		zap.String("slug", slug),
	)
	return resp, nil
}

// Get returns the user's session with the given slug
func (s *SessionService) Get(ctx context.Context, userID, slug string) (*domain.ChatSession, error) {
	_, session, err := s.find(ctx, userID, slug)
	return session, err
}

func (s *SessionService) find(ctx context.Context, userID, slug string) (*workspace, *domain.ChatSession, error) {
	ws, err := s.workspace(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	session := ws.registry.ChatBySlug(slug)
	if session == nil {
		return nil, nil, fmt.Errorf("chat %s: %w", slug, domain.ErrNotFound)
	}
	return ws, session, nil
}

func (s *SessionService) Rename(ctx context.Context, userID, slug, title string) (*domain.ChatSession, error) {
	ws, session, err := s.find(ctx, userID, slug)
	if err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("empty title: %w", domain.ErrInvalidRequest)
	}
	ws.registry.RenameChat(session.ID, title)
	return ws.registry.Chat(session.ID), nil
}

func (s *SessionService) Delete(ctx context.Context, userID, slug string) error {
	ws, session, err := s.find(ctx, userID, slug)
	if err != nil {
		return err
	}
	ws.registry.DeleteChat(session.ID)
	s.logger.Info("Deleted chat session", zap.String("user_id", userID), zap.String("chat_id", session.ID))
	return nil
}

func (s *SessionService) Select(ctx context.Context, userID, slug string) (*domain.ChatSession, error) {
	ws, session, err := s.find(ctx, userID, slug)
	if err != nil {
		return nil, err
	}
	ws.registry.SelectChat(session.ID)
	return session, nil
}

// Selected returns the user's selected session, or nil when none is selected
func (s *SessionService) Selected(ctx context.Context, userID string) (*domain.ChatSession, error) {
	ws, err := s.workspace(ctx, userID)
	if err != nil {
		return nil, err
	}
	return ws.registry.Selected(), nil
}

// AppendMessage adds a settled message to a session
func (s *SessionService) AppendMessage(ctx context.Context, userID, slug string, req *domain.AppendMessageRequest) (*domain.Message, error) {
	if strings.TrimSpace(req.Content) == "" || !domain.IsValidRole(req.Role) {
		return nil, fmt.Errorf("role and content are required: %w", domain.ErrInvalidRequest)
	}
	ws, session, err := s.find(ctx, userID, slug)
	if err != nil {
		return nil, err
	}

	msgID := ws.registry.AddMessage(session.ID, domain.Message{Role: req.Role, Content: req.Content})
	if msgID == "" {
		return nil, fmt.Errorf("chat %s: %w", slug, domain.ErrNotFound)
	}
	return ws.registry.Message(session.ID, msgID), nil
}

// Send sends a user message and streams the assistant reply through
// onUpdate. The settled assistant message is returned even when the
// send failed; in that case it holds the fallback text and err is set.
func (s *SessionService) Send(
	ctx context.Context,
	userID, slug string,
	req *domain.SendMessageRequest,
	files []domain.Attachment,
	onUpdate func(domain.Message),
) (*domain.Message, error) {
	if strings.TrimSpace(req.Content) == "" && len(files) == 0 {
		return nil, fmt.Errorf("content is required: %w", domain.ErrInvalidRequest)
	}
	ws, session, err := s.find(ctx, userID, slug)
	if err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = session.Model
	}
	msgID, err := ws.sender.Send(ctx, chat.SendRequest{
		ChatID:   session.ID,
		Content:  req.Content,
		Model:    model,
		Files:    files,
		OnUpdate: onUpdate,
	})
	if msgID == "" {
		return nil, err
	}

	msg := ws.registry.Message(session.ID, msgID)
	if msg == nil {
		// deleted while streaming
		return nil, fmt.Errorf("chat %s: %w", slug, domain.ErrNotFound)
	}
	return msg, err
}
