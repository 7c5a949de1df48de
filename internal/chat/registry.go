package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/liliang-cn/askdesk/internal/domain"
	"go.uber.org/zap"
)

// Registry owns the collection of chat sessions and the selected-chat pointer.
//
// Published sessions are never mutated: every change copies the affected
// session and swaps it into a new slice, so snapshots handed to the store or
// to readers stay consistent without holding the lock.
type Registry struct {
	mu       sync.RWMutex
	chats    []*domain.ChatSession
	selected string
	version  uint64

	store          Store
	logger         *zap.Logger
	seed           func(now time.Time) []*domain.ChatSession
	onPersistError func(error)
	saveTimeout    time.Duration
	now            func() time.Time

	saveMu       sync.Mutex
	savedVersion uint64
}

// Option configures a Registry
type Option func(*Registry)

// WithStore sets the persistent store. Without one the registry is memory only.
func WithStore(store Store) Option {
	return func(r *Registry) { r.store = store }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithSeed replaces the example sessions installed when no state was saved.
// A nil seed starts from an empty registry.
func WithSeed(seed func(now time.Time) []*domain.ChatSession) Option {
	return func(r *Registry) { r.seed = seed }
}

// WithPersistErrorHandler sets the callback receiving background save failures
func WithPersistErrorHandler(fn func(error)) Option {
	return func(r *Registry) { r.onPersistError = fn }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithSaveTimeout bounds each background save
func WithSaveTimeout(d time.Duration) Option {
	return func(r *Registry) { r.saveTimeout = d }
}

// NewRegistry creates an empty registry. Call Restore to load saved state.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		chats:       []*domain.ChatSession{},
		logger:      zap.NewNop(),
		seed:        SeedChats,
		saveTimeout: 5 * time.Second,
		now:         func() time.Time { return time.Now().UTC().Round(0) },
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.onPersistError == nil {
		r.onPersistError = func(err error) {
			r.logger.Warn("Failed to persist chat state", zap.Error(err))
		}
	}
	return r
}

// Restore loads the saved state. When nothing was saved, or the saved state
// cannot be read, the seed sessions are installed instead; in the latter case
// the returned *StoreError describes the failure and the registry stays usable.
func (r *Registry) Restore(ctx context.Context) error {
	var state *domain.ChatState
	var loadErr error
	if r.store != nil {
		state, loadErr = r.store.Load(ctx)
	}

	if loadErr == nil && state != nil {
		r.install(state)
		r.logger.Info("Restored chat state", zap.Int("chats", len(state.Chats)))
		return nil
	}

	r.installSeed()
	if loadErr == nil || errors.Is(loadErr, domain.ErrNotFound) {
		return nil
	}

	var storeErr *StoreError
	if !errors.As(loadErr, &storeErr) {
		storeErr = &StoreError{Op: "load", Key: StateKey, Err: loadErr}
	}
	return storeErr
}

func (r *Registry) install(state *domain.ChatState) {
	chats := make([]*domain.ChatSession, 0, len(state.Chats))
	for _, c := range state.Chats {
		if c == nil {
			continue
		}
		c = c.Clone()
		msgs := c.Messages[:0]
		for _, m := range c.Messages {
			if m == nil {
				continue
			}
			// a stream interrupted by a restart never resumes
			if m.IsStreaming {
				finalize(m)
			}
			msgs = append(msgs, m)
		}
		c.Messages = msgs
		chats = append(chats, c)
	}

	r.mu.Lock()
	r.chats = chats
	r.selected = ""
	if state.SelectedChatID != nil && indexOf(chats, *state.SelectedChatID) >= 0 {
		r.selected = *state.SelectedChatID
	}
	r.mu.Unlock()
}

func (r *Registry) installSeed() {
	var chats []*domain.ChatSession
	if r.seed != nil {
		chats = r.seed(r.now())
	}
	if chats == nil {
		chats = []*domain.ChatSession{}
	}

	r.mu.Lock()
	r.chats = chats
	r.selected = ""
	if len(chats) > 0 {
		r.selected = chats[0].ID
	}
	r.mu.Unlock()
}

// CreateChat prepends a new empty session and selects it
func (r *Registry) CreateChat(title, model string) (id, slug string) {
	if strings.TrimSpace(title) == "" {
		title = domain.DefaultChatTitle
	}
	if model == "" {
		model = domain.DefaultModel
	}
	now := r.now()
	chat := &domain.ChatSession{
		ID:        NewID(),
		Slug:      NewSlug(),
		Title:     title,
		Messages:  []*domain.Message{},
		Model:     model,
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.commit(func() bool {
		r.chats = append([]*domain.ChatSession{chat}, r.chats...)
		r.selected = chat.ID
		return true
	})

	r.logger.Debug("Created chat", zap.String("chat_id", chat.ID), zap.String("slug", chat.Slug))
	return chat.ID, chat.Slug
}

// SelectChat points the selection at id. Unknown ids are ignored.
func (r *Registry) SelectChat(id string) {
	r.commit(func() bool {
		if r.selected == id || indexOf(r.chats, id) < 0 {
			return false
		}
		r.selected = id
		return true
	})
}

// SelectedID returns the selected chat id, or "" when nothing is selected
func (r *Registry) SelectedID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selected
}

// Selected returns a copy of the selected chat, or nil
func (r *Registry) Selected() *domain.ChatSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := indexOf(r.chats, r.selected); i >= 0 {
		return r.chats[i].Clone()
	}
	return nil
}

// Chat returns a copy of the chat with the given id, or nil
func (r *Registry) Chat(id string) *domain.ChatSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := indexOf(r.chats, id); i >= 0 {
		return r.chats[i].Clone()
	}
	return nil
}

// ChatBySlug returns a copy of the chat with the given slug, or nil
func (r *Registry) ChatBySlug(slug string) *domain.ChatSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.chats {
		if c.Slug == slug {
			return c.Clone()
		}
	}
	return nil
}

// Chats returns copies of all sessions, most recently created first
func (r *Registry) Chats() []*domain.ChatSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.ChatSession, len(r.chats))
	for i, c := range r.chats {
		out[i] = c.Clone()
	}
	return out
}

// RenameChat sets the title of a chat. Unknown ids are ignored.
func (r *Registry) RenameChat(id, title string) {
	r.updateChat(id, func(c *domain.ChatSession) bool {
		c.Title = title
		return true
	})
}

// SetModel records the model used by a chat. Unknown ids are ignored.
func (r *Registry) SetModel(id, model string) {
	r.updateChat(id, func(c *domain.ChatSession) bool {
		if c.Model == model {
			return false
		}
		c.Model = model
		return true
	})
}

// DeleteChat removes a chat. Deleting the selected chat clears the selection.
func (r *Registry) DeleteChat(id string) {
	r.commit(func() bool {
		i := indexOf(r.chats, id)
		if i < 0 {
			return false
		}
		chats := make([]*domain.ChatSession, 0, len(r.chats)-1)
		chats = append(chats, r.chats[:i]...)
		r.chats = append(chats, r.chats[i+1:]...)
		if r.selected == id {
			r.selected = ""
		}
		return true
	})
}

// State returns a deep copy of the current state in its persisted layout
func (r *Registry) State() *domain.ChatState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state := r.snapshotLocked()
	for i, c := range state.Chats {
		state.Chats[i] = c.Clone()
	}
	return state
}

// Flush saves the current state and reports the outcome
func (r *Registry) Flush(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	r.mu.RLock()
	version := r.version
	state := r.snapshotLocked()
	r.mu.RUnlock()

	return r.save(ctx, version, state, true)
}

// commit runs fn under the write lock and persists the result when fn
// reports a change. The store is written outside the lock.
func (r *Registry) commit(fn func() bool) {
	r.mu.Lock()
	if !fn() {
		r.mu.Unlock()
		return
	}
	r.version++
	version := r.version
	state := r.snapshotLocked()
	r.mu.Unlock()

	if r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.saveTimeout)
	defer cancel()
	if err := r.save(ctx, version, state, false); err != nil {
		r.onPersistError(err)
	}
}

// updateChat applies fn to a private copy of the chat and publishes it
func (r *Registry) updateChat(id string, fn func(c *domain.ChatSession) bool) bool {
	updated := false
	r.commit(func() bool {
		i := indexOf(r.chats, id)
		if i < 0 {
			return false
		}
		c := *r.chats[i]
		c.Messages = append([]*domain.Message(nil), r.chats[i].Messages...)
		if !fn(&c) {
			return false
		}
		c.UpdatedAt = r.now()

		chats := append([]*domain.ChatSession(nil), r.chats...)
		chats[i] = &c
		r.chats = chats
		updated = true
		return true
	})
	return updated
}

// save writes a snapshot unless a newer one has already been written.
// Two registries sharing one store still overwrite each other's state.
func (r *Registry) save(ctx context.Context, version uint64, state *domain.ChatState, force bool) error {
	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	if version < r.savedVersion || (!force && version == r.savedVersion) {
		return nil
	}
	if err := r.store.Save(ctx, state); err != nil {
		var storeErr *StoreError
		if errors.As(err, &storeErr) {
			return storeErr
		}
		return &StoreError{Op: "save", Key: StateKey, Err: err}
	}
	if version > r.savedVersion {
		r.savedVersion = version
	}
	return nil
}

func (r *Registry) snapshotLocked() *domain.ChatState {
	state := &domain.ChatState{
		Chats: append([]*domain.ChatSession{}, r.chats...),
	}
	if r.selected != "" {
		selected := r.selected
		state.SelectedChatID = &selected
	}
	return state
}

func indexOf(chats []*domain.ChatSession, id string) int {
	if id == "" {
		return -1
	}
	for i, c := range chats {
		if c.ID == id {
			return i
		}
	}
	return -1
}
