package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/liliang-cn/askdesk/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore keeps the encoded state in memory
type fakeStore struct {
	mu      sync.Mutex
	data    []byte
	saves   int
	saveErr error
	loadErr error
}

func (s *fakeStore) Load(ctx context.Context) (*domain.ChatState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if s.data == nil {
		return nil, domain.ErrNotFound
	}
	return DecodeState(s.data)
}

func (s *fakeStore) Save(ctx context.Context, state *domain.ChatState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	data, err := EncodeState(state)
	if err != nil {
		return err
	}
	s.data = data
	s.saves++
	return nil
}

func newEmptyRegistry(opts ...Option) *Registry {
	return NewRegistry(append([]Option{WithSeed(nil)}, opts...)...)
}

func TestRegistry_CreateChatPrependsAndSelects(t *testing.T) {
	r := newEmptyRegistry()

	firstID, firstSlug := r.CreateChat("", "")
	secondID, _ := r.CreateChat("Plans", "gpt-4o-mini")

	chats := r.Chats()
	require.Len(t, chats, 2)
	assert.Equal(t, secondID, chats[0].ID)
	assert.Equal(t, firstID, chats[1].ID)
	assert.Equal(t, secondID, r.SelectedID())

	first := r.Chat(firstID)
	require.NotNil(t, first)
	assert.Equal(t, domain.DefaultChatTitle, first.Title)
	assert.Equal(t, domain.DefaultModel, first.Model)
	assert.Len(t, firstSlug, SlugLength)
	assert.Empty(t, first.Messages)
	assert.False(t, first.CreatedAt.IsZero())

	assert.Equal(t, "gpt-4o-mini", chats[0].Model)
	assert.NotEqual(t, chats[0].Slug, chats[1].Slug)
}

func TestRegistry_SelectChat(t *testing.T) {
	r := newEmptyRegistry()
	a, _ := r.CreateChat("a", "")
	b, _ := r.CreateChat("b", "")
	require.Equal(t, b, r.SelectedID())

	r.SelectChat(a)
	assert.Equal(t, a, r.SelectedID())

	r.SelectChat("missing")
	assert.Equal(t, a, r.SelectedID(), "unknown id must not change the selection")

	selected := r.Selected()
	require.NotNil(t, selected)
	assert.Equal(t, "a", selected.Title)
}

func TestRegistry_ChatBySlug(t *testing.T) {
	r := newEmptyRegistry()
	id, slug := r.CreateChat("lookup", "")

	got := r.ChatBySlug(slug)
	require.NotNil(t, got)
	assert.Equal(t, id, got.ID)

	// Scenario E: unknown slug is a normal miss
	assert.Nil(t, r.ChatBySlug("nope-nope1"))
	assert.Nil(t, r.ChatBySlug(""))
}

func TestRegistry_RenameChat(t *testing.T) {
	r := newEmptyRegistry()
	id, _ := r.CreateChat("", "")
	before := r.Chat(id).UpdatedAt

	r.RenameChat(id, "Renamed")
	got := r.Chat(id)
	assert.Equal(t, "Renamed", got.Title)
	assert.False(t, got.UpdatedAt.Before(before))

	r.RenameChat("missing", "x")
	assert.Len(t, r.Chats(), 1)
}

func TestRegistry_DeleteChat(t *testing.T) {
	r := newEmptyRegistry()
	keep, _ := r.CreateChat("keep", "")
	gone, _ := r.CreateChat("gone", "")
	require.Equal(t, gone, r.SelectedID())

	// Scenario D: deleting the selected chat clears the selection
	r.DeleteChat(gone)
	assert.Empty(t, r.SelectedID())
	assert.Nil(t, r.Chat(gone))
	require.Len(t, r.Chats(), 1)
	assert.Equal(t, keep, r.Chats()[0].ID)
	assert.Nil(t, r.State().SelectedChatID)

	r.SelectChat(keep)
	other, _ := r.CreateChat("other", "")
	r.SelectChat(keep)
	r.DeleteChat(other)
	assert.Equal(t, keep, r.SelectedID(), "deleting another chat keeps the selection")

	r.DeleteChat("missing")
	assert.Len(t, r.Chats(), 1)
}

func TestRegistry_ReturnsCopies(t *testing.T) {
	r := newEmptyRegistry()
	id, _ := r.CreateChat("original", "")

	c := r.Chat(id)
	c.Title = "mutated"
	c.Messages = append(c.Messages, &domain.Message{ID: "x"})

	got := r.Chat(id)
	assert.Equal(t, "original", got.Title)
	assert.Empty(t, got.Messages)
}

func TestRegistry_RestoreSeedsWhenNothingSaved(t *testing.T) {
	store := &fakeStore{}
	r := NewRegistry(WithStore(store))

	require.NoError(t, r.Restore(context.Background()))

	chats := r.Chats()
	require.Len(t, chats, 2)
	assert.Equal(t, "Summarize the documents in the right order in the folder", chats[0].Title)
	assert.Len(t, chats[0].Messages, 2)
	assert.Equal(t, "Generate a marketing email", chats[1].Title)
	assert.Len(t, chats[1].Messages, 1)
	assert.Equal(t, chats[0].ID, r.SelectedID())
}

func TestRegistry_RestoreFallsBackOnCorruptState(t *testing.T) {
	store := &fakeStore{data: []byte(`{"chats": "not a list"`)}
	r := NewRegistry(WithStore(store))

	err := r.Restore(context.Background())

	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "load", storeErr.Op)
	assert.ErrorIs(t, err, ErrCorruptState)
	assert.Len(t, r.Chats(), 2, "seed chats are installed")
}

func TestRegistry_RestoreRejectsNullMessages(t *testing.T) {
	store := &fakeStore{data: []byte(`{"chats":[{"id":"a","slug":"a","title":"A","messages":[null],` +
		`"createdAt":"2024-01-01T00:00:00Z","updatedAt":"2024-01-01T00:00:00Z"}],"selectedChatId":"a"}`)}
	r := NewRegistry(WithStore(store))

	var err error
	require.NotPanics(t, func() { err = r.Restore(context.Background()) })

	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.ErrorIs(t, err, ErrCorruptState)
	assert.Len(t, r.Chats(), 2, "seed chats are installed")
}

func TestRegistry_RestoreSkipsNilEntries(t *testing.T) {
	r := newEmptyRegistry()
	r.install(&domain.ChatState{Chats: []*domain.ChatSession{
		nil,
		{ID: "a", Messages: []*domain.Message{nil, {ID: "m", Role: domain.RoleUser, Content: "x"}}},
	}})

	chats := r.Chats()
	require.Len(t, chats, 1)
	require.Len(t, chats[0].Messages, 1)
	assert.Equal(t, "m", chats[0].Messages[0].ID)
}

func TestRegistry_RestoreFallsBackOnLoadError(t *testing.T) {
	boom := errors.New("disk on fire")
	r := NewRegistry(WithStore(&fakeStore{loadErr: boom}), WithSeed(nil))

	err := r.Restore(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, r.Chats())
	assert.Empty(t, r.SelectedID())
}

func TestRegistry_PersistRoundTrip(t *testing.T) {
	store := &fakeStore{}
	r := newEmptyRegistry(WithStore(store))
	id, slug := r.CreateChat("", "")
	r.AddMessage(id, domain.Message{Role: domain.RoleUser, Content: "hello"})
	r.AddMessage(id, domain.Message{
		Role:          domain.RoleUser,
		Content:       "with file",
		AttachedFiles: []domain.AttachedFile{{Name: "a.txt", Type: "text/plain", Size: 3}},
	})
	other, _ := r.CreateChat("second", "")
	r.SelectChat(id)

	restored := newEmptyRegistry(WithStore(store))
	require.NoError(t, restored.Restore(context.Background()))

	want := r.State()
	got := restored.State()
	require.Len(t, got.Chats, 2)
	require.NotNil(t, got.SelectedChatID)
	assert.Equal(t, id, *got.SelectedChatID)
	assert.Equal(t, other, got.Chats[0].ID)

	for i := range want.Chats {
		w, g := want.Chats[i], got.Chats[i]
		assert.Equal(t, w.ID, g.ID)
		assert.Equal(t, w.Slug, g.Slug)
		assert.Equal(t, w.Title, g.Title)
		assert.True(t, w.CreatedAt.Equal(g.CreatedAt))
		assert.True(t, w.UpdatedAt.Equal(g.UpdatedAt))
		require.Len(t, g.Messages, len(w.Messages))
		for j := range w.Messages {
			assert.Equal(t, w.Messages[j].ID, g.Messages[j].ID)
			assert.Equal(t, w.Messages[j].Content, g.Messages[j].Content)
			assert.Equal(t, w.Messages[j].AttachedFiles, g.Messages[j].AttachedFiles)
			assert.True(t, w.Messages[j].CreatedAt.Equal(g.Messages[j].CreatedAt))
		}
	}
	assert.NotNil(t, restored.ChatBySlug(slug))
}

func TestRegistry_RestoreFinalizesInterruptedStreams(t *testing.T) {
	store := &fakeStore{}
	r := newEmptyRegistry(WithStore(store))
	id, _ := r.CreateChat("", "")
	msgID := r.AddMessage(id, domain.Message{Role: domain.RoleAssistant, IsStreaming: true})
	r.AppendFragment(id, msgID, "half ")
	r.AppendFragment(id, msgID, "done")

	restored := newEmptyRegistry(WithStore(store))
	require.NoError(t, restored.Restore(context.Background()))

	m := restored.Message(id, msgID)
	require.NotNil(t, m)
	assert.False(t, m.IsStreaming)
	assert.Equal(t, "half done", m.Content)
	assert.Nil(t, m.AccumulationBuffer)
}

func TestRegistry_PersistFailureKeepsMemoryState(t *testing.T) {
	boom := errors.New("quota exceeded")
	var (
		mu     sync.Mutex
		failed []error
	)
	r := newEmptyRegistry(
		WithStore(&fakeStore{saveErr: boom}),
		WithPersistErrorHandler(func(err error) {
			mu.Lock()
			failed = append(failed, err)
			mu.Unlock()
		}),
	)

	id, _ := r.CreateChat("still here", "")
	assert.NotNil(t, r.Chat(id))

	mu.Lock()
	require.Len(t, failed, 1)
	var storeErr *StoreError
	assert.ErrorAs(t, failed[0], &storeErr)
	assert.Equal(t, "save", storeErr.Op)
	assert.ErrorIs(t, failed[0], boom)
	mu.Unlock()

	err := r.Flush(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestRegistry_SavesEveryMutation(t *testing.T) {
	store := &fakeStore{}
	r := newEmptyRegistry(WithStore(store))

	id, _ := r.CreateChat("", "")
	r.RenameChat(id, "x")
	r.SelectChat(id) // already selected, no change
	r.SelectChat("missing")

	assert.Equal(t, 2, store.saves)
}

// Two registries sharing one store overwrite each other: the last save wins.
func TestRegistry_LastWriteWinsAcrossRegistries(t *testing.T) {
	store := &fakeStore{}
	tabA := newEmptyRegistry(WithStore(store))
	tabB := newEmptyRegistry(WithStore(store))

	a, _ := tabA.CreateChat("from A", "")
	tabB.CreateChat("from B", "")

	reloaded := newEmptyRegistry(WithStore(store))
	require.NoError(t, reloaded.Restore(context.Background()))

	chats := reloaded.Chats()
	require.Len(t, chats, 1)
	assert.Equal(t, "from B", chats[0].Title)
	assert.Nil(t, reloaded.Chat(a), "tab A's chat was erased by tab B's write")
}

func TestRegistry_ConcurrentSessionsStayIndependent(t *testing.T) {
	r := newEmptyRegistry(WithStore(&fakeStore{}))
	a, _ := r.CreateChat("a", "")
	b, _ := r.CreateChat("b", "")

	var wg sync.WaitGroup
	for _, id := range []string{a, b} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				r.AddMessage(id, domain.Message{Role: domain.RoleAssistant, Content: id})
			}
		}(id)
	}
	wg.Wait()

	for _, id := range []string{a, b} {
		c := r.Chat(id)
		require.Len(t, c.Messages, 50)
		for _, m := range c.Messages {
			assert.Equal(t, id, m.Content)
		}
	}
}

func TestRegistry_Clock(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	r := newEmptyRegistry(WithClock(func() time.Time { return fixed }))

	id, _ := r.CreateChat("", "")
	msgID := r.AddMessage(id, domain.Message{Role: domain.RoleUser, Content: "hi"})

	assert.Equal(t, fixed, r.Chat(id).CreatedAt)
	assert.Equal(t, fixed, r.Message(id, msgID).CreatedAt)
}
