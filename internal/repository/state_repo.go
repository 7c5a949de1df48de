package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/liliang-cn/askdesk/internal/chat"
	"github.com/liliang-cn/askdesk/internal/domain"
)

// StateRepository persists the chat state as one row of the kv_state table
type StateRepository struct {
	db  *DB
	key string
}

// NewStateRepository creates a new state repository
func NewStateRepository(db *DB, key string) *StateRepository {
	if key == "" {
		key = chat.StateKey
	}
	return &StateRepository{db: db, key: key}
}

// Load reads the saved chat state
func (r *StateRepository) Load(ctx context.Context) (*domain.ChatState, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM kv_state WHERE key = ?`, r.key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, &chat.StoreError{Op: "load", Key: r.key, Err: err}
	}

	state, err := chat.DecodeState([]byte(value))
	if err != nil {
		return nil, &chat.StoreError{Op: "load", Key: r.key, Err: err}
	}
	return state, nil
}

// Save replaces the saved chat state
func (r *StateRepository) Save(ctx context.Context, state *domain.ChatState) error {
	data, err := chat.EncodeState(state)
	if err != nil {
		return &chat.StoreError{Op: "save", Key: r.key, Err: err}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO kv_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, r.key, string(data), time.Now())
	if err != nil {
		return &chat.StoreError{Op: "save", Key: r.key, Err: fmt.Errorf("upsert: %w", err)}
	}
	return nil
}

// Delete removes the saved chat state
func (r *StateRepository) Delete(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM kv_state WHERE key = ?`, r.key)
	return err
}
