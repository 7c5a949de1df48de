package chat

import (
	"time"

	"github.com/liliang-cn/askdesk/internal/domain"
)

// SeedChats returns the example sessions used when no saved state exists
func SeedChats(now time.Time) []*domain.ChatSession {
	at := func(ago time.Duration) time.Time { return now.Add(-ago) }

	return []*domain.ChatSession{
		{
			ID:    NewID(),
			Slug:  NewSlug(),
			Title: "Summarize the documents in the right order in the folder",
			Messages: []*domain.Message{
				{ID: NewID(), Role: domain.RoleUser, Content: "Summarize the documents in the folder", CreatedAt: at(100 * time.Second)},
				{ID: NewID(), Role: domain.RoleAssistant, Content: "Sure, do you want a bullet list or a narrative summary?", CreatedAt: at(90 * time.Second)},
			},
			Model:     domain.DefaultModel,
			CreatedAt: at(100 * time.Second),
			UpdatedAt: at(90 * time.Second),
		},
		{
			ID:    NewID(),
			Slug:  NewSlug(),
			Title: "Generate a marketing email",
			Messages: []*domain.Message{
				{ID: NewID(), Role: domain.RoleUser, Content: "Write a launch email for our new feature.", CreatedAt: at(80 * time.Second)},
			},
			Model:     domain.DefaultModel,
			CreatedAt: at(80 * time.Second),
			UpdatedAt: at(80 * time.Second),
		},
	}
}
