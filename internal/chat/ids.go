package chat

import (
	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// SlugLength is the length of a chat slug
const SlugLength = 10

// NewID returns an opaque unique identifier
func NewID() string {
	return uuid.New().String()
}

// NewSlug returns a short URL-safe token for sharing a chat
func NewSlug() string {
	slug, err := gonanoid.New(SlugLength)
	if err != nil {
		// crypto/rand failure; fall back to a uuid prefix
		return uuid.New().String()[:SlugLength]
	}
	return slug
}
