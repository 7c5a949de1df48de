package chat

import (
	"fmt"
	"net/http"
)

// FallbackMessage is the fragment appended when a response cannot be streamed
const FallbackMessage = "Sorry, I encountered an error. Please try again."

// StoreError reports a failed load or save of the chat state
type StoreError struct {
	Op  string // load, save
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("chat store %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// DispatchError reports a chat request that did not yield a readable stream
type DispatchError struct {
	StatusCode int
	Err        error
}

func (e *DispatchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("chat endpoint returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("chat dispatch failed: %v", e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// StreamError reports a failure while reading a streamed response.
// Partial holds the content received before the failure.
type StreamError struct {
	Partial string
	Err     error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream interrupted after %d bytes: %v", len(e.Partial), e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}
