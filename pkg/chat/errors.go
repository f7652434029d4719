package chat

import (
	"errors"
	"fmt"
)

var (
	ErrNoSelection   = errors.New("no conversation selected")
	ErrEmptyMessage  = errors.New("message content is empty")
	ErrSessionClosed = errors.New("chat session is closed")
)

// DirectoryError reports a failed user search. Absorbed by the session as an
// empty result set plus a non-fatal status, never propagated as a crash.
type DirectoryError struct {
	Err error
}

func (e *DirectoryError) Error() string {
	return fmt.Sprintf("directory search failed: %v", e.Err)
}

func (e *DirectoryError) Unwrap() error {
	return e.Err
}

// StoreError reports a failed history load or send against the message store.
type StoreError struct {
	Op  string // "load_history" or "send"
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("message store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
