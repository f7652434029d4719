package chat

import (
	"context"

	"github.com/google/uuid"

	"direct-chat-be/pkg/conversation"
	"direct-chat-be/pkg/delivery"
)

// Profile is the directory's view of a user, copied by value into search results
// and the active selection.
type Profile struct {
	Id    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

// Directory resolves a partial text query into candidate users. The query is a
// case-insensitive substring match on email; the searching user is never
// returned. Failures are *DirectoryError.
type Directory interface {
	Search(ctx context.Context, query string, excludeId uuid.UUID, limit int) ([]Profile, error)
}

// Gateway is the message store boundary.
//
// LoadHistory returns the conversation's messages ordered by CreatedAt
// ascending; an empty conversation is an empty slice, not an error.
//
// Send persists a new message and returns no payload: the created message is
// observed through the live delivery path like any other, so send and receive
// share a single source of truth and a single dedup rule.
type Gateway interface {
	LoadHistory(ctx context.Context, pair conversation.Pair) ([]delivery.Message, error)
	Send(ctx context.Context, senderId, receiverId uuid.UUID, content string) error
}
