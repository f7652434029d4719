package delivery

import (
	"context"
	"time"

	"github.com/google/uuid"

	"direct-chat-be/pkg/conversation"
)

// Message is the event shape pushed over the live channel when a direct message
// is created. It mirrors the stored row; the log entry type of the session core.
type Message struct {
	Id         uuid.UUID `json:"id"`
	Content    string    `json:"content"`
	SenderId   uuid.UUID `json:"sender_id"`
	ReceiverId uuid.UUID `json:"receiver_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Pair derives the conversation identity the message belongs to.
func (m Message) Pair() conversation.Pair {
	return conversation.NewPair(m.SenderId, m.ReceiverId)
}

// Handler receives newly created messages. It is invoked from the bus's own
// goroutine, never from the attaching caller's.
type Handler func(msg Message)

// DropHandler is invoked at most once when an attached subscription dies
// unexpectedly (as opposed to being detached).
type DropHandler func(err error)

// Subscription is a live attachment to exactly one conversation.
type Subscription interface {
	// Detach releases the underlying delivery resources. Idempotent.
	Detach()
}

// Publisher emits created messages onto the bus.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Subscriber opens per-conversation attachments. Messages whose sender/receiver
// pair equals the attached pair are delivered in arrival order, at most once each
// under normal operation.
type Subscriber interface {
	Attach(pair conversation.Pair, handler Handler, onDrop DropHandler) (Subscription, error)
}

// Bus is a full delivery backend: publish side, subscribe side, teardown.
type Bus interface {
	Publisher
	Subscriber
	Close() error
}

// SubjectFor maps a conversation identity onto a bus subject/topic.
func SubjectFor(pair conversation.Pair) string {
	return "messages." + pair.Key()
}
