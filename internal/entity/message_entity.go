package entity

import (
	"time"

	"github.com/google/uuid"
)

// Message is a single direct message between two users. Server-assigned id and
// CreatedAt; never mutated after creation.
type Message struct {
	Id         uuid.UUID
	Content    string
	SenderId   uuid.UUID
	ReceiverId uuid.UUID
	CreatedAt  time.Time
}
