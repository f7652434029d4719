package model

import (
	"time"

	"github.com/google/uuid"
)

// Composite indexes let the unordered-pair membership query hit an index from
// either direction (sender->receiver or receiver->sender).
type Message struct {
	Id         uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Content    string    `gorm:"type:text;not null"`
	SenderId   uuid.UUID `gorm:"type:uuid;not null;index:idx_messages_sender_receiver,priority:1;index:idx_messages_receiver_sender,priority:2"`
	ReceiverId uuid.UUID `gorm:"type:uuid;not null;index:idx_messages_sender_receiver,priority:2;index:idx_messages_receiver_sender,priority:1"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index"`
}

func (Message) TableName() string {
	return "messages"
}
