package specification

import (
	"gorm.io/gorm"

	"direct-chat-be/pkg/conversation"
)

// ByConversationPair filters messages by membership of the unordered participant
// pair, matching both directions of the exchange.
type ByConversationPair struct {
	Pair conversation.Pair
}

func (s ByConversationPair) Apply(db *gorm.DB) *gorm.DB {
	return db.Where(
		"(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
		s.Pair.A, s.Pair.B, s.Pair.B, s.Pair.A,
	)
}
