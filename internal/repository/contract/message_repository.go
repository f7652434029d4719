package contract

import (
	"context"

	"direct-chat-be/internal/entity"
	"direct-chat-be/internal/repository/specification"
	"direct-chat-be/pkg/conversation"
)

type MessageRepository interface {
	Create(ctx context.Context, message *entity.Message) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Message, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)

	// FindByPair returns the full history of the conversation identified by pair,
	// ordered by created_at ascending. Empty slice, not an error, when there is no
	// history yet.
	FindByPair(ctx context.Context, pair conversation.Pair) ([]*entity.Message, error)
}
