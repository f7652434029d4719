package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"direct-chat-be/internal/entity"
	"direct-chat-be/internal/pkg/logger"
	"direct-chat-be/internal/repository/specification"
	"direct-chat-be/internal/repository/unitofwork"
	"direct-chat-be/pkg/chat"
	"direct-chat-be/pkg/conversation"
	"direct-chat-be/pkg/delivery"
)

// messageService is the message store gateway: history loads and sends against
// the messages table, with created messages fanned out on the delivery bus.
type messageService struct {
	uowFactory unitofwork.RepositoryFactory
	publisher  delivery.Publisher
	logger     logger.ILogger
}

func NewMessageService(uowFactory unitofwork.RepositoryFactory, publisher delivery.Publisher, log logger.ILogger) chat.Gateway {
	return &messageService{
		uowFactory: uowFactory,
		publisher:  publisher,
		logger:     log,
	}
}

func (s *messageService) LoadHistory(ctx context.Context, pair conversation.Pair) ([]delivery.Message, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	messages, err := uow.MessageRepository().FindByPair(ctx, pair)
	if err != nil {
		return nil, &chat.StoreError{Op: "load_history", Err: err}
	}

	out := make([]delivery.Message, len(messages))
	for i, m := range messages {
		out[i] = toDeliveryMessage(m)
	}
	return out, nil
}

// Send persists the message and publishes it. No payload comes back on purpose:
// the sender observes the message through the same live delivery path as the
// receiver does.
func (s *messageService) Send(ctx context.Context, senderId, receiverId uuid.UUID, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return chat.ErrEmptyMessage
	}
	if receiverId == uuid.Nil {
		return &chat.StoreError{Op: "send", Err: fmt.Errorf("missing receiver")}
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)

	receiver, err := uow.UserRepository().FindOne(ctx, specification.ByID{ID: receiverId})
	if err != nil {
		return &chat.StoreError{Op: "send", Err: err}
	}
	if receiver == nil {
		return &chat.StoreError{Op: "send", Err: fmt.Errorf("receiver %s not found", receiverId)}
	}

	message := &entity.Message{
		Content:    content,
		SenderId:   senderId,
		ReceiverId: receiverId,
	}
	if err := uow.MessageRepository().Create(ctx, message); err != nil {
		return &chat.StoreError{Op: "send", Err: err}
	}

	// The message is durably stored at this point. A publish failure only delays
	// visibility until the next history load, so it is logged, not returned.
	if err := s.publisher.Publish(ctx, toDeliveryMessage(message)); err != nil {
		s.logger.Error("MessageService", "Failed to publish created message", map[string]interface{}{
			"message_id": message.Id,
			"error":      err.Error(),
		})
	}

	return nil
}

func toDeliveryMessage(m *entity.Message) delivery.Message {
	return delivery.Message{
		Id:         m.Id,
		Content:    m.Content,
		SenderId:   m.SenderId,
		ReceiverId: m.ReceiverId,
		CreatedAt:  m.CreatedAt,
	}
}
