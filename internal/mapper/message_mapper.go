package mapper

import (
	"direct-chat-be/internal/entity"
	"direct-chat-be/internal/model"
)

type MessageMapper struct{}

func NewMessageMapper() *MessageMapper {
	return &MessageMapper{}
}

func (m *MessageMapper) ToEntity(msg *model.Message) *entity.Message {
	if msg == nil {
		return nil
	}
	return &entity.Message{
		Id:         msg.Id,
		Content:    msg.Content,
		SenderId:   msg.SenderId,
		ReceiverId: msg.ReceiverId,
		CreatedAt:  msg.CreatedAt,
	}
}

func (m *MessageMapper) ToModel(msg *entity.Message) *model.Message {
	if msg == nil {
		return nil
	}
	return &model.Message{
		Id:         msg.Id,
		Content:    msg.Content,
		SenderId:   msg.SenderId,
		ReceiverId: msg.ReceiverId,
		CreatedAt:  msg.CreatedAt,
	}
}

func (m *MessageMapper) ToEntities(models []*model.Message) []*entity.Message {
	entities := make([]*entity.Message, len(models))
	for i, msg := range models {
		entities[i] = m.ToEntity(msg)
	}
	return entities
}
