package implementation

import (
	"context"

	"direct-chat-be/internal/entity"
	"direct-chat-be/internal/mapper"
	"direct-chat-be/internal/model"
	"direct-chat-be/internal/repository/contract"
	"direct-chat-be/internal/repository/specification"
	"direct-chat-be/pkg/conversation"

	"gorm.io/gorm"
)

type MessageRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.MessageMapper
}

func NewMessageRepository(db *gorm.DB) contract.MessageRepository {
	return &MessageRepositoryImpl{
		db:     db,
		mapper: mapper.NewMessageMapper(),
	}
}

func (r *MessageRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *MessageRepositoryImpl) Create(ctx context.Context, message *entity.Message) error {
	m := r.mapper.ToModel(message)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	// Read back server-assigned id and created_at.
	*message = *r.mapper.ToEntity(m)
	return nil
}

func (r *MessageRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Message, error) {
	var models []*model.Message
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToEntities(models), nil
}

func (r *MessageRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&model.Message{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *MessageRepositoryImpl) FindByPair(ctx context.Context, pair conversation.Pair) ([]*entity.Message, error) {
	messages, err := r.FindAll(ctx,
		specification.ByConversationPair{Pair: pair},
		specification.OrderBy{Field: "created_at"},
	)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []*entity.Message{}
	}
	return messages, nil
}
