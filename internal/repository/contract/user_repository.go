package contract

import (
	"context"

	"direct-chat-be/internal/entity"
	"direct-chat-be/internal/repository/specification"

	"github.com/google/uuid"
)

type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.User, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.User, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)

	// SearchByEmail is the directory query: case-insensitive substring match on
	// email, excluding the searching user, capped at limit.
	SearchByEmail(ctx context.Context, query string, excludeId uuid.UUID, limit int) ([]*entity.User, error)
}
