package dto

import "github.com/google/uuid"

type SelectRequest struct {
	UserId uuid.UUID `json:"user_id" validate:"required"`
}

type SendMessageRequest struct {
	Content string `json:"content" validate:"required"`
}
