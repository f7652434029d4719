package service

import (
	"context"

	"github.com/google/uuid"

	"direct-chat-be/internal/repository/unitofwork"
	"direct-chat-be/pkg/chat"
)

// directoryService backs the user search of the chat session with the user
// repository. Query trimming/short-circuiting happens in the session core; by
// the time this runs a request is really wanted.
type directoryService struct {
	uowFactory unitofwork.RepositoryFactory
}

func NewDirectoryService(uowFactory unitofwork.RepositoryFactory) chat.Directory {
	return &directoryService{uowFactory: uowFactory}
}

func (s *directoryService) Search(ctx context.Context, query string, excludeId uuid.UUID, limit int) ([]chat.Profile, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	users, err := uow.UserRepository().SearchByEmail(ctx, query, excludeId, limit)
	if err != nil {
		return nil, &chat.DirectoryError{Err: err}
	}

	profiles := make([]chat.Profile, len(users))
	for i, u := range users {
		profiles[i] = chat.Profile{Id: u.Id, Email: u.Email}
	}
	return profiles, nil
}
