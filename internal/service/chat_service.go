package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"direct-chat-be/internal/pkg/logger"
	"direct-chat-be/internal/repository/memory"
	"direct-chat-be/internal/repository/specification"
	"direct-chat-be/internal/repository/unitofwork"
	"direct-chat-be/pkg/chat"
	"direct-chat-be/pkg/delivery"
)

// SessionNotifier pushes session snapshots to the user's connected clients.
// Implemented by the websocket hub.
type SessionNotifier interface {
	Notify(userId uuid.UUID, snapshot chat.Snapshot)
}

type IChatService interface {
	// SetQuery records a search keystroke for the user's session; results are
	// pushed asynchronously once the debounce window settles.
	SetQuery(userId uuid.UUID, query string)

	// Select opens the conversation with the target user.
	Select(ctx context.Context, userId, targetId uuid.UUID) error

	// Deselect closes the active conversation.
	Deselect(userId uuid.UUID)

	// Send persists a message to the active conversation.
	Send(ctx context.Context, userId uuid.UUID, content string) error

	// Snapshot returns the current merged view of the user's session.
	Snapshot(userId uuid.UUID) chat.Snapshot

	// EndSession tears the session down (logout, cleanup).
	EndSession(userId uuid.UUID)
}

type chatService struct {
	uowFactory unitofwork.RepositoryFactory
	directory  chat.Directory
	gateway    chat.Gateway
	subscriber delivery.Subscriber
	registry   *memory.SessionRegistry
	notifier   SessionNotifier
	logger     logger.ILogger

	mu sync.Mutex // guards get-or-create on the registry
}

func NewChatService(
	uowFactory unitofwork.RepositoryFactory,
	directory chat.Directory,
	gateway chat.Gateway,
	subscriber delivery.Subscriber,
	notifier SessionNotifier,
	log logger.ILogger,
	sessionTTL time.Duration,
) IChatService {
	return &chatService{
		uowFactory: uowFactory,
		directory:  directory,
		gateway:    gateway,
		subscriber: subscriber,
		registry:   memory.NewSessionRegistry(sessionTTL),
		notifier:   notifier,
		logger:     log,
	}
}

// session returns the user's live session, creating it on first use. Creation
// is serialized so concurrent requests cannot race two sessions (and two
// subscriptions) into existence for one user.
func (s *chatService) session(userId uuid.UUID) *chat.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, found := s.registry.Get(userId); found {
		return session
	}

	session := chat.NewSession(userId, s.directory, s.gateway, s.subscriber, chat.Config{}, func(snap chat.Snapshot) {
		s.notifier.Notify(userId, snap)
	})
	s.registry.Save(session)

	s.logger.Info("ChatService", "Session created", map[string]interface{}{
		"user_id": userId,
	})
	return session
}

func (s *chatService) SetQuery(userId uuid.UUID, query string) {
	s.session(userId).SetQuery(query)
}

func (s *chatService) Select(ctx context.Context, userId, targetId uuid.UUID) error {
	if targetId == userId {
		return fmt.Errorf("cannot open a conversation with yourself")
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	target, err := uow.UserRepository().FindOne(ctx, specification.ByID{ID: targetId})
	if err != nil {
		return err
	}
	if target == nil {
		return fmt.Errorf("user %s not found", targetId)
	}

	return s.session(userId).Select(chat.Profile{Id: target.Id, Email: target.Email})
}

func (s *chatService) Deselect(userId uuid.UUID) {
	s.session(userId).Deselect()
}

func (s *chatService) Send(ctx context.Context, userId uuid.UUID, content string) error {
	return s.session(userId).SendMessage(ctx, content)
}

func (s *chatService) Snapshot(userId uuid.UUID) chat.Snapshot {
	return s.session(userId).Snapshot()
}

func (s *chatService) EndSession(userId uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry.Delete(userId)
}
