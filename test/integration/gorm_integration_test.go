package integration

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"direct-chat-be/internal/entity"
	"direct-chat-be/internal/repository/unitofwork"
	"direct-chat-be/pkg/conversation"
	"direct-chat-be/pkg/database"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormConnection(t *testing.T) {
	// Load .env from root
	err := godotenv.Load("../../.env")
	if err != nil {
		log.Println("No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		t.Skip("Skipping integration test: DB_CONNECTION_STRING not set")
	}

	gormDB, err := database.NewGormDBFromDSN(dsn)
	if err != nil {
		t.Fatalf("Failed to connect to DB: %v", err)
	}

	// Verify Wiring
	uowFactory := unitofwork.NewRepositoryFactory(gormDB)
	uow := uowFactory.NewUnitOfWork(context.Background())

	assert.NotNil(t, uow.UserRepository())
	assert.NotNil(t, uow.MessageRepository())

	// Basic Ping
	sqlDB, _ := gormDB.DB()
	err = sqlDB.Ping()
	assert.NoError(t, err)
	t.Log("Successfully connected to DB and initialized UnitOfWork Factory")

	t.Run("Check User Repository", func(t *testing.T) {
		count, err := uow.UserRepository().Count(context.Background())
		assert.NoError(t, err)
		t.Logf("User count: %d", count)
	})

	t.Run("Check Message Repository", func(t *testing.T) {
		count, err := uow.MessageRepository().Count(context.Background())
		assert.NoError(t, err)
		t.Logf("Message count: %d", count)
	})
}

func TestConversationRoundTrip(t *testing.T) {
	err := godotenv.Load("../../.env")
	if err != nil {
		log.Println("No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		t.Skip("Skipping integration test: DB_CONNECTION_STRING not set")
	}

	gormDB, err := database.NewGormDBFromDSN(dsn)
	require.NoError(t, err)

	ctx := context.Background()
	uowFactory := unitofwork.NewRepositoryFactory(gormDB)
	uow := uowFactory.NewUnitOfWork(ctx)
	require.NoError(t, uow.Begin(ctx))
	defer uow.Rollback() // never commit; test data stays out of the DB

	stamp := time.Now().UnixNano()
	a := &entity.User{
		Id:           uuid.New(),
		Email:        fmt.Sprintf("it-a-%d@example.com", stamp),
		PasswordHash: "x",
	}
	b := &entity.User{
		Id:           uuid.New(),
		Email:        fmt.Sprintf("it-b-%d@example.com", stamp),
		PasswordHash: "x",
	}
	require.NoError(t, uow.UserRepository().Create(ctx, a))
	require.NoError(t, uow.UserRepository().Create(ctx, b))

	t.Run("Directory search excludes searcher", func(t *testing.T) {
		results, err := uow.UserRepository().SearchByEmail(ctx, fmt.Sprintf("it-a-%d", stamp), a.Id, 10)
		assert.NoError(t, err)
		assert.Empty(t, results, "searcher must never appear in their own results")

		results, err = uow.UserRepository().SearchByEmail(ctx, fmt.Sprintf("IT-A-%d", stamp), b.Id, 10)
		assert.NoError(t, err)
		if assert.Len(t, results, 1, "match should be case-insensitive") {
			assert.Equal(t, a.Email, results[0].Email)
		}
	})

	t.Run("History comes back ordered regardless of direction", func(t *testing.T) {
		base := time.Now().Add(-time.Hour).Truncate(time.Microsecond)
		msgs := []*entity.Message{
			{Id: uuid.New(), Content: "one", SenderId: a.Id, ReceiverId: b.Id, CreatedAt: base},
			{Id: uuid.New(), Content: "two", SenderId: b.Id, ReceiverId: a.Id, CreatedAt: base.Add(time.Minute)},
			{Id: uuid.New(), Content: "three", SenderId: a.Id, ReceiverId: b.Id, CreatedAt: base.Add(2 * time.Minute)},
		}
		// Insert out of order on purpose.
		for _, i := range []int{2, 0, 1} {
			require.NoError(t, uow.MessageRepository().Create(ctx, msgs[i]))
		}

		history, err := uow.MessageRepository().FindByPair(ctx, conversation.NewPair(b.Id, a.Id))
		assert.NoError(t, err)
		if assert.Len(t, history, 3) {
			assert.Equal(t, "one", history[0].Content)
			assert.Equal(t, "two", history[1].Content)
			assert.Equal(t, "three", history[2].Content)
		}
	})

	t.Run("Empty conversation is empty slice", func(t *testing.T) {
		history, err := uow.MessageRepository().FindByPair(ctx, conversation.NewPair(a.Id, uuid.New()))
		assert.NoError(t, err)
		assert.Empty(t, history)
	})
}
