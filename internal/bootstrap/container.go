package bootstrap

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"direct-chat-be/internal/config"
	"direct-chat-be/internal/controller"
	"direct-chat-be/internal/pkg/logger"
	"direct-chat-be/internal/repository/unitofwork"
	"direct-chat-be/internal/service"
	"direct-chat-be/internal/websocket"
	"direct-chat-be/pkg/delivery"
)

type Container struct {
	// Controllers
	AuthController controller.IAuthController
	ChatController controller.IChatController

	// WebSockets
	WebSocketHub *websocket.Hub

	// Exposed for graceful shutdown in main.go
	ChatService service.IChatService
	Bus         delivery.Bus
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// 2. Delivery Bus
	// NATS fans live messages out across instances. The channel driver keeps
	// everything in-process for single-instance and local development runs.
	var bus delivery.Bus
	if cfg.App.DeliveryDriver == "nats" {
		natsBus, err := delivery.NewNatsBus(cfg.App.NatsURL)
		if err != nil {
			log.Printf("[WARN] NATS unavailable (%v), falling back to in-process delivery", err)
			bus = delivery.NewChannelBus()
		} else {
			bus = natsBus
		}
	} else {
		bus = delivery.NewChannelBus()
	}

	// 3. Redis (cluster fan-out for websocket snapshots)
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v (single-instance mode)", err)
		rdb = nil
	}

	// 4. WebSocket Hub
	wsLogger := logger.NewIsolatedLogger(cfg.App.DeliveryLogPath)
	wsHub := websocket.NewHub(rdb, wsLogger)
	go wsHub.Run()

	// 5. Services
	directoryService := service.NewDirectoryService(uowFactory)
	messageService := service.NewMessageService(uowFactory, bus, sysLogger)
	authService := service.NewAuthService(uowFactory, cfg.JWT)

	chatService := service.NewChatService(
		uowFactory,
		directoryService,
		messageService,
		bus,
		wsHub,
		sysLogger,
		time.Duration(cfg.JWT.SessionHours)*time.Hour,
	)

	// 6. Controllers
	return &Container{
		AuthController: controller.NewAuthController(authService),
		ChatController: controller.NewChatController(chatService, wsHub, sysLogger),
		WebSocketHub:   wsHub,
		ChatService:    chatService,
		Bus:            bus,
	}
}
