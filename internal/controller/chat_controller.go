package controller

import (
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"direct-chat-be/internal/dto"
	"direct-chat-be/internal/pkg/logger"
	"direct-chat-be/internal/pkg/serverutils"
	"direct-chat-be/internal/service"
	internalWS "direct-chat-be/internal/websocket"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	Search(ctx *fiber.Ctx) error
	Select(ctx *fiber.Ctx) error
	Deselect(ctx *fiber.Ctx) error
	GetMessages(ctx *fiber.Ctx) error
	SendMessage(ctx *fiber.Ctx) error
	EndSession(ctx *fiber.Ctx) error
	ServeWs(ctx *fiber.Ctx) error
}

type chatController struct {
	service service.IChatService
	hub     *internalWS.Hub
	logger  logger.ILogger
}

func NewChatController(service service.IChatService, hub *internalWS.Hub, log logger.ILogger) IChatController {
	return &chatController{
		service: service,
		hub:     hub,
		logger:  log,
	}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat")
	// The websocket handshake validates its own token (query param capable).
	h.Get("/ws", c.ServeWs)

	h.Use(serverutils.JwtMiddleware)
	h.Get("/search", c.Search)
	h.Post("/select", c.Select)
	h.Post("/deselect", c.Deselect)
	h.Get("/messages", c.GetMessages)
	h.Post("/messages", c.SendMessage)
	h.Post("/end", c.EndSession)
}

func currentUserId(ctx *fiber.Ctx) (uuid.UUID, error) {
	userIdStr, ok := ctx.Locals("user_id").(string)
	if !ok {
		return uuid.Nil, fiber.ErrUnauthorized
	}
	userId, err := uuid.Parse(userIdStr)
	if err != nil {
		return uuid.Nil, fiber.ErrUnauthorized
	}
	return userId, nil
}

// Search records a keystroke. The session debounces and races the actual
// directory query; applied results stream back over the websocket, and the
// snapshot returned here reflects whatever is applied right now.
func (c *chatController) Search(ctx *fiber.Ctx) error {
	userId, err := currentUserId(ctx)
	if err != nil {
		return err
	}

	c.service.SetQuery(userId, ctx.Query("q"))
	return ctx.JSON(serverutils.SuccessResponse("Search scheduled", c.service.Snapshot(userId)))
}

func (c *chatController) Select(ctx *fiber.Ctx) error {
	userId, err := currentUserId(ctx)
	if err != nil {
		return err
	}

	var req dto.SelectRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	if err := c.service.Select(ctx.Context(), userId, req.UserId); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, err.Error()))
	}
	return ctx.JSON(serverutils.SuccessResponse("Conversation opened", c.service.Snapshot(userId)))
}

func (c *chatController) Deselect(ctx *fiber.Ctx) error {
	userId, err := currentUserId(ctx)
	if err != nil {
		return err
	}

	c.service.Deselect(userId)
	return ctx.JSON(serverutils.SuccessResponse[any]("Conversation closed", nil))
}

func (c *chatController) GetMessages(ctx *fiber.Ctx) error {
	userId, err := currentUserId(ctx)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Session snapshot", c.service.Snapshot(userId)))
}

// SendMessage persists the message; it does not come back in this response.
// The echo arrives over the websocket through the live delivery path, the same
// way the receiver sees it. On failure the client keeps its input and retries.
func (c *chatController) SendMessage(ctx *fiber.Ctx) error {
	userId, err := currentUserId(ctx)
	if err != nil {
		return err
	}

	var req dto.SendMessageRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	if err := c.service.Send(ctx.Context(), userId, req.Content); err != nil {
		return ctx.Status(fiber.StatusUnprocessableEntity).JSON(serverutils.ErrorResponse(422, err.Error()))
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Message accepted", nil))
}

// EndSession tears the server-side session down on sign-out, detaching any live
// subscription immediately instead of waiting for the registry TTL.
func (c *chatController) EndSession(ctx *fiber.Ctx) error {
	userId, err := currentUserId(ctx)
	if err != nil {
		return err
	}

	c.service.EndSession(userId)
	return ctx.JSON(serverutils.SuccessResponse[any]("Session ended", nil))
}

// ServeWs upgrades the connection after validating the token itself: browser
// websocket clients cannot set an Authorization header.
func (c *chatController) ServeWs(ctx *fiber.Ctx) error {
	tokenStr := ctx.Query("token")
	if tokenStr == "" {
		authHeader := ctx.Get("Authorization")
		if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			tokenStr = authHeader[7:]
		}
	}
	if tokenStr == "" {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing token"})
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.ErrUnauthorized
		}
		return []byte(os.Getenv("JWT_SECRET")), nil
	})
	if err != nil || !token.Valid {
		c.logger.Warn("ChatController", "Invalid token in WS handshake", map[string]interface{}{"error": err})
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token claims"})
	}
	userIdStr, ok := claims["user_id"].(string)
	if !ok {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Token missing user_id"})
	}
	userId, err := uuid.Parse(userIdStr)
	if err != nil {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user id in token"})
	}

	if websocket.IsWebSocketUpgrade(ctx) {
		return websocket.New(func(conn *websocket.Conn) {
			c.logger.Info("ChatController", "WebSocket session started", map[string]interface{}{"user_id": userId})
			internalWS.ServeWs(c.hub, conn, userId)
			c.logger.Info("ChatController", "WebSocket session ended", map[string]interface{}{"user_id": userId})
		})(ctx)
	}
	return fiber.ErrUpgradeRequired
}
