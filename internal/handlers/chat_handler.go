package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/Aaryankumar13084/TeleChat/internal/identity"
	"github.com/Aaryankumar13084/TeleChat/internal/models"
	"github.com/Aaryankumar13084/TeleChat/internal/services"
	chatws "github.com/Aaryankumar13084/TeleChat/internal/websocket"
	"github.com/Aaryankumar13084/TeleChat/pkg/utils"
)

type chatApplicationService interface {
	ListConversations(ctx context.Context, actor identity.ID) ([]models.ConversationSummary, error)
	CreateDirectConversation(ctx context.Context, actor identity.ID, otherID int64) (*models.Conversation, error)
	CreateGroupConversation(ctx context.Context, actor identity.ID, name string, participantIDs []int64) (*models.Conversation, error)
	ListMessages(ctx context.Context, actor identity.ID, conversationID int64, page, limit int) ([]models.ChatMessage, int, error)
	SendMessage(ctx context.Context, actor identity.ID, conversationID int64, content, mediaURL, mediaType string) (*models.ChatMessage, error)
	Typing(ctx context.Context, actor identity.ID, conversationID int64, isTyping bool) error
	MarkMessageRead(ctx context.Context, actor identity.ID, messageID int64, isRead bool) error
	DeleteMessage(ctx context.Context, actor identity.ID, messageID int64) error
}

type ChatHandler struct {
	service   chatApplicationService
	registry  *chatws.Registry
	presence  *chatws.PresenceTracker
	jwtSecret string
}

func NewChatHandler(
	service chatApplicationService,
	registry *chatws.Registry,
	presence *chatws.PresenceTracker,
	jwtSecret string,
) *ChatHandler {
	return &ChatHandler{
		service:   service,
		registry:  registry,
		presence:  presence,
		jwtSecret: jwtSecret,
	}
}

type createConversationRequest struct {
	UserID         int64   `json:"user_id"`
	Name           string  `json:"name"`
	ParticipantIDs []int64 `json:"participant_ids"`
}

type sendMessageRequest struct {
	Content   string `json:"content"`
	MediaURL  string `json:"media_url"`
	MediaType string `json:"media_type"`
}

func (h *ChatHandler) ListConversations(c *fiber.Ctx) error {
	actor, err := actorFromLocals(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	conversations, err := h.service.ListConversations(c.Context(), actor)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"conversations": conversations})
}

// CreateConversation creates a group when a name is supplied, otherwise
// finds or creates the direct conversation with the given user.
func (h *ChatHandler) CreateConversation(c *fiber.Ctx) error {
	actor, err := actorFromLocals(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req createConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	var conversation *models.Conversation
	if strings.TrimSpace(req.Name) != "" {
		conversation, err = h.service.CreateGroupConversation(c.Context(), actor, req.Name, req.ParticipantIDs)
	} else {
		conversation, err = h.service.CreateDirectConversation(c.Context(), actor, req.UserID)
	}
	if err != nil {
		return mapChatError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"conversation": conversation})
}

func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	actor, err := actorFromLocals(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	conversationID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || conversationID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid conversation id"})
	}

	page := parsePositiveInt(c.Query("page"), 1)
	limit := parsePositiveInt(c.Query("limit"), defaultPageLimit)
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	messages, total, err := h.service.ListMessages(c.Context(), actor, conversationID, page, limit)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{
		"messages":   messages,
		"pagination": buildPaginationMeta(page, limit, total),
	})
}

// SendMessage is the HTTP twin of the websocket chat-message event: same
// persist and fan-out sequence, so live recipients see messages from
// request/response clients identically.
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	actor, err := actorFromLocals(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	conversationID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || conversationID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid conversation id"})
	}

	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	message, err := h.service.SendMessage(
		c.Context(),
		actor,
		conversationID,
		req.Content,
		req.MediaURL,
		req.MediaType,
	)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": message})
}

func (h *ChatHandler) DeleteMessage(c *fiber.Ctx) error {
	actor, err := actorFromLocals(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	messageID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || messageID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid message id"})
	}

	if err := h.service.DeleteMessage(c.Context(), actor, messageID); err != nil {
		return mapChatError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// WebSocketAuth gates the upgrade. A token supplied up front (query or
// header) pre-authenticates the connection; without one the upgrade still
// proceeds and the first frame must be an auth event.
func (h *ChatHandler) WebSocketAuth(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{"error": "WebSocket upgrade required"})
	}

	if token := h.upgradeToken(c); token != "" {
		claims, err := utils.ValidateToken(token, h.jwtSecret)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
		}
		c.Locals("user_id", claims.UserID)
	}

	return c.Next()
}

func (h *ChatHandler) HandleWebSocket(conn *websocket.Conn) {
	var preAuth identity.ID
	if raw, ok := conn.Locals("user_id").(string); ok {
		if id, err := identity.Parse(raw); err == nil {
			preAuth = id
		}
	}

	client := chatws.NewClient(h.registry, h.presence, conn, h.validateToken)
	go client.WritePump()
	client.ReadPump(h.service, preAuth)
}

func (h *ChatHandler) validateToken(token string) (identity.ID, error) {
	claims, err := utils.ValidateToken(token, h.jwtSecret)
	if err != nil {
		return identity.None, err
	}
	return identity.Parse(claims.UserID)
}

func (h *ChatHandler) upgradeToken(c *fiber.Ctx) string {
	if token := strings.TrimSpace(c.Query("token")); token != "" {
		return token
	}

	authHeader := strings.TrimSpace(c.Get("Authorization"))
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}
	return ""
}

func mapChatError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	case errors.Is(err, services.ErrNotFound), errors.Is(err, pgx.ErrNoRows):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process chat request"})
	}
}
