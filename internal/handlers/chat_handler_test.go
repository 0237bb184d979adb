package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/Aaryankumar13084/TeleChat/internal/identity"
	"github.com/Aaryankumar13084/TeleChat/internal/models"
	"github.com/Aaryankumar13084/TeleChat/internal/services"
	chatws "github.com/Aaryankumar13084/TeleChat/internal/websocket"
)

type stubChatService struct {
	conversationsResult []models.ConversationSummary
	conversationsErr    error
	createResult        *models.Conversation
	createErr           error
	messagesResult      []models.ChatMessage
	messagesTotal       int
	messagesErr         error
	sendResult          *models.ChatMessage
	sendErr             error
	deleteErr           error

	lastActor          identity.ID
	lastOtherID        int64
	lastGroupName      string
	lastParticipantIDs []int64
	lastConversationID int64
	lastPage           int
	lastLimit          int
	lastContent        string
	lastMediaURL       string
	lastMessageID      int64
}

func (s *stubChatService) ListConversations(_ context.Context, actor identity.ID) ([]models.ConversationSummary, error) {
	s.lastActor = actor
	return s.conversationsResult, s.conversationsErr
}

func (s *stubChatService) CreateDirectConversation(_ context.Context, actor identity.ID, otherID int64) (*models.Conversation, error) {
	s.lastActor = actor
	s.lastOtherID = otherID
	return s.createResult, s.createErr
}

func (s *stubChatService) CreateGroupConversation(_ context.Context, actor identity.ID, name string, participantIDs []int64) (*models.Conversation, error) {
	s.lastActor = actor
	s.lastGroupName = name
	s.lastParticipantIDs = participantIDs
	return s.createResult, s.createErr
}

func (s *stubChatService) ListMessages(_ context.Context, actor identity.ID, conversationID int64, page, limit int) ([]models.ChatMessage, int, error) {
	s.lastActor = actor
	s.lastConversationID = conversationID
	s.lastPage = page
	s.lastLimit = limit
	return s.messagesResult, s.messagesTotal, s.messagesErr
}

func (s *stubChatService) SendMessage(_ context.Context, actor identity.ID, conversationID int64, content, mediaURL, _ string) (*models.ChatMessage, error) {
	s.lastActor = actor
	s.lastConversationID = conversationID
	s.lastContent = content
	s.lastMediaURL = mediaURL
	return s.sendResult, s.sendErr
}

func (s *stubChatService) Typing(_ context.Context, actor identity.ID, conversationID int64, _ bool) error {
	s.lastActor = actor
	s.lastConversationID = conversationID
	return nil
}

func (s *stubChatService) MarkMessageRead(_ context.Context, actor identity.ID, messageID int64, _ bool) error {
	s.lastActor = actor
	s.lastMessageID = messageID
	return nil
}

func (s *stubChatService) DeleteMessage(_ context.Context, actor identity.ID, messageID int64) error {
	s.lastActor = actor
	s.lastMessageID = messageID
	return s.deleteErr
}

func newChatTestApp(service *stubChatService) (*fiber.App, *ChatHandler) {
	handler := NewChatHandler(service, chatws.NewRegistry(), nil, "secret")

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", "42")
		return c.Next()
	})
	return app, handler
}

func TestListConversationsReturnsConversationSummaries(t *testing.T) {
	service := &stubChatService{
		conversationsResult: []models.ConversationSummary{
			{
				Conversation: models.Conversation{ID: 17, IsGroup: false},
				LastMessage: &models.ChatMessage{
					ID:             3,
					ConversationID: 17,
					SenderID:       8,
					Content:        "See you tomorrow",
					CreatedAt:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
				},
				UnreadCount: 2,
			},
		},
	}
	app, handler := newChatTestApp(service)
	app.Get("/api/v1/conversations", handler.ListConversations)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastActor != identity.FromInt64(42) {
		t.Fatalf("unexpected actor: %v", service.lastActor)
	}

	var body struct {
		Conversations []models.ConversationSummary `json:"conversations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(body.Conversations) != 1 || body.Conversations[0].UnreadCount != 2 {
		t.Fatalf("unexpected response: %+v", body.Conversations)
	}
}

func TestCreateConversationWithoutNameCreatesDirect(t *testing.T) {
	service := &stubChatService{
		createResult: &models.Conversation{ID: 9},
	}
	app, handler := newChatTestApp(service)
	app.Post("/api/v1/conversations", handler.CreateConversation)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations", strings.NewReader(`{"user_id":7}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if service.lastOtherID != 7 {
		t.Fatalf("expected direct conversation with user 7, got %d", service.lastOtherID)
	}
	if service.lastGroupName != "" {
		t.Fatalf("expected no group creation, got name %q", service.lastGroupName)
	}
}

func TestCreateConversationWithNameCreatesGroup(t *testing.T) {
	service := &stubChatService{
		createResult: &models.Conversation{ID: 12, IsGroup: true, Name: "team"},
	}
	app, handler := newChatTestApp(service)
	app.Post("/api/v1/conversations", handler.CreateConversation)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations", strings.NewReader(`{"name":"team","participant_ids":[2,3]}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if service.lastGroupName != "team" || len(service.lastParticipantIDs) != 2 {
		t.Fatalf("unexpected group request: %q %v", service.lastGroupName, service.lastParticipantIDs)
	}
}

func TestGetMessagesForwardsPagination(t *testing.T) {
	service := &stubChatService{
		messagesResult: []models.ChatMessage{
			{ID: 5, ConversationID: 11, SenderID: 7, Content: "Hi", CreatedAt: time.Now().UTC()},
		},
		messagesTotal: 12,
	}
	app, handler := newChatTestApp(service)
	app.Get("/api/v1/conversations/:id/messages", handler.GetMessages)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations/11/messages?page=2&limit=5", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if service.lastConversationID != 11 || service.lastPage != 2 || service.lastLimit != 5 {
		t.Fatalf("unexpected forwarded pagination: conversation=%d page=%d limit=%d", service.lastConversationID, service.lastPage, service.lastLimit)
	}

	var body struct {
		Messages   []models.ChatMessage  `json:"messages"`
		Pagination models.PaginationMeta `json:"pagination"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(body.Messages) != 1 || body.Pagination.Total != 12 || body.Pagination.TotalPages != 3 {
		t.Fatalf("unexpected response body: %+v %+v", body.Messages, body.Pagination)
	}
}

func TestGetMessagesReturnsNotFound(t *testing.T) {
	service := &stubChatService{messagesErr: pgx.ErrNoRows}
	app, handler := newChatTestApp(service)
	app.Get("/api/v1/conversations/:id/messages", handler.GetMessages)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations/99/messages", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestSendMessageReturnsPersistedMessage(t *testing.T) {
	service := &stubChatService{
		sendResult: &models.ChatMessage{ID: 77, ConversationID: 11, SenderID: 42, Content: "hello"},
	}
	app, handler := newChatTestApp(service)
	app.Post("/api/v1/conversations/:id/messages", handler.SendMessage)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations/11/messages", strings.NewReader(`{"content":"hello"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if service.lastConversationID != 11 || service.lastContent != "hello" {
		t.Fatalf("unexpected forwarded message: conversation=%d content=%q", service.lastConversationID, service.lastContent)
	}

	var body struct {
		Message models.ChatMessage `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if body.Message.ID != 77 {
		t.Fatalf("unexpected message in response: %+v", body.Message)
	}
}

func TestSendMessageMapsServiceErrors(t *testing.T) {
	cases := []struct {
		name       string
		serviceErr error
		wantStatus int
	}{
		{"forbidden", services.ErrForbidden, http.StatusForbidden},
		{"invalid input", services.ErrInvalidInput, http.StatusBadRequest},
		{"not found", services.ErrNotFound, http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			service := &stubChatService{sendErr: tc.serviceErr}
			app, handler := newChatTestApp(service)
			app.Post("/api/v1/conversations/:id/messages", handler.SendMessage)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations/11/messages", strings.NewReader(`{"content":"hello"}`))
			req.Header.Set("Content-Type", "application/json")

			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, resp.StatusCode)
			}
		})
	}
}

func TestDeleteMessageReturnsNoContent(t *testing.T) {
	service := &stubChatService{}
	app, handler := newChatTestApp(service)
	app.Delete("/api/v1/messages/:id", handler.DeleteMessage)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/messages/31", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if service.lastMessageID != 31 {
		t.Fatalf("expected message 31 deleted, got %d", service.lastMessageID)
	}
}

func TestDeleteMessageByNonAuthorIsForbidden(t *testing.T) {
	service := &stubChatService{deleteErr: services.ErrForbidden}
	app, handler := newChatTestApp(service)
	app.Delete("/api/v1/messages/:id", handler.DeleteMessage)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/messages/31", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestWebSocketAuthRejectsPlainRequests(t *testing.T) {
	app, handler := newChatTestApp(&stubChatService{})
	app.Get("/api/v1/ws", handler.WebSocketAuth)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ws", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUpgradeRequired {
		t.Fatalf("expected 426, got %d", resp.StatusCode)
	}
}
