package chatws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Aaryankumar13084/TeleChat/internal/identity"
	"github.com/Aaryankumar13084/TeleChat/internal/models"
	"github.com/Aaryankumar13084/TeleChat/internal/services"
)

type stubSender struct {
	message *models.ChatMessage
	sendErr error
	readErr error

	lastConversationID int64
	lastContent        string
	lastMediaURL       string
	lastIsTyping       bool
	lastMessageID      int64
	lastIsRead         bool
	sendCalls          int
}

func (s *stubSender) SendMessage(_ context.Context, _ identity.ID, conversationID int64, content, mediaURL, _ string) (*models.ChatMessage, error) {
	s.sendCalls++
	s.lastConversationID = conversationID
	s.lastContent = content
	s.lastMediaURL = mediaURL
	return s.message, s.sendErr
}

func (s *stubSender) Typing(_ context.Context, _ identity.ID, conversationID int64, isTyping bool) error {
	s.lastConversationID = conversationID
	s.lastIsTyping = isTyping
	return nil
}

func (s *stubSender) MarkMessageRead(_ context.Context, _ identity.ID, messageID int64, isRead bool) error {
	s.lastMessageID = messageID
	s.lastIsRead = isRead
	return s.readErr
}

func newProtocolFixture(authenticate TokenValidator) (*Registry, *Client) {
	registry := NewRegistry()
	store := &stubPresenceStore{}
	presence := NewPresenceTracker(store, NewEngine(registry, store))
	client := NewClient(registry, presence, nil, authenticate)
	return registry, client
}

func errorCode(t *testing.T, envelope outEnvelope) string {
	t.Helper()
	if envelope.Type != services.EventError {
		t.Fatalf("expected error event, got %q", envelope.Type)
	}
	var payload services.ErrorPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		t.Fatalf("Unmarshal error payload: %v", err)
	}
	return payload.Code
}

func frame(t *testing.T, eventType string, payload string) []byte {
	t.Helper()
	return []byte(fmt.Sprintf(`{"type":%q,"payload":%s}`, eventType, payload))
}

func TestUnauthenticatedConnectionOnlyAcceptsAuthEvents(t *testing.T) {
	_, client := newProtocolFixture(nil)
	service := &stubSender{}

	fatal := client.handleFrame(service, frame(t, "chat-message", `{"conversation_id":1,"content":"hi"}`))

	if !fatal {
		t.Fatalf("expected non-auth event before authentication to be fatal")
	}
	events := drainEvents(t, client)
	if len(events) != 1 || errorCode(t, events[0]) != services.ErrCodeAuthFailed {
		t.Fatalf("expected auth-failed error, got %+v", events)
	}
	if service.sendCalls != 0 {
		t.Fatalf("expected no service call, got %d", service.sendCalls)
	}
}

func TestAuthEventRegistersConnectionAndConfirms(t *testing.T) {
	registry, client := newProtocolFixture(func(token string) (identity.ID, error) {
		if token != "valid-token" {
			return identity.None, errors.New("bad token")
		}
		return identity.FromInt64(42), nil
	})

	fatal := client.handleFrame(&stubSender{}, frame(t, "auth", `{"token":"valid-token"}`))

	if fatal {
		t.Fatalf("expected successful auth to keep the connection open")
	}
	if !registry.IsOnline(identity.FromInt64(42)) {
		t.Fatalf("expected identity 42 to be registered")
	}

	events := drainEvents(t, client)
	if len(events) != 1 || events[0].Type != services.EventConnectionConfirmed {
		t.Fatalf("expected connection-confirmed, got %+v", events)
	}
}

func TestFailedAuthTerminatesConnection(t *testing.T) {
	registry, client := newProtocolFixture(func(string) (identity.ID, error) {
		return identity.None, errors.New("expired")
	})

	fatal := client.handleFrame(&stubSender{}, frame(t, "auth", `{"token":"stale"}`))

	if !fatal {
		t.Fatalf("expected failed auth to be fatal")
	}
	if registry.IsOnline(identity.FromInt64(42)) {
		t.Fatalf("expected nothing registered after failed auth")
	}
	events := drainEvents(t, client)
	if len(events) != 1 || errorCode(t, events[0]) != services.ErrCodeAuthFailed {
		t.Fatalf("expected auth-failed error, got %+v", events)
	}
}

func authenticatedFixture(t *testing.T) (*Registry, *Client) {
	t.Helper()
	registry, client := newProtocolFixture(func(string) (identity.ID, error) {
		return identity.FromInt64(1), nil
	})
	if fatal := client.handleFrame(&stubSender{}, frame(t, "auth", `{"token":"ok"}`)); fatal {
		t.Fatalf("auth setup failed")
	}
	drainEvents(t, client)
	return registry, client
}

func TestEmptyChatMessageIsRejectedWithoutClosingConnection(t *testing.T) {
	_, client := authenticatedFixture(t)
	service := &stubSender{sendErr: services.ErrInvalidInput}

	fatal := client.handleFrame(service, frame(t, "chat-message", `{"conversation_id":5}`))

	if fatal {
		t.Fatalf("expected validation failure to be non-fatal")
	}
	events := drainEvents(t, client)
	if len(events) != 1 || errorCode(t, events[0]) != services.ErrCodeInvalidPayload {
		t.Fatalf("expected invalid-payload error, got %+v", events)
	}
}

func TestChatMessageAcknowledgesSenderWithPersistedMessage(t *testing.T) {
	_, client := authenticatedFixture(t)
	persisted := &models.ChatMessage{
		ID:             99,
		ConversationID: 5,
		SenderID:       1,
		Content:        "hi",
		CreatedAt:      time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC),
	}
	service := &stubSender{message: persisted}

	fatal := client.handleFrame(service, frame(t, "chat-message", `{"conversation_id":5,"content":"hi"}`))

	if fatal {
		t.Fatalf("expected chat-message to be non-fatal")
	}
	events := drainEvents(t, client)
	if len(events) != 1 || events[0].Type != services.EventMessageSent {
		t.Fatalf("expected message-sent ack, got %+v", events)
	}

	var payload services.NewMessagePayload
	if err := json.Unmarshal(events[0].Payload, &payload); err != nil {
		t.Fatalf("Unmarshal ack payload: %v", err)
	}
	if payload.Message.ID != 99 || payload.Message.Content != "hi" {
		t.Fatalf("expected persisted message in ack, got %+v", payload.Message)
	}
}

func TestIdentifiersAcceptStringAndNumericWireForms(t *testing.T) {
	_, client := authenticatedFixture(t)
	service := &stubSender{message: &models.ChatMessage{ID: 1, ConversationID: 7}}

	client.handleFrame(service, frame(t, "chat-message", `{"conversation_id":"7","content":"a"}`))
	if service.lastConversationID != 7 {
		t.Fatalf("expected string id to normalize to 7, got %d", service.lastConversationID)
	}

	client.handleFrame(service, frame(t, "chat-message", `{"conversation_id":7,"content":"b"}`))
	if service.lastConversationID != 7 {
		t.Fatalf("expected numeric id to normalize to 7, got %d", service.lastConversationID)
	}
}

func TestTypingIndicatorIsForwardedWithoutAck(t *testing.T) {
	_, client := authenticatedFixture(t)
	service := &stubSender{}

	fatal := client.handleFrame(service, frame(t, "typing-indicator", `{"conversation_id":5,"is_typing":true}`))

	if fatal {
		t.Fatalf("expected typing-indicator to be non-fatal")
	}
	if service.lastConversationID != 5 || !service.lastIsTyping {
		t.Fatalf("expected typing forwarded, got conversation=%d typing=%v", service.lastConversationID, service.lastIsTyping)
	}
	if events := drainEvents(t, client); len(events) != 0 {
		t.Fatalf("expected no ack for typing, got %+v", events)
	}
}

func TestReadReceiptIsDispatchedToService(t *testing.T) {
	_, client := authenticatedFixture(t)
	service := &stubSender{}

	client.handleFrame(service, frame(t, "read-receipt", `{"message_id":"31","is_read":true}`))

	if service.lastMessageID != 31 || !service.lastIsRead {
		t.Fatalf("expected read receipt dispatched, got id=%d read=%v", service.lastMessageID, service.lastIsRead)
	}
}

func TestUnknownEventTypeIsReportedNotFatal(t *testing.T) {
	_, client := authenticatedFixture(t)

	fatal := client.handleFrame(&stubSender{}, frame(t, "wave", `{}`))

	if fatal {
		t.Fatalf("expected unknown event type to be non-fatal")
	}
	events := drainEvents(t, client)
	if len(events) != 1 || errorCode(t, events[0]) != services.ErrCodeInvalidPayload {
		t.Fatalf("expected invalid-payload error, got %+v", events)
	}
}

func TestTeardownDeregistersAndGoesOffline(t *testing.T) {
	registry, client := authenticatedFixture(t)

	client.teardown()

	if registry.IsOnline(identity.FromInt64(1)) {
		t.Fatalf("expected identity offline after teardown")
	}
}
