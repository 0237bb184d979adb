package services

import (
	"time"

	"github.com/Aaryankumar13084/TeleChat/internal/models"
)

// Event is the outbound wire envelope pushed to live connections.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

const (
	EventConnectionConfirmed = "connection-confirmed"
	EventError               = "error"
	EventNewMessage          = "new-message"
	EventMessageSent         = "message-sent"
	EventTypingIndicator     = "typing-indicator"
	EventMessageStatusUpdate = "message-status-update"
	EventUserStatusChange    = "user-status-change"
	EventMessageDeleted      = "message-deleted"
)

// Error codes carried by error events.
const (
	ErrCodeAuthFailed     = "auth-failed"
	ErrCodeAccessDenied   = "access-denied"
	ErrCodeInvalidPayload = "invalid-payload"
	ErrCodeNotFound       = "not-found"
	ErrCodeInternal       = "internal"
)

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ConnectionConfirmedPayload struct {
	UserID int64 `json:"user_id"`
}

type NewMessagePayload struct {
	Message models.ChatMessage `json:"message"`
}

type TypingPayload struct {
	ConversationID int64 `json:"conversation_id"`
	UserID         int64 `json:"user_id"`
	IsTyping       bool  `json:"is_typing"`
}

type StatusUpdatePayload struct {
	MessageID      int64      `json:"message_id"`
	ConversationID int64      `json:"conversation_id"`
	UserID         int64      `json:"user_id"`
	IsRead         bool       `json:"is_read"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
}

type UserStatusPayload struct {
	UserID   int64      `json:"user_id"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

type MessageDeletedPayload struct {
	ConversationID int64 `json:"conversation_id"`
	MessageID      int64 `json:"message_id"`
}

func ErrorEvent(code, message string) Event {
	return Event{Type: EventError, Payload: ErrorPayload{Code: code, Message: message}}
}
