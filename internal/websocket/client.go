package chatws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"sync"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"github.com/Aaryankumar13084/TeleChat/internal/identity"
	"github.com/Aaryankumar13084/TeleChat/internal/models"
	"github.com/Aaryankumar13084/TeleChat/internal/services"
)

const sendBufferSize = 32

// TokenValidator authenticates a credential presented over the socket and
// resolves it to an identity.
type TokenValidator func(token string) (identity.ID, error)

type sender interface {
	SendMessage(ctx context.Context, actor identity.ID, conversationID int64, content, mediaURL, mediaType string) (*models.ChatMessage, error)
	Typing(ctx context.Context, actor identity.ID, conversationID int64, isTyping bool) error
	MarkMessageRead(ctx context.Context, actor identity.ID, messageID int64, isRead bool) error
}

// Inbound event types.
const (
	eventAuth        = "auth"
	eventChatMessage = "chat-message"
	eventTyping      = "typing-indicator"
	eventReadReceipt = "read-receipt"
)

type inboundEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// wireID accepts identifiers sent either as JSON numbers or as decimal
// strings; both decode to the same value, so "7" and 7 never diverge.
type wireID int64

func (w *wireID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.Trim(bytes.TrimSpace(data), `"`)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		*w = 0
		return nil
	}
	value, err := strconv.ParseInt(string(trimmed), 10, 64)
	if err != nil {
		return err
	}
	*w = wireID(value)
	return nil
}

type authPayload struct {
	Token string `json:"token"`
}

type chatMessagePayload struct {
	ConversationID wireID `json:"conversation_id"`
	Content        string `json:"content"`
	MediaURL       string `json:"media_url"`
	MediaType      string `json:"media_type"`
}

type typingPayload struct {
	ConversationID wireID `json:"conversation_id"`
	IsTyping       bool   `json:"is_typing"`
}

type readReceiptPayload struct {
	MessageID wireID `json:"message_id"`
	IsRead    bool   `json:"is_read"`
}

// Client is one live connection and its protocol state machine:
// unauthenticated until a valid auth frame (or upgrade-time token), then
// authenticated until the transport closes. Inbound events are handled
// strictly in sequence; the next frame is not read until the current
// event's persist and fan-out completed.
type Client struct {
	id           string
	conn         *websocket.Conn
	registry     *Registry
	presence     *PresenceTracker
	authenticate TokenValidator

	identity identity.ID

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(
	registry *Registry,
	presence *PresenceTracker,
	conn *websocket.Conn,
	authenticate TokenValidator,
) *Client {
	return &Client{
		id:           uuid.NewString(),
		conn:         conn,
		registry:     registry,
		presence:     presence,
		authenticate: authenticate,
		send:         make(chan []byte, sendBufferSize),
		done:         make(chan struct{}),
	}
}

// Close is idempotent and safe from any goroutine. It wakes WritePump and
// trips the read loop via the closed transport.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// enqueue hands an encoded event to the connection's write queue. A full
// buffer means a slow consumer: the connection is dropped rather than
// letting it stall the caller.
func (c *Client) enqueue(payload []byte) {
	select {
	case <-c.done:
	case c.send <- payload:
	default:
		log.Printf("ws client %s: send buffer full, dropping connection", c.id)
		c.Close()
	}
}

func (c *Client) sendEvent(event services.Event) {
	encoded, err := json.Marshal(event)
	if err != nil {
		log.Printf("ws client %s: encode %s event: %v", c.id, event.Type, err)
		return
	}
	c.enqueue(encoded)
}

func (c *Client) sendError(code, message string) {
	c.sendEvent(services.ErrorEvent(code, message))
}

func (c *Client) WritePump() {
	defer c.Close()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}
}

// ReadPump runs the connection's inbound loop. preAuth carries an identity
// already proven at upgrade time (token query parameter); when zero, the
// first frame must be an auth event and anything else terminates the
// connection.
func (c *Client) ReadPump(service sender, preAuth identity.ID) {
	defer c.teardown()

	if !preAuth.IsZero() {
		c.attach(preAuth)
	}

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if fatal := c.handleFrame(service, payload); fatal {
			return
		}
	}
}

func (c *Client) handleFrame(service sender, payload []byte) (fatal bool) {
	var envelope inboundEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		if c.identity.IsZero() {
			c.sendError(services.ErrCodeAuthFailed, "authentication required")
			return true
		}
		c.sendError(services.ErrCodeInvalidPayload, "invalid event payload")
		return false
	}

	if c.identity.IsZero() {
		return c.handleAuth(envelope)
	}

	ctx := context.Background()

	switch envelope.Type {
	case eventAuth:
		c.sendError(services.ErrCodeInvalidPayload, "already authenticated")
	case eventChatMessage:
		var event chatMessagePayload
		if err := json.Unmarshal(envelope.Payload, &event); err != nil {
			c.sendError(services.ErrCodeInvalidPayload, "invalid chat-message payload")
			return false
		}

		message, err := service.SendMessage(
			ctx,
			c.identity,
			int64(event.ConversationID),
			event.Content,
			event.MediaURL,
			event.MediaType,
		)
		if err != nil {
			c.sendServiceError(err, "failed to send message")
			return false
		}

		c.sendEvent(services.Event{
			Type:    services.EventMessageSent,
			Payload: services.NewMessagePayload{Message: *message},
		})
	case eventTyping:
		var event typingPayload
		if err := json.Unmarshal(envelope.Payload, &event); err != nil {
			c.sendError(services.ErrCodeInvalidPayload, "invalid typing-indicator payload")
			return false
		}

		if err := service.Typing(ctx, c.identity, int64(event.ConversationID), event.IsTyping); err != nil {
			c.sendServiceError(err, "failed to forward typing indicator")
		}
	case eventReadReceipt:
		var event readReceiptPayload
		if err := json.Unmarshal(envelope.Payload, &event); err != nil {
			c.sendError(services.ErrCodeInvalidPayload, "invalid read-receipt payload")
			return false
		}

		if err := service.MarkMessageRead(ctx, c.identity, int64(event.MessageID), event.IsRead); err != nil {
			c.sendServiceError(err, "failed to update read state")
		}
	default:
		c.sendError(services.ErrCodeInvalidPayload, "unsupported event type")
	}

	return false
}

// handleAuth processes the one event the unauthenticated state accepts.
// Anything else, or a bad credential, terminates the connection.
func (c *Client) handleAuth(envelope inboundEnvelope) (fatal bool) {
	if envelope.Type != eventAuth {
		c.sendError(services.ErrCodeAuthFailed, "authentication required")
		return true
	}

	var event authPayload
	if err := json.Unmarshal(envelope.Payload, &event); err != nil || event.Token == "" {
		c.sendError(services.ErrCodeAuthFailed, "missing credential")
		return true
	}

	id, err := c.authenticate(event.Token)
	if err != nil {
		c.sendError(services.ErrCodeAuthFailed, "invalid or expired token")
		return true
	}

	c.attach(id)
	return false
}

func (c *Client) attach(id identity.ID) {
	c.identity = id
	if first := c.registry.Register(c); first {
		c.presence.WentOnline(context.Background(), id)
	}

	c.sendEvent(services.Event{
		Type:    services.EventConnectionConfirmed,
		Payload: services.ConnectionConfirmedPayload{UserID: id.Int64()},
	})
}

func (c *Client) teardown() {
	if !c.identity.IsZero() {
		if last := c.registry.Deregister(c); last {
			c.presence.WentOffline(context.Background(), c.identity)
		}
	}
	c.Close()
}

func (c *Client) sendServiceError(err error, fallback string) {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		c.sendError(services.ErrCodeInvalidPayload, "invalid request")
	case errors.Is(err, services.ErrForbidden):
		c.sendError(services.ErrCodeAccessDenied, "not a participant")
	case errors.Is(err, services.ErrNotFound):
		c.sendError(services.ErrCodeNotFound, "not found")
	default:
		log.Printf("ws client %s: %s: %v", c.id, fallback, err)
		c.sendError(services.ErrCodeInternal, fallback)
	}
}
