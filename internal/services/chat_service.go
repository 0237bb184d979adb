package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/Aaryankumar13084/TeleChat/internal/identity"
	"github.com/Aaryankumar13084/TeleChat/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/samber/lo"
)

// ChatStore is the durable-state contract the realtime core consumes.
// Implementations must be safe for concurrent use and enforce the
// uniqueness invariants (one status row per message+recipient, one direct
// conversation per pair) at the storage boundary.
type ChatStore interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)

	FindOrCreateDirectConversation(ctx context.Context, idA, idB int64) (*models.Conversation, error)
	CreateGroupConversation(ctx context.Context, creatorID int64, name string, participantIDs []int64) (*models.Conversation, error)
	GetConversation(ctx context.Context, conversationID int64) (*models.Conversation, error)
	ParticipantsOf(ctx context.Context, conversationID int64) ([]models.Participant, error)
	ConversationSummaries(ctx context.Context, id int64) ([]models.ConversationSummary, error)
	IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error)

	CreateMessageWithStatuses(ctx context.Context, conversationID, senderID int64, content, mediaURL, mediaType string, recipientIDs []int64) (*models.ChatMessage, error)
	GetMessage(ctx context.Context, messageID int64) (*models.ChatMessage, error)
	MessagesOf(ctx context.Context, conversationID int64, limit, offset int) ([]models.ChatMessage, int, error)
	DeleteMessage(ctx context.Context, messageID int64) (bool, error)

	UpdateMessageStatus(ctx context.Context, messageID, userID int64, isRead bool) (*models.MessageStatus, error)
	MarkMessagesRead(ctx context.Context, messageIDs []int64, readerID int64) ([]int64, error)
}

// EventSink delivers events to live connections. Implemented by the
// websocket fan-out engine; a no-op sink is valid (e.g. in tests or a
// worker process with no attached clients).
type EventSink interface {
	Fanout(ctx context.Context, conversationID int64, exclude identity.ID, event Event)
	Notify(id identity.ID, event Event)
}

// ChatService owns the persist-then-deliver sequence. Both the websocket
// protocol handler and the HTTP message endpoint go through it, so a
// message sent over request/response reaches live recipients exactly like
// one sent over the socket.
type ChatService struct {
	store ChatStore
	sink  EventSink

	// one lock per conversation: submission order to the fan-out path
	// must follow store-assigned creation order.
	sendLocks sync.Map
}

func NewChatService(store ChatStore, sink EventSink) *ChatService {
	return &ChatService{store: store, sink: sink}
}

func (s *ChatService) conversationLock(conversationID int64) *sync.Mutex {
	lock, _ := s.sendLocks.LoadOrStore(conversationID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func (s *ChatService) requireParticipant(ctx context.Context, conversationID int64, actor identity.ID) error {
	if conversationID <= 0 {
		return ErrInvalidInput
	}

	ok, err := s.store.IsParticipant(ctx, conversationID, actor.Int64())
	if err != nil {
		return err
	}
	if !ok {
		// distinguish missing conversation from non-membership
		if _, err := s.store.GetConversation(ctx, conversationID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		return ErrForbidden
	}
	return nil
}

func (s *ChatService) CreateDirectConversation(
	ctx context.Context,
	actor identity.ID,
	otherID int64,
) (*models.Conversation, error) {
	if otherID <= 0 || otherID == actor.Int64() {
		return nil, ErrInvalidInput
	}

	if _, err := s.store.GetUser(ctx, otherID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return s.store.FindOrCreateDirectConversation(ctx, actor.Int64(), otherID)
}

func (s *ChatService) CreateGroupConversation(
	ctx context.Context,
	actor identity.ID,
	name string,
	participantIDs []int64,
) (*models.Conversation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidInput
	}

	members := lo.Uniq(lo.Filter(participantIDs, func(id int64, _ int) bool {
		return id > 0 && id != actor.Int64()
	}))

	return s.store.CreateGroupConversation(ctx, actor.Int64(), name, members)
}

// SendMessage persists the message and one status row per participant
// (sender pre-marked read) in a single store transaction, then fans out a
// new-message event to every participant but the sender. The returned
// message carries the store-assigned id and timestamp; the caller
// acknowledges the sender. Nothing is fanned out — and nothing survives in
// the store — when persistence fails.
func (s *ChatService) SendMessage(
	ctx context.Context,
	actor identity.ID,
	conversationID int64,
	content string,
	mediaURL string,
	mediaType string,
) (*models.ChatMessage, error) {
	content = strings.TrimSpace(content)
	mediaURL = strings.TrimSpace(mediaURL)
	if content == "" && mediaURL == "" {
		return nil, ErrInvalidInput
	}

	if err := s.requireParticipant(ctx, conversationID, actor); err != nil {
		return nil, err
	}

	participants, err := s.store.ParticipantsOf(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	recipientIDs := lo.Map(participants, func(p models.Participant, _ int) int64 {
		return p.UserID
	})

	lock := s.conversationLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	message, err := s.store.CreateMessageWithStatuses(
		ctx,
		conversationID,
		actor.Int64(),
		content,
		mediaURL,
		mediaType,
		recipientIDs,
	)
	if err != nil {
		return nil, err
	}

	s.sink.Fanout(ctx, conversationID, actor, Event{
		Type:    EventNewMessage,
		Payload: NewMessagePayload{Message: *message},
	})

	return message, nil
}

// Typing forwards an ephemeral typing indicator. Nothing is persisted and
// nothing is replayed on reconnect.
func (s *ChatService) Typing(
	ctx context.Context,
	actor identity.ID,
	conversationID int64,
	isTyping bool,
) error {
	if err := s.requireParticipant(ctx, conversationID, actor); err != nil {
		return err
	}

	s.sink.Fanout(ctx, conversationID, actor, Event{
		Type: EventTypingIndicator,
		Payload: TypingPayload{
			ConversationID: conversationID,
			UserID:         actor.Int64(),
			IsTyping:       isTyping,
		},
	})
	return nil
}

// MarkMessageRead updates the actor's status row for the message. When the
// row actually transitions, only the original author's connections are
// notified.
func (s *ChatService) MarkMessageRead(
	ctx context.Context,
	actor identity.ID,
	messageID int64,
	isRead bool,
) error {
	if messageID <= 0 {
		return ErrInvalidInput
	}

	message, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	if err := s.requireParticipant(ctx, message.ConversationID, actor); err != nil {
		return err
	}

	status, err := s.store.UpdateMessageStatus(ctx, messageID, actor.Int64(), isRead)
	if err != nil {
		return err
	}
	if status == nil {
		// already in the requested state
		return nil
	}

	author := identity.FromInt64(message.SenderID)
	if author != actor {
		s.sink.Notify(author, Event{
			Type: EventMessageStatusUpdate,
			Payload: StatusUpdatePayload{
				MessageID:      messageID,
				ConversationID: message.ConversationID,
				UserID:         status.UserID,
				IsRead:         status.IsRead,
				ReadAt:         status.ReadAt,
			},
		})
	}
	return nil
}

// DeleteMessage removes the actor's own message and tells every
// participant's live connections about it.
func (s *ChatService) DeleteMessage(
	ctx context.Context,
	actor identity.ID,
	messageID int64,
) error {
	if messageID <= 0 {
		return ErrInvalidInput
	}

	message, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if message.SenderID != actor.Int64() {
		return ErrForbidden
	}

	deleted, err := s.store.DeleteMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}

	s.sink.Fanout(ctx, message.ConversationID, identity.None, Event{
		Type: EventMessageDeleted,
		Payload: MessageDeletedPayload{
			ConversationID: message.ConversationID,
			MessageID:      messageID,
		},
	})
	return nil
}

// ListMessages pages through history in creation order and marks the
// fetched messages read for the caller. Authors of messages that actually
// transitioned get a status-update on their live connections, which is how
// a reconnecting client reconciles read state from the store rather than
// from registry memory.
func (s *ChatService) ListMessages(
	ctx context.Context,
	actor identity.ID,
	conversationID int64,
	page int,
	limit int,
) ([]models.ChatMessage, int, error) {
	if page <= 0 || limit <= 0 {
		return nil, 0, ErrInvalidInput
	}
	if err := s.requireParticipant(ctx, conversationID, actor); err != nil {
		return nil, 0, err
	}

	messages, total, err := s.store.MessagesOf(ctx, conversationID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}

	received := lo.FilterMap(messages, func(m models.ChatMessage, _ int) (int64, bool) {
		return m.ID, m.SenderID != actor.Int64()
	})

	changed, err := s.store.MarkMessagesRead(ctx, received, actor.Int64())
	if err != nil {
		return nil, 0, err
	}

	if len(changed) > 0 {
		now := time.Now().UTC()
		authorByMessage := lo.SliceToMap(messages, func(m models.ChatMessage) (int64, int64) {
			return m.ID, m.SenderID
		})
		for _, messageID := range changed {
			authorID, ok := authorByMessage[messageID]
			if !ok {
				continue
			}
			s.sink.Notify(identity.FromInt64(authorID), Event{
				Type: EventMessageStatusUpdate,
				Payload: StatusUpdatePayload{
					MessageID:      messageID,
					ConversationID: conversationID,
					UserID:         actor.Int64(),
					IsRead:         true,
					ReadAt:         &now,
				},
			})
		}
	}

	return messages, total, nil
}

func (s *ChatService) ListConversations(
	ctx context.Context,
	actor identity.ID,
) ([]models.ConversationSummary, error) {
	return s.store.ConversationSummaries(ctx, actor.Int64())
}
