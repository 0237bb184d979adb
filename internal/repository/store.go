package repository

import (
	"context"
	"time"

	"github.com/Aaryankumar13084/TeleChat/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the durable side of the chat core: conversations, participants,
// messages and per-recipient statuses, plus user presence. The realtime
// layer consumes it through the services.ChatStore interface; everything
// multi-statement runs in a transaction so concurrent senders cannot leave
// partial rows behind.
type Store struct {
	db            *pgxpool.Pool
	users         *UserRepository
	conversations *ConversationRepository
	messages      *MessageRepository
	statuses      *MessageStatusRepository
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{
		db:            db,
		users:         NewUserRepository(db),
		conversations: NewConversationRepository(db),
		messages:      NewMessageRepository(db),
		statuses:      NewMessageStatusRepository(db),
	}
}

func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *Store) SetPresence(ctx context.Context, id int64, online bool, lastSeen time.Time) error {
	return s.users.SetPresence(ctx, id, online, lastSeen)
}

// FindOrCreateDirectConversation returns the unique direct conversation
// for the pair, creating it and both membership rows on first use.
// Concurrent calls for the same pair converge on one row via the
// direct_key unique index.
func (s *Store) FindOrCreateDirectConversation(
	ctx context.Context,
	idA int64,
	idB int64,
) (*models.Conversation, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txConversations := NewConversationRepository(tx)

	conversation, err := txConversations.UpsertDirect(ctx, idA, idB)
	if err != nil {
		return nil, err
	}
	if err := txConversations.AddParticipant(ctx, conversation.ID, idA, false); err != nil {
		return nil, err
	}
	if err := txConversations.AddParticipant(ctx, conversation.ID, idB, false); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return conversation, nil
}

// CreateGroupConversation creates a named group with the creator as admin.
func (s *Store) CreateGroupConversation(
	ctx context.Context,
	creatorID int64,
	name string,
	participantIDs []int64,
) (*models.Conversation, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txConversations := NewConversationRepository(tx)

	conversation, err := txConversations.CreateGroup(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := txConversations.AddParticipant(ctx, conversation.ID, creatorID, true); err != nil {
		return nil, err
	}
	for _, participantID := range participantIDs {
		if participantID == creatorID {
			continue
		}
		if err := txConversations.AddParticipant(ctx, conversation.ID, participantID, false); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return conversation, nil
}

func (s *Store) GetConversation(ctx context.Context, conversationID int64) (*models.Conversation, error) {
	return s.conversations.GetByID(ctx, conversationID)
}

func (s *Store) ParticipantsOf(ctx context.Context, conversationID int64) ([]models.Participant, error) {
	return s.conversations.ParticipantsOf(ctx, conversationID)
}

func (s *Store) ConversationsForIdentity(ctx context.Context, id int64) ([]models.Conversation, error) {
	return s.conversations.ListForParticipant(ctx, id)
}

func (s *Store) ConversationSummaries(ctx context.Context, id int64) ([]models.ConversationSummary, error) {
	return s.conversations.ListSummaries(ctx, id)
}

func (s *Store) IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error) {
	return s.conversations.IsParticipant(ctx, conversationID, userID)
}

// CreateMessageWithStatuses persists the message, bumps the conversation's
// updated_at and writes one status row per recipient (the sender's
// pre-marked read) in a single transaction. A failed status insert rolls
// the message back too, so history never holds a message without its
// status rows.
func (s *Store) CreateMessageWithStatuses(
	ctx context.Context,
	conversationID int64,
	senderID int64,
	content string,
	mediaURL string,
	mediaType string,
	recipientIDs []int64,
) (*models.ChatMessage, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txMessages := NewMessageRepository(tx)
	txConversations := NewConversationRepository(tx)
	txStatuses := NewMessageStatusRepository(tx)

	message, err := txMessages.Create(ctx, conversationID, senderID, content, mediaURL, mediaType)
	if err != nil {
		return nil, err
	}
	if err := txConversations.Touch(ctx, conversationID); err != nil {
		return nil, err
	}
	if err := txStatuses.CreateForRecipients(ctx, message.ID, senderID, recipientIDs); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return message, nil
}

func (s *Store) GetMessage(ctx context.Context, messageID int64) (*models.ChatMessage, error) {
	return s.messages.GetByID(ctx, messageID)
}

func (s *Store) MessagesOf(
	ctx context.Context,
	conversationID int64,
	limit int,
	offset int,
) ([]models.ChatMessage, int, error) {
	return s.messages.ListByConversation(ctx, conversationID, limit, offset)
}

func (s *Store) DeleteMessage(ctx context.Context, messageID int64) (bool, error) {
	return s.messages.Delete(ctx, messageID)
}

func (s *Store) UpdateMessageStatus(
	ctx context.Context,
	messageID int64,
	userID int64,
	isRead bool,
) (*models.MessageStatus, error) {
	return s.statuses.Update(ctx, messageID, userID, isRead)
}

func (s *Store) MarkMessagesRead(
	ctx context.Context,
	messageIDs []int64,
	readerID int64,
) ([]int64, error) {
	return s.statuses.MarkMessagesRead(ctx, messageIDs, readerID)
}
