package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Aaryankumar13084/TeleChat/internal/models"
)

type ConversationRepository struct {
	db DBTX
}

func NewConversationRepository(db DBTX) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// DirectKey is the canonical pair key enforcing one direct conversation
// per identity pair, order independent.
func DirectKey(idA, idB int64) string {
	if idB < idA {
		idA, idB = idB, idA
	}
	return fmt.Sprintf("%d:%d", idA, idB)
}

// UpsertDirect inserts the direct conversation for the pair, or returns the
// existing one. The unique index on direct_key makes concurrent calls
// converge on a single row.
func (r *ConversationRepository) UpsertDirect(
	ctx context.Context,
	idA int64,
	idB int64,
) (*models.Conversation, error) {
	query := `
		INSERT INTO conversations (is_group, direct_key)
		VALUES (FALSE, $1)
		ON CONFLICT (direct_key)
		DO UPDATE SET updated_at = conversations.updated_at
		RETURNING id, is_group, name, created_at, updated_at
	`

	var conversation models.Conversation
	err := r.db.QueryRow(ctx, query, DirectKey(idA, idB)).Scan(
		&conversation.ID,
		&conversation.IsGroup,
		&conversation.Name,
		&conversation.CreatedAt,
		&conversation.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &conversation, nil
}

func (r *ConversationRepository) CreateGroup(
	ctx context.Context,
	name string,
) (*models.Conversation, error) {
	query := `
		INSERT INTO conversations (is_group, name)
		VALUES (TRUE, $1)
		RETURNING id, is_group, name, created_at, updated_at
	`

	var conversation models.Conversation
	err := r.db.QueryRow(ctx, query, name).Scan(
		&conversation.ID,
		&conversation.IsGroup,
		&conversation.Name,
		&conversation.CreatedAt,
		&conversation.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &conversation, nil
}

func (r *ConversationRepository) GetByID(ctx context.Context, conversationID int64) (*models.Conversation, error) {
	query := `
		SELECT id, is_group, name, created_at, updated_at
		FROM conversations
		WHERE id = $1
	`

	var conversation models.Conversation
	err := r.db.QueryRow(ctx, query, conversationID).Scan(
		&conversation.ID,
		&conversation.IsGroup,
		&conversation.Name,
		&conversation.CreatedAt,
		&conversation.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &conversation, nil
}

func (r *ConversationRepository) AddParticipant(
	ctx context.Context,
	conversationID int64,
	userID int64,
	isAdmin bool,
) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO participants (conversation_id, user_id, is_admin)
		VALUES ($1, $2, $3)
		ON CONFLICT (conversation_id, user_id) DO NOTHING
	`, conversationID, userID, isAdmin)
	return err
}

func (r *ConversationRepository) ParticipantsOf(
	ctx context.Context,
	conversationID int64,
) ([]models.Participant, error) {
	query := `
		SELECT conversation_id, user_id, is_admin, joined_at
		FROM participants
		WHERE conversation_id = $1
		ORDER BY joined_at ASC, user_id ASC
	`

	rows, err := r.db.Query(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participants := make([]models.Participant, 0)
	for rows.Next() {
		var participant models.Participant
		if err := rows.Scan(
			&participant.ConversationID,
			&participant.UserID,
			&participant.IsAdmin,
			&participant.JoinedAt,
		); err != nil {
			return nil, err
		}
		participants = append(participants, participant)
	}

	return participants, rows.Err()
}

func (r *ConversationRepository) ListForParticipant(
	ctx context.Context,
	participantID int64,
) ([]models.Conversation, error) {
	query := `
		SELECT c.id, c.is_group, c.name, c.created_at, c.updated_at
		FROM conversations c
		JOIN participants p ON p.conversation_id = c.id
		WHERE p.user_id = $1
		ORDER BY c.updated_at DESC, c.id DESC
	`

	rows, err := r.db.Query(ctx, query, participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conversations := make([]models.Conversation, 0)
	for rows.Next() {
		var conversation models.Conversation
		if err := rows.Scan(
			&conversation.ID,
			&conversation.IsGroup,
			&conversation.Name,
			&conversation.CreatedAt,
			&conversation.UpdatedAt,
		); err != nil {
			return nil, err
		}
		conversations = append(conversations, conversation)
	}

	return conversations, rows.Err()
}

// ListSummaries returns the caller's conversations with the latest message
// and the caller's unread count per conversation.
func (r *ConversationRepository) ListSummaries(
	ctx context.Context,
	participantID int64,
) ([]models.ConversationSummary, error) {
	query := `
		SELECT
			c.id,
			c.is_group,
			c.name,
			c.created_at,
			c.updated_at,
			lm.id,
			lm.conversation_id,
			lm.sender_id,
			lm.content,
			lm.media_url,
			lm.media_type,
			lm.created_at,
			COALESCE(uc.unread_count, 0)
		FROM conversations c
		JOIN participants me ON me.conversation_id = c.id AND me.user_id = $1
		LEFT JOIN LATERAL (
			SELECT id, conversation_id, sender_id, content, media_url, media_type, created_at
			FROM messages
			WHERE conversation_id = c.id
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		) lm ON TRUE
		LEFT JOIN LATERAL (
			SELECT COUNT(*) AS unread_count
			FROM messages m
			JOIN message_statuses ms ON ms.message_id = m.id
			WHERE m.conversation_id = c.id
			  AND ms.user_id = $1
			  AND ms.is_read = FALSE
		) uc ON TRUE
		ORDER BY COALESCE(lm.created_at, c.updated_at, c.created_at) DESC, c.id DESC
	`

	rows, err := r.db.Query(ctx, query, participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]models.ConversationSummary, 0)
	for rows.Next() {
		var summary models.ConversationSummary
		var messageID sql.NullInt64
		var messageConversationID sql.NullInt64
		var messageSenderID sql.NullInt64
		var messageContent sql.NullString
		var messageMediaURL sql.NullString
		var messageMediaType sql.NullString
		var messageCreatedAt sql.NullTime

		if err := rows.Scan(
			&summary.ID,
			&summary.IsGroup,
			&summary.Name,
			&summary.CreatedAt,
			&summary.UpdatedAt,
			&messageID,
			&messageConversationID,
			&messageSenderID,
			&messageContent,
			&messageMediaURL,
			&messageMediaType,
			&messageCreatedAt,
			&summary.UnreadCount,
		); err != nil {
			return nil, err
		}

		if messageID.Valid {
			summary.LastMessage = &models.ChatMessage{
				ID:             messageID.Int64,
				ConversationID: messageConversationID.Int64,
				SenderID:       messageSenderID.Int64,
				Content:        messageContent.String,
				MediaURL:       messageMediaURL.String,
				MediaType:      messageMediaType.String,
				CreatedAt:      messageCreatedAt.Time,
			}
		}

		summaries = append(summaries, summary)
	}

	return summaries, rows.Err()
}

// IsParticipant reports whether the user belongs to the conversation.
func (r *ConversationRepository) IsParticipant(
	ctx context.Context,
	conversationID int64,
	userID int64,
) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM participants
			WHERE conversation_id = $1 AND user_id = $2
		)
	`, conversationID, userID).Scan(&exists)
	return exists, err
}

func (r *ConversationRepository) Touch(ctx context.Context, conversationID int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE conversations
		SET updated_at = NOW()
		WHERE id = $1
	`, conversationID)
	return err
}
