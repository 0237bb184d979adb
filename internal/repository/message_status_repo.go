package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Aaryankumar13084/TeleChat/internal/models"
	"github.com/jackc/pgx/v5"
)

type MessageStatusRepository struct {
	db DBTX
}

func NewMessageStatusRepository(db DBTX) *MessageStatusRepository {
	return &MessageStatusRepository{db: db}
}

// CreateForRecipients inserts one status row per recipient. The sender's
// row is written pre-marked read. Replays hit the (message_id, user_id)
// unique index and are ignored, so the call is idempotent.
func (r *MessageStatusRepository) CreateForRecipients(
	ctx context.Context,
	messageID int64,
	senderID int64,
	recipientIDs []int64,
) error {
	now := time.Now().UTC()
	for _, recipientID := range recipientIDs {
		isRead := recipientID == senderID
		var readAt *time.Time
		if isRead {
			readAt = &now
		}

		_, err := r.db.Exec(ctx, `
			INSERT INTO message_statuses (message_id, user_id, is_read, read_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (message_id, user_id) DO NOTHING
		`, messageID, recipientID, isRead, readAt)
		if err != nil {
			return err
		}
	}
	return nil
}

// Update flips one recipient's read flag. Returns nil (no error) when the
// row already had the requested value or does not exist, so callers can
// tell a real transition from a no-op.
func (r *MessageStatusRepository) Update(
	ctx context.Context,
	messageID int64,
	userID int64,
	isRead bool,
) (*models.MessageStatus, error) {
	var readAt *time.Time
	if isRead {
		now := time.Now().UTC()
		readAt = &now
	}

	query := `
		UPDATE message_statuses
		SET is_read = $3, read_at = $4
		WHERE message_id = $1
		  AND user_id = $2
		  AND is_read <> $3
		RETURNING message_id, user_id, is_read, read_at
	`

	var status models.MessageStatus
	err := r.db.QueryRow(ctx, query, messageID, userID, isRead, readAt).Scan(
		&status.MessageID,
		&status.UserID,
		&status.IsRead,
		&status.ReadAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &status, nil
}

// MarkMessagesRead marks the given messages read for one recipient and
// returns the ids that actually transitioned.
func (r *MessageStatusRepository) MarkMessagesRead(
	ctx context.Context,
	messageIDs []int64,
	readerID int64,
) ([]int64, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}

	rows, err := r.db.Query(ctx, `
		UPDATE message_statuses
		SET is_read = TRUE, read_at = NOW()
		WHERE message_id = ANY($1)
		  AND user_id = $2
		  AND is_read = FALSE
		RETURNING message_id
	`, messageIDs, readerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	changed := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		changed = append(changed, id)
	}

	return changed, rows.Err()
}
