package models

import "time"

type Conversation struct {
	ID        int64     `json:"id"`
	IsGroup   bool      `json:"is_group"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Participant is the membership edge between a user and a conversation.
// Unique per (conversation, user).
type Participant struct {
	ConversationID int64     `json:"conversation_id"`
	UserID         int64     `json:"user_id"`
	IsAdmin        bool      `json:"is_admin"`
	JoinedAt       time.Time `json:"joined_at"`
}

type ChatMessage struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	SenderID       int64     `json:"sender_id"`
	Content        string    `json:"content,omitempty"`
	MediaURL       string    `json:"media_url,omitempty"`
	MediaType      string    `json:"media_type,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// MessageStatus is the per-recipient read state of one message. A row
// exists for every participant of the message's conversation, the sender's
// row pre-marked read.
type MessageStatus struct {
	MessageID int64      `json:"message_id"`
	UserID    int64      `json:"user_id"`
	IsRead    bool       `json:"is_read"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
}

type ConversationSummary struct {
	Conversation
	Participants []User       `json:"participants,omitempty"`
	LastMessage  *ChatMessage `json:"last_message,omitempty"`
	UnreadCount  int          `json:"unread_count"`
}
