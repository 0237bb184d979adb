package chatws

import (
	"context"
	"log"
	"time"

	"github.com/Aaryankumar13084/TeleChat/internal/identity"
	"github.com/Aaryankumar13084/TeleChat/internal/models"
	"github.com/Aaryankumar13084/TeleChat/internal/services"
	"github.com/samber/lo"
)

// PresenceStore is the slice of the store the tracker needs: durable
// presence marks plus the conversation graph for working out who should
// hear about a transition.
type PresenceStore interface {
	SetPresence(ctx context.Context, id int64, online bool, lastSeen time.Time) error
	ConversationsForIdentity(ctx context.Context, id int64) ([]models.Conversation, error)
	ParticipantsOf(ctx context.Context, conversationID int64) ([]models.Participant, error)
}

// PresenceTracker derives online state from registry occupancy: the caller
// invokes WentOnline on an identity's 0->1 connection transition and
// WentOffline on 1->0. No heartbeats; the transport's close event drives
// the offline edge.
type PresenceTracker struct {
	store  PresenceStore
	engine *Engine
}

func NewPresenceTracker(store PresenceStore, engine *Engine) *PresenceTracker {
	return &PresenceTracker{store: store, engine: engine}
}

func (t *PresenceTracker) WentOnline(ctx context.Context, id identity.ID) {
	if err := t.store.SetPresence(ctx, id.Int64(), true, time.Time{}); err != nil {
		log.Printf("presence: mark %s online: %v", id, err)
	}

	t.broadcast(ctx, id, services.UserStatusPayload{
		UserID: id.Int64(),
		Online: true,
	})
}

func (t *PresenceTracker) WentOffline(ctx context.Context, id identity.ID) {
	lastSeen := time.Now().UTC()
	if err := t.store.SetPresence(ctx, id.Int64(), false, lastSeen); err != nil {
		log.Printf("presence: mark %s offline: %v", id, err)
	}

	t.broadcast(ctx, id, services.UserStatusPayload{
		UserID:   id.Int64(),
		Online:   false,
		LastSeen: &lastSeen,
	})
}

// broadcast tells every identity sharing at least one conversation with
// the subject, deduplicated and excluding the subject itself.
func (t *PresenceTracker) broadcast(ctx context.Context, id identity.ID, payload services.UserStatusPayload) {
	conversations, err := t.store.ConversationsForIdentity(ctx, id.Int64())
	if err != nil {
		log.Printf("presence: resolve conversations of %s: %v", id, err)
		return
	}

	peers := make([]identity.ID, 0)
	for _, conversation := range conversations {
		participants, err := t.store.ParticipantsOf(ctx, conversation.ID)
		if err != nil {
			log.Printf("presence: resolve participants of conversation %d: %v", conversation.ID, err)
			continue
		}
		for _, participant := range participants {
			peer := identity.FromInt64(participant.UserID)
			if peer != id {
				peers = append(peers, peer)
			}
		}
	}

	event := services.Event{Type: services.EventUserStatusChange, Payload: payload}
	for _, peer := range lo.Uniq(peers) {
		t.engine.Notify(peer, event)
	}
}
