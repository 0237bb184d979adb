package chatws

import (
	"context"
	"encoding/json"
	"log"

	"github.com/Aaryankumar13084/TeleChat/internal/identity"
	"github.com/Aaryankumar13084/TeleChat/internal/models"
	"github.com/Aaryankumar13084/TeleChat/internal/services"
)

// ParticipantSource resolves the recipient set for a conversation.
type ParticipantSource interface {
	ParticipantsOf(ctx context.Context, conversationID int64) ([]models.Participant, error)
}

// Engine pushes events to the live connections of a conversation's
// participants. Per-connection failures are swallowed: a dead or slow
// recipient never blocks delivery to the rest, and offline recipients
// catch up from the store. Implements services.EventSink.
type Engine struct {
	registry *Registry
	store    ParticipantSource
}

func NewEngine(registry *Registry, store ParticipantSource) *Engine {
	return &Engine{registry: registry, store: store}
}

func (e *Engine) Fanout(
	ctx context.Context,
	conversationID int64,
	exclude identity.ID,
	event services.Event,
) {
	participants, err := e.store.ParticipantsOf(ctx, conversationID)
	if err != nil {
		log.Printf("fanout: resolve participants of conversation %d: %v", conversationID, err)
		return
	}

	encoded, err := json.Marshal(event)
	if err != nil {
		log.Printf("fanout: encode %s event: %v", event.Type, err)
		return
	}

	for _, participant := range participants {
		recipient := identity.FromInt64(participant.UserID)
		if recipient == exclude {
			continue
		}
		e.push(recipient, encoded)
	}
}

// Notify pushes an event to a single identity's connections, e.g. the
// author-only read-receipt update.
func (e *Engine) Notify(id identity.ID, event services.Event) {
	encoded, err := json.Marshal(event)
	if err != nil {
		log.Printf("fanout: encode %s event: %v", event.Type, err)
		return
	}
	e.push(id, encoded)
}

func (e *Engine) push(id identity.ID, payload []byte) {
	for _, client := range e.registry.ConnectionsFor(id) {
		client.enqueue(payload)
	}
}
