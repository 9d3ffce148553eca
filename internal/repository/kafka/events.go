package kafka

import (
	"context"
	"encoding/json"

	"github.com/NordCoder/doggy-auth/internal/domain/outbox"
)

// AuthEvents publishes auth audit events keyed by user id, so one user's events
// stay ordered within a partition.
type AuthEvents struct {
	p *Producer
}

func NewAuthEvents(p *Producer) *AuthEvents { return &AuthEvents{p: p} }

func (e *AuthEvents) Publish(ctx context.Context, ev outbox.AuthEvent) error {
	return e.p.PublishJSON(ctx, []byte(ev.UserID), ev, map[string]string{"event-type": ev.Type})
}

// PublishRaw forwards an already encoded event without re-marshalling it.
func (e *AuthEvents) PublishRaw(ctx context.Context, userID, eventType string, data json.RawMessage) error {
	return e.p.publish(ctx, []byte(userID), data, map[string]string{"event-type": eventType})
}
