package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// Publisher provides typed methods for publishing events to NATS JetStream.
type Publisher struct {
	js jetstream.JetStream
}

// NewPublisher creates a new Publisher.
func NewPublisher(js jetstream.JetStream) *Publisher {
	return &Publisher{js: js}
}

// PublishCardEvent publishes a card lifecycle event (generated, failed,
// downloaded).
func (p *Publisher) PublishCardEvent(ctx context.Context, event AuditEvent) error {
	return p.publish(ctx, SubjectCardEvent, event)
}

// PublishAuthEvent publishes an authentication event (login, logout, token
// lifecycle).
func (p *Publisher) PublishAuthEvent(ctx context.Context, event AuditEvent) error {
	return p.publish(ctx, SubjectAuthEvent, event)
}

// PublishUsageEvent publishes a quota decision event, currently rejections
// only.
func (p *Publisher) PublishUsageEvent(ctx context.Context, event AuditEvent) error {
	return p.publish(ctx, SubjectUsageEvent, event)
}

func (p *Publisher) publish(ctx context.Context, subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling event for %s: %w", subject, err)
	}
	_, err = p.js.Publish(ctx, subject, payload)
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}
