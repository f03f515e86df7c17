package services

import (
	"context"
	"time"

	"expenses/internal/amqp"
	"expenses/internal/log"
)

// EventPublisher delivers domain events. *amqp.Client implements it.
type EventPublisher interface {
	Publish(ctx context.Context, event *amqp.Event) error
}

// publish fires an event when a publisher is configured. A failure is logged
// and never reaches the caller: the store already holds the change.
func publish(ctx context.Context, p EventPublisher, t amqp.EventType, userID, expenseID string) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, amqp.NewEvent(t, userID, expenseID)); err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Failed to publish event",
			log.FieldComponent, log.ComponentAMQP,
			log.FieldEventType, t,
			log.FieldUserID, userID,
			log.FieldError, err)
	}
}

// stamp is the persisted form of "now": UTC at millisecond precision, which
// every store round-trips exactly.
func stamp() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
