package service

import (
	"context"

	"github.com/nandanugg/fleet-tracker/module/core/domain"
	"github.com/nandanugg/fleet-tracker/module/core/internal/repository/publisher"
)

// EventRelay forwards live events to the message broker. Snapshots stay
// local to subscribers.
type EventRelay struct {
	pub publisher.EventPublisher
}

func NewEventRelay(pub publisher.EventPublisher) *EventRelay {
	return &EventRelay{pub: pub}
}

func (r *EventRelay) Handle(ctx context.Context, e domain.Event) error {
	if e.Type == domain.EventInitialState {
		return nil
	}
	return r.pub.PublishEvent(ctx, e)
}
