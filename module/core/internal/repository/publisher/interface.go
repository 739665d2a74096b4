package publisher

import (
	"context"

	"github.com/nandanugg/fleet-tracker/module/core/domain"
)

// EventPublisher relays committed events to an external broker.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event domain.Event) error
}
