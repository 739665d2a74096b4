package service

import (
	"context"

	"github.com/nandanugg/fleet-tracker/internal/logging"
	"github.com/nandanugg/fleet-tracker/module/core/domain"
)

// Sink consumes committed events downstream of the broadcaster. Sinks ignore
// event types they do not handle.
type Sink interface {
	Handle(ctx context.Context, e domain.Event) error
}

type EventSource interface {
	Next(ctx context.Context) (domain.Event, error)
}

type SinkFailureRecorder interface {
	IncSinkFailure(sink string)
}

// RunSink feeds events from src into sink until ctx is done or src closes.
// Handler failures are logged and counted, never retried.
func RunSink(ctx context.Context, name string, src EventSource, sink Sink, log logging.Logger, failures SinkFailureRecorder) error {
	if log == nil {
		log = logging.Noop()
	}
	log = log.With(logging.String("sink", name))
	for {
		e, err := src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := sink.Handle(ctx, e); err != nil {
			log.Error(ctx, "sink failed to handle event",
				logging.String("event_type", string(e.Type)),
				logging.Uint64("seq", e.Seq),
				logging.Err(err),
			)
			if failures != nil {
				failures.IncSinkFailure(name)
			}
		}
	}
}
