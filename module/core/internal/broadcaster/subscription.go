package broadcaster

import (
	"context"
	"sync"

	"github.com/nandanugg/fleet-tracker/module/core/domain"
)

// Subscription is one subscriber's bounded FIFO of pending events.
type Subscription struct {
	id       string
	b        *Broadcaster
	capacity int

	mu     sync.Mutex
	queue  []domain.Event
	closed bool
	// stale is set on overflow; the backlog is gone and a snapshot is due.
	stale bool

	wake chan struct{}
	done chan struct{}
}

func (s *Subscription) ID() string {
	return s.id
}

// Done is closed once the subscription is removed.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Next blocks until an event is available, the subscription closes or ctx is
// done. Events still queued at close time are discarded. After an overflow the
// next event is a fresh initialState snapshot.
func (s *Subscription) Next(ctx context.Context) (domain.Event, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return domain.Event{}, ErrClosed
		}
		if s.stale {
			s.mu.Unlock()
			if err := s.b.resyncStale(ctx, s); err != nil {
				return domain.Event{}, err
			}
			continue
		}
		if len(s.queue) > 0 {
			e := s.queue[0]
			s.queue[0] = domain.Event{}
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return e, nil
		}
		s.mu.Unlock()

		select {
		case <-s.wake:
		case <-s.done:
		case <-ctx.Done():
			return domain.Event{}, ctx.Err()
		}
	}
}

// Len reports the number of queued events.
func (s *Subscription) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Resync asks the broadcaster for a fresh snapshot in place of the backlog.
func (s *Subscription) Resync(ctx context.Context) error {
	return s.b.Resync(ctx, s)
}

// Close unsubscribes.
func (s *Subscription) Close() {
	s.b.Unsubscribe(s)
}

// enqueue reports false when the queue is full. Closed and stale
// subscriptions accept and drop.
func (s *Subscription) enqueue(e domain.Event) bool {
	s.mu.Lock()
	if s.closed || s.stale {
		s.mu.Unlock()
		return true
	}
	if len(s.queue) >= s.capacity {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, e)
	s.mu.Unlock()
	s.signal()
	return true
}

func (s *Subscription) reset(first domain.Event) {
	s.mu.Lock()
	q := make([]domain.Event, 1, s.capacity)
	q[0] = first
	s.queue = q
	s.stale = false
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription) markStale() {
	s.mu.Lock()
	s.stale = true
	s.queue = nil
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription) isStale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stale
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.queue = nil
	close(s.done)
}

func (s *Subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
