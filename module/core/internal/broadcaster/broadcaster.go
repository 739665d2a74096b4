// Package broadcaster fans committed events out to live subscribers. Every
// subscriber starts with a full snapshot and then receives each later event
// exactly once, in publish order, through its own bounded queue.
package broadcaster

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nandanugg/fleet-tracker/internal/logging"
	"github.com/nandanugg/fleet-tracker/module/core/domain"
)

const DefaultBufferSize = 256

var ErrClosed = errors.New("subscription closed")

type Snapshotter interface {
	Snapshot(ctx context.Context) (domain.Snapshot, error)
}

type Metrics interface {
	SetSubscribers(n int)
	IncPublished(eventType string)
	IncResync(reason string)
}

type Option func(*Broadcaster)

func WithBufferSize(n int) Option {
	return func(b *Broadcaster) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

func WithLogger(log logging.Logger) Option {
	return func(b *Broadcaster) {
		if log != nil {
			b.log = log
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(b *Broadcaster) { b.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(b *Broadcaster) {
		if now != nil {
			b.now = now
		}
	}
}

// Broadcaster owns the subscriber registry. Publish and Subscribe serialize on
// one lock, so a snapshot and the events that follow it never overlap with a
// gap.
type Broadcaster struct {
	snap       Snapshotter
	bufferSize int
	log        logging.Logger
	metrics    Metrics
	now        func() time.Time

	mu   sync.Mutex
	seq  uint64
	subs map[string]*Subscription
}

func New(snap Snapshotter, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		snap:       snap,
		bufferSize: DefaultBufferSize,
		log:        logging.Noop(),
		now:        time.Now,
		subs:       make(map[string]*Subscription),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a subscriber whose first event is an initialState
// snapshot.
func (b *Broadcaster) Subscribe(ctx context.Context) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	snapshot, err := b.snap.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	sub := &Subscription{
		id:       uuid.NewString(),
		b:        b,
		capacity: b.bufferSize,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	sub.reset(b.snapshotEvent(snapshot))
	b.subs[sub.id] = sub
	b.setSubscribersLocked()
	return sub, nil
}

// Unsubscribe removes sub and releases its queue. It is idempotent.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(sub)
}

// Publish stamps each event with the next sequence number and enqueues it for
// every subscriber without blocking. A subscriber whose queue is full loses
// its backlog and gets a fresh snapshot on its next read.
func (b *Broadcaster) Publish(events ...domain.Event) {
	if len(events) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range events {
		b.seq++
		events[i].Seq = b.seq
		if b.metrics != nil {
			b.metrics.IncPublished(string(events[i].Type))
		}
	}

	for _, sub := range b.subs {
		for _, e := range events {
			if sub.enqueue(e) {
				continue
			}
			b.log.Warn(context.Background(), "subscriber queue overflow, resyncing",
				logging.String("subscription_id", sub.id),
				logging.Int("capacity", sub.capacity),
			)
			// the snapshot taken on the next read reflects the rest of this batch
			sub.markStale()
			break
		}
	}
}

// Resync discards the subscriber's backlog and queues a fresh snapshot.
func (b *Broadcaster) Resync(ctx context.Context, sub *Subscription) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub.id]; !ok {
		return ErrClosed
	}
	return b.resyncLocked(ctx, sub, "requested")
}

// resyncStale replaces the dropped backlog of an overflowed subscriber. It
// runs on the consumer side so publishers never wait on a snapshot for a
// slow reader.
func (b *Broadcaster) resyncStale(ctx context.Context, sub *Subscription) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub.id]; !ok {
		return ErrClosed
	}
	if !sub.isStale() {
		return nil
	}
	if err := b.resyncLocked(ctx, sub, "overflow"); err != nil {
		return ErrClosed
	}
	return nil
}

func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broadcaster) resyncLocked(ctx context.Context, sub *Subscription, reason string) error {
	snapshot, err := b.snap.Snapshot(ctx)
	if err != nil {
		b.log.Error(ctx, "resync snapshot failed, closing subscription",
			logging.String("subscription_id", sub.id),
			logging.Err(err),
		)
		b.removeLocked(sub)
		return err
	}
	sub.reset(b.snapshotEvent(snapshot))
	if b.metrics != nil {
		b.metrics.IncResync(reason)
	}
	return nil
}

func (b *Broadcaster) removeLocked(sub *Subscription) {
	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)
	sub.close()
	b.setSubscribersLocked()
}

func (b *Broadcaster) setSubscribersLocked() {
	if b.metrics != nil {
		b.metrics.SetSubscribers(len(b.subs))
	}
}

// snapshotEvent carries the sequence number of the last event it reflects.
func (b *Broadcaster) snapshotEvent(s domain.Snapshot) domain.Event {
	e := domain.NewEvent(domain.EventInitialState, b.now(), s)
	e.Seq = b.seq
	return e
}
