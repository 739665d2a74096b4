package broadcaster

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nandanugg/fleet-tracker/module/core/domain"
	"github.com/nandanugg/fleet-tracker/module/core/internal/repository/database/memory"
	"github.com/nandanugg/fleet-tracker/module/core/service"
)

type mockSnapshotter struct {
	mu         sync.Mutex
	snapshotFn func(ctx context.Context) (domain.Snapshot, error)
	calls      int
}

func (m *mockSnapshotter) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.snapshotFn != nil {
		return m.snapshotFn(ctx)
	}
	return domain.Snapshot{}, nil
}

type mockMetrics struct {
	mu          sync.Mutex
	subscribers int
	published   int
	resyncs     map[string]int
}

func (m *mockMetrics) SetSubscribers(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = n
}

func (m *mockMetrics) IncPublished(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published++
}

func (m *mockMetrics) IncResync(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resyncs == nil {
		m.resyncs = map[string]int{}
	}
	m.resyncs[reason]++
}

func next(t *testing.T, sub *Subscription) domain.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	e, err := sub.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	return e
}

func locationEvent(vehicleID int64) domain.Event {
	return domain.NewEvent(domain.EventVehicleLocationUpdate, time.Now(), domain.VehicleState{Vehicle: domain.Vehicle{ID: vehicleID}})
}

func TestSubscribe_SnapshotFirst(t *testing.T) {
	snap := &mockSnapshotter{snapshotFn: func(context.Context) (domain.Snapshot, error) {
		return domain.Snapshot{Vehicles: []domain.VehicleState{{Vehicle: domain.Vehicle{ID: 1, Code: "VAN-1"}}}}, nil
	}}
	b := New(snap)

	b.Publish(locationEvent(1))
	sub, err := b.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	b.Publish(locationEvent(1))

	first := next(t, sub)
	if first.Type != domain.EventInitialState {
		t.Fatalf("expected initialState first, got %s", first.Type)
	}
	if first.Seq != 1 {
		t.Errorf("snapshot must carry the last published seq, got %d", first.Seq)
	}
	if s := first.Data.(domain.Snapshot); len(s.Vehicles) != 1 {
		t.Errorf("unexpected snapshot: %+v", s)
	}
	second := next(t, sub)
	if second.Type != domain.EventVehicleLocationUpdate || second.Seq != 2 {
		t.Errorf("unexpected second event: %+v", second)
	}
}

func TestSubscribe_SnapshotError(t *testing.T) {
	b := New(&mockSnapshotter{snapshotFn: func(context.Context) (domain.Snapshot, error) {
		return domain.Snapshot{}, errors.New("store unavailable")
	}})
	if _, err := b.Subscribe(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if b.Subscribers() != 0 {
		t.Error("failed subscriptions must not be registered")
	}
}

func TestPublish_FanOutExactlyOnce(t *testing.T) {
	metrics := &mockMetrics{}
	b := New(&mockSnapshotter{}, WithMetrics(metrics))

	const n = 10
	subs := make([]*Subscription, n)
	for i := range subs {
		sub, err := b.Subscribe(context.Background())
		if err != nil {
			t.Fatalf("subscribe: %v", err)
		}
		subs[i] = sub
	}
	if metrics.subscribers != n {
		t.Errorf("expected gauge at %d, got %d", n, metrics.subscribers)
	}

	b.Publish(locationEvent(1), locationEvent(2))
	b.Publish(locationEvent(3))

	for i, sub := range subs {
		if e := next(t, sub); e.Type != domain.EventInitialState {
			t.Fatalf("sub %d: expected snapshot first", i)
		}
		for want := uint64(1); want <= 3; want++ {
			if e := next(t, sub); e.Seq != want {
				t.Fatalf("sub %d: expected seq %d, got %d", i, want, e.Seq)
			}
		}
		if sub.Len() != 0 {
			t.Fatalf("sub %d: expected no duplicates, %d left", i, sub.Len())
		}
	}
	if metrics.published != 3 {
		t.Errorf("expected 3 published, got %d", metrics.published)
	}
}

func TestPublish_SaturatedSubscriberIsIsolated(t *testing.T) {
	metrics := &mockMetrics{}
	snap := &mockSnapshotter{}
	b := New(snap, WithBufferSize(4), WithMetrics(metrics))

	stuck, _ := b.Subscribe(context.Background())
	healthy, _ := b.Subscribe(context.Background())
	next(t, healthy)

	for i := 1; i <= 20; i++ {
		b.Publish(locationEvent(int64(i)))
		if e := next(t, healthy); e.Seq != uint64(i) {
			t.Fatalf("healthy subscriber: expected seq %d, got %d", i, e.Seq)
		}
	}

	if stuck.Len() > 4 {
		t.Fatalf("queue exceeded its bound: %d", stuck.Len())
	}
	first := next(t, stuck)
	if first.Type != domain.EventInitialState {
		t.Fatalf("overflowed subscriber must restart from a snapshot, got %s", first.Type)
	}
	// everything after the resync snapshot arrives in order
	last := first.Seq
	for stuck.Len() > 0 {
		e := next(t, stuck)
		if e.Seq != last+1 {
			t.Fatalf("gap after resync: %d then %d", last, e.Seq)
		}
		last = e.Seq
	}
	if last != 20 {
		t.Errorf("expected to end at seq 20, got %d", last)
	}
	if metrics.resyncs["overflow"] == 0 {
		t.Error("expected overflow resyncs to be counted")
	}
}

func TestPublish_OverflowSnapshotFailureClosesSubscription(t *testing.T) {
	var fail bool
	var mu sync.Mutex
	snap := &mockSnapshotter{snapshotFn: func(context.Context) (domain.Snapshot, error) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return domain.Snapshot{}, errors.New("store unavailable")
		}
		return domain.Snapshot{}, nil
	}}
	b := New(snap, WithBufferSize(1))
	sub, _ := b.Subscribe(context.Background())

	mu.Lock()
	fail = true
	mu.Unlock()
	b.Publish(locationEvent(1))

	if _, err := sub.Next(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("expected subscription to be closed")
	}
	if b.Subscribers() != 0 {
		t.Error("closed subscription must be removed")
	}
}

func TestPublish_OverflowDefersSnapshotToReader(t *testing.T) {
	snap := &mockSnapshotter{}
	b := New(snap, WithBufferSize(2))
	sub, _ := b.Subscribe(context.Background())

	for i := 1; i <= 50; i++ {
		b.Publish(locationEvent(int64(i)))
	}
	snap.mu.Lock()
	calls := snap.calls
	snap.mu.Unlock()
	if calls != 1 {
		t.Fatalf("publish must not build snapshots for a slow reader, got %d snapshot calls", calls)
	}
	if sub.Len() != 0 {
		t.Fatalf("overflowed backlog must be dropped, %d left", sub.Len())
	}

	first := next(t, sub)
	if first.Type != domain.EventInitialState || first.Seq != 50 {
		t.Fatalf("expected snapshot at seq 50, got %+v", first)
	}
	b.Publish(locationEvent(51))
	if e := next(t, sub); e.Seq != 51 {
		t.Fatalf("expected seq 51 after resync, got %d", e.Seq)
	}
	snap.mu.Lock()
	defer snap.mu.Unlock()
	if snap.calls != 2 {
		t.Errorf("expected exactly one resync snapshot, got %d calls", snap.calls-1)
	}
}

func TestResync_Requested(t *testing.T) {
	metrics := &mockMetrics{}
	b := New(&mockSnapshotter{}, WithMetrics(metrics))
	sub, _ := b.Subscribe(context.Background())
	b.Publish(locationEvent(1), locationEvent(2))

	if err := sub.Resync(context.Background()); err != nil {
		t.Fatalf("resync: %v", err)
	}
	if sub.Len() != 1 {
		t.Fatalf("expected backlog replaced by one snapshot, got %d", sub.Len())
	}
	if e := next(t, sub); e.Type != domain.EventInitialState || e.Seq != 2 {
		t.Errorf("unexpected resync event: %+v", e)
	}
	if metrics.resyncs["requested"] != 1 {
		t.Errorf("expected one requested resync, got %v", metrics.resyncs)
	}

	sub.Close()
	if err := sub.Resync(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after close, got %v", err)
	}
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	b := New(&mockSnapshotter{})
	sub, _ := b.Subscribe(context.Background())

	b.Unsubscribe(sub)
	b.Unsubscribe(sub)
	b.Unsubscribe(nil)

	if b.Subscribers() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", b.Subscribers())
	}
	b.Publish(locationEvent(1))
	if _, err := sub.Next(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestNext_ContextCancel(t *testing.T) {
	b := New(&mockSnapshotter{})
	sub, _ := b.Subscribe(context.Background())
	next(t, sub)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := sub.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestUnsubscribeDuringPublish(t *testing.T) {
	b := New(&mockSnapshotter{}, WithBufferSize(8))

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			default:
				b.Publish(locationEvent(1))
			}
		}
	}()

	for i := 0; i < 200; i++ {
		sub, err := b.Subscribe(context.Background())
		if err != nil {
			t.Fatalf("subscribe: %v", err)
		}
		if i%2 == 0 {
			next(t, sub)
		}
		sub.Close()
		select {
		case <-sub.Done():
		default:
			t.Fatal("Done must be closed after Close")
		}
	}
	cancel()
	wg.Wait()

	if b.Subscribers() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", b.Subscribers())
	}
}

// A subscriber joining mid-stream and applying the snapshot and then every
// event converges to the committed state.
func TestSnapshotConsistencyUnderConcurrentUpdates(t *testing.T) {
	store := memory.New()
	b := New(store, WithBufferSize(1024))
	proc := service.NewProcessor(store, b, service.ProcessorConfig{})

	const vehicles = 10
	ids := make([]int64, vehicles)
	for i := range ids {
		v, err := store.CreateVehicle(context.Background(), domain.Vehicle{Code: fmt.Sprintf("VAN-%d", i)})
		if err != nil {
			t.Fatalf("create vehicle: %v", err)
		}
		ids[i] = v.ID
	}

	var (
		wg      sync.WaitGroup
		sub     *Subscription
		subOnce sync.Once
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i == 50 {
				subOnce.Do(func() {
					s, err := b.Subscribe(context.Background())
					if err != nil {
						t.Errorf("subscribe: %v", err)
						return
					}
					sub = s
				})
			}
			r := domain.PositionReport{
				Point: domain.Point{Lat: -6.2 + float64(i)*0.001, Lon: 106.8},
				Speed: float64(i % 30),
			}
			if _, err := proc.ProcessPositionReport(context.Background(), ids[i%vehicles], r); err != nil {
				t.Errorf("process: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if sub == nil {
		t.Fatal("subscriber never joined")
	}

	// apply snapshot then events, keeping the newest version per vehicle
	view := map[int64]domain.VehicleStatus{}
	apply := func(st *domain.VehicleStatus) {
		if st == nil {
			return
		}
		if cur, ok := view[st.VehicleID]; !ok || st.Version > cur.Version {
			view[st.VehicleID] = *st
		}
	}
	first := next(t, sub)
	if first.Type != domain.EventInitialState {
		t.Fatalf("expected snapshot first, got %s", first.Type)
	}
	for _, vs := range first.Data.(domain.Snapshot).Vehicles {
		apply(vs.Status)
	}
	for sub.Len() > 0 {
		e := next(t, sub)
		if e.Type == domain.EventVehicleLocationUpdate {
			apply(e.Data.(domain.VehicleState).Status)
		}
	}

	snapshot, _ := store.Snapshot(context.Background())
	for _, vs := range snapshot.Vehicles {
		got, ok := view[vs.ID]
		if !ok {
			t.Fatalf("vehicle %d missing from the subscriber view", vs.ID)
		}
		if got.Version != vs.Status.Version || got.Lat != vs.Status.Lat {
			t.Errorf("vehicle %d: subscriber has version %d, store has %d", vs.ID, got.Version, vs.Status.Version)
		}
	}
}
