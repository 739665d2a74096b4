package service

import (
	"context"
	"sort"
	"sync"

	"github.com/nandanugg/fleet-tracker/module/core/domain"
)

// TripTracker derives trips from the event stream. A trip opens on the first
// active update and closes when the vehicle turns idle or offline.
type TripTracker struct {
	mu     sync.RWMutex
	lastID int64
	open   map[int64]*domain.Trip
	closed map[int64][]domain.Trip
	// maxClosed bounds retained completed trips per vehicle
	maxClosed int
}

func NewTripTracker(maxClosed int) *TripTracker {
	if maxClosed <= 0 {
		maxClosed = 100
	}
	return &TripTracker{
		open:      make(map[int64]*domain.Trip),
		closed:    make(map[int64][]domain.Trip),
		maxClosed: maxClosed,
	}
}

func (t *TripTracker) Handle(_ context.Context, e domain.Event) error {
	switch e.Type {
	case domain.EventVehicleLocationUpdate, domain.EventVehicleStatusUpdated:
		state, ok := e.Data.(domain.VehicleState)
		if !ok || state.Status == nil {
			return nil
		}
		t.apply(*state.Status)
	case domain.EventVehicleDeleted:
		if d, ok := e.Data.(domain.Deleted); ok {
			t.forget(d.ID)
		}
	}
	return nil
}

func (t *TripTracker) apply(st domain.VehicleStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()

	point := st.Point()
	trip, ongoing := t.open[st.VehicleID]
	switch {
	case st.Status == domain.StatusActive && !ongoing:
		t.lastID++
		t.open[st.VehicleID] = &domain.Trip{
			ID:        t.lastID,
			VehicleID: st.VehicleID,
			Start:     point,
			StartedAt: st.ReportedAt,
			End:       point,
			Status:    domain.TripOngoing,
		}
	case ongoing:
		trip.DistanceMeters += haversine(trip.End.Lat, trip.End.Lon, point.Lat, point.Lon)
		trip.End = point
		if st.Status == domain.StatusActive {
			return
		}
		endedAt := st.ReportedAt
		if st.Status == domain.StatusOffline {
			endedAt = st.UpdatedAt
		}
		trip.EndedAt = &endedAt
		trip.Status = domain.TripCompleted
		delete(t.open, st.VehicleID)

		done := append(t.closed[st.VehicleID], *trip)
		if len(done) > t.maxClosed {
			done = done[len(done)-t.maxClosed:]
		}
		t.closed[st.VehicleID] = done
	}
}

func (t *TripTracker) forget(vehicleID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.open, vehicleID)
	delete(t.closed, vehicleID)
}

// Trips lists the vehicle's trips, most recent first.
func (t *TripTracker) Trips(vehicleID int64) []domain.Trip {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := append([]domain.Trip(nil), t.closed[vehicleID]...)
	if trip, ok := t.open[vehicleID]; ok {
		out = append(out, *trip)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}
