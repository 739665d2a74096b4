// Package memory is the in-process StateStore: an arena of maps guarded by a
// single RWMutex. Critical sections are short and never perform I/O.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nandanugg/fleet-tracker/module/core/domain"
	"github.com/nandanugg/fleet-tracker/module/core/internal/repository/database"
)

var _ database.StateStore = (*Store)(nil)

// MetricsRecorder receives entity counts after every mutation.
type MetricsRecorder interface {
	SetStoreCounts(vehicles, geofences, alerts int)
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

type memberKey struct {
	vehicleID  int64
	geofenceID int64
}

type Store struct {
	mu      sync.RWMutex
	now     func() time.Time
	metrics MetricsRecorder

	lastVehicleID  int64
	lastGeofenceID int64
	lastAlertID    int64

	vehicles  map[int64]*domain.Vehicle
	codes     map[string]int64
	statuses  map[int64]*domain.VehicleStatus
	geofences map[int64]*domain.Geofence

	// assignment order in both directions
	byVehicle  map[int64][]int64
	byGeofence map[int64][]int64
	members    map[memberKey]*domain.Membership

	alerts          []*domain.Alert
	alertIndex      map[int64]int
	alertsByVehicle map[int64][]int
}

func New(opts ...Option) *Store {
	s := &Store{
		now:             time.Now,
		vehicles:        make(map[int64]*domain.Vehicle),
		codes:           make(map[string]int64),
		statuses:        make(map[int64]*domain.VehicleStatus),
		geofences:       make(map[int64]*domain.Geofence),
		byVehicle:       make(map[int64][]int64),
		byGeofence:      make(map[int64][]int64),
		members:         make(map[memberKey]*domain.Membership),
		alertIndex:      make(map[int64]int),
		alertsByVehicle: make(map[int64][]int),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.updateMetricsLocked()
	return s
}

// ---- vehicles ----

func (s *Store) CreateVehicle(_ context.Context, v domain.Vehicle) (domain.Vehicle, error) {
	if v.Code == "" {
		return domain.Vehicle{}, fmt.Errorf("%w: vehicle code is required", domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.codes[v.Code]; ok {
		return domain.Vehicle{}, fmt.Errorf("%w: vehicle code %q already registered", domain.ErrValidation, v.Code)
	}
	s.lastVehicleID++
	now := s.now()
	v.ID = s.lastVehicleID
	v.CreatedAt = now
	v.UpdatedAt = now

	stored := v
	s.vehicles[v.ID] = &stored
	s.codes[v.Code] = v.ID
	s.updateMetricsLocked()
	return v, nil
}

// UpdateVehicle replaces the descriptive attributes. Identity cannot change.
func (s *Store) UpdateVehicle(_ context.Context, v domain.Vehicle) (domain.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.vehicles[v.ID]
	if !ok {
		return domain.Vehicle{}, fmt.Errorf("%w: vehicle %d", domain.ErrNotFound, v.ID)
	}
	if v.Code != "" && v.Code != cur.Code {
		return domain.Vehicle{}, fmt.Errorf("%w: vehicle code is immutable", domain.ErrValidation)
	}
	cur.Name = v.Name
	cur.Type = v.Type
	cur.Registration = v.Registration
	cur.UpdatedAt = s.now()
	return *cur, nil
}

// DeleteVehicle removes the vehicle with its status and memberships. Alerts
// raised for it are kept.
func (s *Store) DeleteVehicle(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.vehicles[id]
	if !ok {
		return fmt.Errorf("%w: vehicle %d", domain.ErrNotFound, id)
	}
	for _, gid := range s.byVehicle[id] {
		s.byGeofence[gid] = removeID(s.byGeofence[gid], id)
		delete(s.members, memberKey{vehicleID: id, geofenceID: gid})
	}
	delete(s.byVehicle, id)
	delete(s.statuses, id)
	delete(s.codes, v.Code)
	delete(s.vehicles, id)
	s.updateMetricsLocked()
	return nil
}

func (s *Store) GetVehicle(_ context.Context, id int64) (domain.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.vehicles[id]
	if !ok {
		return domain.Vehicle{}, fmt.Errorf("%w: vehicle %d", domain.ErrNotFound, id)
	}
	return *v, nil
}

func (s *Store) GetVehicleByCode(_ context.Context, code string) (domain.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.codes[code]
	if !ok {
		return domain.Vehicle{}, fmt.Errorf("%w: vehicle code %q", domain.ErrNotFound, code)
	}
	return *s.vehicles[id], nil
}

func (s *Store) ListVehicles(_ context.Context) ([]domain.VehicleState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vehicleStatesLocked(), nil
}

func (s *Store) vehicleStatesLocked() []domain.VehicleState {
	out := make([]domain.VehicleState, 0, len(s.vehicles))
	for _, id := range sortedKeys(s.vehicles) {
		vs := domain.VehicleState{Vehicle: *s.vehicles[id]}
		if st, ok := s.statuses[id]; ok {
			c := cloneStatus(*st)
			vs.Status = &c
		}
		out = append(out, vs)
	}
	return out
}

// ---- statuses ----

func (s *Store) GetStatus(_ context.Context, vehicleID int64) (domain.VehicleStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.statuses[vehicleID]
	if !ok {
		return domain.VehicleStatus{}, fmt.Errorf("%w: status for vehicle %d", domain.ErrNotFound, vehicleID)
	}
	return cloneStatus(*st), nil
}

func (s *Store) MarkOffline(_ context.Context, vehicleID int64, staleBefore, at time.Time) (domain.VehicleStatus, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.statuses[vehicleID]
	if !ok {
		return domain.VehicleStatus{}, false, fmt.Errorf("%w: status for vehicle %d", domain.ErrNotFound, vehicleID)
	}
	if st.Status == domain.StatusOffline || st.UpdatedAt.After(staleBefore) {
		return cloneStatus(*st), false, nil
	}
	st.Status = domain.StatusOffline
	st.UpdatedAt = at
	st.Version++
	return cloneStatus(*st), true, nil
}

// ---- geofences ----

func (s *Store) CreateGeofence(_ context.Context, g domain.Geofence) (domain.Geofence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastGeofenceID++
	now := s.now()
	g.ID = s.lastGeofenceID
	g.CreatedAt = now
	g.UpdatedAt = now
	g.VehicleIDs = nil

	stored := cloneGeofence(g)
	s.geofences[g.ID] = &stored
	s.updateMetricsLocked()
	return s.geofenceViewLocked(g.ID), nil
}

func (s *Store) UpdateGeofence(_ context.Context, g domain.Geofence) (domain.Geofence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.geofences[g.ID]
	if !ok {
		return domain.Geofence{}, fmt.Errorf("%w: geofence %d", domain.ErrNotFound, g.ID)
	}
	g.CreatedAt = cur.CreatedAt
	g.UpdatedAt = s.now()
	g.VehicleIDs = nil
	stored := cloneGeofence(g)
	s.geofences[g.ID] = &stored
	return s.geofenceViewLocked(g.ID), nil
}

// DeleteGeofence drops the geofence and every membership referencing it, so
// later reports for former members no longer evaluate it.
func (s *Store) DeleteGeofence(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.geofences[id]; !ok {
		return fmt.Errorf("%w: geofence %d", domain.ErrNotFound, id)
	}
	for _, vid := range s.byGeofence[id] {
		s.byVehicle[vid] = removeID(s.byVehicle[vid], id)
		delete(s.members, memberKey{vehicleID: vid, geofenceID: id})
	}
	delete(s.byGeofence, id)
	delete(s.geofences, id)
	s.updateMetricsLocked()
	return nil
}

func (s *Store) GetGeofence(_ context.Context, id int64) (domain.Geofence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.geofences[id]; !ok {
		return domain.Geofence{}, fmt.Errorf("%w: geofence %d", domain.ErrNotFound, id)
	}
	return s.geofenceViewLocked(id), nil
}

func (s *Store) ListGeofences(_ context.Context) ([]domain.Geofence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.geofencesLocked(), nil
}

func (s *Store) geofencesLocked() []domain.Geofence {
	out := make([]domain.Geofence, 0, len(s.geofences))
	for _, id := range sortedKeys(s.geofences) {
		out = append(out, s.geofenceViewLocked(id))
	}
	return out
}

func (s *Store) geofenceViewLocked(id int64) domain.Geofence {
	g := cloneGeofence(*s.geofences[id])
	g.VehicleIDs = append([]int64{}, s.byGeofence[id]...)
	return g
}

// ---- memberships ----

// AssignGeofence associates a vehicle with a geofence. Assigning an existing
// pair is a no-op.
func (s *Store) AssignGeofence(_ context.Context, geofenceID, vehicleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.geofences[geofenceID]; !ok {
		return fmt.Errorf("%w: geofence %d", domain.ErrNotFound, geofenceID)
	}
	if _, ok := s.vehicles[vehicleID]; !ok {
		return fmt.Errorf("%w: vehicle %d", domain.ErrNotFound, vehicleID)
	}
	key := memberKey{vehicleID: vehicleID, geofenceID: geofenceID}
	if _, ok := s.members[key]; ok {
		return nil
	}
	s.members[key] = &domain.Membership{GeofenceID: geofenceID, VehicleID: vehicleID}
	s.byVehicle[vehicleID] = append(s.byVehicle[vehicleID], geofenceID)
	s.byGeofence[geofenceID] = append(s.byGeofence[geofenceID], vehicleID)
	return nil
}

func (s *Store) UnassignGeofence(_ context.Context, geofenceID, vehicleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memberKey{vehicleID: vehicleID, geofenceID: geofenceID}
	if _, ok := s.members[key]; !ok {
		return fmt.Errorf("%w: vehicle %d is not a member of geofence %d", domain.ErrNotFound, vehicleID, geofenceID)
	}
	delete(s.members, key)
	s.byVehicle[vehicleID] = removeID(s.byVehicle[vehicleID], geofenceID)
	s.byGeofence[geofenceID] = removeID(s.byGeofence[geofenceID], vehicleID)
	return nil
}

func (s *Store) GeofencesForVehicle(_ context.Context, vehicleID int64) ([]domain.Geofence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.vehicles[vehicleID]; !ok {
		return nil, fmt.Errorf("%w: vehicle %d", domain.ErrNotFound, vehicleID)
	}
	ids := s.byVehicle[vehicleID]
	out := make([]domain.Geofence, 0, len(ids))
	for _, gid := range ids {
		out = append(out, s.geofenceViewLocked(gid))
	}
	return out, nil
}

func (s *Store) GetMembership(_ context.Context, vehicleID, geofenceID int64) (domain.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.members[memberKey{vehicleID: vehicleID, geofenceID: geofenceID}]
	if !ok {
		return domain.Membership{}, fmt.Errorf("%w: membership vehicle %d geofence %d", domain.ErrNotFound, vehicleID, geofenceID)
	}
	return *m, nil
}

// ---- alerts ----

func (s *Store) GetAlert(_ context.Context, id int64) (domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.alertIndex[id]
	if !ok {
		return domain.Alert{}, fmt.Errorf("%w: alert %d", domain.ErrNotFound, id)
	}
	return cloneAlert(*s.alerts[idx]), nil
}

func (s *Store) ListAlerts(_ context.Context, limit int, unreadOnly bool) ([]domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.alertsLocked(limit, unreadOnly), nil
}

func (s *Store) alertsLocked(limit int, unreadOnly bool) []domain.Alert {
	out := make([]domain.Alert, 0)
	for i := len(s.alerts) - 1; i >= 0; i-- {
		a := s.alerts[i]
		if unreadOnly && a.IsRead {
			continue
		}
		out = append(out, cloneAlert(*a))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (s *Store) ListAlertsByVehicle(_ context.Context, vehicleID int64, limit int) ([]domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idxs := s.alertsByVehicle[vehicleID]
	out := make([]domain.Alert, 0, len(idxs))
	for i := len(idxs) - 1; i >= 0; i-- {
		out = append(out, cloneAlert(*s.alerts[idxs[i]]))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// MarkAlertRead sets the only mutable alert field.
func (s *Store) MarkAlertRead(_ context.Context, id int64) (domain.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.alertIndex[id]
	if !ok {
		return domain.Alert{}, fmt.Errorf("%w: alert %d", domain.ErrNotFound, id)
	}
	s.alerts[idx].IsRead = true
	return cloneAlert(*s.alerts[idx]), nil
}

// ---- transactions ----

func (s *Store) Commit(_ context.Context, c domain.Commit) ([]domain.Alert, error) {
	vid := c.Status.VehicleID

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vehicles[vid]; !ok {
		return nil, fmt.Errorf("%w: vehicle %d", domain.ErrNotFound, vid)
	}
	var current uint64
	if st, ok := s.statuses[vid]; ok {
		current = st.Version
	}
	if c.Status.Version != current+1 {
		return nil, fmt.Errorf("%w: vehicle %d status version %d, commit carries %d",
			domain.ErrConcurrency, vid, current, c.Status.Version)
	}
	for _, a := range c.Alerts {
		if a.VehicleID != vid {
			return nil, fmt.Errorf("%w: alert for vehicle %d in commit for vehicle %d", domain.ErrConcurrency, a.VehicleID, vid)
		}
	}

	// Validation is complete; nothing below can fail.
	st := cloneStatus(c.Status)
	s.statuses[vid] = &st

	for _, m := range c.Memberships {
		cur, ok := s.members[memberKey{vehicleID: vid, geofenceID: m.GeofenceID}]
		if !ok {
			// association removed while the report was being evaluated
			continue
		}
		cur.Inside = m.Inside
		cur.Evaluated = m.Evaluated
		cur.EvaluatedAt = m.EvaluatedAt
		cur.LastSpeedAlertAt = m.LastSpeedAlertAt
	}

	created := make([]domain.Alert, 0, len(c.Alerts))
	for _, a := range c.Alerts {
		s.lastAlertID++
		a.ID = s.lastAlertID
		a.IsRead = false
		stored := cloneAlert(a)
		s.alerts = append(s.alerts, &stored)
		idx := len(s.alerts) - 1
		s.alertIndex[a.ID] = idx
		s.alertsByVehicle[vid] = append(s.alertsByVehicle[vid], idx)
		created = append(created, cloneAlert(a))
	}

	if len(created) > 0 {
		s.updateMetricsLocked()
	}
	return created, nil
}

func (s *Store) Snapshot(_ context.Context) (domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return domain.Snapshot{
		Vehicles:     s.vehicleStatesLocked(),
		Geofences:    s.geofencesLocked(),
		UnreadAlerts: s.alertsLocked(0, true),
		TakenAt:      s.now(),
	}, nil
}

func (s *Store) updateMetricsLocked() {
	if s.metrics == nil {
		return
	}
	s.metrics.SetStoreCounts(len(s.vehicles), len(s.geofences), len(s.alerts))
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func removeID(ids []int64, id int64) []int64 {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
