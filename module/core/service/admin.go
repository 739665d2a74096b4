package service

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nandanugg/fleet-tracker/internal/logging"
	"github.com/nandanugg/fleet-tracker/module/core/domain"
	"github.com/nandanugg/fleet-tracker/module/core/internal/repository/database"
)

// AdminService applies administrative commands. Each command commits to the
// store and publishes its event under one lock, so events leave in commit
// order. Lock order is vehicle locks in ascending id, then the geofence lock.
type AdminService struct {
	store     database.StateStore
	proc      *Processor
	publisher EventPublisher
	log       logging.Logger
	now       func() time.Time

	// geofences serializes every command that changes a geofence or its
	// vehicle list.
	geofences sync.Mutex
}

func NewAdminService(store database.StateStore, proc *Processor, pub EventPublisher, log logging.Logger) *AdminService {
	if log == nil {
		log = logging.Noop()
	}
	return &AdminService{
		store:     store,
		proc:      proc,
		publisher: pub,
		log:       log,
		now:       time.Now,
	}
}

// CreateVehicle publishes vehicleCreated before any report or command can
// see the new vehicle.
func (s *AdminService) CreateVehicle(ctx context.Context, v domain.Vehicle) (domain.Vehicle, error) {
	if v.Code == "" {
		return domain.Vehicle{}, fmt.Errorf("%w: vehicle code is required", domain.ErrValidation)
	}
	unlock := s.proc.lockCreate()
	defer unlock()

	created, err := s.store.CreateVehicle(ctx, v)
	if err != nil {
		return domain.Vehicle{}, err
	}
	s.publish(domain.EventVehicleCreated, domain.VehicleState{Vehicle: created})
	s.log.Info(ctx, "vehicle created", logging.Int64("vehicle_id", created.ID), logging.String("code", created.Code))
	return created, nil
}

func (s *AdminService) UpdateVehicle(ctx context.Context, v domain.Vehicle) (domain.Vehicle, error) {
	unlock := s.proc.lockVehicle(v.ID)
	defer unlock()

	if _, err := s.proc.getVehicle(ctx, v.ID); err != nil {
		return domain.Vehicle{}, err
	}
	updated, err := s.store.UpdateVehicle(ctx, v)
	if err != nil {
		return domain.Vehicle{}, err
	}
	state := domain.VehicleState{Vehicle: updated}
	if st, err := s.store.GetStatus(ctx, v.ID); err == nil {
		state.Status = &st
	}
	s.publish(domain.EventVehicleUpdated, state)
	return updated, nil
}

// DeleteVehicle also drops the vehicle from every geofence, so it holds the
// geofence lock too.
func (s *AdminService) DeleteVehicle(ctx context.Context, id int64) error {
	unlock := s.proc.lockVehicle(id)
	defer unlock()

	if _, err := s.proc.getVehicle(ctx, id); err != nil {
		return err
	}
	s.geofences.Lock()
	defer s.geofences.Unlock()

	if err := s.store.DeleteVehicle(ctx, id); err != nil {
		return err
	}
	s.publish(domain.EventVehicleDeleted, domain.Deleted{ID: id})
	s.log.Info(ctx, "vehicle deleted", logging.Int64("vehicle_id", id))
	return nil
}

// CreateGeofence stores g and associates it with g.VehicleIDs. Every listed
// vehicle must exist.
func (s *AdminService) CreateGeofence(ctx context.Context, g domain.Geofence) (domain.Geofence, error) {
	if err := ValidateGeofence(g); err != nil {
		return domain.Geofence{}, err
	}
	vehicleIDs := uniqueSorted(g.VehicleIDs)
	for _, vid := range vehicleIDs {
		unlock := s.proc.lockVehicle(vid)
		defer unlock()
	}
	for _, vid := range vehicleIDs {
		if _, err := s.proc.getVehicle(ctx, vid); err != nil {
			return domain.Geofence{}, err
		}
	}
	s.geofences.Lock()
	defer s.geofences.Unlock()

	created, err := s.store.CreateGeofence(ctx, g)
	if err != nil {
		return domain.Geofence{}, err
	}
	for _, vid := range vehicleIDs {
		if err := s.store.AssignGeofence(ctx, created.ID, vid); err != nil {
			return domain.Geofence{}, err
		}
	}
	created, err = s.store.GetGeofence(ctx, created.ID)
	if err != nil {
		return domain.Geofence{}, err
	}
	s.publish(domain.EventGeofenceCreated, created)
	s.log.Info(ctx, "geofence created", logging.Int64("geofence_id", created.ID), logging.String("name", created.Name))
	return created, nil
}

// UpdateGeofence replaces the shape and alert settings. Associations are
// managed with AssignGeofence and UnassignGeofence.
func (s *AdminService) UpdateGeofence(ctx context.Context, g domain.Geofence) (domain.Geofence, error) {
	if err := ValidateGeofence(g); err != nil {
		return domain.Geofence{}, err
	}
	s.geofences.Lock()
	defer s.geofences.Unlock()

	updated, err := s.store.UpdateGeofence(ctx, g)
	if err != nil {
		return domain.Geofence{}, err
	}
	s.publish(domain.EventGeofenceUpdated, updated)
	return updated, nil
}

func (s *AdminService) DeleteGeofence(ctx context.Context, id int64) error {
	s.geofences.Lock()
	defer s.geofences.Unlock()

	if err := s.store.DeleteGeofence(ctx, id); err != nil {
		return err
	}
	s.publish(domain.EventGeofenceDeleted, domain.Deleted{ID: id})
	s.log.Info(ctx, "geofence deleted", logging.Int64("geofence_id", id))
	return nil
}

func (s *AdminService) AssignGeofence(ctx context.Context, geofenceID, vehicleID int64) (domain.Geofence, error) {
	return s.changeMembership(ctx, geofenceID, vehicleID, s.store.AssignGeofence)
}

func (s *AdminService) UnassignGeofence(ctx context.Context, geofenceID, vehicleID int64) (domain.Geofence, error) {
	return s.changeMembership(ctx, geofenceID, vehicleID, s.store.UnassignGeofence)
}

func (s *AdminService) changeMembership(ctx context.Context, geofenceID, vehicleID int64, apply func(context.Context, int64, int64) error) (domain.Geofence, error) {
	unlock := s.proc.lockVehicle(vehicleID)
	defer unlock()

	if _, err := s.proc.getVehicle(ctx, vehicleID); err != nil {
		return domain.Geofence{}, err
	}
	s.geofences.Lock()
	defer s.geofences.Unlock()

	if err := apply(ctx, geofenceID, vehicleID); err != nil {
		return domain.Geofence{}, err
	}
	g, err := s.store.GetGeofence(ctx, geofenceID)
	if err != nil {
		return domain.Geofence{}, err
	}
	s.publish(domain.EventGeofenceUpdated, g)
	return g, nil
}

// MarkAlertRead holds the alert's vehicle lock, so alertRead never overtakes
// the alertCreated of the report that raised it.
func (s *AdminService) MarkAlertRead(ctx context.Context, id int64) (domain.Alert, error) {
	a, err := s.store.GetAlert(ctx, id)
	if err != nil {
		return domain.Alert{}, err
	}
	unlock := s.proc.lockVehicle(a.VehicleID)
	defer unlock()

	a, err = s.store.MarkAlertRead(ctx, id)
	if err != nil {
		return domain.Alert{}, err
	}
	s.publish(domain.EventAlertRead, a)
	return a, nil
}

func (s *AdminService) publish(t domain.EventType, data any) {
	s.publisher.Publish(domain.NewEvent(t, s.now(), data))
}

func uniqueSorted(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
