package service

import (
	"context"
	"errors"

	"github.com/nandanugg/fleet-tracker/module/core/domain"
	"github.com/nandanugg/fleet-tracker/module/core/internal/repository/database"
)

const DefaultAlertLimit = 100

type QueryService struct {
	store database.StateStore
}

func NewQueryService(store database.StateStore) *QueryService {
	return &QueryService{store: store}
}

func (s *QueryService) ListVehicles(ctx context.Context) ([]domain.VehicleState, error) {
	return s.store.ListVehicles(ctx)
}

func (s *QueryService) GetVehicle(ctx context.Context, id int64) (domain.VehicleState, error) {
	v, err := s.store.GetVehicle(ctx, id)
	if err != nil {
		return domain.VehicleState{}, err
	}
	state := domain.VehicleState{Vehicle: v}
	st, err := s.store.GetStatus(ctx, id)
	switch {
	case err == nil:
		state.Status = &st
	case !errors.Is(err, domain.ErrNotFound):
		return domain.VehicleState{}, err
	}
	return state, nil
}

// GetLiveStatus returns the live status; ErrNotFound until the first report.
func (s *QueryService) GetLiveStatus(ctx context.Context, vehicleID int64) (domain.VehicleStatus, error) {
	if _, err := s.store.GetVehicle(ctx, vehicleID); err != nil {
		return domain.VehicleStatus{}, err
	}
	return s.store.GetStatus(ctx, vehicleID)
}

func (s *QueryService) ListGeofences(ctx context.Context) ([]domain.Geofence, error) {
	return s.store.ListGeofences(ctx)
}

func (s *QueryService) GetGeofence(ctx context.Context, id int64) (domain.Geofence, error) {
	return s.store.GetGeofence(ctx, id)
}

func (s *QueryService) ListAlerts(ctx context.Context, limit int, unreadOnly bool) ([]domain.Alert, error) {
	return s.store.ListAlerts(ctx, normalizeLimit(limit), unreadOnly)
}

func (s *QueryService) ListVehicleAlerts(ctx context.Context, vehicleID int64, limit int) ([]domain.Alert, error) {
	if _, err := s.store.GetVehicle(ctx, vehicleID); err != nil {
		return nil, err
	}
	return s.store.ListAlertsByVehicle(ctx, vehicleID, normalizeLimit(limit))
}

func (s *QueryService) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	return s.store.Snapshot(ctx)
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultAlertLimit
	}
	return limit
}
