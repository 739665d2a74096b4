package service

import (
	"context"
	"fmt"
	"time"

	"github.com/nandanugg/fleet-tracker/module/core/domain"
	"github.com/nandanugg/fleet-tracker/module/core/internal/repository/database"
)

// MaxHistoryWindow bounds a single history query.
const MaxHistoryWindow = 31 * 24 * time.Hour

// LocationService records position history and serves history queries.
type LocationService struct {
	repo database.LocationRepository
}

func NewLocationService(repo database.LocationRepository) *LocationService {
	return &LocationService{repo: repo}
}

func (s *LocationService) SaveLocation(ctx context.Context, vl *domain.VehicleLocation) error {
	return s.repo.Insert(ctx, vl)
}

func (s *LocationService) GetHistory(ctx context.Context, query *domain.HistoryQuery) ([]domain.VehicleLocation, error) {
	if query.End.Before(query.Start) {
		return nil, fmt.Errorf("%w: end is before start", domain.ErrValidation)
	}
	if query.End.Sub(query.Start) > MaxHistoryWindow {
		return nil, fmt.Errorf("%w: history window exceeds %s", domain.ErrValidation, MaxHistoryWindow)
	}
	return s.repo.GetHistory(ctx, query)
}

// Handle stores every committed location update.
func (s *LocationService) Handle(ctx context.Context, e domain.Event) error {
	if e.Type != domain.EventVehicleLocationUpdate {
		return nil
	}
	state, ok := e.Data.(domain.VehicleState)
	if !ok || state.Status == nil {
		return nil
	}
	st := state.Status
	return s.SaveLocation(ctx, &domain.VehicleLocation{
		VehicleID: st.VehicleID,
		Location: domain.Location{
			Lat:       st.Lat,
			Lon:       st.Lon,
			Timestamp: st.ReportedAt,
		},
		Speed:   st.Speed,
		Heading: st.Heading,
		Status:  st.Status,
	})
}
