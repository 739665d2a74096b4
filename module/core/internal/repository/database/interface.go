package database

import (
	"context"
	"time"

	"github.com/nandanugg/fleet-tracker/module/core/domain"
)

// StateStore is the authoritative record of vehicles, live statuses,
// geofences, memberships and alerts. Reads return copies or an error wrapping
// domain.ErrNotFound. Ids are generated by the store, one counter per entity.
type StateStore interface {
	CreateVehicle(ctx context.Context, v domain.Vehicle) (domain.Vehicle, error)
	UpdateVehicle(ctx context.Context, v domain.Vehicle) (domain.Vehicle, error)
	DeleteVehicle(ctx context.Context, id int64) error
	GetVehicle(ctx context.Context, id int64) (domain.Vehicle, error)
	GetVehicleByCode(ctx context.Context, code string) (domain.Vehicle, error)
	ListVehicles(ctx context.Context) ([]domain.VehicleState, error)

	GetStatus(ctx context.Context, vehicleID int64) (domain.VehicleStatus, error)
	// MarkOffline flips the status to offline only if it was last updated at
	// or before staleBefore. It reports whether the status changed.
	MarkOffline(ctx context.Context, vehicleID int64, staleBefore, at time.Time) (domain.VehicleStatus, bool, error)

	CreateGeofence(ctx context.Context, g domain.Geofence) (domain.Geofence, error)
	UpdateGeofence(ctx context.Context, g domain.Geofence) (domain.Geofence, error)
	DeleteGeofence(ctx context.Context, id int64) error
	GetGeofence(ctx context.Context, id int64) (domain.Geofence, error)
	ListGeofences(ctx context.Context) ([]domain.Geofence, error)

	AssignGeofence(ctx context.Context, geofenceID, vehicleID int64) error
	UnassignGeofence(ctx context.Context, geofenceID, vehicleID int64) error
	// GeofencesForVehicle lists associated geofences in assignment order.
	GeofencesForVehicle(ctx context.Context, vehicleID int64) ([]domain.Geofence, error)
	GetMembership(ctx context.Context, vehicleID, geofenceID int64) (domain.Membership, error)

	GetAlert(ctx context.Context, id int64) (domain.Alert, error)
	// ListAlerts returns alerts newest first. limit <= 0 means no limit.
	ListAlerts(ctx context.Context, limit int, unreadOnly bool) ([]domain.Alert, error)
	ListAlertsByVehicle(ctx context.Context, vehicleID int64, limit int) ([]domain.Alert, error)
	MarkAlertRead(ctx context.Context, id int64) (domain.Alert, error)

	// Commit applies every effect of one processed report atomically and
	// returns the alerts with their assigned ids.
	Commit(ctx context.Context, c domain.Commit) ([]domain.Alert, error)
	Snapshot(ctx context.Context) (domain.Snapshot, error)
}

// LocationRepository persists position history outside the live store.
type LocationRepository interface {
	Insert(ctx context.Context, loc *domain.VehicleLocation) error
	GetHistory(ctx context.Context, query *domain.HistoryQuery) ([]domain.VehicleLocation, error)
}

// AlertRepository archives alerts for reporting.
type AlertRepository interface {
	Insert(ctx context.Context, alert *domain.Alert) error
	MarkRead(ctx context.Context, id int64) error
}
