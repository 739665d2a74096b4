package postgres

import (
	"context"
	"database/sql"

	"github.com/nandanugg/fleet-tracker/module/core/domain"
	"github.com/nandanugg/fleet-tracker/module/core/internal/repository/database"
)

var _ database.AlertRepository = (*AlertRepo)(nil)

// AlertRepo archives alerts keyed by the id the live store assigned.
type AlertRepo struct {
	db *sql.DB
}

func NewAlertRepo(db *sql.DB) *AlertRepo {
	return &AlertRepo{db: db}
}

func (r *AlertRepo) Insert(ctx context.Context, a *domain.Alert) error {
	var geofenceID sql.NullInt64
	if a.GeofenceID != nil {
		geofenceID = sql.NullInt64{Int64: *a.GeofenceID, Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO alerts (id, type, vehicle_id, geofence_id, message, latitude, longitude, priority, created_at, is_read) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) ON CONFLICT (id) DO NOTHING`,
		a.ID, string(a.Type), a.VehicleID, geofenceID, a.Message, a.Lat, a.Lon, string(a.Priority), a.CreatedAt, a.IsRead,
	)
	return err
}

func (r *AlertRepo) MarkRead(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE alerts SET is_read = TRUE WHERE id = $1`, id)
	return err
}
