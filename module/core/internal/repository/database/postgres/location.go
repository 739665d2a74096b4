package postgres

import (
	"context"
	"database/sql"

	"github.com/nandanugg/fleet-tracker/module/core/domain"
	"github.com/nandanugg/fleet-tracker/module/core/internal/repository/database"
)

var _ database.LocationRepository = (*LocationRepo)(nil)

type LocationRepo struct {
	db *sql.DB
}

func NewLocationRepo(db *sql.DB) *LocationRepo {
	return &LocationRepo{db: db}
}

func (r *LocationRepo) Insert(ctx context.Context, loc *domain.VehicleLocation) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO vehicle_locations (vehicle_id, latitude, longitude, speed, heading, status, timestamp) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		loc.VehicleID, loc.Location.Lat, loc.Location.Lon, loc.Speed, loc.Heading, string(loc.Status), loc.Location.Timestamp,
	)
	return err
}

func (r *LocationRepo) GetHistory(ctx context.Context, query *domain.HistoryQuery) ([]domain.VehicleLocation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT vehicle_id, latitude, longitude, speed, heading, status, timestamp FROM vehicle_locations WHERE vehicle_id = $1 AND timestamp >= $2 AND timestamp <= $3 ORDER BY timestamp ASC`,
		query.VehicleID, query.Start, query.End,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	results := []domain.VehicleLocation{}
	for rows.Next() {
		var (
			vl     domain.VehicleLocation
			status string
		)
		if err := rows.Scan(&vl.VehicleID, &vl.Location.Lat, &vl.Location.Lon, &vl.Speed, &vl.Heading, &status, &vl.Location.Timestamp); err != nil {
			return nil, err
		}
		vl.Status = domain.Status(status)
		results = append(results, vl)
	}
	return results, rows.Err()
}
