package domain

import "time"

type AlertType string

const (
	AlertSpeed    AlertType = "speed"
	AlertGeofence AlertType = "geofence"
	AlertIgnition AlertType = "ignition"
	AlertBattery  AlertType = "battery"
)

// Alert is immutable once created except for IsRead.
type Alert struct {
	ID         int64     `json:"id"`
	Type       AlertType `json:"type"`
	VehicleID  int64     `json:"vehicle_id"`
	GeofenceID *int64    `json:"geofence_id,omitempty"`
	Message    string    `json:"message"`
	Lat        float64   `json:"latitude"`
	Lon        float64   `json:"longitude"`
	Priority   Priority  `json:"priority"`
	CreatedAt  time.Time `json:"created_at"`
	IsRead     bool      `json:"is_read"`
}

type TripStatus string

const (
	TripOngoing   TripStatus = "ongoing"
	TripCompleted TripStatus = "completed"
)

// Trip bounds one contiguous movement interval of a vehicle.
type Trip struct {
	ID             int64      `json:"id"`
	VehicleID      int64      `json:"vehicle_id"`
	Start          Point      `json:"start"`
	StartedAt      time.Time  `json:"started_at"`
	End            Point      `json:"end"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	DistanceMeters float64    `json:"distance_meters"`
	Status         TripStatus `json:"status"`
}
