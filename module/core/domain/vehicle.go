package domain

import "time"

type Status string

const (
	StatusActive  Status = "active"
	StatusIdle    Status = "idle"
	StatusOffline Status = "offline"
)

// Vehicle is the administrative record. ID and Code never change after creation.
type Vehicle struct {
	ID           int64     `json:"id"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	Registration string    `json:"registration"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DisplayName is what alert messages call the vehicle.
func (v Vehicle) DisplayName() string {
	if v.Name != "" {
		return v.Name
	}
	return v.Code
}

// VehicleStatus is the single live snapshot kept per vehicle.
type VehicleStatus struct {
	VehicleID  int64     `json:"vehicle_id"`
	Lat        float64   `json:"latitude"`
	Lon        float64   `json:"longitude"`
	Speed      float64   `json:"speed"`
	Heading    float64   `json:"heading"`
	Altitude   *float64  `json:"altitude,omitempty"`
	Ignition   *bool     `json:"ignition,omitempty"`
	Fuel       *float64  `json:"fuel,omitempty"`
	Battery    *float64  `json:"battery,omitempty"`
	Status     Status    `json:"status"`
	ReportedAt time.Time `json:"reported_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Version    uint64    `json:"version"`
}

func (s VehicleStatus) Point() Point {
	return Point{Lat: s.Lat, Lon: s.Lon}
}

func (s VehicleStatus) IgnitionOn() bool {
	return s.Ignition != nil && *s.Ignition
}

// VehicleState pairs a vehicle with its status, if it has reported yet.
type VehicleState struct {
	Vehicle
	Status *VehicleStatus `json:"status,omitempty"`
}
