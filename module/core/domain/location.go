package domain

import "time"

type Point struct {
	Lat float64 `json:"latitude" yaml:"latitude"`
	Lon float64 `json:"longitude" yaml:"longitude"`
}

// PositionReport is one device fix as accepted by the ingestion boundary.
type PositionReport struct {
	Point
	Speed     float64   `json:"speed"`
	Heading   float64   `json:"heading"`
	Altitude  *float64  `json:"altitude,omitempty"`
	Ignition  *bool     `json:"ignition,omitempty"`
	Fuel      *float64  `json:"fuel,omitempty"`
	Battery   *float64  `json:"battery,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// VehicleLocation is one row of persisted position history.
type VehicleLocation struct {
	VehicleID int64    `json:"vehicle_id"`
	Location  Location `json:"location"`
	Speed     float64  `json:"speed"`
	Heading   float64  `json:"heading"`
	Status    Status   `json:"status"`
}

type Location struct {
	Lat       float64   `json:"latitude"`
	Lon       float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

type HistoryQuery struct {
	VehicleID int64
	Start     time.Time
	End       time.Time
}
