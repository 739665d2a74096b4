package domain

import "time"

// EventType keys the tagged union delivered to live subscribers. Consumers
// must ignore types they do not recognise.
type EventType string

const (
	EventInitialState          EventType = "initialState"
	EventVehicleLocationUpdate EventType = "vehicleLocationUpdate"
	EventVehicleStatusUpdated  EventType = "vehicleStatusUpdated"
	EventAlertCreated          EventType = "alertCreated"
	EventAlertRead             EventType = "alertRead"
	EventGeofenceCreated       EventType = "geofenceCreated"
	EventGeofenceUpdated       EventType = "geofenceUpdated"
	EventGeofenceDeleted       EventType = "geofenceDeleted"
	EventVehicleCreated        EventType = "vehicleCreated"
	EventVehicleUpdated        EventType = "vehicleUpdated"
	EventVehicleDeleted        EventType = "vehicleDeleted"
)

// Event is one outbound message. Seq is assigned by the broadcaster at publish
// time and is zero on events that have not been published yet.
type Event struct {
	Type EventType `json:"type"`
	Seq  uint64    `json:"seq"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

// Deleted is the payload of *Deleted events.
type Deleted struct {
	ID int64 `json:"id"`
}

// Snapshot is the full state a late joiner needs before live updates.
type Snapshot struct {
	Vehicles     []VehicleState `json:"vehicles"`
	Geofences    []Geofence     `json:"geofences"`
	UnreadAlerts []Alert        `json:"unread_alerts"`
	TakenAt      time.Time      `json:"taken_at"`
}

// Commit carries every effect of one processed position report. The store
// applies it all or not at all. Status.Version must be exactly one above the
// stored version (zero stored version when the vehicle has never reported).
type Commit struct {
	Status      VehicleStatus
	Memberships []Membership
	Alerts      []Alert
}

func NewEvent(t EventType, at time.Time, data any) Event {
	return Event{Type: t, At: at, Data: data}
}
