package domain

import "time"

type Shape string

const (
	ShapeCircle    Shape = "circle"
	ShapePolygon   Shape = "polygon"
	ShapeRectangle Shape = "rectangle"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Geofence is a named boundary. Only the fields matching Shape are meaningful:
// Center and Radius (meters) for circles, Vertices for polygons (ring is
// implicitly closed), Corners for rectangles.
type Geofence struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Shape        Shape     `json:"shape"`
	Center       Point     `json:"center"`
	Radius       float64   `json:"radius,omitempty"`
	Vertices     []Point   `json:"vertices,omitempty"`
	Corners      [2]Point  `json:"corners"`
	AlertOnEnter bool      `json:"alert_on_enter"`
	AlertOnExit  bool      `json:"alert_on_exit"`
	AlertOnSpeed bool      `json:"alert_on_speed"`
	SpeedLimit   *float64  `json:"speed_limit,omitempty"`
	Priority     Priority  `json:"priority"`
	VehicleIDs   []int64   `json:"vehicle_ids"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AlertPriority falls back to medium when the geofence has none configured.
func (g Geofence) AlertPriority() Priority {
	if g.Priority == "" {
		return PriorityMedium
	}
	return g.Priority
}

// Membership is the association of a vehicle with a geofence plus the last
// evaluated containment state. Evaluated stays false until the first report
// after the association was made; an unevaluated pair counts as outside.
type Membership struct {
	GeofenceID       int64     `json:"geofence_id"`
	VehicleID        int64     `json:"vehicle_id"`
	Inside           bool      `json:"inside"`
	Evaluated        bool      `json:"evaluated"`
	EvaluatedAt      time.Time `json:"evaluated_at"`
	LastSpeedAlertAt time.Time `json:"last_speed_alert_at"`
}
