package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/nandanugg/fleet-tracker/module/core/domain"
)

type mockGeofenceQuery struct {
	listGeofencesFn func(ctx context.Context) ([]domain.Geofence, error)
	getGeofenceFn   func(ctx context.Context, id int64) (domain.Geofence, error)
}

func (m *mockGeofenceQuery) ListGeofences(ctx context.Context) ([]domain.Geofence, error) {
	return m.listGeofencesFn(ctx)
}

func (m *mockGeofenceQuery) GetGeofence(ctx context.Context, id int64) (domain.Geofence, error) {
	return m.getGeofenceFn(ctx, id)
}

type mockGeofenceAdmin struct {
	createGeofenceFn   func(ctx context.Context, g domain.Geofence) (domain.Geofence, error)
	updateGeofenceFn   func(ctx context.Context, g domain.Geofence) (domain.Geofence, error)
	deleteGeofenceFn   func(ctx context.Context, id int64) error
	assignGeofenceFn   func(ctx context.Context, geofenceID, vehicleID int64) (domain.Geofence, error)
	unassignGeofenceFn func(ctx context.Context, geofenceID, vehicleID int64) (domain.Geofence, error)
}

func (m *mockGeofenceAdmin) CreateGeofence(ctx context.Context, g domain.Geofence) (domain.Geofence, error) {
	return m.createGeofenceFn(ctx, g)
}

func (m *mockGeofenceAdmin) UpdateGeofence(ctx context.Context, g domain.Geofence) (domain.Geofence, error) {
	return m.updateGeofenceFn(ctx, g)
}

func (m *mockGeofenceAdmin) DeleteGeofence(ctx context.Context, id int64) error {
	return m.deleteGeofenceFn(ctx, id)
}

func (m *mockGeofenceAdmin) AssignGeofence(ctx context.Context, geofenceID, vehicleID int64) (domain.Geofence, error) {
	return m.assignGeofenceFn(ctx, geofenceID, vehicleID)
}

func (m *mockGeofenceAdmin) UnassignGeofence(ctx context.Context, geofenceID, vehicleID int64) (domain.Geofence, error) {
	return m.unassignGeofenceFn(ctx, geofenceID, vehicleID)
}

func setupGeofenceRouter(query *mockGeofenceQuery, admin *mockGeofenceAdmin) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if query == nil {
		query = &mockGeofenceQuery{}
	}
	if admin == nil {
		admin = &mockGeofenceAdmin{}
	}
	NewGeofenceHandler(query, admin).Register(r.Group(""))
	return r
}

const zoneABody = `{
	"name": "Zone A",
	"shape": "circle",
	"center": {"latitude": -6.2088, "longitude": 106.8456},
	"radius": 500,
	"alert_on_enter": true,
	"alert_on_speed": true,
	"speed_limit": 50,
	"priority": "high",
	"vehicle_ids": [1, 2]
}`

func TestCreateGeofence_Success(t *testing.T) {
	admin := &mockGeofenceAdmin{
		createGeofenceFn: func(_ context.Context, g domain.Geofence) (domain.Geofence, error) {
			if g.Shape != domain.ShapeCircle || g.Radius != 500 {
				t.Fatalf("unexpected shape: %+v", g)
			}
			if g.SpeedLimit == nil || *g.SpeedLimit != 50 {
				t.Fatalf("expected speed limit 50")
			}
			if len(g.VehicleIDs) != 2 {
				t.Fatalf("expected 2 vehicles, got %v", g.VehicleIDs)
			}
			g.ID = 10
			return g, nil
		},
	}

	w := doRequest(setupGeofenceRouter(nil, admin), "POST", "/geofences", zoneABody)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp domain.Geofence
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.ID != 10 || resp.Name != "Zone A" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestCreateGeofence_BindingErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"shape":"circle","radius":10}`},
		{"unknown shape", `{"name":"x","shape":"hexagon"}`},
		{"bad priority", `{"name":"x","shape":"circle","radius":10,"priority":"urgent"}`},
		{"negative speed limit", `{"name":"x","shape":"circle","radius":10,"speed_limit":-5}`},
		{"bad vehicle id", `{"name":"x","shape":"circle","radius":10,"vehicle_ids":[0]}`},
		{"malformed", `{"name":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(setupGeofenceRouter(nil, nil), "POST", "/geofences", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
		})
	}
}

func TestCreateGeofence_ShapeRejectedByService(t *testing.T) {
	admin := &mockGeofenceAdmin{
		createGeofenceFn: func(_ context.Context, _ domain.Geofence) (domain.Geofence, error) {
			return domain.Geofence{}, fmt.Errorf("%w: polygon needs at least 3 vertices", domain.ErrValidation)
		},
	}

	w := doRequest(setupGeofenceRouter(nil, admin), "POST", "/geofences", `{"name":"p","shape":"polygon","vertices":[{"latitude":0,"longitude":0}]}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGetGeofence(t *testing.T) {
	query := &mockGeofenceQuery{
		getGeofenceFn: func(_ context.Context, id int64) (domain.Geofence, error) {
			if id != 10 {
				return domain.Geofence{}, domain.ErrNotFound
			}
			return domain.Geofence{ID: 10, Name: "Zone A"}, nil
		},
	}
	r := setupGeofenceRouter(query, nil)

	if w := doRequest(r, "GET", "/geofences/10", ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w := doRequest(r, "GET", "/geofences/11", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestListGeofences_Error(t *testing.T) {
	query := &mockGeofenceQuery{
		listGeofencesFn: func(_ context.Context) ([]domain.Geofence, error) {
			return nil, errors.New("boom")
		},
	}

	w := doRequest(setupGeofenceRouter(query, nil), "GET", "/geofences", "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestUpdateGeofence_UsesPathID(t *testing.T) {
	admin := &mockGeofenceAdmin{
		updateGeofenceFn: func(_ context.Context, g domain.Geofence) (domain.Geofence, error) {
			if g.ID != 10 {
				t.Fatalf("expected id 10, got %d", g.ID)
			}
			return g, nil
		},
	}

	w := doRequest(setupGeofenceRouter(nil, admin), "PUT", "/geofences/10", zoneABody)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestDeleteGeofence_NotFound(t *testing.T) {
	admin := &mockGeofenceAdmin{
		deleteGeofenceFn: func(_ context.Context, _ int64) error {
			return domain.ErrNotFound
		},
	}

	w := doRequest(setupGeofenceRouter(nil, admin), "DELETE", "/geofences/10", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestAssignAndUnassignVehicle(t *testing.T) {
	var assigned, unassigned [2]int64
	admin := &mockGeofenceAdmin{
		assignGeofenceFn: func(_ context.Context, geofenceID, vehicleID int64) (domain.Geofence, error) {
			assigned = [2]int64{geofenceID, vehicleID}
			return domain.Geofence{ID: geofenceID, VehicleIDs: []int64{vehicleID}}, nil
		},
		unassignGeofenceFn: func(_ context.Context, geofenceID, vehicleID int64) (domain.Geofence, error) {
			unassigned = [2]int64{geofenceID, vehicleID}
			return domain.Geofence{ID: geofenceID}, nil
		},
	}
	r := setupGeofenceRouter(nil, admin)

	if w := doRequest(r, "PUT", "/geofences/10/vehicles/3", ""); w.Code != http.StatusOK {
		t.Fatalf("assign: expected 200, got %d", w.Code)
	}
	if w := doRequest(r, "DELETE", "/geofences/10/vehicles/3", ""); w.Code != http.StatusOK {
		t.Fatalf("unassign: expected 200, got %d", w.Code)
	}
	if assigned != [2]int64{10, 3} || unassigned != [2]int64{10, 3} {
		t.Errorf("unexpected args: assign %v unassign %v", assigned, unassigned)
	}
}

func TestAssignVehicle_InvalidVehicleID(t *testing.T) {
	w := doRequest(setupGeofenceRouter(nil, nil), "PUT", "/geofences/10/vehicles/x", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
