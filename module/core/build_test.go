package core

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nandanugg/fleet-tracker/config"
	"github.com/nandanugg/fleet-tracker/module/core/domain"
)

const testSeed = `
vehicles:
  - code: VAN-1
    name: VAN-1
geofences:
  - name: Zone A
    shape: circle
    center: {latitude: -6.2088, longitude: 106.8456}
    radius: 500
    alert_on_enter: true
    alert_on_speed: true
    speed_limit: 50
    vehicles: [VAN-1]
`

func buildTestModule(t *testing.T) (*Module, *gin.Engine) {
	t.Helper()
	m, err := Build(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(m.Close)

	seed, err := config.ParseSeed([]byte(testSeed))
	if err != nil {
		t.Fatalf("ParseSeed: %v", err)
	}
	if err := m.ApplySeed(context.Background(), seed); err != nil {
		t.Fatalf("ApplySeed: %v", err)
	}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	m.RegisterRoutes(r.Group(""))
	return m, r
}

func TestBuild_InMemoryOnly(t *testing.T) {
	m, _ := buildTestModule(t)

	vehicles, err := m.Query.ListVehicles(context.Background())
	if err != nil {
		t.Fatalf("ListVehicles: %v", err)
	}
	if len(vehicles) != 1 || vehicles[0].Code != "VAN-1" {
		t.Fatalf("unexpected vehicles: %+v", vehicles)
	}
	geofences, err := m.Query.ListGeofences(context.Background())
	if err != nil {
		t.Fatalf("ListGeofences: %v", err)
	}
	if len(geofences) != 1 || len(geofences[0].VehicleIDs) != 1 {
		t.Fatalf("unexpected geofences: %+v", geofences)
	}
	if err := m.StartSubscribers(); err != nil {
		t.Fatalf("StartSubscribers without mqtt: %v", err)
	}
}

func TestBuild_PositionToAlertOverHTTP(t *testing.T) {
	_, r := buildTestModule(t)

	body := `{"vehicle_id":"VAN-1","latitude":-6.2088,"longitude":106.8456,"speed":65}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/positions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/alerts?unread=true", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var alerts []domain.Alert
	if err := json.Unmarshal(w.Body.Bytes(), &alerts); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	var speed *domain.Alert
	for i := range alerts {
		if alerts[i].Type == domain.AlertSpeed {
			speed = &alerts[i]
		}
	}
	if speed == nil {
		t.Fatalf("expected a speed alert, got %+v", alerts)
	}
	if !strings.Contains(speed.Message, "VAN-1") || !strings.Contains(speed.Message, "65") {
		t.Errorf("unexpected message %q", speed.Message)
	}
}

func TestBuild_TripSinkSeesReports(t *testing.T) {
	m, _ := buildTestModule(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Run(ctx)

	if _, err := m.Dispatcher.Process(ctx, "VAN-1", domain.PositionReport{
		Point: domain.Point{Lat: -6.2088, Lon: 106.8456},
		Speed: 30,
	}); err != nil {
		t.Fatalf("Process: %v", err)
	}

	vehicles, _ := m.Query.ListVehicles(ctx)
	id := vehicles[0].ID
	deadline := time.Now().Add(2 * time.Second)
	for len(m.Trips.Trips(id)) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("trip tracker never saw the report")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
