package service

import (
	"errors"
	"math"
	"testing"

	"github.com/nandanugg/fleet-tracker/module/core/domain"
)

func floatPtr(f float64) *float64 { return &f }

func circleFence(radius float64) domain.Geofence {
	return domain.Geofence{
		ID:     1,
		Name:   "Zone A",
		Shape:  domain.ShapeCircle,
		Center: domain.Point{Lat: -6.2088, Lon: 106.8456},
		Radius: radius,
	}
}

func squarePolygon() domain.Geofence {
	return domain.Geofence{
		ID:    2,
		Name:  "Depot",
		Shape: domain.ShapePolygon,
		Vertices: []domain.Point{
			{Lat: 0, Lon: 0},
			{Lat: 0, Lon: 1},
			{Lat: 1, Lon: 1},
			{Lat: 1, Lon: 0},
		},
	}
}

func TestContains_Circle(t *testing.T) {
	g := circleFence(50)

	// exact center, distance is 0
	if !Contains(g, domain.Point{Lat: -6.2088, Lon: 106.8456}) {
		t.Error("expected center to be inside")
	}
	if Contains(g, domain.Point{Lat: -7.0, Lon: 107.0}) {
		t.Error("expected far point to be outside")
	}

	// a point exactly on the circle is inside
	edge := domain.Point{Lat: -6.2100, Lon: 106.8456}
	g.Radius = haversine(g.Center.Lat, g.Center.Lon, edge.Lat, edge.Lon)
	if !Contains(g, edge) {
		t.Error("expected boundary point to be inside")
	}
	g.Radius = math.Nextafter(g.Radius, 0)
	if Contains(g, edge) {
		t.Error("expected point just beyond the radius to be outside")
	}
}

func TestContains_Polygon(t *testing.T) {
	g := squarePolygon()

	tests := []struct {
		name string
		p    domain.Point
		want bool
	}{
		{"inside", domain.Point{Lat: 0.5, Lon: 0.5}, true},
		{"outside", domain.Point{Lat: 1.5, Lon: 0.5}, false},
		{"on edge", domain.Point{Lat: 0, Lon: 0.5}, true},
		{"on right edge", domain.Point{Lat: 0.5, Lon: 1}, true},
		{"on vertex", domain.Point{Lat: 1, Lon: 1}, true},
		{"left of polygon at vertex height", domain.Point{Lat: 1, Lon: -1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Contains(g, tt.p); got != tt.want {
				t.Errorf("Contains(%v) = %v, want %v", tt.p, got, tt.want)
			}
		})
	}
}

func TestContains_ConcavePolygon(t *testing.T) {
	// U shape opening north
	g := domain.Geofence{
		Shape: domain.ShapePolygon,
		Vertices: []domain.Point{
			{Lat: 0, Lon: 0}, {Lat: 0, Lon: 3}, {Lat: 3, Lon: 3}, {Lat: 3, Lon: 2},
			{Lat: 1, Lon: 2}, {Lat: 1, Lon: 1}, {Lat: 3, Lon: 1}, {Lat: 3, Lon: 0},
		},
	}
	if Contains(g, domain.Point{Lat: 2, Lon: 1.5}) {
		t.Error("expected point in the notch to be outside")
	}
	if !Contains(g, domain.Point{Lat: 2, Lon: 0.5}) {
		t.Error("expected point in the left arm to be inside")
	}
}

func TestContains_MalformedPolygon(t *testing.T) {
	g := squarePolygon()
	g.Vertices = g.Vertices[:2]
	if Contains(g, domain.Point{Lat: 0, Lon: 0.5}) {
		t.Error("a two-vertex polygon contains nothing")
	}

	g = squarePolygon()
	g.Vertices[1].Lat = math.NaN()
	if Contains(g, domain.Point{Lat: 0.5, Lon: 0.5}) {
		t.Error("a polygon with NaN vertices contains nothing")
	}

	if Contains(squarePolygon(), domain.Point{Lat: math.Inf(1), Lon: 0.5}) {
		t.Error("an infinite point is never inside")
	}
}

func TestContains_Rectangle(t *testing.T) {
	// corners given in reverse order
	g := domain.Geofence{
		Shape:   domain.ShapeRectangle,
		Corners: [2]domain.Point{{Lat: 10, Lon: 20}, {Lat: 5, Lon: 15}},
	}
	if !Contains(g, domain.Point{Lat: 7, Lon: 17}) {
		t.Error("expected inside")
	}
	if !Contains(g, domain.Point{Lat: 10, Lon: 15}) {
		t.Error("expected corner to be inside")
	}
	if Contains(g, domain.Point{Lat: 11, Lon: 17}) {
		t.Error("expected outside")
	}
}

func TestContains_UnknownShape(t *testing.T) {
	g := circleFence(50)
	g.Shape = "hexagon"
	if Contains(g, g.Center) {
		t.Error("unknown shapes contain nothing")
	}
}

func TestContains_Idempotent(t *testing.T) {
	g := squarePolygon()
	p := domain.Point{Lat: 0.25, Lon: 0.75}
	first := Contains(g, p)
	for i := 0; i < 10; i++ {
		if Contains(g, p) != first {
			t.Fatal("Contains must be deterministic")
		}
	}
}

func TestSpeedViolation(t *testing.T) {
	g := circleFence(50)
	if SpeedViolation(g, 200) {
		t.Error("no limit means no violation")
	}
	g.SpeedLimit = floatPtr(60)
	if SpeedViolation(g, 60) {
		t.Error("speed equal to the limit is not a violation")
	}
	if !SpeedViolation(g, 65) {
		t.Error("expected violation at 65")
	}
}

func TestValidateGeofence(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(g *domain.Geofence)
		wantErr bool
	}{
		{"valid circle", func(g *domain.Geofence) {}, false},
		{"missing name", func(g *domain.Geofence) { g.Name = "" }, true},
		{"zero radius", func(g *domain.Geofence) { g.Radius = 0 }, true},
		{"latitude out of range", func(g *domain.Geofence) { g.Center.Lat = 91 }, true},
		{"bad priority", func(g *domain.Geofence) { g.Priority = "urgent" }, true},
		{"speed alert without limit", func(g *domain.Geofence) { g.AlertOnSpeed = true }, true},
		{"negative limit", func(g *domain.Geofence) { g.SpeedLimit = floatPtr(-1) }, true},
		{"short polygon", func(g *domain.Geofence) {
			g.Shape = domain.ShapePolygon
			g.Vertices = []domain.Point{{Lat: 0, Lon: 0}, {Lat: 1, Lon: 1}}
		}, true},
		{"flat rectangle", func(g *domain.Geofence) {
			g.Shape = domain.ShapeRectangle
			g.Corners = [2]domain.Point{{Lat: 1, Lon: 1}, {Lat: 1, Lon: 2}}
		}, true},
		{"unknown shape", func(g *domain.Geofence) { g.Shape = "blob" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := circleFence(50)
			tt.mutate(&g)
			err := ValidateGeofence(g)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrValidation) {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestHaversine(t *testing.T) {
	// same point should be 0
	d := haversine(-6.2088, 106.8456, -6.2088, 106.8456)
	if d != 0 {
		t.Errorf("expected 0, got %f", d)
	}

	// roughly 133m between these two points
	d = haversine(-6.2088, 106.8456, -6.2100, 106.8456)
	if d < 100 || d > 200 {
		t.Errorf("expected ~133m, got %f", d)
	}
}
