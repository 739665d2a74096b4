package service

import (
	"fmt"
	"math"

	"github.com/nandanugg/fleet-tracker/module/core/domain"
)

const earthRadiusMeters = 6371000

// boundaryEpsilon absorbs float noise when deciding whether a point lies on a
// polygon edge, in squared degrees.
const boundaryEpsilon = 1e-18

// Contains reports whether p is inside g. Boundaries are inside. Malformed
// shapes are never inside anything.
func Contains(g domain.Geofence, p domain.Point) bool {
	if !validPoint(p) {
		return false
	}
	switch g.Shape {
	case domain.ShapeCircle:
		if !validPoint(g.Center) || !finite(g.Radius) || g.Radius < 0 {
			return false
		}
		return haversine(g.Center.Lat, g.Center.Lon, p.Lat, p.Lon) <= g.Radius
	case domain.ShapePolygon:
		return polygonContains(g.Vertices, p)
	case domain.ShapeRectangle:
		return rectangleContains(g.Corners, p)
	default:
		return false
	}
}

// SpeedViolation reports whether speed is strictly above the geofence limit.
func SpeedViolation(g domain.Geofence, speed float64) bool {
	return g.SpeedLimit != nil && speed > *g.SpeedLimit
}

func ValidateGeofence(g domain.Geofence) error {
	if g.Name == "" {
		return fmt.Errorf("%w: geofence name is required", domain.ErrValidation)
	}
	switch g.Shape {
	case domain.ShapeCircle:
		if err := validateCoordinates(g.Center); err != nil {
			return err
		}
		if !finite(g.Radius) || g.Radius <= 0 {
			return fmt.Errorf("%w: circle radius must be positive", domain.ErrValidation)
		}
	case domain.ShapePolygon:
		if len(g.Vertices) < 3 {
			return fmt.Errorf("%w: polygon needs at least 3 vertices, got %d", domain.ErrValidation, len(g.Vertices))
		}
		for _, v := range g.Vertices {
			if err := validateCoordinates(v); err != nil {
				return err
			}
		}
	case domain.ShapeRectangle:
		for _, c := range g.Corners {
			if err := validateCoordinates(c); err != nil {
				return err
			}
		}
		if g.Corners[0].Lat == g.Corners[1].Lat || g.Corners[0].Lon == g.Corners[1].Lon {
			return fmt.Errorf("%w: rectangle corners must differ in latitude and longitude", domain.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown geofence shape %q", domain.ErrValidation, g.Shape)
	}
	if g.SpeedLimit != nil && (!finite(*g.SpeedLimit) || *g.SpeedLimit <= 0) {
		return fmt.Errorf("%w: speed limit must be positive", domain.ErrValidation)
	}
	if g.AlertOnSpeed && g.SpeedLimit == nil {
		return fmt.Errorf("%w: speed alerts need a speed limit", domain.ErrValidation)
	}
	switch g.Priority {
	case "", domain.PriorityHigh, domain.PriorityMedium, domain.PriorityLow:
	default:
		return fmt.Errorf("%w: unknown priority %q", domain.ErrValidation, g.Priority)
	}
	return nil
}

func validateCoordinates(p domain.Point) error {
	if !validPoint(p) {
		return fmt.Errorf("%w: coordinates out of range (%v, %v)", domain.ErrValidation, p.Lat, p.Lon)
	}
	return nil
}

func validPoint(p domain.Point) bool {
	return finite(p.Lat) && finite(p.Lon) &&
		p.Lat >= -90 && p.Lat <= 90 &&
		p.Lon >= -180 && p.Lon <= 180
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// polygonContains casts a ray along +x with x=lon, y=lat. The ring is closed
// implicitly.
func polygonContains(vertices []domain.Point, p domain.Point) bool {
	n := len(vertices)
	if n < 3 {
		return false
	}
	for _, v := range vertices {
		if !validPoint(v) {
			return false
		}
	}

	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := vertices[i], vertices[j]
		if onSegment(a, b, p) {
			return true
		}
		if (a.Lat > p.Lat) != (b.Lat > p.Lat) {
			x := (b.Lon-a.Lon)*(p.Lat-a.Lat)/(b.Lat-a.Lat) + a.Lon
			if p.Lon < x {
				inside = !inside
			}
		}
	}
	return inside
}

func onSegment(a, b, p domain.Point) bool {
	cross := (b.Lon-a.Lon)*(p.Lat-a.Lat) - (b.Lat-a.Lat)*(p.Lon-a.Lon)
	if cross*cross > boundaryEpsilon {
		return false
	}
	return p.Lon >= math.Min(a.Lon, b.Lon) && p.Lon <= math.Max(a.Lon, b.Lon) &&
		p.Lat >= math.Min(a.Lat, b.Lat) && p.Lat <= math.Max(a.Lat, b.Lat)
}

func rectangleContains(corners [2]domain.Point, p domain.Point) bool {
	if !validPoint(corners[0]) || !validPoint(corners[1]) {
		return false
	}
	minLat, maxLat := math.Min(corners[0].Lat, corners[1].Lat), math.Max(corners[0].Lat, corners[1].Lat)
	minLon, maxLon := math.Min(corners[0].Lon, corners[1].Lon), math.Max(corners[0].Lon, corners[1].Lon)
	return p.Lat >= minLat && p.Lat <= maxLat && p.Lon >= minLon && p.Lon <= maxLon
}

func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
