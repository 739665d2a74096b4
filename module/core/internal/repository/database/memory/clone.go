package memory

import "github.com/nandanugg/fleet-tracker/module/core/domain"

// The store never hands out pointers into its arena.

func cloneStatus(st domain.VehicleStatus) domain.VehicleStatus {
	st.Altitude = cloneFloat(st.Altitude)
	st.Fuel = cloneFloat(st.Fuel)
	st.Battery = cloneFloat(st.Battery)
	if st.Ignition != nil {
		v := *st.Ignition
		st.Ignition = &v
	}
	return st
}

func cloneGeofence(g domain.Geofence) domain.Geofence {
	if g.Vertices != nil {
		g.Vertices = append([]domain.Point(nil), g.Vertices...)
	}
	if g.VehicleIDs != nil {
		g.VehicleIDs = append([]int64(nil), g.VehicleIDs...)
	}
	g.SpeedLimit = cloneFloat(g.SpeedLimit)
	return g
}

func cloneAlert(a domain.Alert) domain.Alert {
	if a.GeofenceID != nil {
		v := *a.GeofenceID
		a.GeofenceID = &v
	}
	return a
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
