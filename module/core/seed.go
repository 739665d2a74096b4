package core

import (
	"context"
	"fmt"

	"github.com/nandanugg/fleet-tracker/config"
	"github.com/nandanugg/fleet-tracker/internal/logging"
)

// ApplySeed creates the seeded vehicles and geofences through the admin
// service, so each one is published like any other administrative change.
func (m *Module) ApplySeed(ctx context.Context, seed *config.Seed) error {
	ids := make(map[string]int64, len(seed.Vehicles))
	for _, sv := range seed.Vehicles {
		v, err := m.Admin.CreateVehicle(ctx, sv.Vehicle())
		if err != nil {
			return fmt.Errorf("seed vehicle %s: %w", sv.Code, err)
		}
		ids[v.Code] = v.ID
	}
	for _, sg := range seed.Geofences {
		if _, err := m.Admin.CreateGeofence(ctx, sg.Geofence(ids)); err != nil {
			return fmt.Errorf("seed geofence %s: %w", sg.Name, err)
		}
	}
	m.log.Info(ctx, "seed applied",
		logging.Int("vehicles", len(seed.Vehicles)),
		logging.Int("geofences", len(seed.Geofences)),
	)
	return nil
}
