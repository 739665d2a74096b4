package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/nandanugg/fleet-tracker/module/core/domain"
)

// Seed is the initial fleet loaded at startup when SEED_FILE is set.
type Seed struct {
	Vehicles  []SeedVehicle  `yaml:"vehicles" validate:"dive"`
	Geofences []SeedGeofence `yaml:"geofences" validate:"dive"`
}

type SeedVehicle struct {
	Code         string `yaml:"code" validate:"required"`
	Name         string `yaml:"name"`
	Type         string `yaml:"type"`
	Registration string `yaml:"registration"`
}

// SeedGeofence references its vehicles by code.
type SeedGeofence struct {
	Name         string         `yaml:"name" validate:"required"`
	Shape        string         `yaml:"shape" validate:"required,oneof=circle polygon rectangle"`
	Center       domain.Point   `yaml:"center"`
	Radius       float64        `yaml:"radius" validate:"gte=0"`
	Vertices     []domain.Point `yaml:"vertices"`
	Corners      []domain.Point `yaml:"corners" validate:"omitempty,len=2"`
	AlertOnEnter bool           `yaml:"alert_on_enter"`
	AlertOnExit  bool           `yaml:"alert_on_exit"`
	AlertOnSpeed bool           `yaml:"alert_on_speed"`
	SpeedLimit   *float64       `yaml:"speed_limit" validate:"omitempty,gt=0"`
	Priority     string         `yaml:"priority" validate:"omitempty,oneof=high medium low"`
	Vehicles     []string       `yaml:"vehicles" validate:"dive,required"`
}

func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	return ParseSeed(data)
}

func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	if err := validator.New().Struct(seed); err != nil {
		return nil, fmt.Errorf("invalid seed: %w", err)
	}

	codes := make(map[string]bool, len(seed.Vehicles))
	for _, v := range seed.Vehicles {
		if codes[v.Code] {
			return nil, fmt.Errorf("invalid seed: duplicate vehicle code %q", v.Code)
		}
		codes[v.Code] = true
	}
	for _, g := range seed.Geofences {
		for _, code := range g.Vehicles {
			if !codes[code] {
				return nil, fmt.Errorf("invalid seed: geofence %q references unknown vehicle %q", g.Name, code)
			}
		}
	}
	return &seed, nil
}

func (v SeedVehicle) Vehicle() domain.Vehicle {
	return domain.Vehicle{
		Code:         v.Code,
		Name:         v.Name,
		Type:         v.Type,
		Registration: v.Registration,
	}
}

// Geofence converts g; vehicleIDs resolves codes already created in the store.
func (g SeedGeofence) Geofence(vehicleIDs map[string]int64) domain.Geofence {
	out := domain.Geofence{
		Name:         g.Name,
		Shape:        domain.Shape(g.Shape),
		Center:       g.Center,
		Radius:       g.Radius,
		Vertices:     g.Vertices,
		AlertOnEnter: g.AlertOnEnter,
		AlertOnExit:  g.AlertOnExit,
		AlertOnSpeed: g.AlertOnSpeed,
		SpeedLimit:   g.SpeedLimit,
		Priority:     domain.Priority(g.Priority),
	}
	if len(g.Corners) == 2 {
		out.Corners = [2]domain.Point{g.Corners[0], g.Corners[1]}
	}
	for _, code := range g.Vehicles {
		if id, ok := vehicleIDs[code]; ok {
			out.VehicleIDs = append(out.VehicleIDs, id)
		}
	}
	return out
}
