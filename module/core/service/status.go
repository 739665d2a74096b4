package service

import (
	"time"

	"github.com/nandanugg/fleet-tracker/module/core/domain"
)

const (
	DefaultMovingSpeedThreshold = 1.0
	DefaultIdleAfter            = 5 * time.Minute
)

// classifyStatus derives the status for a live report. A live report never
// yields offline.
func classifyStatus(prev *domain.VehicleStatus, r domain.PositionReport, now time.Time, movingThreshold float64, idleAfter time.Duration) domain.Status {
	if r.Speed > movingThreshold {
		return domain.StatusActive
	}
	ignitionOn := r.Ignition != nil && *r.Ignition
	if ignitionOn && prev != nil && prev.Status == domain.StatusActive && now.Sub(prev.UpdatedAt) <= idleAfter {
		// short stop with the engine running
		return domain.StatusActive
	}
	return domain.StatusIdle
}
