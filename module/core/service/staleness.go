package service

import (
	"context"
	"errors"
	"time"

	"github.com/nandanugg/fleet-tracker/internal/logging"
	"github.com/nandanugg/fleet-tracker/module/core/domain"
	"github.com/nandanugg/fleet-tracker/module/core/internal/repository/database"
)

type OfflineMarker interface {
	MarkOffline(ctx context.Context, vehicleID int64, staleBefore time.Time) (bool, error)
}

// StalenessMonitor marks vehicles offline once they stop reporting for
// OfflineAfter. A zero OfflineAfter disables it.
type StalenessMonitor struct {
	store        database.StateStore
	marker       OfflineMarker
	offlineAfter time.Duration
	interval     time.Duration
	log          logging.Logger
	now          func() time.Time
}

func NewStalenessMonitor(store database.StateStore, marker OfflineMarker, offlineAfter, interval time.Duration, log logging.Logger) *StalenessMonitor {
	if interval <= 0 {
		interval = offlineAfter / 2
	}
	if log == nil {
		log = logging.Noop()
	}
	return &StalenessMonitor{
		store:        store,
		marker:       marker,
		offlineAfter: offlineAfter,
		interval:     interval,
		log:          log,
		now:          time.Now,
	}
}

func (m *StalenessMonitor) Enabled() bool {
	return m.offlineAfter > 0
}

// Run sweeps on every tick until ctx is done.
func (m *StalenessMonitor) Run(ctx context.Context) {
	if !m.Enabled() {
		return
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Sweep(ctx); err != nil {
				m.log.Error(ctx, "staleness sweep failed", logging.Err(err))
			}
		}
	}
}

// Sweep marks every stale vehicle offline and returns how many changed.
func (m *StalenessMonitor) Sweep(ctx context.Context) (int, error) {
	states, err := m.store.ListVehicles(ctx)
	if err != nil {
		return 0, err
	}
	staleBefore := m.now().Add(-m.offlineAfter)

	marked := 0
	for _, vs := range states {
		if vs.Status == nil || vs.Status.Status == domain.StatusOffline || vs.Status.UpdatedAt.After(staleBefore) {
			continue
		}
		changed, err := m.marker.MarkOffline(ctx, vs.ID, staleBefore)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			m.log.Warn(ctx, "mark offline failed", logging.Int64("vehicle_id", vs.ID), logging.Err(err))
			continue
		}
		if changed {
			marked++
		}
	}
	return marked, nil
}
