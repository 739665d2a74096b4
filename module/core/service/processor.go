package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nandanugg/fleet-tracker/internal/logging"
	"github.com/nandanugg/fleet-tracker/module/core/domain"
	"github.com/nandanugg/fleet-tracker/module/core/internal/repository/database"
)

const tracerName = "github.com/nandanugg/fleet-tracker/module/core/service"

// EventPublisher receives events after their effects are committed.
type EventPublisher interface {
	Publish(events ...domain.Event)
}

type ProcessorMetrics interface {
	ObserveReport(outcome string, d time.Duration)
	IncAlert(alertType string)
}

type ProcessorConfig struct {
	// MovingSpeedThreshold is the speed in km/h above which a vehicle is active.
	MovingSpeedThreshold float64
	// IdleAfter bounds how long a stopped vehicle with ignition on stays active.
	IdleAfter time.Duration
	// SpeedAlertDebounce suppresses repeated speed alerts for the same
	// vehicle and geofence. Zero alerts on every violating report.
	SpeedAlertDebounce time.Duration
	// LowBatteryThreshold raises a battery alert when the reported level drops
	// below it. Zero disables battery alerts.
	LowBatteryThreshold float64
	AlertOnIgnition     bool
}

func (c ProcessorConfig) withDefaults() ProcessorConfig {
	if c.MovingSpeedThreshold == 0 {
		c.MovingSpeedThreshold = DefaultMovingSpeedThreshold
	}
	if c.IdleAfter == 0 {
		c.IdleAfter = DefaultIdleAfter
	}
	return c
}

type ProcessorOption func(*Processor)

func WithProcessorLogger(log logging.Logger) ProcessorOption {
	return func(p *Processor) {
		if log != nil {
			p.log = log
		}
	}
}

func WithProcessorMetrics(m ProcessorMetrics) ProcessorOption {
	return func(p *Processor) { p.metrics = m }
}

func WithProcessorClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

func WithTracer(t trace.Tracer) ProcessorOption {
	return func(p *Processor) {
		if t != nil {
			p.tracer = t
		}
	}
}

// Processor applies position reports to the live state. Reports for one
// vehicle are serialized from the status read through event publication.
type Processor struct {
	store     database.StateStore
	publisher EventPublisher
	cfg       ProcessorConfig
	locks     *keyedMutex
	// creating is write-held from a vehicle's insert until its
	// vehicleCreated event is published. Lookups by id read-hold it.
	creating sync.RWMutex

	log     logging.Logger
	metrics ProcessorMetrics
	tracer  trace.Tracer
	now     func() time.Time
}

func NewProcessor(store database.StateStore, pub EventPublisher, cfg ProcessorConfig, opts ...ProcessorOption) *Processor {
	p := &Processor{
		store:     store,
		publisher: pub,
		cfg:       cfg.withDefaults(),
		locks:     newKeyedMutex(),
		log:       logging.Noop(),
		tracer:    otel.Tracer(tracerName),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// lockVehicle is shared with admin commands so vehicle mutations and report
// processing publish in commit order.
func (p *Processor) lockVehicle(vehicleID int64) func() {
	return p.locks.Lock(vehicleID)
}

// lockCreate keeps a new vehicle invisible to getVehicle until it has been
// announced.
func (p *Processor) lockCreate() func() {
	p.creating.Lock()
	return p.creating.Unlock
}

// getVehicle only finds vehicles whose vehicleCreated event is out.
func (p *Processor) getVehicle(ctx context.Context, id int64) (domain.Vehicle, error) {
	p.creating.RLock()
	defer p.creating.RUnlock()
	return p.store.GetVehicle(ctx, id)
}

// ProcessByCode resolves the device code and processes the report.
func (p *Processor) ProcessByCode(ctx context.Context, code string, r domain.PositionReport) ([]domain.Event, error) {
	v, err := p.store.GetVehicleByCode(ctx, code)
	if err != nil {
		p.observe(err, 0)
		return nil, err
	}
	return p.ProcessPositionReport(ctx, v.ID, r)
}

// ProcessPositionReport commits every effect of r in one transaction, then
// publishes a vehicleLocationUpdate followed by one alertCreated per alert.
func (p *Processor) ProcessPositionReport(ctx context.Context, vehicleID int64, r domain.PositionReport) ([]domain.Event, error) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "processor.ProcessPositionReport",
		trace.WithAttributes(attribute.Int64("vehicle.id", vehicleID)))
	defer span.End()

	events, err := p.process(ctx, vehicleID, r)
	p.observe(err, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("events", len(events)))
	return events, nil
}

func (p *Processor) process(ctx context.Context, vehicleID int64, r domain.PositionReport) ([]domain.Event, error) {
	if err := validateReport(r); err != nil {
		return nil, err
	}

	unlock := p.lockVehicle(vehicleID)
	defer unlock()

	vehicle, err := p.getVehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	prev, err := p.currentStatus(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	geofences, err := p.store.GeofencesForVehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}

	now := p.now()
	status := p.nextStatus(prev, vehicleID, r, now)
	point := r.Point

	alerts := p.vehicleAlerts(vehicle, prev, r, now)

	var (
		speedAlerts []domain.Alert
		memberships = make([]domain.Membership, 0, len(geofences))
	)
	for _, g := range geofences {
		m, err := p.store.GetMembership(ctx, vehicleID, g.ID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		wasInside := m.Evaluated && m.Inside
		inside := Contains(g, point)
		switch {
		case !wasInside && inside && g.AlertOnEnter:
			alerts = append(alerts, newGeofenceAlert(vehicle, g, point, now, "entered"))
		case wasInside && !inside && g.AlertOnExit:
			alerts = append(alerts, newGeofenceAlert(vehicle, g, point, now, "exited"))
		}
		m.Inside = inside
		m.Evaluated = true
		m.EvaluatedAt = now

		if g.AlertOnSpeed && inside && SpeedViolation(g, r.Speed) && !p.speedAlertDebounced(m, now) {
			speedAlerts = append(speedAlerts, newSpeedAlert(vehicle, g, point, r.Speed, now))
			m.LastSpeedAlertAt = now
		}
		memberships = append(memberships, m)
	}
	alerts = append(alerts, speedAlerts...)

	created, err := p.store.Commit(ctx, domain.Commit{
		Status:      status,
		Memberships: memberships,
		Alerts:      alerts,
	})
	if err != nil {
		return nil, fmt.Errorf("commit report for vehicle %d: %w", vehicleID, err)
	}

	events := make([]domain.Event, 0, 1+len(created))
	events = append(events, domain.NewEvent(domain.EventVehicleLocationUpdate, now,
		domain.VehicleState{Vehicle: vehicle, Status: &status}))
	for _, a := range created {
		if p.metrics != nil {
			p.metrics.IncAlert(string(a.Type))
		}
		events = append(events, domain.NewEvent(domain.EventAlertCreated, now, a))
	}
	p.publisher.Publish(events...)

	p.log.Debug(ctx, "position report processed",
		logging.Int64("vehicle_id", vehicleID),
		logging.String("status", string(status.Status)),
		logging.Uint64("version", status.Version),
		logging.Int("alerts", len(created)),
	)
	return events, nil
}

// MarkOffline flips the vehicle to offline when it has not been updated since
// staleBefore, and publishes the change.
func (p *Processor) MarkOffline(ctx context.Context, vehicleID int64, staleBefore time.Time) (bool, error) {
	unlock := p.lockVehicle(vehicleID)
	defer unlock()

	vehicle, err := p.getVehicle(ctx, vehicleID)
	if err != nil {
		return false, err
	}
	now := p.now()
	status, changed, err := p.store.MarkOffline(ctx, vehicleID, staleBefore, now)
	if err != nil || !changed {
		return false, err
	}

	p.publisher.Publish(domain.NewEvent(domain.EventVehicleStatusUpdated, now,
		domain.VehicleState{Vehicle: vehicle, Status: &status}))
	p.log.Info(ctx, "vehicle marked offline",
		logging.Int64("vehicle_id", vehicleID),
		logging.Uint64("version", status.Version),
	)
	return true, nil
}

func (p *Processor) currentStatus(ctx context.Context, vehicleID int64) (*domain.VehicleStatus, error) {
	st, err := p.store.GetStatus(ctx, vehicleID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// nextStatus builds the replacement status. Telemetry the report omits keeps
// its previous value.
func (p *Processor) nextStatus(prev *domain.VehicleStatus, vehicleID int64, r domain.PositionReport, now time.Time) domain.VehicleStatus {
	st := domain.VehicleStatus{
		VehicleID:  vehicleID,
		Lat:        r.Lat,
		Lon:        r.Lon,
		Speed:      r.Speed,
		Heading:    r.Heading,
		Altitude:   r.Altitude,
		Ignition:   r.Ignition,
		Fuel:       r.Fuel,
		Battery:    r.Battery,
		Status:     classifyStatus(prev, r, now, p.cfg.MovingSpeedThreshold, p.cfg.IdleAfter),
		ReportedAt: r.Timestamp,
		UpdatedAt:  now,
		Version:    1,
	}
	if st.ReportedAt.IsZero() {
		st.ReportedAt = now
	}
	if prev == nil {
		return st
	}
	st.Version = prev.Version + 1
	if st.Altitude == nil {
		st.Altitude = prev.Altitude
	}
	if st.Ignition == nil {
		st.Ignition = prev.Ignition
	}
	if st.Fuel == nil {
		st.Fuel = prev.Fuel
	}
	if st.Battery == nil {
		st.Battery = prev.Battery
	}
	return st
}

func (p *Processor) vehicleAlerts(v domain.Vehicle, prev *domain.VehicleStatus, r domain.PositionReport, now time.Time) []domain.Alert {
	var alerts []domain.Alert
	if p.cfg.AlertOnIgnition && r.Ignition != nil && prev != nil && prev.Ignition != nil && *prev.Ignition != *r.Ignition {
		state := "off"
		if *r.Ignition {
			state = "on"
		}
		alerts = append(alerts, domain.Alert{
			Type:      domain.AlertIgnition,
			VehicleID: v.ID,
			Message:   fmt.Sprintf("%s ignition turned %s", v.DisplayName(), state),
			Lat:       r.Lat,
			Lon:       r.Lon,
			Priority:  domain.PriorityLow,
			CreatedAt: now,
		})
	}

	threshold := p.cfg.LowBatteryThreshold
	if threshold > 0 && r.Battery != nil && *r.Battery < threshold &&
		(prev == nil || prev.Battery == nil || *prev.Battery >= threshold) {
		alerts = append(alerts, domain.Alert{
			Type:      domain.AlertBattery,
			VehicleID: v.ID,
			Message:   fmt.Sprintf("%s battery low: %s%%", v.DisplayName(), formatNumber(*r.Battery)),
			Lat:       r.Lat,
			Lon:       r.Lon,
			Priority:  domain.PriorityMedium,
			CreatedAt: now,
		})
	}
	return alerts
}

func (p *Processor) speedAlertDebounced(m domain.Membership, now time.Time) bool {
	if p.cfg.SpeedAlertDebounce <= 0 || m.LastSpeedAlertAt.IsZero() {
		return false
	}
	return now.Sub(m.LastSpeedAlertAt) < p.cfg.SpeedAlertDebounce
}

func (p *Processor) observe(err error, d time.Duration) {
	if p.metrics == nil {
		return
	}
	p.metrics.ObserveReport(outcome(err), d)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	case errors.Is(err, domain.ErrConcurrency):
		return "conflict"
	default:
		return "error"
	}
}

func validateReport(r domain.PositionReport) error {
	if err := validateCoordinates(r.Point); err != nil {
		return err
	}
	if !finite(r.Speed) || r.Speed < 0 {
		return fmt.Errorf("%w: speed must be a non-negative number", domain.ErrValidation)
	}
	if !finite(r.Heading) {
		return fmt.Errorf("%w: heading must be a number", domain.ErrValidation)
	}
	for name, v := range map[string]*float64{"altitude": r.Altitude, "fuel": r.Fuel, "battery": r.Battery} {
		if v != nil && !finite(*v) {
			return fmt.Errorf("%w: %s must be a number", domain.ErrValidation, name)
		}
	}
	return nil
}

func newGeofenceAlert(v domain.Vehicle, g domain.Geofence, p domain.Point, now time.Time, verb string) domain.Alert {
	gid := g.ID
	return domain.Alert{
		Type:       domain.AlertGeofence,
		VehicleID:  v.ID,
		GeofenceID: &gid,
		Message:    fmt.Sprintf("%s %s %s", v.DisplayName(), verb, g.Name),
		Lat:        p.Lat,
		Lon:        p.Lon,
		Priority:   g.AlertPriority(),
		CreatedAt:  now,
	}
}

func newSpeedAlert(v domain.Vehicle, g domain.Geofence, p domain.Point, speed float64, now time.Time) domain.Alert {
	gid := g.ID
	return domain.Alert{
		Type:       domain.AlertSpeed,
		VehicleID:  v.ID,
		GeofenceID: &gid,
		Message: fmt.Sprintf("%s exceeded the %s km/h limit in %s: %s km/h",
			v.DisplayName(), formatNumber(*g.SpeedLimit), g.Name, formatNumber(speed)),
		Lat:       p.Lat,
		Lon:       p.Lon,
		Priority:  g.AlertPriority(),
		CreatedAt: now,
	}
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(math.Round(f*10)/10, 'f', -1, 64)
}
