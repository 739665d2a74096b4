package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// FleetCollector bundles the Prometheus metrics of the live-state engine and
// its HTTP surface. Every recorder method is safe on a nil receiver so
// components can run without metrics in tests.
type FleetCollector struct {
	gatherer prometheus.Gatherer

	ReportsProcessed *prometheus.CounterVec
	ReportDuration   prometheus.Histogram
	AlertsCreated    *prometheus.CounterVec

	Subscribers       prometheus.Gauge
	EventsPublished   *prometheus.CounterVec
	SubscriberResyncs *prometheus.CounterVec

	Vehicles  prometheus.Gauge
	Geofences prometheus.Gauge
	Alerts    prometheus.Gauge

	SinkFailures *prometheus.CounterVec

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec
}

// NewFleetCollector registers the fleet metrics against reg, defaulting to the
// global registry when nil. Re-registering returns the existing collectors.
func NewFleetCollector(reg prometheus.Registerer) (*FleetCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &FleetCollector{gatherer: gatherer}
	var err error

	if c.ReportsProcessed, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_position_reports_total",
		Help: "Position reports handled by the update processor, labeled by outcome.",
	}, []string{"outcome"}), "fleet_position_reports_total"); err != nil {
		return nil, err
	}
	if c.ReportDuration, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fleet_position_report_duration_seconds",
		Help:    "Time spent applying one position report, including lock wait.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}), "fleet_position_report_duration_seconds"); err != nil {
		return nil, err
	}
	if c.AlertsCreated, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_alerts_created_total",
		Help: "Alerts created by the update processor, labeled by alert type.",
	}, []string{"type"}), "fleet_alerts_created_total"); err != nil {
		return nil, err
	}
	if c.Subscribers, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_live_subscribers",
		Help: "Currently attached live subscribers.",
	}), "fleet_live_subscribers"); err != nil {
		return nil, err
	}
	if c.EventsPublished, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_events_published_total",
		Help: "Events fanned out by the broadcaster, labeled by event type.",
	}, []string{"type"}), "fleet_events_published_total"); err != nil {
		return nil, err
	}
	if c.SubscriberResyncs, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_subscriber_resyncs_total",
		Help: "Full-state resyncs delivered to subscribers, labeled by reason.",
	}, []string{"reason"}), "fleet_subscriber_resyncs_total"); err != nil {
		return nil, err
	}
	if c.Vehicles, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_vehicles",
		Help: "Registered vehicles in the state store.",
	}), "fleet_vehicles"); err != nil {
		return nil, err
	}
	if c.Geofences, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_geofences",
		Help: "Geofences in the state store.",
	}), "fleet_geofences"); err != nil {
		return nil, err
	}
	if c.Alerts, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_alerts",
		Help: "Alerts retained in the state store.",
	}), "fleet_alerts"); err != nil {
		return nil, err
	}
	if c.SinkFailures, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_sink_failures_total",
		Help: "Downstream sink delivery failures, labeled by sink.",
	}, []string{"sink"}), "fleet_sink_failures_total"); err != nil {
		return nil, err
	}
	if c.HTTPRequests, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_http_requests_total",
		Help: "HTTP requests, labeled by method, route and status code.",
	}, []string{"method", "route", "code"}), "fleet_http_requests_total"); err != nil {
		return nil, err
	}
	if c.HTTPDurations, err = registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fleet_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"method", "route"}), "fleet_http_request_duration_seconds"); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *FleetCollector) ObserveReport(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.ReportsProcessed.WithLabelValues(outcome).Inc()
	c.ReportDuration.Observe(d.Seconds())
}

func (c *FleetCollector) IncAlert(alertType string) {
	if c == nil {
		return
	}
	c.AlertsCreated.WithLabelValues(alertType).Inc()
}

func (c *FleetCollector) SetSubscribers(n int) {
	if c == nil {
		return
	}
	c.Subscribers.Set(float64(n))
}

func (c *FleetCollector) IncPublished(eventType string) {
	if c == nil {
		return
	}
	c.EventsPublished.WithLabelValues(eventType).Inc()
}

func (c *FleetCollector) IncResync(reason string) {
	if c == nil {
		return
	}
	c.SubscriberResyncs.WithLabelValues(reason).Inc()
}

// SetStoreCounts lets the state store drive entity gauges from its mutators.
func (c *FleetCollector) SetStoreCounts(vehicles, geofences, alerts int) {
	if c == nil {
		return
	}
	c.Vehicles.Set(float64(vehicles))
	c.Geofences.Set(float64(geofences))
	c.Alerts.Set(float64(alerts))
}

func (c *FleetCollector) IncSinkFailure(sink string) {
	if c == nil {
		return
	}
	c.SinkFailures.WithLabelValues(sink).Inc()
}

// GinMiddleware records request counts and latency per matched route.
func (c *FleetCollector) GinMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()
		if c == nil {
			return
		}
		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := ctx.Request.Method
		c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(ctx.Writer.Status())).Inc()
		c.HTTPDurations.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the gathered metrics in the Prometheus text format.
func (c *FleetCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
