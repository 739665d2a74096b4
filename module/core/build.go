package core

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nandanugg/fleet-tracker/internal/logging"
	"github.com/nandanugg/fleet-tracker/internal/observability"
	"github.com/nandanugg/fleet-tracker/module/core/internal/broadcaster"
	handler "github.com/nandanugg/fleet-tracker/module/core/internal/handler/http"
	"github.com/nandanugg/fleet-tracker/module/core/internal/handler/subscriber"
	"github.com/nandanugg/fleet-tracker/module/core/internal/repository/database/memory"
	"github.com/nandanugg/fleet-tracker/module/core/internal/repository/database/postgres"
	"github.com/nandanugg/fleet-tracker/module/core/internal/repository/publisher/rabbitmq"
	"github.com/nandanugg/fleet-tracker/module/core/service"
	"github.com/nandanugg/fleet-tracker/pkg/email"
)

// Options configures Build. DB, AMQP, MQTT and Email are optional; a nil
// value leaves that integration out.
type Options struct {
	Processor            service.ProcessorConfig
	SubscriberBuffer     int
	WriteTimeout         time.Duration
	OfflineAfter         time.Duration
	OfflineSweepInterval time.Duration
	TripHistory          int
	AlertRecipients      []string

	DB      *sql.DB
	AMQP    *amqp.Connection
	MQTT    mqtt.Client
	Email   email.Sender
	Metrics *observability.FleetCollector
	Log     logging.Logger
}

type registrar interface {
	Register(r *gin.RouterGroup)
}

type sinkRunner struct {
	name string
	sub  *broadcaster.Subscription
	sink service.Sink
}

type Module struct {
	Store       *memory.Store
	Broadcaster *broadcaster.Broadcaster
	Processor   *service.Processor
	Dispatcher  *service.Dispatcher
	Admin       *service.AdminService
	Query       *service.QueryService
	Trips       *service.TripTracker

	staleness  *service.StalenessMonitor
	relay      *rabbitmq.EventPublisher
	sinks      []sinkRunner
	handlers   []registrar
	subscriber *subscriber.LocationSubscriber
	metrics    *observability.FleetCollector
	log        logging.Logger
	wg         sync.WaitGroup
}

func Build(ctx context.Context, opts Options) (*Module, error) {
	log := opts.Log
	if log == nil {
		log = logging.Noop()
	}

	var storeOpts []memory.Option
	var bcastOpts []broadcaster.Option
	var procOpts []service.ProcessorOption
	if opts.Metrics != nil {
		storeOpts = append(storeOpts, memory.WithMetricsRecorder(opts.Metrics))
		bcastOpts = append(bcastOpts, broadcaster.WithMetrics(opts.Metrics))
		procOpts = append(procOpts, service.WithProcessorMetrics(opts.Metrics))
	}
	if opts.SubscriberBuffer > 0 {
		bcastOpts = append(bcastOpts, broadcaster.WithBufferSize(opts.SubscriberBuffer))
	}
	bcastOpts = append(bcastOpts, broadcaster.WithLogger(log.With(logging.String("component", "broadcaster"))))
	procOpts = append(procOpts, service.WithProcessorLogger(log.With(logging.String("component", "processor"))))

	store := memory.New(storeOpts...)
	bcast := broadcaster.New(store, bcastOpts...)
	proc := service.NewProcessor(store, bcast, opts.Processor, procOpts...)
	dispatcher := service.NewDispatcher(proc, log.With(logging.String("component", "dispatcher")))
	admin := service.NewAdminService(store, proc, bcast, log.With(logging.String("component", "admin")))
	query := service.NewQueryService(store)
	trips := service.NewTripTracker(opts.TripHistory)

	m := &Module{
		Store:       store,
		Broadcaster: bcast,
		Processor:   proc,
		Dispatcher:  dispatcher,
		Admin:       admin,
		Query:       query,
		Trips:       trips,
		staleness:   service.NewStalenessMonitor(store, proc, opts.OfflineAfter, opts.OfflineSweepInterval, log.With(logging.String("component", "staleness"))),
		metrics:     opts.Metrics,
		log:         log,
	}

	if err := m.addSink(ctx, "trips", trips); err != nil {
		return nil, err
	}

	var history *service.LocationService
	if opts.DB != nil {
		if err := postgres.EnsureSchema(ctx, opts.DB); err != nil {
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
		history = service.NewLocationService(postgres.NewLocationRepo(opts.DB))
		if err := m.addSink(ctx, "location_history", history); err != nil {
			return nil, err
		}
		if err := m.addSink(ctx, "alert_archive", service.NewAlertArchive(postgres.NewAlertRepo(opts.DB))); err != nil {
			return nil, err
		}
	}

	if opts.AMQP != nil {
		pub, err := rabbitmq.NewEventPublisher(opts.AMQP)
		if err != nil {
			return nil, fmt.Errorf("event publisher: %w", err)
		}
		m.relay = pub
		if err := m.addSink(ctx, "rabbitmq_relay", service.NewEventRelay(pub)); err != nil {
			return nil, err
		}
	}

	if opts.Email != nil && len(opts.AlertRecipients) > 0 {
		if err := m.addSink(ctx, "alert_email", service.NewAlertNotifier(opts.Email, store, opts.AlertRecipients)); err != nil {
			return nil, err
		}
	}

	if opts.MQTT != nil {
		m.subscriber = subscriber.NewLocationSubscriber(opts.MQTT, dispatcher, log.With(logging.String("component", "mqtt")))
	}

	vehicles := handler.NewVehicleHandler(query, admin, nil, trips)
	if history != nil {
		vehicles = handler.NewVehicleHandler(query, admin, history, trips)
	}
	m.handlers = []registrar{
		vehicles,
		handler.NewGeofenceHandler(query, admin),
		handler.NewAlertHandler(query, admin),
		handler.NewPositionHandler(dispatcher),
		handler.NewLiveHandler(bcast, query, opts.WriteTimeout, log.With(logging.String("component", "live"))),
	}

	return m, nil
}

// addSink subscribes now so the sink sees every event published after Build.
func (m *Module) addSink(ctx context.Context, name string, sink service.Sink) error {
	sub, err := m.Broadcaster.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe %s sink: %w", name, err)
	}
	m.sinks = append(m.sinks, sinkRunner{name: name, sub: sub, sink: sink})
	return nil
}

// RequestLogger is the access log middleware shared by every route.
func RequestLogger(log logging.Logger) gin.HandlerFunc {
	return handler.RequestLogger(log)
}

func (m *Module) RegisterRoutes(r *gin.RouterGroup) {
	for _, h := range m.handlers {
		h.Register(r)
	}
}

func (m *Module) StartSubscribers() error {
	if m.subscriber == nil {
		return nil
	}
	return m.subscriber.Start()
}

// Run starts the sinks and the staleness monitor. They stop when ctx is done;
// Close waits for them.
func (m *Module) Run(ctx context.Context) {
	for _, s := range m.sinks {
		m.wg.Add(1)
		go func(s sinkRunner) {
			defer m.wg.Done()
			var failures service.SinkFailureRecorder
			if m.metrics != nil {
				failures = m.metrics
			}
			if err := service.RunSink(ctx, s.name, s.sub, s.sink, m.log, failures); err != nil {
				m.log.Error(ctx, "sink stopped", logging.String("sink", s.name), logging.Err(err))
			}
		}(s)
	}

	if m.staleness.Enabled() {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.staleness.Run(ctx)
		}()
	}
}

// Close stops ingestion first so no report is accepted after the dispatcher
// drains.
func (m *Module) Close() {
	if m.subscriber != nil {
		if err := m.subscriber.Stop(); err != nil {
			m.log.Warn(context.Background(), "mqtt unsubscribe", logging.Err(err))
		}
	}
	m.Dispatcher.Close()
	for _, s := range m.sinks {
		s.sub.Close()
	}
	m.wg.Wait()
	if m.relay != nil {
		if err := m.relay.Close(); err != nil {
			m.log.Warn(context.Background(), "close event publisher", logging.Err(err))
		}
	}
}
