package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nandanugg/fleet-tracker/config"
	"github.com/nandanugg/fleet-tracker/internal/logging"
	"github.com/nandanugg/fleet-tracker/internal/observability"
	"github.com/nandanugg/fleet-tracker/module/core"
	"github.com/nandanugg/fleet-tracker/module/core/service"
	"github.com/nandanugg/fleet-tracker/pkg/email"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Logging())

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing(), logger)
	if err != nil {
		log.Fatalf("tracing: %v", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, logger)

	metrics, err := observability.NewFleetCollector(nil)
	if err != nil {
		log.Fatalf("metrics: %v", err)
	}

	health := config.NewHealthChecker()
	opts := core.Options{
		Processor: service.ProcessorConfig{
			MovingSpeedThreshold: cfg.MovingSpeedThreshold,
			IdleAfter:            cfg.IdleAfter,
			SpeedAlertDebounce:   cfg.SpeedAlertDebounce,
			LowBatteryThreshold:  cfg.LowBatteryThreshold,
			AlertOnIgnition:      cfg.AlertOnIgnition,
		},
		SubscriberBuffer:     cfg.SubscriberBuffer,
		WriteTimeout:         cfg.WriteTimeout,
		OfflineAfter:         cfg.OfflineAfter,
		OfflineSweepInterval: cfg.OfflineSweepInterval,
		TripHistory:          cfg.TripHistory,
		AlertRecipients:      cfg.AlertRecipients,
		Metrics:              metrics,
		Log:                  logger,
	}

	if cfg.PostgresDSN != "" {
		db, err := config.NewPostgres(ctx, cfg)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer func() { _ = db.Close() }()
		opts.DB = db
		health.Add("postgres", config.PostgresCheck(db))
	}

	if cfg.RabbitMQURL != "" {
		amqpConn, err := config.NewRabbitMQ(cfg)
		if err != nil {
			log.Fatalf("rabbitmq: %v", err)
		}
		defer func() { _ = amqpConn.Close() }()
		opts.AMQP = amqpConn
		health.Add("rabbitmq", config.RabbitMQCheck(amqpConn))
	}

	if cfg.MQTTBroker != "" {
		mqttClient, err := config.NewMQTT(cfg, logger)
		if err != nil {
			log.Fatalf("mqtt: %v", err)
		}
		defer mqttClient.Disconnect(250)
		opts.MQTT = mqttClient
		health.Add("mqtt", config.MQTTCheck(mqttClient))
	}

	if cfg.EmailEnabled() {
		sender, err := email.NewSESV2Sender(ctx, cfg.SESRegion, cfg.SESFrom)
		if err != nil {
			log.Fatalf("ses: %v", err)
		}
		opts.Email = sender
	}

	coreModule, err := core.Build(ctx, opts)
	if err != nil {
		log.Fatalf("core module: %v", err)
	}
	defer coreModule.Close()

	if cfg.SeedFile != "" {
		seed, err := config.LoadSeed(cfg.SeedFile)
		if err != nil {
			log.Fatalf("seed: %v", err)
		}
		if err := coreModule.ApplySeed(ctx, seed); err != nil {
			log.Fatalf("seed: %v", err)
		}
	}

	coreModule.Run(ctx)
	if err := coreModule.StartSubscribers(); err != nil {
		log.Fatalf("start subscribers: %v", err)
	}

	r := gin.New()
	r.Use(gin.Recovery(), core.RequestLogger(logger), metrics.GinMiddleware())
	health.Register(r)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	coreModule.RegisterRoutes(&r.RouterGroup)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info(ctx, "listening", logging.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info(context.Background(), "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "http shutdown", logging.Err(err))
	}
}
