package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"lms_extractor/internal/config"
	"lms_extractor/internal/opsserver"
	"lms_extractor/internal/publisher"
	"lms_extractor/internal/scheduler"
	"lms_extractor/internal/service"
	"lms_extractor/internal/source/successfactors"
	"lms_extractor/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	once := flag.Bool("once", false, "run a single sync and exit")
	noPublish := flag.Bool("no-publish", false, "persist records without publishing them")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to database")

	checks := map[string]opsserver.Check{"postgres": db.PingContext}

	var pub service.Publisher
	if !*noPublish {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer rabbitMQ.Close()
		pub = rabbitMQ
	}

	source := successfactors.New(successfactors.Config{
		Credentials: successfactors.Credentials{
			BaseURL:      cfg.LMS.BaseURL,
			ClientID:     cfg.LMS.ClientID,
			ClientSecret: cfg.LMS.ClientSecret,
			UserID:       cfg.LMS.UserID,
			CompanyID:    cfg.LMS.CompanyID,
		},
		Language:          cfg.LMS.Language,
		TargetUserID:      cfg.LMS.TargetUserID,
		Timeout:           cfg.API.Timeout,
		RequestsPerSecond: cfg.API.RequestsPerSecond,
		Burst:             cfg.API.Burst,
		Breaker: successfactors.BreakerConfig{
			MaxFailures: cfg.API.Breaker.MaxFailures,
			Timeout:     cfg.API.Breaker.Timeout,
		},
	}, logger)

	syncService := service.NewSyncService(
		source,
		postgres.NewRecordStore(db),
		postgres.NewSyncStateStore(db),
		postgres.NewTransactionManager(db),
		pub,
		logger,
		cfg.Sync,
	)

	sched := scheduler.NewScheduler(syncService, cfg.Sync.Interval, cfg.Sync.RunTimeout, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *once {
		if !sched.RunOnce(ctx) {
			os.Exit(1)
		}
		return
	}

	if cfg.Ops.Addr != "" {
		ops := opsserver.New(cfg.Ops.Addr, checks, logger)
		go func() {
			if err := ops.Run(ctx); err != nil {
				logger.Error("ops server error", "error", err)
			}
		}()
	}

	logger.Info("starting lms extractor",
		"source", source.Name(),
		"interval", cfg.Sync.Interval,
		"streams", cfg.Sync.Streams,
	)

	if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}
	logger.Info("received shutdown signal")
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
