package main

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sytefy/backend/libs/config"
	"github.com/sytefy/backend/libs/db"
	"github.com/sytefy/backend/libs/grpcx"
	"github.com/sytefy/backend/libs/httpx"
	"github.com/sytefy/backend/libs/kafkax"
	otelx "github.com/sytefy/backend/libs/otel"
	"github.com/sytefy/backend/libs/runtime"
	"github.com/sytefy/backend/services/appointments/internal/channels"
	"github.com/sytefy/backend/services/appointments/internal/delivery"
	"github.com/sytefy/backend/services/appointments/internal/metrics"
	"github.com/sytefy/backend/services/appointments/internal/outbox"
	"github.com/sytefy/backend/services/appointments/internal/queue"
	"github.com/sytefy/backend/services/appointments/internal/settings"
	"github.com/sytefy/backend/services/appointments/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const healthService = "sytefy.reminders.Worker"

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "reminder-worker")
	port, err := config.Port("PORT", "8091")
	if err != nil {
		panic(err)
	}
	cfg, err := settings.Load()
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service, cfg.LogLevel)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	opened, err := queue.Open(ctx, queue.Config{
		Backend:       cfg.Queue.Backend,
		RedisAddr:     cfg.Queue.RedisAddr,
		RedisPassword: cfg.Queue.RedisPassword,
		RedisDB:       cfg.Queue.RedisDB,
		Prefix:        cfg.Queue.Prefix,
	}, pool)
	if err != nil {
		logger.Error("reminder queue unavailable", "err", err)
		panic(err)
	}
	defer func() { _ = opened.Close() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reminderMetrics := metrics.NewReminderMetrics(reg)

	// The SMS service holds the provider rate limiter, so it is built once per process.
	task := delivery.NewTask(cfg.Channels, storage.NewNotificationRepository(pool), reminderMetrics, logger,
		delivery.WithEmailSender(channels.NewEmailService(ctx, cfg.Channels.Email, logger)),
		delivery.WithSMSSender(channels.NewSMSService(cfg.Channels.SMS, logger)),
	)

	outboxRepo := outbox.NewRepository(pool)
	worker := queue.NewWorker(opened.Broker, task.Handle, outboxRepo, reminderMetrics, logger, queue.WorkerConfig{
		Interval:    cfg.Queue.PollInterval,
		BatchSize:   cfg.Queue.BatchSize,
		Lease:       cfg.Queue.Lease,
		MaxRetries:  cfg.Reminder.MaxRetries,
		RetryBase:   cfg.Reminder.RetryBase,
		RetryMax:    cfg.Reminder.RetryMax,
		RetryJitter: cfg.Reminder.RetryJitter,
	})
	go worker.Run(ctx)

	var writer outbox.MessageWriter
	if cfg.KafkaBrokers != "" {
		kw := kafkax.NewWriter(cfg.KafkaBrokers)
		defer func() { _ = kw.Close() }()
		writer = kw
	}
	publisher := outbox.NewPublisher(pool, outboxRepo, writer, logger, outbox.PublisherConfig{
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go publisher.Run(ctx)

	if grpcPort := config.String("GRPC_PORT", ""); grpcPort != "" {
		gs := grpcx.NewServer(logger)
		gs.SetServing(healthService, true)
		go func() {
			if err := gs.Serve(ctx, ":"+grpcPort); err != nil {
				logger.Error("grpc server error", "err", err)
			}
		}()
	}

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "queue", Check: opened.Ready},
	}
	if cfg.KafkaBrokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	}
	mux := runtime.NewBaseMux(reg, checks...)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "reminder-worker")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "queue", opened.Broker.Name())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("worker stopped")
}
