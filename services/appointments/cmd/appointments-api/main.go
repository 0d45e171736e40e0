package main

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sytefy/backend/libs/config"
	"github.com/sytefy/backend/libs/db"
	"github.com/sytefy/backend/libs/httpx"
	otelx "github.com/sytefy/backend/libs/otel"
	"github.com/sytefy/backend/libs/runtime"
	"github.com/sytefy/backend/services/appointments/internal/appointments"
	"github.com/sytefy/backend/services/appointments/internal/handlers"
	"github.com/sytefy/backend/services/appointments/internal/metrics"
	"github.com/sytefy/backend/services/appointments/internal/queue"
	"github.com/sytefy/backend/services/appointments/internal/reminders"
	"github.com/sytefy/backend/services/appointments/internal/settings"
	"github.com/sytefy/backend/services/appointments/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "appointments-api")
	port, err := config.Port("PORT", "8090")
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

	taskClient := queue.RecordingClient{Broker: opened.Broker, Recorder: reminderMetrics}
	scheduler := reminders.NewScheduler(taskClient, cfg.Reminder.OffsetMinutes)
	svc := appointments.NewService(
		storage.NewAppointmentRepository(pool),
		storage.NewCustomerRepository(pool),
		scheduler,
		cfg.Reminder.DefaultChannels,
		logger,
	)
	api := handlers.NewRouter(handlers.NewAppointmentHandler(svc, logger, cfg.ICS.Domain, cfg.ICS.Product))

	mux := runtime.NewBaseMux(reg,
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "queue", Check: opened.Ready},
	)
	mux.Handle("/api/", api)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(15*time.Second),
	)
	handler = otelhttp.NewHandler(handler, "appointments")
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
	logger.Info("http server stopped")
}
