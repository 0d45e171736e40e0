package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	otelx "github.com/sytefy/backend/libs/otel"
	"github.com/sytefy/backend/services/appointments/internal/outbox"
)

// Handler executes one job. The returned value is published with the
// delivered event.
type Handler func(ctx context.Context, job Job) (any, error)

type EventSink interface {
	Append(ctx context.Context, evt outbox.Event) error
}

type QueueRecorder interface {
	RecordQueueEvent(backend, event string)
}

type Worker struct {
	broker   Broker
	handler  Handler
	events   EventSink
	recorder QueueRecorder
	logger   *slog.Logger
	cfg      WorkerConfig
	now      func() time.Time
}

type WorkerConfig struct {
	Interval    time.Duration
	BatchSize   int
	Lease       time.Duration
	MaxRetries  int
	RetryBase   time.Duration
	RetryMax    time.Duration
	RetryJitter float64 // randomization factor per delay, 0 disables
}

func NewWorker(broker Broker, handler Handler, events EventSink, recorder QueueRecorder, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 5 * time.Minute
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 30 * time.Second
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 30 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		broker:   broker,
		handler:  handler,
		events:   events,
		recorder: recorder,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.ProcessBatch(ctx); err != nil {
				w.logger.Error("reminder batch failed", "backend", w.broker.Name(), "err", err)
			}
		}
	}
}

// ProcessBatch claims due jobs and runs them in order. Each job's lease is
// renewed right before it runs, so the lease bounds a single delivery rather
// than the whole batch. It returns the number of jobs claimed.
func (w *Worker) ProcessBatch(ctx context.Context) (int, error) {
	jobs, err := w.broker.Claim(ctx, w.cfg.BatchSize, w.cfg.Lease)
	if err != nil {
		return 0, err
	}
	for _, job := range jobs {
		if ctx.Err() != nil {
			return len(jobs), ctx.Err()
		}
		if err := w.broker.Extend(ctx, job, w.cfg.Lease); err != nil {
			w.logger.Error("extend reminder lease failed, skipping",
				"task_id", job.TaskID, "appointment_id", job.AppointmentID, "err", err)
			w.record("lease_lost")
			continue
		}
		w.process(ctx, job)
	}
	return len(jobs), nil
}

func (w *Worker) process(ctx context.Context, job Job) {
	jobCtx := otelx.ContextWithTraceContext(ctx, job.Traceparent, job.Tracestate)
	logger := w.logger.With("task_id", job.TaskID, "appointment_id", job.AppointmentID, "attempt", job.Attempts)

	result, err := w.invoke(jobCtx, job)
	if err == nil {
		if err := w.broker.Complete(jobCtx, job); err != nil {
			logger.Error("complete reminder job failed", "err", err)
			return
		}
		w.record("completed")
		w.emit(jobCtx, logger, outbox.EventReminderDelivered, job, map[string]any{
			"task_id":        job.TaskID,
			"appointment_id": job.AppointmentID,
			"attempts":       job.Attempts,
			"result":         result,
		})
		return
	}

	if job.Attempts <= w.cfg.MaxRetries {
		next := w.now().UTC().Add(w.retryDelay(job.Attempts))
		if rerr := w.broker.Retry(jobCtx, job, next, err.Error()); rerr != nil {
			logger.Error("retry reminder job failed", "err", rerr)
			return
		}
		w.record("retried")
		logger.Warn("reminder job failed, retrying", "err", err, "next_run_at", next)
		return
	}

	if berr := w.broker.Bury(jobCtx, job, err.Error()); berr != nil {
		logger.Error("bury reminder job failed", "err", berr)
		return
	}
	w.record("dead")
	logger.Error("reminder job exhausted retries", "err", err)
	w.emit(jobCtx, logger, outbox.EventReminderDead, job, map[string]any{
		"task_id":        job.TaskID,
		"appointment_id": job.AppointmentID,
		"attempts":       job.Attempts,
		"channels":       job.Channels,
		"remind_at":      job.RemindAt.UTC().Format(time.RFC3339),
		"error_reason":   err.Error(),
		"failed_at":      w.now().UTC().Format(time.RFC3339),
	})
}

func (w *Worker) record(event string) {
	if w.recorder != nil {
		w.recorder.RecordQueueEvent(w.broker.Name(), event)
	}
}

func (w *Worker) invoke(ctx context.Context, job Job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reminder handler panic: %v", r)
		}
	}()
	return w.handler(ctx, job)
}

// retryDelay grows exponentially from RetryBase, capped at RetryMax before jitter.
func (w *Worker) retryDelay(attempt int) time.Duration {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     w.cfg.RetryBase,
		RandomizationFactor: w.cfg.RetryJitter,
		Multiplier:          2,
		MaxInterval:         w.cfg.RetryMax,
	}
	b.Reset()
	d := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}

func (w *Worker) emit(ctx context.Context, logger *slog.Logger, eventType string, job Job, body map[string]any) {
	if w.events == nil {
		return
	}
	payload, err := json.Marshal(body)
	if err != nil {
		logger.Error("encode reminder event failed", "event_type", eventType, "err", err)
		return
	}
	if err := w.events.Append(ctx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   strconv.FormatInt(job.AppointmentID, 10),
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		logger.Error("append reminder event failed", "event_type", eventType, "err", err)
	}
}
