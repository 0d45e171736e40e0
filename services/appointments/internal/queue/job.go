package queue

import (
	"context"
	"errors"
	"time"

	"github.com/sytefy/backend/services/appointments/internal/model"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusRevoked   = "revoked"
	StatusDead      = "dead"
)

// Job is one scheduled reminder delivery. Attempts counts executions started,
// including the one in progress.
type Job struct {
	TaskID        string         `json:"task_id"`
	AppointmentID int64          `json:"appointment_id"`
	Channels      []string       `json:"channels"`
	RemindAt      time.Time      `json:"remind_at"`
	Payload       map[string]any `json:"payload"`
	Attempts      int            `json:"attempts"`
	LastError     string         `json:"last_error,omitempty"`
	Traceparent   string         `json:"traceparent,omitempty"`
	Tracestate    string         `json:"tracestate,omitempty"`
}

// ErrLeaseLost means the job is no longer claimed by the caller, either
// because its lease ran out and it was reclaimed or because it finished.
var ErrLeaseLost = errors.New("queue: job lease lost")

// Broker is a delayed job store. Both implementations also satisfy
// reminders.TaskClient through Enqueue and Revoke.
type Broker interface {
	Name() string
	Enqueue(ctx context.Context, reminder model.Reminder) (string, error)
	Revoke(ctx context.Context, taskID string) error
	Claim(ctx context.Context, limit int, lease time.Duration) ([]Job, error)
	// Extend pushes a claimed job's lease to now+lease. It returns
	// ErrLeaseLost when the claim is no longer held.
	Extend(ctx context.Context, job Job, lease time.Duration) error
	Complete(ctx context.Context, job Job) error
	Retry(ctx context.Context, job Job, nextRunAt time.Time, lastErr string) error
	Bury(ctx context.Context, job Job, lastErr string) error
}
