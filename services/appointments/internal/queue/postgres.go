package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sytefy/backend/libs/db"
	otelx "github.com/sytefy/backend/libs/otel"
	"github.com/sytefy/backend/services/appointments/internal/model"
)

// PostgresBroker keeps jobs in reminder_jobs. Claims take a lease so a crashed
// worker's jobs become claimable again once the lease runs out.
type PostgresBroker struct {
	q db.Querier
}

func NewPostgresBroker(q db.Querier) *PostgresBroker {
	return &PostgresBroker{q: q}
}

func (b *PostgresBroker) Name() string { return "postgres" }

func (b *PostgresBroker) Enqueue(ctx context.Context, reminder model.Reminder) (string, error) {
	payload, err := json.Marshal(reminder.Payload)
	if err != nil {
		return "", err
	}
	taskID := uuid.NewString()
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err = b.q.Exec(ctx, `
		INSERT INTO reminder_jobs (task_id, appointment_id, channels, remind_at, payload, next_run_at, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $4, $6, $7)
	`, taskID, reminder.AppointmentID, reminder.Channels, reminder.RemindAt.UTC(), payload, traceparent, tracestate)
	if err != nil {
		return "", err
	}
	return taskID, nil
}

// Revoke only affects jobs that have not started.
func (b *PostgresBroker) Revoke(ctx context.Context, taskID string) error {
	_, err := b.q.Exec(ctx, `
		UPDATE reminder_jobs
		SET status = 'revoked', updated_at = now()
		WHERE task_id = $1 AND status = 'pending'
	`, taskID)
	return err
}

func (b *PostgresBroker) Claim(ctx context.Context, limit int, lease time.Duration) ([]Job, error) {
	rows, err := b.q.Query(ctx, `
		WITH due AS (
			SELECT task_id
			FROM reminder_jobs
			WHERE (status = 'pending' AND next_run_at <= now())
			   OR (status = 'running' AND locked_until < now())
			ORDER BY next_run_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE reminder_jobs j
		SET status = 'running',
		    attempts = j.attempts + 1,
		    locked_until = now() + make_interval(secs => $2),
		    updated_at = now()
		FROM due
		WHERE j.task_id = due.task_id
		RETURNING j.task_id, j.appointment_id, j.channels, j.remind_at, j.payload, j.attempts, j.traceparent, j.tracestate
	`, limit, lease.Seconds())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		var raw []byte
		if err := rows.Scan(&j.TaskID, &j.AppointmentID, &j.Channels, &j.RemindAt, &raw, &j.Attempts, &j.Traceparent, &j.Tracestate); err != nil {
			return nil, err
		}
		j.Payload = map[string]any{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &j.Payload); err != nil {
				return nil, err
			}
		}
		jobs = append(jobs, j)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return jobs, nil
}

func (b *PostgresBroker) Extend(ctx context.Context, job Job, lease time.Duration) error {
	tag, err := b.q.Exec(ctx, `
		UPDATE reminder_jobs
		SET locked_until = now() + make_interval(secs => $2), updated_at = now()
		WHERE task_id = $1 AND status = 'running' AND attempts = $3
	`, job.TaskID, lease.Seconds(), job.Attempts)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLeaseLost
	}
	return nil
}

func (b *PostgresBroker) Complete(ctx context.Context, job Job) error {
	_, err := b.q.Exec(ctx, `
		UPDATE reminder_jobs
		SET status = 'completed', locked_until = NULL, last_error = NULL, updated_at = now()
		WHERE task_id = $1
	`, job.TaskID)
	return err
}

func (b *PostgresBroker) Retry(ctx context.Context, job Job, nextRunAt time.Time, lastErr string) error {
	_, err := b.q.Exec(ctx, `
		UPDATE reminder_jobs
		SET status = 'pending', next_run_at = $2, last_error = $3, locked_until = NULL, updated_at = now()
		WHERE task_id = $1 AND status = 'running'
	`, job.TaskID, nextRunAt.UTC(), lastErr)
	return err
}

func (b *PostgresBroker) Bury(ctx context.Context, job Job, lastErr string) error {
	_, err := b.q.Exec(ctx, `
		UPDATE reminder_jobs
		SET status = 'dead', last_error = $2, locked_until = NULL, updated_at = now()
		WHERE task_id = $1
	`, job.TaskID, lastErr)
	return err
}
