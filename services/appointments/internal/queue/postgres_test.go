package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/sytefy/backend/services/appointments/internal/model"
)

func TestPostgresEnqueue(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	remindAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO reminder_jobs").
		WithArgs(pgxmock.AnyArg(), int64(7), []string{"email", "log"}, remindAt, pgxmock.AnyArg(), "", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	b := NewPostgresBroker(mock)
	id, err := b.Enqueue(context.Background(), model.Reminder{
		AppointmentID: 7,
		RemindAt:      remindAt,
		Channels:      []string{"email", "log"},
		Payload:       map[string]any{"title": "Checkup"},
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if id == "" {
		t.Fatal("expected task id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRevokeOnlyPending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec("UPDATE reminder_jobs.*status = 'pending'").
		WithArgs("task-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := NewPostgresBroker(mock).Revoke(context.Background(), "task-1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresClaim(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	remindAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rows := mock.NewRows([]string{"task_id", "appointment_id", "channels", "remind_at", "payload", "attempts", "traceparent", "tracestate"}).
		AddRow("task-1", int64(7), []string{"email"}, remindAt, []byte(`{"title":"Checkup"}`), 1, "", "")
	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
		WithArgs(10, float64(300)).
		WillReturnRows(rows)

	jobs, err := NewPostgresBroker(mock).Claim(context.Background(), 10, 5*time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	j := jobs[0]
	if j.TaskID != "task-1" || j.AppointmentID != 7 || j.Attempts != 1 || j.Payload["title"] != "Checkup" {
		t.Fatalf("unexpected job: %+v", j)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRetryAndBury(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	next := time.Date(2026, 3, 1, 9, 1, 0, 0, time.UTC)
	mock.ExpectExec("SET status = 'pending'").
		WithArgs("task-1", next, "smtp down").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("SET status = 'dead'").
		WithArgs("task-1", "smtp down").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("SET status = 'completed'").
		WithArgs("task-2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	b := NewPostgresBroker(mock)
	ctx := context.Background()
	if err := b.Retry(ctx, Job{TaskID: "task-1"}, next, "smtp down"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if err := b.Bury(ctx, Job{TaskID: "task-1"}, "smtp down"); err != nil {
		t.Fatalf("bury: %v", err)
	}
	if err := b.Complete(ctx, Job{TaskID: "task-2"}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresExtendLease(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec("SET locked_until = now").
		WithArgs("task-1", float64(120), 2).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("SET locked_until = now").
		WithArgs("task-2", float64(120), 1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	b := NewPostgresBroker(mock)
	ctx := context.Background()
	if err := b.Extend(ctx, Job{TaskID: "task-1", Attempts: 2}, 2*time.Minute); err != nil {
		t.Fatalf("extend: %v", err)
	}
	if err := b.Extend(ctx, Job{TaskID: "task-2", Attempts: 1}, 2*time.Minute); !errors.Is(err, ErrLeaseLost) {
		t.Fatalf("expected ErrLeaseLost, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
