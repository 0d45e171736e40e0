package storage

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/sytefy/backend/services/appointments/internal/model"
)

var appointmentCols = []string{"id", "user_id", "customer_id", "title", "description", "location", "channel",
	"start_at", "end_at", "remind_at", "reminder_channels", "reminder_task_id", "status", "created_at", "updated_at"}

func appointmentRow(mock pgxmock.PgxPoolIface, id int64, start time.Time, remindAt *time.Time) *pgxmock.Rows {
	return mock.NewRows(appointmentCols).AddRow(
		id, int64(42), (*int64)(nil), "Checkup", "", "Room 1", "in_person",
		start, start.Add(time.Hour), remindAt, []string{"log"}, "task-1", "scheduled", start, start,
	)
}

func TestAppointmentCreate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(int64(42), pgxmock.AnyArg(), "Checkup", pgxmock.AnyArg(), pgxmock.AnyArg(), "in_person",
			start, start.Add(time.Hour), pgxmock.AnyArg(), []string{"log"}, pgxmock.AnyArg(), "scheduled").
		WillReturnRows(appointmentRow(mock, 1, start, nil))

	repo := NewAppointmentRepository(mock)
	appt, err := repo.Create(context.Background(), model.Appointment{
		UserID:           42,
		Title:            "Checkup",
		Location:         "Room 1",
		Channel:          "in_person",
		StartAt:          start,
		EndAt:            start.Add(time.Hour),
		ReminderChannels: []string{"log"},
		Status:           model.StatusScheduled,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if appt.ID != 1 || appt.Status != model.StatusScheduled || appt.CustomerID != nil {
		t.Fatalf("unexpected appointment: %+v", appt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAppointmentGetByIDMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("FROM appointments WHERE id").
		WithArgs(int64(99)).
		WillReturnError(pgx.ErrNoRows)

	appt, err := NewAppointmentRepository(mock).GetByID(context.Background(), 99)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if appt != nil {
		t.Fatalf("expected nil appointment, got %+v", appt)
	}
}

func TestAppointmentUpdateReminderMetadata(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	remindAt := start.Add(-30 * time.Minute)
	mock.ExpectQuery("SET remind_at").
		WithArgs(int64(1), &remindAt, pgxmock.AnyArg(), []string{"log"}).
		WillReturnRows(appointmentRow(mock, 1, start, &remindAt))

	appt, err := NewAppointmentRepository(mock).UpdateReminderMetadata(context.Background(), 1, &remindAt, "task-1", []string{"log"})
	if err != nil {
		t.Fatalf("update reminder: %v", err)
	}
	if appt.RemindAt == nil || !appt.RemindAt.Equal(remindAt) || appt.ReminderTaskID != "task-1" {
		t.Fatalf("unexpected appointment: %+v", appt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAppointmentListByUserFilters(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	from := start.Add(-24 * time.Hour)
	mock.ExpectQuery("SELECT count").
		WithArgs(int64(42), "scheduled", from).
		WillReturnRows(mock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery("ORDER BY start_at ASC").
		WithArgs(int64(42), "scheduled", from, 1, 2).
		WillReturnRows(appointmentRow(mock, 3, start, nil))

	total, items, err := NewAppointmentRepository(mock).ListByUser(context.Background(), model.ListFilter{
		UserID:    42,
		Status:    model.StatusScheduled,
		StartFrom: &from,
		Limit:     1,
		Offset:    2,
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 || len(items) != 1 || items[0].ID != 3 {
		t.Fatalf("unexpected page: total=%d items=%+v", total, items)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCustomerGetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("FROM customers").
		WithArgs(int64(5)).
		WillReturnRows(mock.NewRows([]string{"id", "name", "email", "phone"}).AddRow(int64(5), "Ada", "ada@example.com", ""))
	mock.ExpectQuery("FROM customers").
		WithArgs(int64(6)).
		WillReturnError(pgx.ErrNoRows)

	repo := NewCustomerRepository(mock)
	c, err := repo.GetByID(context.Background(), 5)
	if err != nil || c == nil || c.Email != "ada@example.com" {
		t.Fatalf("unexpected customer %+v, err %v", c, err)
	}
	c, err = repo.GetByID(context.Background(), 6)
	if err != nil || c != nil {
		t.Fatalf("expected missing customer, got %+v, %v", c, err)
	}
}

func TestNotificationCreate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO notifications").
		WithArgs(int64(42), "Checkup reminder", "body", "email", "sent").
		WillReturnRows(mock.NewRows([]string{"id", "created_at"}).AddRow(int64(11), now))

	n, err := NewNotificationRepository(mock).Create(context.Background(), model.Notification{
		UserID: 42, Title: "Checkup reminder", Body: "body", Channel: "email", Status: model.NotificationSent,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if n.ID != 11 || !n.CreatedAt.Equal(now) {
		t.Fatalf("unexpected notification %+v", n)
	}
}
