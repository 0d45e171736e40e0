package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sytefy/backend/libs/db"
	"github.com/sytefy/backend/services/appointments/internal/model"
)

const appointmentColumns = `id, user_id, customer_id, title, COALESCE(description, ''), COALESCE(location, ''), channel,
	start_at, end_at, remind_at, reminder_channels, COALESCE(reminder_task_id, ''), status, created_at, updated_at`

type AppointmentRepository struct {
	q db.Querier
}

func NewAppointmentRepository(q db.Querier) *AppointmentRepository {
	return &AppointmentRepository{q: q}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (model.Appointment, error) {
	var appt model.Appointment
	var status string
	err := row.Scan(
		&appt.ID,
		&appt.UserID,
		&appt.CustomerID,
		&appt.Title,
		&appt.Description,
		&appt.Location,
		&appt.Channel,
		&appt.StartAt,
		&appt.EndAt,
		&appt.RemindAt,
		&appt.ReminderChannels,
		&appt.ReminderTaskID,
		&status,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.Status = model.Status(status)
	if appt.ReminderChannels == nil {
		appt.ReminderChannels = []string{}
	}
	return appt, nil
}

func (r *AppointmentRepository) Create(ctx context.Context, appt model.Appointment) (model.Appointment, error) {
	row := r.q.QueryRow(ctx, `
		INSERT INTO appointments
			(user_id, customer_id, title, description, location, channel, start_at, end_at, remind_at, reminder_channels, reminder_task_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+appointmentColumns,
		appt.UserID, appt.CustomerID, appt.Title, nullString(appt.Description), nullString(appt.Location), appt.Channel,
		appt.StartAt, appt.EndAt, appt.RemindAt, channelsOrEmpty(appt.ReminderChannels), nullString(appt.ReminderTaskID), string(appt.Status))
	return scanAppointment(row)
}

// GetByID returns nil, nil when no row matches.
func (r *AppointmentRepository) GetByID(ctx context.Context, id int64) (*model.Appointment, error) {
	row := r.q.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	appt, err := scanAppointment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &appt, nil
}

func (r *AppointmentRepository) Update(ctx context.Context, appt model.Appointment) (model.Appointment, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE appointments
		SET customer_id = $2,
			title = $3,
			description = $4,
			location = $5,
			channel = $6,
			start_at = $7,
			end_at = $8,
			remind_at = $9,
			reminder_channels = $10,
			reminder_task_id = $11,
			status = $12,
			updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns,
		appt.ID, appt.CustomerID, appt.Title, nullString(appt.Description), nullString(appt.Location), appt.Channel,
		appt.StartAt, appt.EndAt, appt.RemindAt, channelsOrEmpty(appt.ReminderChannels), nullString(appt.ReminderTaskID), string(appt.Status))
	return scanAppointment(row)
}

func (r *AppointmentRepository) UpdateReminderMetadata(ctx context.Context, id int64, remindAt *time.Time, taskID string, channels []string) (model.Appointment, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE appointments
		SET remind_at = $2,
			reminder_task_id = $3,
			reminder_channels = $4,
			updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns,
		id, remindAt, nullString(taskID), channelsOrEmpty(channels))
	return scanAppointment(row)
}

// ListByUser returns the total matching count and one page ordered by start_at.
func (r *AppointmentRepository) ListByUser(ctx context.Context, filter model.ListFilter) (int, []model.Appointment, error) {
	where := []string{"user_id = $1"}
	args := []any{filter.UserID}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.StartFrom != nil {
		args = append(args, *filter.StartFrom)
		where = append(where, fmt.Sprintf("start_at >= $%d", len(args)))
	}
	if filter.StartTo != nil {
		args = append(args, *filter.StartTo)
		where = append(where, fmt.Sprintf("start_at <= $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.q.QueryRow(ctx, `SELECT count(*) FROM appointments WHERE `+clause, args...).Scan(&total); err != nil {
		return 0, nil, err
	}

	pageArgs := append(append([]any{}, args...), filter.Limit, filter.Offset)
	rows, err := r.q.Query(ctx, fmt.Sprintf(`SELECT %s FROM appointments WHERE %s ORDER BY start_at ASC, id ASC LIMIT $%d OFFSET $%d`,
		appointmentColumns, clause, len(args)+1, len(args)+2), pageArgs...)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()

	items := []model.Appointment{}
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return 0, nil, err
		}
		items = append(items, appt)
	}
	if rows.Err() != nil {
		return 0, nil, rows.Err()
	}
	return total, items, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func channelsOrEmpty(channels []string) []string {
	if channels == nil {
		return []string{}
	}
	return channels
}
