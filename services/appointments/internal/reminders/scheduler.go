package reminders

import (
	"context"
	"time"

	"github.com/sytefy/backend/services/appointments/internal/model"
)

// TaskClient is the delayed-execution boundary. Enqueue must fire the delivery
// at reminder.RemindAt, at least once. Revoke is best effort.
type TaskClient interface {
	Enqueue(ctx context.Context, reminder model.Reminder) (string, error)
	Revoke(ctx context.Context, taskID string) error
}

var DefaultChannels = []string{model.ChannelLog}

type Scheduler struct {
	client TaskClient
	offset time.Duration
	now    func() time.Time
}

func NewScheduler(client TaskClient, offsetMinutes int) *Scheduler {
	return &Scheduler{
		client: client,
		offset: time.Duration(offsetMinutes) * time.Minute,
		now:    time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// FireTime returns appointmentTime minus the offset, never earlier than now.
func (s *Scheduler) FireTime(appointmentTime time.Time) time.Time {
	remindAt := appointmentTime.UTC().Add(-s.offset)
	now := s.now().UTC()
	if remindAt.Before(now) {
		return now
	}
	return remindAt
}

func (s *Scheduler) Schedule(ctx context.Context, appointmentID int64, appointmentTime time.Time, channels []string, payload map[string]any) (model.ReminderScheduled, error) {
	remindAt := s.FireTime(appointmentTime)
	if len(channels) == 0 {
		channels = DefaultChannels
	}
	reminder := model.Reminder{
		AppointmentID: appointmentID,
		RemindAt:      remindAt,
		Channels:      append([]string(nil), channels...),
		Payload:       copyPayload(payload),
	}
	taskID, err := s.client.Enqueue(ctx, reminder)
	if err != nil {
		return model.ReminderScheduled{}, err
	}
	return model.ReminderScheduled{
		AppointmentID: appointmentID,
		RemindAt:      remindAt,
		TaskID:        taskID,
	}, nil
}

// Cancel revokes a pending reminder. An empty handle is a no-op.
func (s *Scheduler) Cancel(ctx context.Context, taskID string) error {
	if taskID == "" {
		return nil
	}
	return s.client.Revoke(ctx, taskID)
}

func copyPayload(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	return out
}
