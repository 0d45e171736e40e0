package delivery

import (
	"context"
	"time"

	"github.com/sytefy/backend/services/appointments/internal/queue"
)

// Handle adapts Run to the queue worker.
func (t *Task) Handle(ctx context.Context, job queue.Job) (any, error) {
	return t.Run(ctx, Request{
		AppointmentID: job.AppointmentID,
		RemindAt:      job.RemindAt.UTC().Format(time.RFC3339),
		Channels:      job.Channels,
		Context:       job.Payload,
		TaskID:        job.TaskID,
	})
}
