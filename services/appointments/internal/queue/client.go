package queue

import (
	"context"

	"github.com/sytefy/backend/services/appointments/internal/model"
)

// RecordingClient counts enqueue and revoke calls made through a broker.
type RecordingClient struct {
	Broker   Broker
	Recorder QueueRecorder
}

func (c RecordingClient) Enqueue(ctx context.Context, reminder model.Reminder) (string, error) {
	id, err := c.Broker.Enqueue(ctx, reminder)
	if err == nil {
		c.record("enqueued")
	}
	return id, err
}

func (c RecordingClient) Revoke(ctx context.Context, taskID string) error {
	err := c.Broker.Revoke(ctx, taskID)
	if err == nil {
		c.record("revoked")
	}
	return err
}

func (c RecordingClient) record(event string) {
	if c.Recorder != nil {
		c.Recorder.RecordQueueEvent(c.Broker.Name(), event)
	}
}
