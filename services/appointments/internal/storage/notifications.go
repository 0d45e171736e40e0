package storage

import (
	"context"

	"github.com/sytefy/backend/libs/db"
	"github.com/sytefy/backend/services/appointments/internal/model"
)

type NotificationRepository struct {
	q db.Querier
}

func NewNotificationRepository(q db.Querier) *NotificationRepository {
	return &NotificationRepository{q: q}
}

func (r *NotificationRepository) Create(ctx context.Context, n model.Notification) (model.Notification, error) {
	err := r.q.QueryRow(ctx, `
		INSERT INTO notifications (user_id, title, body, channel, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, n.UserID, n.Title, n.Body, n.Channel, n.Status).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return model.Notification{}, err
	}
	return n, nil
}
