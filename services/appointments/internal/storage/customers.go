package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/sytefy/backend/libs/db"
	"github.com/sytefy/backend/services/appointments/internal/model"
)

type CustomerRepository struct {
	q db.Querier
}

func NewCustomerRepository(q db.Querier) *CustomerRepository {
	return &CustomerRepository{q: q}
}

// GetByID returns nil, nil when the customer does not exist.
func (r *CustomerRepository) GetByID(ctx context.Context, id int64) (*model.Customer, error) {
	var c model.Customer
	err := r.q.QueryRow(ctx, `
		SELECT id, name, COALESCE(email, ''), COALESCE(phone, '')
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Email, &c.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
