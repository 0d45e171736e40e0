package appointments

import (
	"context"
	"fmt"
	"time"

	"github.com/sytefy/backend/services/appointments/internal/model"
)

// buildPayload renders the context the delivery task receives. Missing
// values are nil so they serialize as JSON null.
func (s *Service) buildPayload(ctx context.Context, appt model.Appointment, userEmail string) (map[string]any, error) {
	var customerName, customerEmail, customerPhone any
	var customerID any
	if appt.CustomerID != nil {
		customerID = *appt.CustomerID
		if s.customers != nil {
			c, err := s.customers.GetByID(ctx, *appt.CustomerID)
			if err != nil {
				return nil, fmt.Errorf("load customer %d: %w", *appt.CustomerID, err)
			}
			if c != nil {
				customerName = nilIfEmpty(c.Name)
				customerEmail = nilIfEmpty(c.Email)
				customerPhone = nilIfEmpty(c.Phone)
			}
		}
	}

	startISO := appt.StartAt.UTC().Format(time.RFC3339)
	body := fmt.Sprintf("%s starts at %s.", appt.Title, startISO)
	if appt.Location != "" {
		body += " Location: " + appt.Location
	}

	return map[string]any{
		"user_id":        appt.UserID,
		"user_email":     nilIfEmpty(userEmail),
		"customer_id":    customerID,
		"customer_name":  customerName,
		"customer_email": customerEmail,
		"customer_phone": customerPhone,
		"title":          appt.Title,
		"location":       nilIfEmpty(appt.Location),
		"start_at":       startISO,
		"end_at":         appt.EndAt.UTC().Format(time.RFC3339),
		"body":           body,
	}, nil
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
