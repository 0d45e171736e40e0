package channels

import (
	"context"
	"fmt"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type SendGridBackend struct {
	client *sendgrid.Client
}

// NewSendGridBackend targets api.sendgrid.com unless baseURL is set.
func NewSendGridBackend(apiKey, baseURL string) *SendGridBackend {
	client := sendgrid.NewSendClient(apiKey)
	if baseURL = strings.TrimRight(baseURL, "/"); baseURL != "" {
		client.Request.BaseURL = baseURL + "/v3/mail/send"
	}
	return &SendGridBackend{client: client}
}

func (b *SendGridBackend) Send(ctx context.Context, msg Message) error {
	message := mail.NewSingleEmail(mail.NewEmail("", msg.From), msg.Subject, mail.NewEmail("", msg.To), msg.Body, "")
	resp, err := b.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid returned status %d", resp.StatusCode)
	}
	return nil
}
