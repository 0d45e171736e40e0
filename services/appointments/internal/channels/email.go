package channels

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
)

type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

type EmailBackend interface {
	Send(ctx context.Context, msg Message) error
}

// EmailService never returns an error: every failure becomes false and a log line.
type EmailService struct {
	sender  string
	enabled bool
	backend EmailBackend
	logger  *slog.Logger
}

func NewEmailServiceWithBackend(sender string, enabled bool, backend EmailBackend, logger *slog.Logger) *EmailService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailService{sender: sender, enabled: enabled, backend: backend, logger: logger}
}

// NewEmailService picks the backend named by cfg.Provider. Incomplete provider
// configuration leaves the backend nil so sends are logged instead.
func NewEmailService(ctx context.Context, cfg EmailSettings, logger *slog.Logger) *EmailService {
	if logger == nil {
		logger = slog.Default()
	}
	var backend EmailBackend
	switch strings.ToLower(cfg.Provider) {
	case EmailProviderSendGrid:
		if cfg.SendGridAPIKey != "" {
			backend = NewSendGridBackend(cfg.SendGridAPIKey, cfg.SendGridBaseURL)
		}
	case EmailProviderSES:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			logger.Warn("ses config load failed", "err", err)
			break
		}
		backend = NewSESBackend(sesv2.NewFromConfig(awsCfg))
	default:
		if cfg.Host != "" {
			backend = NewSMTPBackend(cfg)
		}
	}
	return NewEmailServiceWithBackend(cfg.From, cfg.Enabled, backend, logger)
}

func (s *EmailService) Send(ctx context.Context, recipient, subject, body string) bool {
	if recipient == "" {
		s.logger.Warn("email missing recipient", "subject", subject)
		return false
	}
	if !s.enabled {
		s.logger.Info("email channel disabled", "recipient", recipient, "subject", subject)
		return false
	}
	if s.backend == nil {
		s.logger.Info("email backend missing",
			"sender", s.sender,
			"recipient", recipient,
			"subject", subject,
			"body", body,
		)
		return false
	}
	err := s.backend.Send(ctx, Message{From: s.sender, To: recipient, Subject: subject, Body: body})
	if err != nil {
		s.logger.Error("email send failed", "recipient", recipient, "subject", subject, "err", err)
		return false
	}
	s.logger.Info("email sent", "recipient", recipient, "subject", subject)
	return true
}

// headerSafe folds line breaks so header values cannot start new header lines.
var headerSafe = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

func buildMIME(msg Message) string {
	return fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		headerSafe.Replace(msg.From),
		headerSafe.Replace(msg.To),
		headerSafe.Replace(msg.Subject),
		msg.Body,
	)
}
